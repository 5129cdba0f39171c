package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/Adithya-Monish-Kumar-K/entity-search/internal/bookindex"
)

var buildCmd = &cobra.Command{
	Use:   "build <package> <units.json>",
	Short: "Rebuild a package from a JSON array of content units",
	Long: `build replaces the named package wholesale. The units file holds a JSON
array of {"ntiid","title","content","class","last_modified"} objects; a unit
without a package field is assigned to <package>.`,
	Args: cobra.ExactArgs(2),
	RunE: runBuild,
}

func init() {
	rootCmd.AddCommand(buildCmd)
}

func runBuild(cmd *cobra.Command, args []string) error {
	pkg, path := args[0], args[1]
	units, err := readUnits(path, pkg)
	if err != nil {
		return err
	}
	library, err := openLibrary(cmd.Context())
	if err != nil {
		return err
	}
	idx, err := library.Rebuild(cmd.Context(), pkg, units)
	if err != nil {
		return fmt.Errorf("rebuilding %s: %w", pkg, err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s: %d units, %d terms\n", idx.Package(), idx.Len(), len(idx.Dictionary()))
	return nil
}

func readUnits(path, pkg string) ([]bookindex.Unit, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading units: %w", err)
	}
	var units []bookindex.Unit
	if err := json.Unmarshal(data, &units); err != nil {
		return nil, fmt.Errorf("decoding %s: %w", path, err)
	}
	for i := range units {
		if units[i].Package == "" {
			units[i].Package = pkg
		}
	}
	return units, nil
}
