package main

import (
	"fmt"
	"io"
	"sort"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/Adithya-Monish-Kumar-K/entity-search/internal/bookindex"
	"github.com/Adithya-Monish-Kumar-K/entity-search/internal/searcher/predicate"
)

var (
	flagSearchPackages []string
	flagSearchLimit    int
	flagSearchOffset   int
	flagSearchQuick    bool
	flagSearchSuggest  bool
)

var searchCmd = &cobra.Command{
	Use:   "search <query>",
	Short: "Search the loaded book packages",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runSearch,
}

var packagesCmd = &cobra.Command{
	Use:   "packages",
	Short: "List the packages found in the data directory",
	Args:  cobra.NoArgs,
	RunE:  runPackages,
}

func init() {
	searchCmd.Flags().StringSliceVarP(&flagSearchPackages, "package", "p", nil, "restrict to these packages")
	searchCmd.Flags().IntVarP(&flagSearchLimit, "limit", "k", 10, "number of results to show")
	searchCmd.Flags().IntVar(&flagSearchOffset, "offset", 0, "results to skip")
	searchCmd.Flags().BoolVar(&flagSearchQuick, "quick", false, "typeahead search (prefix match on the last term)")
	searchCmd.Flags().BoolVar(&flagSearchSuggest, "suggest", false, "correct misspelled terms before searching")
	searchCmd.MarkFlagsMutuallyExclusive("quick", "suggest")
	rootCmd.AddCommand(searchCmd, packagesCmd)
}

func runSearch(cmd *cobra.Command, args []string) error {
	library, err := openLibrary(cmd.Context())
	if err != nil {
		return err
	}
	query := strings.Join(args, " ")
	opts := bookindex.Options{
		Packages: flagSearchPackages,
		Limit:    flagSearchLimit,
		Offset:   flagSearchOffset,
	}
	req := predicate.Request{Principal: principal, Query: query}

	var res *bookindex.Results
	switch {
	case flagSearchQuick:
		res, err = library.QuickSearch(cmd.Context(), query, opts, req)
	case flagSearchSuggest:
		res, err = library.SuggestAndSearch(cmd.Context(), query, opts, req)
	default:
		res, err = library.Search(cmd.Context(), query, opts, req)
	}
	if err != nil {
		return err
	}
	printResults(cmd.OutOrStdout(), res)
	return nil
}

func printResults(out io.Writer, res *bookindex.Results) {
	if len(res.Suggestions) > 0 {
		terms := make([]string, 0, len(res.Suggestions))
		for term := range res.Suggestions {
			terms = append(terms, term)
		}
		sort.Strings(terms)
		for _, term := range terms {
			fmt.Fprintf(out, "%s -> %s\n", term, res.Suggestions[term])
		}
	}
	fmt.Fprintf(out, "query %q: %d hits\n", res.Query, res.HitCount)
	if len(res.Hits) == 0 {
		return
	}
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "SCORE\tNTIID\tCLASS\tSNIPPET")
	for _, hit := range res.Hits {
		fmt.Fprintf(w, "%.4f\t%s\t%s\t%s\n", hit.Score, hit.ObjectKey, hit.Class, hit.Snippet)
	}
	w.Flush()
}

func runPackages(cmd *cobra.Command, _ []string) error {
	library, err := openLibrary(cmd.Context())
	if err != nil {
		return err
	}
	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "PACKAGE\tUNITS\tBUILT")
	for _, pkg := range library.Packages() {
		idx, ok := library.Package(pkg)
		if !ok {
			continue
		}
		fmt.Fprintf(w, "%s\t%d\t%s\n", pkg, idx.Len(), idx.BuiltAt().Format("2006-01-02 15:04"))
	}
	return w.Flush()
}
