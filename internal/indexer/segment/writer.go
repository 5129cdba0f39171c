// Package segment persists one static book package per file. A segment
// holds the package's content units and its term dictionary:
//
//	header (64 bytes) | units block (JSON) | dictionary (JSON) | footer (32 bytes)
//
// The footer carries a CRC32 of the two blocks. Files are written to a
// temporary name and renamed into place, so readers never observe a partial
// segment.
package segment

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"hash/crc32"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

// MagicBytes identifies a valid .spdx segment file.
const (
	MagicBytes    uint32 = 0x53504458
	FormatVersion uint32 = 2
	HeaderSize    int    = 64
	FooterSize    int    = 32
	Extension            = ".spdx"
)

// SegmentHeader is the 64-byte header written at the start of every segment.
type SegmentHeader struct {
	Magic       uint32
	Version     uint32
	UnitCount   uint32
	TermCount   uint32
	CreatedAt   int64
	UnitsOffset int64
	UnitsSize   int64
	DictOffset  int64
	DictSize    int64
}

// Unit is one persisted content unit of a book package.
type Unit struct {
	NTIID        string    `json:"ntiid"`
	Title        string    `json:"title,omitempty"`
	Content      string    `json:"content"`
	Package      string    `json:"package"`
	Class        string    `json:"class,omitempty"`
	LastModified time.Time `json:"last_modified"`
}

// DictEntry records a term's total frequency and document frequency within
// the package.
type DictEntry struct {
	Term      string `json:"t"`
	Frequency int    `json:"f"`
	DocFreq   int    `json:"d"`
}

type unitsBlock struct {
	Package string `json:"package"`
	Units   []Unit `json:"units"`
}

// Writer serialises book packages into .spdx segment files.
type Writer struct {
	dataDir string
}

// NewWriter creates a Writer that writes segments into the given directory.
func NewWriter(dataDir string) *Writer {
	return &Writer{dataDir: dataDir}
}

// FileName maps a package id to its segment file name. Runes outside
// [A-Za-z0-9._-] become underscores; the real id is stored inside the file.
func FileName(pkg string) string {
	var b strings.Builder
	for _, r := range pkg {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '.', r == '-', r == '_':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	return b.String() + Extension
}

// Path returns the segment path of pkg.
func (w *Writer) Path(pkg string) string {
	return filepath.Join(w.dataDir, FileName(pkg))
}

// Write atomically replaces the segment of pkg. It writes to a .tmp file
// first and renames on success. The dictionary is stored sorted by term.
func (w *Writer) Write(pkg string, units []Unit, dict []DictEntry) (string, error) {
	if pkg == "" {
		return "", fmt.Errorf("cannot write segment without a package id")
	}
	finalPath := w.Path(pkg)
	tmpPath := finalPath + ".tmp"

	if err := os.MkdirAll(w.dataDir, 0755); err != nil {
		return "", fmt.Errorf("creating segment directory: %w", err)
	}

	unitsData, err := json.Marshal(unitsBlock{Package: pkg, Units: units})
	if err != nil {
		return "", fmt.Errorf("marshaling units: %w", err)
	}
	sorted := make([]DictEntry, len(dict))
	copy(sorted, dict)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Term < sorted[j].Term })
	dictData, err := json.Marshal(sorted)
	if err != nil {
		return "", fmt.Errorf("marshaling dictionary: %w", err)
	}

	header := SegmentHeader{
		Magic:       MagicBytes,
		Version:     FormatVersion,
		UnitCount:   uint32(len(units)),
		TermCount:   uint32(len(sorted)),
		CreatedAt:   time.Now().Unix(),
		UnitsOffset: int64(HeaderSize),
		UnitsSize:   int64(len(unitsData)),
		DictOffset:  int64(HeaderSize + len(unitsData)),
		DictSize:    int64(len(dictData)),
	}
	headerBytes := make([]byte, HeaderSize)
	binary.LittleEndian.PutUint32(headerBytes[0:4], header.Magic)
	binary.LittleEndian.PutUint32(headerBytes[4:8], header.Version)
	binary.LittleEndian.PutUint32(headerBytes[8:12], header.UnitCount)
	binary.LittleEndian.PutUint32(headerBytes[12:16], header.TermCount)
	binary.LittleEndian.PutUint64(headerBytes[16:24], uint64(header.CreatedAt))
	binary.LittleEndian.PutUint64(headerBytes[24:32], uint64(header.UnitsOffset))
	binary.LittleEndian.PutUint64(headerBytes[32:40], uint64(header.UnitsSize))
	binary.LittleEndian.PutUint64(headerBytes[40:48], uint64(header.DictOffset))
	binary.LittleEndian.PutUint64(headerBytes[48:56], uint64(header.DictSize))

	crc := crc32.NewIEEE()
	crc.Write(unitsData)
	crc.Write(dictData)
	footer := make([]byte, FooterSize)
	binary.LittleEndian.PutUint32(footer[0:4], crc.Sum32())
	binary.LittleEndian.PutUint32(footer[4:8], header.UnitCount)
	binary.LittleEndian.PutUint64(footer[8:16], uint64(header.DictOffset))
	binary.LittleEndian.PutUint64(footer[16:24], uint64(header.DictSize))
	binary.LittleEndian.PutUint64(footer[24:32], uint64(header.UnitsSize))

	f, err := os.Create(tmpPath)
	if err != nil {
		return "", fmt.Errorf("creating temp segment file: %w", err)
	}
	for _, block := range [][]byte{headerBytes, unitsData, dictData, footer} {
		if _, err := f.Write(block); err != nil {
			f.Close()
			os.Remove(tmpPath)
			return "", fmt.Errorf("writing segment %s: %w", pkg, err)
		}
	}
	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(tmpPath)
		return "", fmt.Errorf("syncing segment file: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmpPath)
		return "", fmt.Errorf("closing segment file: %w", err)
	}
	if err := os.Rename(tmpPath, finalPath); err != nil {
		return "", fmt.Errorf("renaming segment file: %w", err)
	}
	return finalPath, nil
}
