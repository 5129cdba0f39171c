package segment

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"hash/crc32"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

// ErrCorrupt marks a segment whose framing or checksum does not verify.
var ErrCorrupt = errors.New("corrupt segment")

type Reader struct {
	filePath string
	header   SegmentHeader
	pkg      string
	units    []Unit
	dict     []DictEntry
}

// OpenReader reads and verifies a whole segment file.
func OpenReader(path string) (*Reader, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("opening segment file: %w", err)
	}
	if len(data) < HeaderSize+FooterSize {
		return nil, fmt.Errorf("%s: %w: file too short", path, ErrCorrupt)
	}
	headerBytes := data[:HeaderSize]
	magic := binary.LittleEndian.Uint32(headerBytes[0:4])
	if magic != MagicBytes {
		return nil, fmt.Errorf("%s: %w: bad magic bytes %x", path, ErrCorrupt, magic)
	}
	header := SegmentHeader{
		Magic:       magic,
		Version:     binary.LittleEndian.Uint32(headerBytes[4:8]),
		UnitCount:   binary.LittleEndian.Uint32(headerBytes[8:12]),
		TermCount:   binary.LittleEndian.Uint32(headerBytes[12:16]),
		CreatedAt:   int64(binary.LittleEndian.Uint64(headerBytes[16:24])),
		UnitsOffset: int64(binary.LittleEndian.Uint64(headerBytes[24:32])),
		UnitsSize:   int64(binary.LittleEndian.Uint64(headerBytes[32:40])),
		DictOffset:  int64(binary.LittleEndian.Uint64(headerBytes[40:48])),
		DictSize:    int64(binary.LittleEndian.Uint64(headerBytes[48:56])),
	}
	if header.Version != FormatVersion {
		return nil, fmt.Errorf("%s: unsupported segment version %d", path, header.Version)
	}
	bodyEnd := int64(len(data) - FooterSize)
	if header.UnitsOffset != int64(HeaderSize) ||
		header.UnitsOffset+header.UnitsSize != header.DictOffset ||
		header.DictOffset+header.DictSize != bodyEnd {
		return nil, fmt.Errorf("%s: %w: block offsets do not match file size", path, ErrCorrupt)
	}

	unitsData := data[header.UnitsOffset:header.DictOffset]
	dictData := data[header.DictOffset:bodyEnd]
	footer := data[bodyEnd:]
	crc := crc32.NewIEEE()
	crc.Write(unitsData)
	crc.Write(dictData)
	if want := binary.LittleEndian.Uint32(footer[0:4]); crc.Sum32() != want {
		return nil, fmt.Errorf("%s: %w: checksum mismatch", path, ErrCorrupt)
	}

	var block unitsBlock
	if err := json.Unmarshal(unitsData, &block); err != nil {
		return nil, fmt.Errorf("parsing units of %s: %w", path, err)
	}
	var dict []DictEntry
	if err := json.Unmarshal(dictData, &dict); err != nil {
		return nil, fmt.Errorf("parsing dictionary of %s: %w", path, err)
	}
	if uint32(len(block.Units)) != header.UnitCount || uint32(len(dict)) != header.TermCount {
		return nil, fmt.Errorf("%s: %w: counts do not match header", path, ErrCorrupt)
	}
	return &Reader{
		filePath: path,
		header:   header,
		pkg:      block.Package,
		units:    block.Units,
		dict:     dict,
	}, nil
}

// Lookup finds term in the sorted dictionary.
func (r *Reader) Lookup(term string) (DictEntry, bool) {
	idx := sort.Search(len(r.dict), func(i int) bool {
		return r.dict[i].Term >= term
	})
	if idx >= len(r.dict) || r.dict[idx].Term != term {
		return DictEntry{}, false
	}
	return r.dict[idx], true
}

func (r *Reader) Package() string {
	return r.pkg
}

func (r *Reader) Units() []Unit {
	return r.units
}

func (r *Reader) Dictionary() []DictEntry {
	return r.dict
}

func (r *Reader) Terms() int {
	return len(r.dict)
}

func (r *Reader) DocCount() uint32 {
	return r.header.UnitCount
}

func (r *Reader) CreatedAt() time.Time {
	return time.Unix(r.header.CreatedAt, 0).UTC()
}

func (r *Reader) Path() string {
	return r.filePath
}

// List returns the segment files in dir, sorted by name. A missing
// directory holds no segments.
func List(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("listing segments in %s: %w", dir, err)
	}
	var paths []string
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), Extension) {
			continue
		}
		paths = append(paths, filepath.Join(dir, e.Name()))
	}
	sort.Strings(paths)
	return paths, nil
}
