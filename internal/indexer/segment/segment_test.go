package segment

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const pkg = "tag:nextthought.com,2011-10:MN-HTML-MiladyCosmetology"

func sample() ([]Unit, []DictEntry) {
	units := []Unit{
		{NTIID: pkg + ".ch1", Title: "Why study math", Content: "multiply and divide", Package: pkg, LastModified: time.Unix(1318000000, 0).UTC()},
		{NTIID: pkg + ".ch2", Title: "Fractions", Content: "divide fractions", Package: pkg, Class: "exercise", LastModified: time.Unix(1318000100, 0).UTC()},
	}
	dict := []DictEntry{
		{Term: "multiply", Frequency: 1, DocFreq: 1},
		{Term: "divide", Frequency: 2, DocFreq: 2},
		{Term: "fractions", Frequency: 2, DocFreq: 1},
	}
	return units, dict
}

func TestWriteThenRead(t *testing.T) {
	dir := t.TempDir()
	units, dict := sample()
	path, err := NewWriter(dir).Write(pkg, units, dict)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "tag_nextthought.com_2011-10_MN-HTML-MiladyCosmetology.spdx"), path)

	r, err := OpenReader(path)
	require.NoError(t, err)
	assert.Equal(t, pkg, r.Package())
	assert.Equal(t, units, r.Units())
	assert.EqualValues(t, 2, r.DocCount())
	assert.Equal(t, 3, r.Terms())
	assert.False(t, r.CreatedAt().IsZero())

	e, ok := r.Lookup("divide")
	require.True(t, ok)
	assert.Equal(t, 2, e.DocFreq)
	_, ok = r.Lookup("add")
	assert.False(t, ok)
	assert.Equal(t, "divide", r.Dictionary()[0].Term)

	_, err = os.Stat(path + ".tmp")
	assert.True(t, os.IsNotExist(err))
}

func TestRewriteReplaces(t *testing.T) {
	dir := t.TempDir()
	w := NewWriter(dir)
	units, dict := sample()
	_, err := w.Write(pkg, units, dict)
	require.NoError(t, err)
	path, err := w.Write(pkg, units[:1], dict[:1])
	require.NoError(t, err)

	r, err := OpenReader(path)
	require.NoError(t, err)
	assert.EqualValues(t, 1, r.DocCount())

	paths, err := List(dir)
	require.NoError(t, err)
	assert.Len(t, paths, 1)
}

func TestCorruptionDetected(t *testing.T) {
	dir := t.TempDir()
	units, dict := sample()
	path, err := NewWriter(dir).Write(pkg, units, dict)
	require.NoError(t, err)
	data, err := os.ReadFile(path)
	require.NoError(t, err)

	flipped := append([]byte(nil), data...)
	flipped[HeaderSize+5] ^= 0xff
	require.NoError(t, os.WriteFile(path, flipped, 0644))
	_, err = OpenReader(path)
	assert.True(t, errors.Is(err, ErrCorrupt))

	require.NoError(t, os.WriteFile(path, data[:len(data)-4], 0644))
	_, err = OpenReader(path)
	assert.True(t, errors.Is(err, ErrCorrupt))

	bad := append([]byte(nil), data...)
	bad[0] = 0
	require.NoError(t, os.WriteFile(path, bad, 0644))
	_, err = OpenReader(path)
	assert.True(t, errors.Is(err, ErrCorrupt))
}

func TestListMissingDir(t *testing.T) {
	paths, err := List(filepath.Join(t.TempDir(), "absent"))
	require.NoError(t, err)
	assert.Empty(t, paths)
}

func TestWriteRequiresPackage(t *testing.T) {
	_, err := NewWriter(t.TempDir()).Write("", nil, nil)
	assert.Error(t, err)
}
