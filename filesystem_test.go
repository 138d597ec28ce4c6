package flogfs

import (
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bnahill/FLogFS/internal/flash"
)

func newMounted(t *testing.T, opts ...Option) *Filesystem {
	t.Helper()
	dev := flash.NewMemDevice(testGeometry())
	fs := New(dev, opts...)
	require.NoError(t, fs.Format())
	require.NoError(t, fs.Mount())
	return fs
}

func writeFile(t *testing.T, fs *Filesystem, name string, data []byte) {
	t.Helper()
	w, err := fs.OpenWrite(name)
	require.NoError(t, err)
	n, err := w.Write(data)
	require.NoError(t, err)
	require.Equal(t, len(data), n)
	require.NoError(t, w.Close())
}

func readAll(t *testing.T, fs *Filesystem, name string) []byte {
	t.Helper()
	r, err := fs.OpenRead(name)
	require.NoError(t, err)
	defer r.Close()

	var out []byte
	buf := make([]byte, 8)
	for {
		n, err := r.Read(buf)
		require.NoError(t, err)
		if n == 0 {
			break
		}
		out = append(out, buf[:n]...)
	}
	return out
}

func TestOperationsRequireMount(t *testing.T) {
	dev := flash.NewMemDevice(testGeometry())
	fs := New(dev)

	_, err := fs.OpenRead("a")
	assert.ErrorIs(t, err, ErrNotMounted)

	_, err = fs.OpenWrite("a")
	assert.ErrorIs(t, err, ErrNotMounted)

	err = fs.Remove("a")
	assert.ErrorIs(t, err, ErrNotMounted)

	_, err = fs.Exists("a")
	assert.ErrorIs(t, err, ErrNotMounted)

	_, err = fs.ListStart()
	assert.ErrorIs(t, err, ErrNotMounted)
}

func TestWriteReadRoundTrip(t *testing.T) {
	fs := newMounted(t)
	writeFile(t, fs, "greeting.txt", []byte("hello, flogfs"))

	got := readAll(t, fs, "greeting.txt")
	assert.Equal(t, "hello, flogfs", string(got))
}

func TestOpenReadMissingFileReturnsErrNotFound(t *testing.T) {
	fs := newMounted(t)
	_, err := fs.OpenRead("nope")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestOpenWriteAppendsToExistingFile(t *testing.T) {
	fs := newMounted(t)
	writeFile(t, fs, "log", []byte("first "))
	writeFile(t, fs, "log", []byte("second"))

	assert.Equal(t, "first second", string(readAll(t, fs, "log")))
}

func TestExistsReflectsWritesAndRemoves(t *testing.T) {
	fs := newMounted(t)
	ok, err := fs.Exists("f")
	require.NoError(t, err)
	assert.False(t, ok)

	writeFile(t, fs, "f", []byte("x"))
	ok, err = fs.Exists("f")
	require.NoError(t, err)
	assert.True(t, ok)

	require.NoError(t, fs.Remove("f"))
	ok, err = fs.Exists("f")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRemoveIsIdempotent(t *testing.T) {
	fs := newMounted(t)
	assert.NoError(t, fs.Remove("never-existed"))

	writeFile(t, fs, "f", []byte("x"))
	require.NoError(t, fs.Remove("f"))
	assert.NoError(t, fs.Remove("f"))
}

func TestListStartSnapshotsLiveFiles(t *testing.T) {
	fs := newMounted(t)
	writeFile(t, fs, "a", []byte("1"))
	writeFile(t, fs, "b", []byte("2"))
	writeFile(t, fs, "c", []byte("3"))
	require.NoError(t, fs.Remove("b"))

	it, err := fs.ListStart()
	require.NoError(t, err)
	defer it.Stop()

	var names []string
	for {
		name, ok := it.Next()
		if !ok {
			break
		}
		names = append(names, name)
	}
	assert.ElementsMatch(t, []string{"a", "c"}, names)
}

func TestReadAtEOFReturnsZeroNilNotIOEOF(t *testing.T) {
	fs := newMounted(t)
	writeFile(t, fs, "f", []byte("ab"))

	r, err := fs.OpenRead("f")
	require.NoError(t, err)
	defer r.Close()

	buf := make([]byte, 2)
	n, err := r.Read(buf)
	require.NoError(t, err)
	require.Equal(t, 2, n)

	n, err = r.Read(buf)
	assert.NoError(t, err)
	assert.NotErrorIs(t, err, io.EOF)
	assert.Equal(t, 0, n)
}

func TestWithBaseThresholdOption(t *testing.T) {
	dev := flash.NewMemDevice(testGeometry())
	fs := New(dev, WithBaseThreshold(1))
	require.NoError(t, fs.Format())
	require.NoError(t, fs.Mount())
	assert.Equal(t, int32(1), fs.baseThreshold)
}

func TestStringReportsMountState(t *testing.T) {
	dev := flash.NewMemDevice(testGeometry())
	fs := New(dev)
	assert.Contains(t, fs.String(), "mounted=false")
	require.NoError(t, fs.Format())
	require.NoError(t, fs.Mount())
	assert.Contains(t, fs.String(), "mounted=true")
}
