package stream_test

import (
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/cdback/cdback/internal/stream"
)

func writeFile(t *testing.T, dir, name, content string) stream.Source {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return stream.Source{RelPath: name, AbsPath: path, Size: int64(len(content))}
}

func TestGlobalStreamConcatenatesInOrder(t *testing.T) {
	dir := t.TempDir()
	sources := []stream.Source{
		writeFile(t, dir, "a.txt", "hello "),
		writeFile(t, dir, "b.txt", "world"),
	}

	gs := stream.NewGlobalStream(sources)
	defer gs.Close()

	got, err := io.ReadAll(gs)
	require.NoError(t, err)
	require.Equal(t, "hello world", string(got))
}

func TestGlobalStreamSkipsEmptyFiles(t *testing.T) {
	dir := t.TempDir()
	sources := []stream.Source{
		writeFile(t, dir, "a.txt", "x"),
		writeFile(t, dir, "empty.txt", ""),
		writeFile(t, dir, "b.txt", "y"),
	}

	gs := stream.NewGlobalStream(sources)
	defer gs.Close()

	got, err := io.ReadAll(gs)
	require.NoError(t, err)
	require.Equal(t, "xy", string(got))
}

func TestGlobalStreamEmptySourceList(t *testing.T) {
	gs := stream.NewGlobalStream(nil)
	defer gs.Close()

	n, err := gs.Read(make([]byte, 4))
	require.Equal(t, 0, n)
	require.Equal(t, io.EOF, err)
}
