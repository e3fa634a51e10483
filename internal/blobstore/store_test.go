package blobstore_test

import (
	"io"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/cdback/cdback/internal/blobstore"
)

func openStore(t *testing.T) *blobstore.Store {
	t.Helper()
	s, err := blobstore.Open(filepath.Join(t.TempDir(), "blob.bin"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestPutGetRoundTrip(t *testing.T) {
	s := openStore(t)

	key, err := s.Put(strings.NewReader("hello world"), 11)
	require.NoError(t, err)

	r, err := s.Get(key)
	require.NoError(t, err)
	defer r.Close()

	got, err := io.ReadAll(r)
	require.NoError(t, err)
	require.Equal(t, "hello world", string(got))
	require.EqualValues(t, 11, r.Len())
}

func TestPutAppendsSequentially(t *testing.T) {
	s := openStore(t)

	k1, err := s.Put(strings.NewReader("aaa"), 3)
	require.NoError(t, err)
	k2, err := s.Put(strings.NewReader("bb"), 2)
	require.NoError(t, err)
	require.NotEqual(t, k1, k2)

	r1, err := s.Get(k1)
	require.NoError(t, err)
	defer r1.Close()
	got1, err := io.ReadAll(r1)
	require.NoError(t, err)
	require.Equal(t, "aaa", string(got1))

	r2, err := s.Get(k2)
	require.NoError(t, err)
	defer r2.Close()
	got2, err := io.ReadAll(r2)
	require.NoError(t, err)
	require.Equal(t, "bb", string(got2))
}

func TestGetOutOfRangeKeyFails(t *testing.T) {
	s := openStore(t)
	_, err := s.Get("1000:10")
	require.Error(t, err)
}

func TestGetMalformedKeyFails(t *testing.T) {
	s := openStore(t)
	_, err := s.Get("not-a-key")
	require.Error(t, err)
}

func TestBoundedReaderSeek(t *testing.T) {
	s := openStore(t)
	key, err := s.Put(strings.NewReader("0123456789"), 10)
	require.NoError(t, err)

	r, err := s.Get(key)
	require.NoError(t, err)
	defer r.Close()

	pos, err := r.Seek(5, io.SeekStart)
	require.NoError(t, err)
	require.EqualValues(t, 5, pos)

	got, err := io.ReadAll(r)
	require.NoError(t, err)
	require.Equal(t, "56789", string(got))

	_, err = r.Seek(-1, io.SeekStart)
	require.Error(t, err)
	_, err = r.Seek(100, io.SeekStart)
	require.Error(t, err)
}

func TestConcurrentGetDuringPut(t *testing.T) {
	s := openStore(t)
	key, err := s.Put(strings.NewReader("concurrent-safe"), 15)
	require.NoError(t, err)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		_, err := s.Put(strings.NewReader("appended-meanwhile"), 18)
		require.NoError(t, err)
	}()
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			r, err := s.Get(key)
			require.NoError(t, err)
			defer r.Close()
			got, err := io.ReadAll(r)
			require.NoError(t, err)
			require.Equal(t, "concurrent-safe", string(got))
		}()
	}
	wg.Wait()
}
