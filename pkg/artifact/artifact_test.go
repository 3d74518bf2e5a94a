package artifact

import (
	"crypto/sha1" //nolint:gosec
	"encoding/hex"
	"errors"
	"io"
	"os"
	"strings"
	"sync"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const pdb = "HEADER    TEST\nATOM      1  N   MET A   1\nEND\n"

func sha1Name(content, ext string) string {
	sum := sha1.Sum([]byte(content)) //nolint:gosec

	return hex.EncodeToString(sum[:]) + ext
}

func countFiles(t *testing.T, fs afero.Fs, dir string) int {
	t.Helper()

	n := 0
	err := afero.Walk(fs, dir, func(_ string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !info.IsDir() {
			n++
		}

		return nil
	})
	if os.IsNotExist(err) {
		return 0
	}
	require.NoError(t, err)

	return n
}

func TestStoreDeduplicates(t *testing.T) {
	t.Parallel()

	tcs := map[string]func(s *Store, content string) (string, error){
		"stream": func(s *Store, content string) (string, error) {
			return s.StoreStream(strings.NewReader(content), "structures")
		},
		"string": func(s *Store, content string) (string, error) {
			return s.StoreString(content, "structures")
		},
	}

	for name, store := range tcs {
		store := store
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			fs := afero.NewMemMapFs()
			s := New(fs, "/data")

			first, err := store(s, pdb)
			require.NoError(t, err)
			second, err := store(s, pdb)
			require.NoError(t, err)

			assert.Equal(t, sha1Name(pdb, DefaultExtension), first)
			assert.Equal(t, first, second)
			assert.Equal(t, 1, countFiles(t, fs, "/data/structures"))
			assert.Equal(t, 0, countFiles(t, fs, "/data/tmp"))

			f, err := s.Open("structures", first)
			require.NoError(t, err)
			defer f.Close()
			data, err := io.ReadAll(f)
			require.NoError(t, err)
			assert.Equal(t, pdb, string(data))
		})
	}
}

func TestStoreStreamAndStringAgree(t *testing.T) {
	t.Parallel()

	s := New(afero.NewMemMapFs(), "/data", WithExtension("json"))

	fromString, err := s.StoreString(`{"a": 1}`, "results")
	require.NoError(t, err)
	fromStream, err := s.StoreStream(strings.NewReader(`{"a": 1}`), "results")
	require.NoError(t, err)
	assert.Equal(t, fromString, fromStream)
	assert.True(t, strings.HasSuffix(fromString, ".json"))

	other, err := s.StoreString("x", "results", Extension(".xyz"))
	require.NoError(t, err)
	assert.Equal(t, sha1Name("x", ".xyz"), other)
}

func TestStoreConcurrentIdenticalContent(t *testing.T) {
	t.Parallel()

	fs := afero.NewMemMapFs()
	s := New(fs, "/data")

	var wg sync.WaitGroup
	names := make([]string, 8)
	errs := make([]error, 8)
	for i := range names {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			names[i], errs[i] = s.StoreStream(strings.NewReader(pdb), "structures")
		}(i)
	}
	wg.Wait()

	for i := range names {
		require.NoError(t, errs[i])
		assert.Equal(t, sha1Name(pdb, DefaultExtension), names[i])
	}
	assert.Equal(t, 1, countFiles(t, fs, "/data/structures"))
	assert.Equal(t, 0, countFiles(t, fs, "/data/tmp"))
}

type failingReader struct {
	sent bool
}

func (r *failingReader) Read(p []byte) (int, error) {
	if r.sent {
		return 0, errors.New("connection reset")
	}
	r.sent = true

	return copy(p, "HEADER"), nil
}

func TestStoreFailuresLeaveNoFile(t *testing.T) {
	t.Parallel()

	t.Run("read error", func(t *testing.T) {
		t.Parallel()

		fs := afero.NewMemMapFs()
		s := New(fs, "/data")

		_, err := s.StoreStream(&failingReader{}, "structures")
		assert.ErrorIs(t, err, ErrIO)
		assert.Equal(t, 0, countFiles(t, fs, "/data"))
	})

	t.Run("read only filesystem", func(t *testing.T) {
		t.Parallel()

		fs := afero.NewReadOnlyFs(afero.NewMemMapFs())
		s := New(fs, "/data")

		_, err := s.StoreString(pdb, "structures")
		assert.ErrorIs(t, err, ErrIO)
		_, err = s.StoreStream(strings.NewReader(pdb), "structures")
		assert.ErrorIs(t, err, ErrIO)
	})
}

func TestStoreNames(t *testing.T) {
	t.Parallel()

	s := New(afero.NewMemMapFs(), "/data")

	for _, ns := range []string{"", "..", "a/b", `a\b`, "tmp", ".hidden"} {
		_, err := s.StoreString(pdb, ns)
		assert.ErrorIs(t, err, ErrNamespace, ns)
	}

	_, err := s.Open("structures", "../../etc/passwd")
	assert.ErrorIs(t, err, ErrNamespace)

	_, err = s.Open("structures", "missing.pdb")
	assert.ErrorIs(t, err, ErrNotFound)

	ok, err := s.Exists("structures", "missing.pdb")
	require.NoError(t, err)
	assert.False(t, ok)
}
