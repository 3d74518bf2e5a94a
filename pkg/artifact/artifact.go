// Package artifact stores content once under the sha1 of its bytes.
//
// A producer writes through a temporary file in the tmp directory of the store root. Once the content is
// hashed, the temporary file is renamed to <namespace>/<sha1><extension> unless a file with that name already
// exists, in which case it is discarded. The canonical path only ever appears through a rename, so it never
// holds a partial write. Two concurrent producers of the same bytes may both reach the rename: whichever
// loses finds the canonical file present and reports success.
package artifact

import (
	"crypto/sha1" //nolint:gosec // content address, not a security boundary
	"encoding/hex"
	"io"
	"os"
	"path"
	"strings"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/spf13/afero"
)

// ErrIO reports a failure to write, hash or read an artifact.
var ErrIO = errors.New("artifact i/o failure")

// ErrNotFound reports a missing artifact.
var ErrNotFound = errors.New("artifact not found")

// ErrNamespace reports a namespace or filename that would escape the store root.
var ErrNamespace = errors.New("invalid artifact namespace")

// DefaultExtension is appended to the hash when no other extension is configured.
const DefaultExtension = ".pdb"

const tmpDir = "tmp"

// Store is a content-addressed artifact store on an afero filesystem.
type Store struct {
	fs        afero.Fs
	root      string
	extension string
	logger    zerolog.Logger
}

// Option configures a Store.
type Option func(*Store)

// WithExtension sets the default extension of stored files, such as ".pdb".
func WithExtension(ext string) Option {
	return func(s *Store) {
		s.extension = normalizeExt(ext)
	}
}

// WithLogger sets the logger of the store.
func WithLogger(logger zerolog.Logger) Option {
	return func(s *Store) {
		s.logger = logger
	}
}

// New returns a store rooted at root on fs.
func New(fs afero.Fs, root string, opts ...Option) *Store {
	s := &Store{
		fs:        fs,
		root:      root,
		extension: DefaultExtension,
		logger:    zerolog.Nop(),
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

type storeOptions struct {
	extension string
}

// StoreOption configures one store call.
type StoreOption func(*storeOptions)

// Extension overrides the extension of the stored file.
func Extension(ext string) StoreOption {
	return func(o *storeOptions) {
		o.extension = normalizeExt(ext)
	}
}

func normalizeExt(ext string) string {
	if ext == "" || strings.HasPrefix(ext, ".") {
		return ext
	}

	return "." + ext
}

// StoreStream stores the content read from r under namespace and returns its filename. The content is hashed
// while it is written to the temporary file, it is never held in memory.
func (s *Store) StoreStream(r io.Reader, namespace string, opts ...StoreOption) (string, error) {
	o := s.options(opts)
	if err := validName(namespace); err != nil {
		return "", err
	}

	tmp, err := s.tempFile()
	if err != nil {
		return "", err
	}

	committed := false
	defer func() {
		if !committed {
			_ = s.fs.Remove(tmp.Name())
		}
	}()

	hasher := sha1.New() //nolint:gosec
	if _, err := io.Copy(io.MultiWriter(tmp, hasher), r); err != nil {
		_ = tmp.Close()

		return "", errors.Wrapf(ErrIO, "unable to write temporary artifact: %v", err)
	}

	if err := tmp.Close(); err != nil {
		return "", errors.Wrapf(ErrIO, "unable to close temporary artifact: %v", err)
	}

	filename := hex.EncodeToString(hasher.Sum(nil)) + o.extension

	committed, err = s.commit(tmp.Name(), namespace, filename)
	if err != nil {
		return "", err
	}

	return filename, nil
}

// StoreString stores content under namespace and returns its filename. The hash is computed before anything
// is written, so a duplicate never touches the filesystem.
func (s *Store) StoreString(content, namespace string, opts ...StoreOption) (string, error) {
	o := s.options(opts)
	if err := validName(namespace); err != nil {
		return "", err
	}

	sum := sha1.Sum([]byte(content)) //nolint:gosec
	filename := hex.EncodeToString(sum[:]) + o.extension

	exists, err := s.Exists(namespace, filename)
	if err != nil {
		return "", err
	}
	if exists {
		s.logger.Debug().Str("namespace", namespace).Str("filename", filename).Msg("artifact already stored")

		return filename, nil
	}

	tmp, err := s.tempFile()
	if err != nil {
		return "", err
	}

	committed := false
	defer func() {
		if !committed {
			_ = s.fs.Remove(tmp.Name())
		}
	}()

	if _, err := io.WriteString(tmp, content); err != nil {
		_ = tmp.Close()

		return "", errors.Wrapf(ErrIO, "unable to write temporary artifact: %v", err)
	}

	if err := tmp.Close(); err != nil {
		return "", errors.Wrapf(ErrIO, "unable to close temporary artifact: %v", err)
	}

	committed, err = s.commit(tmp.Name(), namespace, filename)
	if err != nil {
		return "", err
	}

	return filename, nil
}

// commit moves the temporary file to its canonical path. It reports whether the temporary file was consumed.
func (s *Store) commit(tmpName, namespace, filename string) (bool, error) {
	final := s.path(namespace, filename)

	exists, err := afero.Exists(s.fs, final)
	if err != nil {
		return false, errors.Wrapf(ErrIO, "unable to check %s: %v", final, err)
	}
	if exists {
		s.logger.Debug().Str("namespace", namespace).Str("filename", filename).Msg("artifact already stored")

		return false, nil
	}

	if err := s.fs.MkdirAll(path.Dir(final), 0o755); err != nil {
		return false, errors.Wrapf(ErrIO, "unable to create namespace %s: %v", namespace, err)
	}

	if err := s.fs.Rename(tmpName, final); err != nil {
		// A concurrent producer of the same content got there first.
		if exists, _ := afero.Exists(s.fs, final); exists {
			return false, nil
		}

		return false, errors.Wrapf(ErrIO, "unable to commit %s: %v", final, err)
	}

	s.logger.Info().Str("namespace", namespace).Str("filename", filename).Msg("artifact stored")

	return true, nil
}

// Open returns a reader of a stored artifact.
func (s *Store) Open(namespace, filename string) (afero.File, error) {
	if err := validName(namespace); err != nil {
		return nil, err
	}
	if err := validName(filename); err != nil {
		return nil, err
	}

	f, err := s.fs.Open(s.path(namespace, filename))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.Wrapf(ErrNotFound, "%s/%s", namespace, filename)
		}

		return nil, errors.Wrapf(ErrIO, "unable to open %s/%s: %v", namespace, filename, err)
	}

	return f, nil
}

// Exists reports whether filename is stored under namespace.
func (s *Store) Exists(namespace, filename string) (bool, error) {
	if err := validName(namespace); err != nil {
		return false, err
	}
	if err := validName(filename); err != nil {
		return false, err
	}

	exists, err := afero.Exists(s.fs, s.path(namespace, filename))
	if err != nil {
		return false, errors.Wrapf(ErrIO, "unable to check %s/%s: %v", namespace, filename, err)
	}

	return exists, nil
}

func (s *Store) options(opts []StoreOption) storeOptions {
	o := storeOptions{extension: s.extension}
	for _, opt := range opts {
		opt(&o)
	}

	return o
}

func (s *Store) tempFile() (afero.File, error) {
	dir := path.Join(s.root, tmpDir)
	if err := s.fs.MkdirAll(dir, 0o755); err != nil {
		return nil, errors.Wrapf(ErrIO, "unable to create %s: %v", dir, err)
	}

	tmp, err := afero.TempFile(s.fs, dir, "artifact-*")
	if err != nil {
		return nil, errors.Wrapf(ErrIO, "unable to create temporary artifact: %v", err)
	}

	return tmp, nil
}

func (s *Store) path(namespace, filename string) string {
	return path.Join(s.root, namespace, filename)
}

func validName(name string) error {
	if name == "" || name == "." || name == ".." || name == tmpDir ||
		strings.ContainsAny(name, `/\`) || strings.HasPrefix(name, ".") {
		return errors.Wrapf(ErrNamespace, "%q", name)
	}

	return nil
}
