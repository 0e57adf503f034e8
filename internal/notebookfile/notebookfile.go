// Package notebookfile binds a document and its adapter to a notebook file
// on disk.
package notebookfile

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/pkg/errors"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/stateful/cellbook/pkg/document"
	"github.com/stateful/cellbook/pkg/document/adapter"
	"github.com/stateful/cellbook/pkg/document/convert"
	"github.com/stateful/cellbook/pkg/nbformat"
)

type Format int

const (
	FormatNotebook Format = iota
	FormatMarkdown
)

// FormatOf picks the format of path from its extension. Anything that is
// not markdown is read as a notebook.
func FormatOf(path string) Format {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".md", ".markdown":
		return FormatMarkdown
	default:
		return FormatNotebook
	}
}

type Option func(*File)

func WithLogger(logger *zap.Logger) Option {
	return func(f *File) {
		f.logger = logger
	}
}

// WithAdapterOptions passes opts to the adapter of the file.
func WithAdapterOptions(opts ...adapter.Option) Option {
	return func(f *File) {
		f.adapterOpts = append(f.adapterOpts, opts...)
	}
}

// File is an open notebook file.
type File struct {
	Path    string
	Doc     *document.Document
	Adapter *adapter.Adapter

	format      Format
	logger      *zap.Logger
	adapterOpts []adapter.Option

	mu       sync.Mutex
	metadata map[string]any
	checksum string
}

// Open loads path into a fresh document. A missing file opens as an
// empty document and is created on the first Save.
func Open(ctx context.Context, path string, opts ...Option) (*File, error) {
	f := &File{
		Path:   path,
		format: FormatOf(path),
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(f)
	}

	nb := nbformat.New()
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		nb, err = f.decode(data)
		if err != nil {
			return nil, errors.WithMessagef(err, "failed to read %s", path)
		}
		f.checksum = checksum(data)
	case errors.Is(err, fs.ErrNotExist):
		f.logger.Debug("notebook file does not exist yet", zap.String("path", path))
	default:
		return nil, errors.WithStack(err)
	}
	f.metadata = nb.Metadata

	f.Doc = document.New(document.WithLogger(f.logger))
	if err := convert.Import(ctx, f.Doc.Tree, nb); err != nil {
		f.Doc.Close()
		return nil, errors.WithMessagef(err, "failed to load %s", path)
	}

	f.Adapter = adapter.New(
		f.Doc.Tree,
		f.Doc.Registry,
		append([]adapter.Option{adapter.WithLogger(f.logger)}, f.adapterOpts...)...,
	)

	f.logger.Info("opened notebook file", zap.String("path", path), zap.Int("cells", len(nb.Cells)))

	return f, nil
}

// Save writes the document with its outputs back to the file.
func (f *File) Save() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	data, err := f.export(f.format)
	if err != nil {
		return err
	}
	if err := writeFile(f.Path, data); err != nil {
		return err
	}
	f.checksum = checksum(data)

	f.logger.Debug("saved notebook file", zap.String("path", f.Path))

	return nil
}

// SaveAs writes the document to path in the format of its extension. The
// file stays bound to its original path.
func (f *File) SaveAs(path string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	data, err := f.export(FormatOf(path))
	if err != nil {
		return err
	}
	return writeFile(path, data)
}

func (f *File) export(format Format) ([]byte, error) {
	nb, err := convert.Export(f.Doc.Tree, f.Doc.Registry, convert.ExportOptions{IncludeOutputs: true})
	if err != nil {
		return nil, err
	}
	if len(f.metadata) > 0 {
		nb.Metadata = f.metadata
	}
	return encode(format, nb)
}

// Reload replaces the document with the content of the file. It reports
// false when the file is unchanged since it was last read or written.
func (f *File) Reload(ctx context.Context) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	data, err := os.ReadFile(f.Path)
	if err != nil {
		return false, errors.WithStack(err)
	}
	sum := checksum(data)
	if sum == f.checksum {
		return false, nil
	}

	nb, err := f.decode(data)
	if err != nil {
		return false, errors.WithMessagef(err, "failed to read %s", f.Path)
	}
	if err := convert.Replace(ctx, f.Doc.Tree, nb); err != nil {
		return false, errors.WithMessagef(err, "failed to reload %s", f.Path)
	}
	f.metadata = nb.Metadata
	f.checksum = sum

	f.logger.Info("reloaded notebook file", zap.String("path", f.Path), zap.Int("cells", len(nb.Cells)))

	return true, nil
}

// Close releases the kernel connection of the adapter and detaches the
// document.
func (f *File) Close() error {
	var err error
	if f.Adapter != nil {
		err = multierr.Append(err, f.Adapter.Close())
	}
	if f.Doc != nil {
		f.Doc.Close()
	}
	return err
}

func (f *File) decode(data []byte) (*nbformat.Notebook, error) {
	if f.format == FormatMarkdown {
		return convert.MarkdownToNotebook(data), nil
	}
	return nbformat.Unmarshal(data)
}

func encode(format Format, nb *nbformat.Notebook) ([]byte, error) {
	if format == FormatMarkdown {
		return convert.NotebookToMarkdown(nb), nil
	}
	return nbformat.Marshal(nb)
}

func checksum(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// writeFile replaces path atomically, keeping the mode of an existing
// file.
func writeFile(path string, data []byte) error {
	mode := fs.FileMode(0o644)
	if info, err := os.Stat(path); err == nil {
		mode = info.Mode().Perm()
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return errors.Wrap(err, "failed to create directory")
	}

	tmp, err := os.CreateTemp(dir, ".cellbook-*")
	if err != nil {
		return errors.Wrap(err, "failed to create temp file")
	}
	tmpName := tmp.Name()

	success := false
	defer func() {
		if !success {
			_ = tmp.Close()
			_ = os.Remove(tmpName)
		}
	}()

	if _, err := tmp.Write(data); err != nil {
		return errors.Wrap(err, "failed to write temp file")
	}
	if err := tmp.Chmod(mode); err != nil {
		return errors.Wrap(err, "failed to chmod temp file")
	}
	if err := tmp.Sync(); err != nil {
		return errors.Wrap(err, "failed to sync temp file")
	}
	if err := tmp.Close(); err != nil {
		return errors.Wrap(err, "failed to close temp file")
	}
	if err := os.Rename(tmpName, path); err != nil {
		return errors.Wrap(err, "failed to replace file")
	}
	success = true
	return nil
}
