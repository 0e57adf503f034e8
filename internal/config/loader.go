package config

import (
	"io/fs"
	"os"
	"path/filepath"

	"github.com/pkg/errors"
	"go.uber.org/zap"
)

const (
	DefaultFileName = "cellbook.yaml"

	// EnvKernelToken overrides kernel.token.
	EnvKernelToken = "CELLBOOK_KERNEL_TOKEN"
	// EnvServerToken overrides server.token.
	EnvServerToken = "CELLBOOK_SERVER_TOKEN"
)

var ErrConfigNotFound = errors.New("configuration file not found")

// Loader reads configuration files from a file system and lays them
// over the defaults.
type Loader struct {
	fsys   fs.FS
	getenv func(string) string
	logger *zap.Logger
}

type LoaderOption func(*Loader)

func WithLogger(logger *zap.Logger) LoaderOption {
	return func(l *Loader) {
		l.logger = logger
	}
}

// WithGetenv replaces the environment lookup.
func WithGetenv(fn func(string) string) LoaderOption {
	return func(l *Loader) {
		l.getenv = fn
	}
}

func NewLoader(fsys fs.FS, opts ...LoaderOption) *Loader {
	l := &Loader{
		fsys:   fsys,
		getenv: os.Getenv,
	}

	for _, opt := range opts {
		opt(l)
	}

	if l.logger == nil {
		l.logger = zap.NewNop()
	}

	return l
}

// Load reads name from the file system. An empty name looks for
// DefaultFileName and falls back to the defaults when it is missing; a
// named file must exist.
func (l *Loader) Load(name string) (*Config, error) {
	explicit := name != ""
	if !explicit {
		name = DefaultFileName
	}

	data, err := fs.ReadFile(l.fsys, name)
	switch {
	case errors.Is(err, fs.ErrNotExist) && !explicit:
		l.logger.Debug("no configuration file, using defaults", zap.String("name", name))
		data = nil
	case errors.Is(err, fs.ErrNotExist):
		return nil, errors.Wrapf(ErrConfigNotFound, "%s", name)
	case err != nil:
		return nil, errors.Wrapf(err, "failed to read %s", name)
	default:
		l.logger.Debug("loaded configuration file", zap.String("name", name))
	}

	cfg := Default()
	if err := decodeYAML(cfg, data); err != nil {
		return nil, errors.WithMessagef(err, "invalid %s", name)
	}

	if token := l.getenv(EnvKernelToken); token != "" {
		cfg.Kernel.Token = token
	}
	if token := l.getenv(EnvServerToken); token != "" {
		cfg.Server.Token = token
	}

	if err := cfg.Validate(); err != nil {
		return nil, errors.WithMessagef(err, "invalid %s", name)
	}
	return cfg, nil
}

// Load reads the configuration at path, or ./cellbook.yaml when path is
// empty.
func Load(path string, opts ...LoaderOption) (*Config, error) {
	if path == "" {
		return NewLoader(os.DirFS("."), opts...).Load("")
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	return NewLoader(os.DirFS(filepath.Dir(abs)), opts...).Load(filepath.Base(abs))
}
