package shell

import (
	"context"
	"os"
	"sync"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/stateful/cellbook/internal/ulid"
	"github.com/stateful/cellbook/pkg/kernel"
)

type Option func(*Manager)

func WithLogger(logger *zap.Logger) Option {
	return func(m *Manager) {
		m.logger = logger
	}
}

// WithDir sets the initial working directory of started kernels.
func WithDir(dir string) Option {
	return func(m *Manager) {
		m.dir = dir
	}
}

func WithEnv(env []string) Option {
	return func(m *Manager) {
		m.env = env
	}
}

func WithName(name string) Option {
	return func(m *Manager) {
		if name != "" {
			m.name = name
		}
	}
}

// Manager owns the shell kernels of the process.
type Manager struct {
	name   string
	dir    string
	env    []string
	logger *zap.Logger

	mu      sync.RWMutex
	kernels []*Kernel
	running []kernel.Model
}

var _ kernel.Manager = (*Manager)(nil)

func NewManager(opts ...Option) *Manager {
	m := &Manager{
		name:   Name,
		env:    os.Environ(),
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Start launches a new kernel.
func (m *Manager) Start(context.Context) (kernel.Model, error) {
	k, err := newKernel(ulid.GenerateID(), m.name, m.dir, m.env, m.logger)
	if err != nil {
		return kernel.Model{}, err
	}

	m.mu.Lock()
	m.kernels = append(m.kernels, k)
	m.mu.Unlock()

	m.logger.Info("started kernel", zap.String("id", k.id))

	return k.model(), nil
}

func (m *Manager) Shutdown(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for i, k := range m.kernels {
		if k.id == id {
			k.closed.Store(true)
			m.kernels = append(m.kernels[:i], m.kernels[i+1:]...)
			m.logger.Info("shut down kernel", zap.String("id", id))
			return nil
		}
	}
	return errors.Errorf("kernel %s not found", id)
}

// RefreshRunning snapshots the running kernels returned by Running.
func (m *Manager) RefreshRunning(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.running = make([]kernel.Model, 0, len(m.kernels))
	for _, k := range m.kernels {
		m.running = append(m.running, k.model())
	}
	return nil
}

func (m *Manager) Running() []kernel.Model {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]kernel.Model(nil), m.running...)
}

func (m *Manager) ConnectTo(_ context.Context, model kernel.Model) (kernel.Connection, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, k := range m.kernels {
		if k.id == model.ID {
			return k, nil
		}
	}
	return nil, errors.Errorf("kernel %s not found", model.ID)
}
