package ffmpeg

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
)

// ErrNotLoaded is returned by engine operations before Load succeeds
var ErrNotLoaded = errors.New("engine not loaded")

// Engine is the transcoding collaborator used by exports. Files live in
// per-job namespaces of the engine's private working storage.
//
// Exec is not reentrant; callers serialize invocations.
type Engine interface {
	Load(ctx context.Context) error
	WriteFile(ctx context.Context, ns, name string, data []byte) error
	Exec(ctx context.Context, ns string, args []string, progress ProgressFunc) error
	ReadFile(ctx context.Context, ns, name string) ([]byte, error)
	RemoveNamespace(ns string) error
	Close() error
}

// EngineOptions configures a LocalEngine
type EngineOptions struct {
	// WorkDir is the parent of the scratch root; empty uses the OS temp dir.
	WorkDir string
	Binary  string
	Threads int
}

// LocalEngine runs the ffmpeg binary against a scratch directory. Each
// namespace is a subdirectory and ffmpeg runs inside it, so staged names
// stay relative.
type LocalEngine struct {
	logger zerolog.Logger
	opts   EngineOptions

	mu   sync.Mutex
	exec *Executor
	root string
}

// NewLocalEngine returns an unloaded engine
func NewLocalEngine(logger zerolog.Logger, opts EngineOptions) *LocalEngine {
	return &LocalEngine{
		logger: logger.With().Str("component", "engine").Logger(),
		opts:   opts,
	}
}

// Load resolves the binary and creates the scratch root. Calling it again
// after success is a no-op.
func (e *LocalEngine) Load(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.exec != nil {
		return nil
	}

	ex, err := NewWithBinary(e.logger, e.opts.Binary, e.opts.Threads)
	if err != nil {
		return errors.Wrap(err, "failed to load engine")
	}

	if e.opts.WorkDir != "" {
		if err := os.MkdirAll(e.opts.WorkDir, 0o755); err != nil {
			return errors.Wrap(err, "failed to create work dir")
		}
	}
	root, err := os.MkdirTemp(e.opts.WorkDir, "reelforge-")
	if err != nil {
		return errors.Wrap(err, "failed to create scratch dir")
	}

	e.exec = ex
	e.root = root

	e.logger.Info().
		Str("ffmpeg", ex.Path()).
		Str("root", root).
		Msg("engine loaded")
	return nil
}

// WriteFile stages data as name inside namespace ns
func (e *LocalEngine) WriteFile(ctx context.Context, ns, name string, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	dir, err := e.namespaceDir(ns)
	if err != nil {
		return err
	}
	if err := validName(name); err != nil {
		return err
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return errors.Wrapf(err, "failed to create namespace %s", ns)
	}
	if err := os.WriteFile(filepath.Join(dir, name), data, 0o644); err != nil {
		return errors.Wrapf(err, "failed to stage %s", name)
	}

	e.logger.Debug().
		Str("namespace", ns).
		Str("file", name).
		Int("bytes", len(data)).
		Msg("staged file")
	return nil
}

// Exec runs ffmpeg with args inside namespace ns
func (e *LocalEngine) Exec(ctx context.Context, ns string, args []string, progress ProgressFunc) error {
	dir, err := e.namespaceDir(ns)
	if err != nil {
		return err
	}

	e.mu.Lock()
	ex := e.exec
	e.mu.Unlock()
	if ex == nil {
		return ErrNotLoaded
	}

	// ffmpeg runs inside the namespace even when nothing was staged there
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return errors.Wrapf(err, "failed to create namespace %s", ns)
	}

	err = ex.Run(ctx, RunOptions{
		Args:            args,
		Dir:             dir,
		ProgressHandler: progress,
		LogHandler: func(line string) {
			e.logger.Debug().Str("ffmpeg", line).Msg("engine output")
		},
	})
	return errors.WithStack(err)
}

// ReadFile returns the bytes of name inside namespace ns
func (e *LocalEngine) ReadFile(ctx context.Context, ns, name string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	dir, err := e.namespaceDir(ns)
	if err != nil {
		return nil, err
	}
	if err := validName(name); err != nil {
		return nil, err
	}

	data, err := os.ReadFile(filepath.Join(dir, name))
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read %s", name)
	}
	return data, nil
}

// RemoveNamespace deletes everything staged under ns
func (e *LocalEngine) RemoveNamespace(ns string) error {
	dir, err := e.namespaceDir(ns)
	if err != nil {
		return err
	}
	return errors.WithStack(os.RemoveAll(dir))
}

// Close removes the scratch root. The engine can be loaded again afterwards.
func (e *LocalEngine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.root == "" {
		return nil
	}
	err := os.RemoveAll(e.root)
	e.root = ""
	e.exec = nil
	return errors.Wrap(err, "failed to remove scratch dir")
}

// Root returns the scratch directory, empty until loaded
func (e *LocalEngine) Root() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.root
}

func (e *LocalEngine) namespaceDir(ns string) (string, error) {
	if err := validName(ns); err != nil {
		return "", errors.Wrap(err, "namespace")
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.exec == nil {
		return "", ErrNotLoaded
	}
	return filepath.Join(e.root, ns), nil
}

// validName accepts a single path element
func validName(name string) error {
	if name == "" || name == "." || name == ".." ||
		strings.ContainsAny(name, `/\`) || filepath.Base(name) != name {
		return errors.Errorf("invalid name %q", name)
	}
	return nil
}
