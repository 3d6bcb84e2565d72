package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/felixgeelhaar/docflow/internal/config"
	derrors "github.com/felixgeelhaar/docflow/internal/errors"
	"github.com/felixgeelhaar/docflow/internal/graph"
	"github.com/felixgeelhaar/docflow/internal/log"
	"github.com/felixgeelhaar/docflow/internal/metrics"
	"github.com/felixgeelhaar/docflow/internal/status"
	"github.com/felixgeelhaar/docflow/internal/unit"
	"github.com/felixgeelhaar/docflow/internal/ux"
)

// project is everything one command needs: configuration, the validated
// graph and, when requested, the open status store.
type project struct {
	*CommandContext

	Ctx      context.Context
	Root     string
	Config   *config.Config
	Registry *unit.Registry
	Graph    *graph.Graph
	Store    *status.Store
	Logger   *log.Logger
	Metrics  *metrics.Metrics

	closers []func()
	endSpan func(error)
}

type openMode int

const (
	withGraph openMode = iota
	withStore
)

// openProject loads configuration, sets up observability and builds the
// graph. withStore additionally opens the status store. Close must be
// called with the command's final error.
func openProject(cmd *cobra.Command, mode openMode) (*project, error) {
	cc, err := NewCommandContext(cmd)
	if err != nil {
		return nil, err
	}

	cfg, root, err := loadConfig(cc)
	if err != nil {
		return nil, err
	}

	p := &project{CommandContext: cc, Root: root, Config: cfg}
	logger, m, cleanup := setupObservability(cmd.Context(), cfg, cc.Err)
	p.Logger = logger.With("command", cmd.Name())
	p.Metrics = m
	p.closers = append(p.closers, cleanup)
	p.Ctx, p.endSpan = commandSpan(cmd)

	if err := p.loadGraph(); err != nil {
		p.Close(err)
		return nil, err
	}
	if mode == withStore {
		if err := p.openStore(); err != nil {
			p.Close(err)
			return nil, err
		}
	}
	return p, nil
}

// Close releases resources in reverse order and ends the command span.
func (p *project) Close(err error) {
	if p.endSpan != nil {
		p.endSpan(err)
	}
	for i := len(p.closers) - 1; i >= 0; i-- {
		p.closers[i]()
	}
}

func (p *project) loadGraph() error {
	reg, err := unit.LoadRegistry(p.Config.Registry)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return derrors.NewRegistryNotFoundError(p.Config.Registry)
		}
		return derrors.NewRegistryInvalidError(err)
	}
	g, err := graph.BuildRegistry(reg)
	if err != nil {
		return err
	}
	p.Registry = reg
	p.Graph = g
	p.Logger.Debug("registry loaded", "path", p.Config.Registry, "units", g.Len())
	return nil
}

func (p *project) openStore() error {
	store, err := status.Open(p.Config.StateDir, p.Graph.IDs(), status.Options{
		Logger:    p.Logger,
		Observers: []status.Observer{p.Metrics},
	})
	if err != nil {
		return derrors.Wrap(derrors.ErrCodeStatusPersist, "failed to open status store", err).
			WithSuggestion(fmt.Sprintf("Check that %s is readable and writable", p.Config.StateDir))
	}
	p.Store = store
	p.closers = append(p.closers, store.Close)

	if fp := store.RegistryFingerprint(); fp != "" && fp != p.Registry.Fingerprint() {
		p.Logger.Warn("registry changed since the status record was written",
			"registry", p.Config.Registry)
	}
	return nil
}

// loadConfig resolves the configuration. Relative paths from the config
// file or the environment are relative to the project root; flag values are
// used as given.
func loadConfig(cc *CommandContext) (*config.Config, string, error) {
	path := cc.ConfigPath
	explicit := path != ""
	if !explicit {
		discovered, _, err := ux.DiscoverConfigFile(".", "config.yaml")
		if err != nil {
			return nil, "", err
		}
		path = discovered
	}

	var (
		cfg *config.Config
		err error
	)
	if explicit {
		cfg, err = config.LoadFile(path)
	} else {
		cfg, err = config.Load(path)
	}
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, "", derrors.NewFileNotFoundError(path)
		}
		return nil, "", derrors.Wrap(derrors.ErrCodeConfigInvalid, "invalid configuration", err).
			WithSuggestion("Check " + path)
	}
	cfg.ApplyEnv(nil)

	root, err := projectRootFor(path)
	if err != nil {
		return nil, "", err
	}
	cfg.Registry = resolve(root, cfg.Registry)
	cfg.StateDir = resolve(root, cfg.StateDir)
	cfg.Metrics.Textfile = resolve(root, cfg.Metrics.Textfile)
	cfg.Logging.File = resolve(root, cfg.Logging.File)
	cfg.Executor.Dir = resolve(root, cfg.Executor.Dir)

	if cc.Registry != "" {
		cfg.Registry = cc.Registry
	}
	if cc.StateDir != "" {
		cfg.StateDir = cc.StateDir
	}
	if cc.LogLevel != "" {
		cfg.Logging.Level = cc.LogLevel
	}
	if cc.LogFormat != "" {
		cfg.Logging.Format = cc.LogFormat
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", derrors.Wrap(derrors.ErrCodeConfigInvalid, "invalid configuration", err)
	}
	return cfg, root, nil
}

// projectRootFor returns the directory holding .docflow for a config path
// inside it, else the config file's directory.
func projectRootFor(configPath string) (string, error) {
	abs, err := filepath.Abs(configPath)
	if err != nil {
		return "", err
	}
	dir := filepath.Dir(abs)
	if filepath.Base(dir) == ux.DirName {
		return filepath.Dir(dir), nil
	}
	return dir, nil
}

func resolve(root, path string) string {
	if path == "" || filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(root, path)
}
