// Package engram wires the memory and skill-learning engine together: a
// snapshot storage backend, an embedding provider, the semantic index, the
// memory store, the consolidator, and the skill progression engine, plus
// the background sweeps that keep them tidy.
package engram

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"go.uber.org/zap"

	"github.com/engramlabs/engram-go/pkg/core"
	"github.com/engramlabs/engram-go/pkg/embedder"
	"github.com/engramlabs/engram-go/pkg/embedder/openai"
	"github.com/engramlabs/engram-go/pkg/embedder/qwen"
	"github.com/engramlabs/engram-go/pkg/memory"
	"github.com/engramlabs/engram-go/pkg/semindex"
	"github.com/engramlabs/engram-go/pkg/skills"
	"github.com/engramlabs/engram-go/pkg/storage"
	filestore "github.com/engramlabs/engram-go/pkg/storage/file"
	"github.com/engramlabs/engram-go/pkg/storage/mysql"
	"github.com/engramlabs/engram-go/pkg/storage/postgres"
	"github.com/engramlabs/engram-go/pkg/storage/sqlite"
)

// Default background sweep intervals.
const (
	DefaultExpiryInterval        = time.Hour
	DefaultDecayInterval         = time.Hour
	DefaultConsolidationInterval = 7 * 24 * time.Hour
)

// Engine is the top-level handle an orchestration layer owns. Construct one
// per logical agent deployment; it is safe for concurrent use.
type Engine struct {
	memory *memory.Store
	skills *skills.Engine
	index  *semindex.Index

	store    storage.SnapshotStore
	provider embedder.Provider
	logger   *zap.Logger

	expiryInterval time.Duration
	decayInterval  time.Duration
	consolidation  *memory.ConsolidationScheduler

	stop chan struct{}
	done chan struct{}
}

// Option customizes an Engine beyond what Config carries.
type Option func(*options)

type options struct {
	logger   *zap.Logger
	provider embedder.Provider
	deps     []skills.DependencyEdge
	nodeID   int64
}

// WithLogger sets the logger shared by all components.
func WithLogger(logger *zap.Logger) Option {
	return func(o *options) { o.logger = logger }
}

// WithEmbedder injects an embedding provider, overriding the one Config
// would construct. Useful for tests and for providers this module does not
// ship a client for.
func WithEmbedder(p embedder.Provider) Option {
	return func(o *options) { o.provider = p }
}

// WithSkillDependencies sets the prerequisite table for XP awards.
func WithSkillDependencies(deps []skills.DependencyEdge) Option {
	return func(o *options) { o.deps = deps }
}

// WithNodeID sets the snowflake node number for ID generation. Defaults
// to 1; give each process its own number when several share a backend.
func WithNodeID(id int64) Option {
	return func(o *options) { o.nodeID = id }
}

// New constructs a fully wired Engine from configuration. Background sweeps
// do not run until Start is called.
func New(ctx context.Context, cfg *core.Config, opts ...Option) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	o := &options{nodeID: 1}
	for _, opt := range opts {
		opt(o)
	}
	logger := o.logger
	if logger == nil {
		logger = zap.NewNop()
	}

	store, err := newSnapshotStore(&cfg.Storage)
	if err != nil {
		return nil, err
	}

	provider := o.provider
	if provider == nil && cfg.Embedder.Provider != "" {
		provider, err = newEmbeddingProvider(&cfg.Embedder)
		if err != nil {
			store.Close()
			return nil, err
		}
	}

	node, err := snowflake.NewNode(o.nodeID)
	if err != nil {
		store.Close()
		return nil, core.NewEngineError("New", err)
	}

	var index *semindex.Index
	if provider != nil {
		index, err = semindex.NewIndex(ctx, &semindex.Config{
			Provider: provider,
			Store:    store,
			Node:     node,
			Logger:   logger,
		})
		if err != nil {
			store.Close()
			return nil, err
		}
	}

	mem, err := memory.NewStore(ctx, &memory.Config{
		Store:  store,
		Index:  index,
		Node:   node,
		Logger: logger,
	})
	if err != nil {
		store.Close()
		return nil, err
	}

	skillCfg := &skills.Config{
		Store:           store,
		Dependencies:    o.deps,
		DecayRatePerDay: cfg.Skills.DecayRatePerDay,
		DecayFloor:      skills.Level(cfg.Skills.DecayFloor),
		Logger:          logger,
	}
	if cfg.Skills.IdleThresholdDays > 0 {
		skillCfg.IdleThreshold = time.Duration(cfg.Skills.IdleThresholdDays) * 24 * time.Hour
	}
	skillEngine, err := skills.NewEngine(ctx, skillCfg)
	if err != nil {
		store.Close()
		return nil, err
	}

	e := &Engine{
		memory:         mem,
		skills:         skillEngine,
		index:          index,
		store:          store,
		provider:       provider,
		logger:         logger,
		expiryInterval: cfg.Sweeps.ExpiryInterval,
		decayInterval:  cfg.Sweeps.DecayInterval,
	}
	if e.expiryInterval <= 0 {
		e.expiryInterval = DefaultExpiryInterval
	}
	if e.decayInterval <= 0 {
		e.decayInterval = DefaultDecayInterval
	}

	consolidationInterval := cfg.Sweeps.ConsolidationInterval
	if consolidationInterval <= 0 {
		consolidationInterval = DefaultConsolidationInterval
	}
	e.consolidation = memory.NewConsolidationScheduler(mem, consolidationInterval, logger)

	return e, nil
}

func newSnapshotStore(cfg *core.StorageConfig) (storage.SnapshotStore, error) {
	switch cfg.Provider {
	case "file":
		return filestore.NewStore(&filestore.Config{Dir: cfg.Dir})
	case "sqlite":
		return sqlite.NewStore(&sqlite.Config{DBPath: cfg.DBPath})
	case "postgres":
		return postgres.NewStore(&postgres.Config{
			Host:     cfg.Host,
			Port:     cfg.Port,
			User:     cfg.User,
			Password: cfg.Password,
			DBName:   cfg.DBName,
			SSLMode:  cfg.SSLMode,
		})
	case "mysql":
		return mysql.NewStore(&mysql.Config{
			Host:     cfg.Host,
			Port:     cfg.Port,
			User:     cfg.User,
			Password: cfg.Password,
			DBName:   cfg.DBName,
		})
	default:
		return nil, core.NewEngineError("newSnapshotStore", core.ErrInvalidConfig)
	}
}

func newEmbeddingProvider(cfg *core.EmbedderConfig) (embedder.Provider, error) {
	switch cfg.Provider {
	case "openai":
		return openai.NewClient(&openai.Config{
			APIKey:     cfg.APIKey,
			Model:      cfg.Model,
			BaseURL:    cfg.BaseURL,
			Dimensions: cfg.Dimensions,
		})
	case "qwen":
		return qwen.NewClient(&qwen.Config{
			APIKey:     cfg.APIKey,
			Model:      cfg.Model,
			BaseURL:    cfg.BaseURL,
			Dimensions: cfg.Dimensions,
		})
	default:
		return nil, core.NewEngineError("newEmbeddingProvider", core.ErrInvalidConfig)
	}
}

// Memory returns the memory store.
func (e *Engine) Memory() *memory.Store { return e.memory }

// Skills returns the skill progression engine.
func (e *Engine) Skills() *skills.Engine { return e.skills }

// Index returns the semantic index, or nil when no embedding provider is
// configured.
func (e *Engine) Index() *semindex.Index { return e.index }

// Start launches the background sweeps: hourly record expiry, hourly skill
// decay, and weekly consolidation (intervals configurable). Idempotent
// while running.
func (e *Engine) Start() {
	if e.stop != nil {
		return
	}
	e.stop = make(chan struct{})
	e.done = make(chan struct{})
	e.consolidation.Start()
	go e.sweep()
	e.logger.Info("engine started",
		zap.Duration("expiry_interval", e.expiryInterval),
		zap.Duration("decay_interval", e.decayInterval))
}

func (e *Engine) sweep() {
	defer close(e.done)
	expiry := time.NewTicker(e.expiryInterval)
	defer expiry.Stop()
	decay := time.NewTicker(e.decayInterval)
	defer decay.Stop()

	for {
		select {
		case <-expiry.C:
			removed, err := e.memory.RemoveExpired(context.Background())
			if err != nil {
				e.logger.Error("expiry sweep failed", zap.Error(err))
			} else if removed > 0 {
				e.logger.Info("expired records removed", zap.Int("count", removed))
			}
		case <-decay.C:
			decayed, err := e.skills.TriggerDecay(context.Background())
			if err != nil {
				e.logger.Error("decay sweep failed", zap.Error(err))
			} else if decayed > 0 {
				e.logger.Info("idle skills decayed", zap.Int("count", decayed))
			}
		case <-e.stop:
			return
		}
	}
}

// Stop halts the sweeps, waits for in-flight background indexing, and
// closes the storage backend and embedding provider.
func (e *Engine) Stop() error {
	if e.stop != nil {
		close(e.stop)
		<-e.done
		e.stop = nil
		e.consolidation.Stop()
	}

	e.memory.WaitIndexing()

	var firstErr error
	if e.provider != nil {
		if err := e.provider.Close(); err != nil {
			firstErr = err
		}
	}
	if err := e.store.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	e.logger.Info("engine stopped")
	return firstErr
}
