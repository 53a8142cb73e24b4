package goAuthClient

import (
	"errors"
	"log/slog"

	internalaudit "github.com/MrEthical07/goAuthClient/internal/audit"
	"github.com/MrEthical07/goAuthClient/internal/flows"
	"github.com/MrEthical07/goAuthClient/store"
	"github.com/jonboulle/clockwork"
)

// Builder assembles a Manager. A Builder is single-use.
type Builder struct {
	config    Config
	backend   Backend
	store     store.Store
	logger    *slog.Logger
	clock     clockwork.Clock
	auditSink AuditSink

	built bool
}

// New returns a Builder initialised with DefaultConfig.
func New() *Builder {
	return &Builder{
		config: DefaultConfig(),
	}
}

// WithConfig replaces the whole configuration.
func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cfg
	return b
}

// WithBackend sets the remote authentication API. Required.
func (b *Builder) WithBackend(backend Backend) *Builder {
	b.backend = backend
	return b
}

// WithStore sets the token store. Defaults to an in-memory store using the
// configured keys.
func (b *Builder) WithStore(s store.Store) *Builder {
	b.store = s
	return b
}

// WithLogger sets the logger for best-effort failures. Defaults to a
// logger that discards everything.
func (b *Builder) WithLogger(logger *slog.Logger) *Builder {
	b.logger = logger
	return b
}

// WithClock sets the clock used for proactive refresh and latency
// measurement. Tests inject clockwork.NewFakeClock.
func (b *Builder) WithClock(clock clockwork.Clock) *Builder {
	b.clock = clock
	return b
}

// WithAuditSink sets the sink for audit events. Audit must also be
// enabled in Config.Audit.
func (b *Builder) WithAuditSink(sink AuditSink) *Builder {
	b.auditSink = sink
	return b
}

// WithMetricsEnabled toggles in-process metrics.
func (b *Builder) WithMetricsEnabled(enabled bool) *Builder {
	b.config.Metrics.Enabled = enabled
	return b
}

// WithLatencyHistograms toggles the backend latency histogram.
func (b *Builder) WithLatencyHistograms(enabled bool) *Builder {
	b.config.Metrics.EnableLatencyHistograms = enabled
	return b
}

// Build validates the configuration and returns a Manager in
// PhaseInitializing. Call Manager.Hydrate next.
func (b *Builder) Build() (*Manager, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}

	cfg := b.config
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if b.backend == nil {
		return nil, errors.New("backend required")
	}

	tokens := b.store
	if tokens == nil {
		tokens = store.NewMemory(store.Keys{
			Access:  cfg.Storage.AccessKey,
			Refresh: cfg.Storage.RefreshKey,
		})
	}
	logger := b.logger
	if logger == nil {
		logger = discardLogger()
	}
	clock := b.clock
	if clock == nil {
		clock = clockwork.NewRealClock()
	}

	m := &Manager{
		config:  cfg,
		backend: b.backend,
		store:   tokens,
		logger:  logger,
		clock:   clock,
		metrics: NewMetrics(cfg.Metrics),
		audit: internalaudit.NewDispatcher(internalaudit.Config{
			Enabled:    cfg.Audit.Enabled,
			BufferSize: cfg.Audit.BufferSize,
			DropIfFull: cfg.Audit.DropIfFull,
		}, b.auditSink),
		subs:  make(map[*Subscription]struct{}),
		phase: PhaseInitializing,
	}
	m.notifier = &flows.Notifier{
		Timeout: cfg.Backend.LogoutTimeout,
		OnError: m.logoutNotifyFailed,
	}

	b.built = true
	return m, nil
}
