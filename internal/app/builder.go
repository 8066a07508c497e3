package app

import (
	"context"
	"errors"
	"sync"

	"github.com/google/uuid"

	"pilot/internal/audit"
	"pilot/internal/cache"
	"pilot/internal/client"
	"pilot/internal/confidence"
	"pilot/internal/config"
	ctxmgr "pilot/internal/context"
	"pilot/internal/gate"
	"pilot/internal/logging"
	"pilot/internal/metrics"
	"pilot/internal/orchestrator"
	"pilot/internal/permission"
	"pilot/internal/ratelimit"
	"pilot/internal/reflection"
	"pilot/internal/robustness"
)

// Builder provides a fluent interface for constructing App instances.
type Builder struct {
	cfg    *config.Config
	taskID string

	// Optional overrides (nil means build from config)
	completer client.Completer
	checker   gate.ProvenanceChecker

	// Built components
	summarizer ctxmgr.Summarizer
	memory     *ctxmgr.Manager
	tracker    *confidence.Tracker
	scheduler  *reflection.Scheduler
	gate       *gate.Gate
	approvals  *permission.Manager
	journal    *audit.Journal
	metrics    *metrics.Recorder

	goal *goalHolder
}

// NewBuilder creates a builder. A nil cfg means the defaults.
func NewBuilder(cfg *config.Config) *Builder {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	return &Builder{cfg: cfg, goal: &goalHolder{}}
}

// WithCompleter uses c for LLM summaries instead of the configured provider.
func (b *Builder) WithCompleter(c client.Completer) *Builder {
	b.completer = c
	return b
}

// WithProvenanceChecker adds an external checker to the output check.
func (b *Builder) WithProvenanceChecker(c gate.ProvenanceChecker) *Builder {
	b.checker = c
	return b
}

// WithTaskID fixes the id of the first task.
func (b *Builder) WithTaskID(id string) *Builder {
	b.taskID = id
	return b
}

// Build constructs the App.
func (b *Builder) Build(ctx context.Context) (*App, error) {
	if err := b.cfg.Validate(); err != nil {
		// A missing key only matters for the provider that needs it; an
		// injected completer replaces that provider.
		if !(errors.Is(err, config.ErrMissingAuth) && b.completer != nil) {
			return nil, NewAppError(ErrCodeConfig, "invalid configuration", err)
		}
	}
	if b.taskID == "" {
		b.taskID = uuid.New().String()
	}

	b.initSummarizer(ctx)
	b.initSubsystems()
	b.initObservability()

	return b.assemble(), nil
}

func (b *Builder) initSummarizer(ctx context.Context) {
	c := b.completer
	if c == nil {
		var err error
		c, err = client.New(ctx, clientConfig(b.cfg))
		if errors.Is(err, client.ErrNoProvider) {
			logging.Debug("no summarizer provider configured, using extractive summaries")
			return
		}
		if err != nil {
			// Extractive summaries still work without a provider.
			LogOptional("llm summarizer", NewAppError(ErrCodeClient, "failed to create summarizer client", err))
			return
		}
		c = client.WithRateLimit(c, b.rateLimiter())
	}

	s := b.cfg.Summarizer
	breaker := robustness.NewCircuitBreaker(s.BreakerThreshold, s.BreakerReset)
	summaries := cache.NewLRUCache[string, string](s.CacheSize, s.CacheTTL)
	b.summarizer = ctxmgr.NewLLMSummarizer(c, breaker, summaries).WithGoal(b.goal.Get)
	b.completer = c
	logging.Info("summarizer ready", "provider", c.Name())
}

// rateLimiter returns nil when both summarizer limits are zero.
func (b *Builder) rateLimiter() *ratelimit.Limiter {
	s := b.cfg.Summarizer
	if s.RequestsPerMinute <= 0 && s.TokensPerMinute <= 0 {
		return nil
	}
	return ratelimit.NewLimiter(ratelimit.Config{
		Enabled:           true,
		RequestsPerMinute: s.RequestsPerMinute,
		TokensPerMinute:   s.TokensPerMinute,
		BurstSize:         ratelimit.DefaultConfig().BurstSize,
	})
}

func (b *Builder) initSubsystems() {
	b.memory = ctxmgr.NewManager(memoryConfig(b.cfg), b.summarizer)
	b.tracker = confidence.NewTracker(confidenceConfig(b.cfg))
	b.scheduler = reflection.NewScheduler(reflectionConfig(b.cfg))

	var opts []gate.Option
	if b.checker != nil {
		opts = append(opts, gate.WithProvenanceChecker(b.checker))
	}
	b.gate = gate.New(gateConfig(b.cfg), opts...)
	b.approvals = permission.NewManager(b.cfg.Gate.ApprovalCacheSize, b.cfg.Gate.ApprovalCacheTTL)
}

func (b *Builder) initObservability() {
	if b.cfg.Metrics.Enabled {
		b.metrics = metrics.New(b.cfg.Metrics.Namespace)
	}
	if b.cfg.Audit.Enabled {
		b.journal = audit.NewJournal(b.taskID, b.cfg.Audit.MaxEntries)
	}
}

func (b *Builder) assemble() *App {
	orch := orchestrator.New(orchestratorConfig(b.cfg),
		b.memory, b.tracker, b.scheduler, b.gate,
		orchestrator.WithApprovals(b.approvals),
		orchestrator.WithJournal(b.journal),
		orchestrator.WithMetrics(b.metrics),
		orchestrator.WithTaskID(b.taskID),
	)

	a := &App{
		cfg:       b.cfg,
		orch:      orch,
		memory:    b.memory,
		metrics:   b.metrics,
		journal:   b.journal,
		completer: b.completer,
		goal:      b.goal,
	}
	orch.OnConfidenceEvent(func(ev confidence.Event, overall float64) {
		logging.Info("confidence event", "event", string(ev), "overall", overall)
		a.metrics.SetConfidence(overall)
	})
	return a
}

// goalHolder hands the current goal to the LLM summarizer without going
// through the memory manager's lock.
type goalHolder struct {
	mu   sync.RWMutex
	goal string
}

func (g *goalHolder) Set(goal string) {
	g.mu.Lock()
	g.goal = goal
	g.mu.Unlock()
}

func (g *goalHolder) Get() string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.goal
}
