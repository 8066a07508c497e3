package config

import "time"

// Config represents the main application configuration.
type Config struct {
	Memory       MemoryConfig       `yaml:"memory"`
	Confidence   ConfidenceConfig   `yaml:"confidence"`
	Reflection   ReflectionConfig   `yaml:"reflection"`
	Gate         GateConfig         `yaml:"gate"`
	Orchestrator OrchestratorConfig `yaml:"orchestrator"`
	Summarizer   SummarizerConfig   `yaml:"summarizer"`
	Logging      LoggingConfig      `yaml:"logging"`
	Metrics      MetricsConfig      `yaml:"metrics"`
	Audit        AuditConfig        `yaml:"audit"`

	// Profile names a preset applied on top of the defaults before the file
	// values, see presets.go.
	Profile string `yaml:"profile,omitempty" validate:"omitempty,oneof=strict balanced permissive"`

	// Runtime version information
	Version string `yaml:"-"`
}

// MemoryConfig holds the three-zone memory settings.
type MemoryConfig struct {
	MaxTokens                int     `yaml:"max_tokens" validate:"gt=0"`
	ReserveFraction          float64 `yaml:"reserve_fraction" validate:"gte=0,lt=1"`
	WindowSize               int     `yaml:"window_size" validate:"gte=1"`
	MilestoneCapacity        int     `yaml:"milestone_capacity" validate:"gte=1"`
	MaxIterationsBeforeReset int     `yaml:"max_iterations_before_reset" validate:"gte=1"`
	ResetKeepRecent          int     `yaml:"reset_keep_recent" validate:"gte=0"`
	// ManageThreshold is the fraction of MaxTokens at which NeedsManagement fires.
	ManageThreshold float64 `yaml:"manage_threshold" validate:"gt=0,lte=1"`
	// MaxMessages triggers management by count regardless of tokens.
	MaxMessages int `yaml:"max_messages" validate:"gte=0"`
}

// ConfidenceConfig holds confidence tracker thresholds.
type ConfidenceConfig struct {
	Initial           float64 `yaml:"initial" validate:"gte=0,lte=1"`
	WindowSize        int     `yaml:"window_size" validate:"gte=1"`
	EscalateThreshold float64 `yaml:"escalate_threshold" validate:"gt=0,lte=1"`
	VerifyThreshold   float64 `yaml:"verify_threshold" validate:"gt=0,lte=1,gtefield=EscalateThreshold"`
	FastPathThreshold float64 `yaml:"fast_path_threshold" validate:"gt=0,lte=1,gtefield=VerifyThreshold"`
	MinActionsForRate int     `yaml:"min_actions_for_rate" validate:"gte=1"`
	SuccessRateWeight float64 `yaml:"success_rate_weight" validate:"gt=0"`
	SuccessRateWindow int     `yaml:"success_rate_window" validate:"gte=1"`
}

// ReflectionConfig holds reflection scheduler triggers and assessment limits.
type ReflectionConfig struct {
	PeriodicInterval         int     `yaml:"periodic_interval" validate:"gte=1"`
	MaxFailuresBeforeReflect int     `yaml:"max_failures_before_reflect" validate:"gte=1"`
	ConfidenceDropThreshold  float64 `yaml:"confidence_drop_threshold" validate:"gt=0,lte=1"`
	StallThreshold           int     `yaml:"stall_threshold" validate:"gte=1"`
	HistoryWindow            int     `yaml:"history_window" validate:"gte=1"`
	LoopRepeat               int     `yaml:"loop_repeat" validate:"gte=2"`
	ResetAfterIteration      int     `yaml:"reset_after_iteration" validate:"gte=0"`
	StopAfterIteration       int     `yaml:"stop_after_iteration" validate:"gte=0"`
}

// GateConfig holds action gate settings.
type GateConfig struct {
	// AllowList holds glob patterns of action names that are always safe.
	AllowList []string `yaml:"allow_list"`
	// ApprovalList holds extra glob patterns that always require approval.
	ApprovalList            []string      `yaml:"approval_list"`
	DataProducingActions    []string      `yaml:"data_producing_actions"`
	MinDataConfidence       float64       `yaml:"min_data_confidence" validate:"gte=0,lte=1"`
	DefaultExtractionScore  float64       `yaml:"default_extraction_confidence" validate:"gte=0,lte=1"`
	ApprovalCacheSize       int           `yaml:"approval_cache_size" validate:"gte=1"`
	ApprovalCacheTTL        time.Duration `yaml:"approval_cache_ttl"`
	RepeatedActionThreshold int           `yaml:"repeated_action_threshold" validate:"gte=2"`
}

// OrchestratorConfig holds operating mode thresholds.
type OrchestratorConfig struct {
	RecoveryFailures     int     `yaml:"recovery_failures" validate:"gte=1"`
	RecoveryConfidence   float64 `yaml:"recovery_confidence" validate:"gt=0,lte=1"`
	ExplorationActions   int     `yaml:"exploration_actions" validate:"gte=0"`
	FastTrackConfidence  float64 `yaml:"fast_track_confidence" validate:"gt=0,lte=1"`
	CautiousConfidence   float64 `yaml:"cautious_confidence" validate:"gt=0,lte=1"`
	CautiousAdjustment   float64 `yaml:"cautious_adjustment" validate:"lte=0"`
	RecoveryAdjustment   float64 `yaml:"recovery_adjustment" validate:"lte=0"`
	RecentActionsHistory int     `yaml:"recent_actions_history" validate:"gte=1"`
}

// SummarizerConfig selects how evicted context is summarized.
type SummarizerConfig struct {
	// Provider is one of: none, gemini, ollama.
	Provider       string        `yaml:"provider" validate:"oneof=none gemini ollama"`
	Model          string        `yaml:"model"`
	APIKey         string        `yaml:"api_key,omitempty"`
	OllamaBaseURL  string        `yaml:"ollama_base_url,omitempty" validate:"omitempty,url"`
	Timeout        time.Duration `yaml:"timeout"`
	MaxOutputChars int           `yaml:"max_output_chars" validate:"gte=0"`
	CacheSize      int           `yaml:"cache_size" validate:"gte=1"`
	CacheTTL       time.Duration `yaml:"cache_ttl"`
	// BreakerThreshold consecutive failures open the circuit.
	BreakerThreshold int           `yaml:"breaker_threshold" validate:"gte=1"`
	BreakerReset     time.Duration `yaml:"breaker_reset"`
	// RequestsPerMinute and TokensPerMinute throttle provider calls; zero
	// disables the limit.
	RequestsPerMinute int   `yaml:"requests_per_minute" validate:"gte=0"`
	TokensPerMinute   int64 `yaml:"tokens_per_minute" validate:"gte=0"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level" validate:"oneof=debug info warn warning error"`
	Format string `yaml:"format" validate:"oneof=text json"`
	File   string `yaml:"file,omitempty"`
}

// MetricsConfig holds metrics settings.
type MetricsConfig struct {
	Enabled   bool   `yaml:"enabled"`
	Namespace string `yaml:"namespace" validate:"required_if=Enabled true"`
}

// AuditConfig holds decision journal settings.
type AuditConfig struct {
	Enabled    bool `yaml:"enabled"`
	MaxEntries int  `yaml:"max_entries" validate:"gte=1"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Memory: MemoryConfig{
			MaxTokens:                DefaultMaxTokens,
			ReserveFraction:          DefaultReserveFraction,
			WindowSize:               DefaultWindowSize,
			MilestoneCapacity:        DefaultMilestoneCapacity,
			MaxIterationsBeforeReset: DefaultMaxIterationsBeforeReset,
			ResetKeepRecent:          DefaultResetKeepRecent,
			ManageThreshold:          DefaultManageThreshold,
			MaxMessages:              DefaultMaxMessages,
		},
		Confidence: ConfidenceConfig{
			Initial:           DefaultInitialConfidence,
			WindowSize:        DefaultSignalWindow,
			EscalateThreshold: DefaultEscalateThreshold,
			VerifyThreshold:   DefaultVerifyThreshold,
			FastPathThreshold: DefaultFastPathThreshold,
			MinActionsForRate: DefaultMinActionsForRate,
			SuccessRateWeight: DefaultSuccessRateWeight,
			SuccessRateWindow: DefaultSuccessRateWindow,
		},
		Reflection: ReflectionConfig{
			PeriodicInterval:         DefaultPeriodicInterval,
			MaxFailuresBeforeReflect: DefaultMaxFailuresBeforeReflect,
			ConfidenceDropThreshold:  DefaultConfidenceDropThreshold,
			StallThreshold:           DefaultStallThreshold,
			HistoryWindow:            DefaultReflectionHistory,
			LoopRepeat:               DefaultLoopRepeat,
			ResetAfterIteration:      DefaultResetAfterIteration,
			StopAfterIteration:       DefaultStopAfterIteration,
		},
		Gate: GateConfig{
			AllowList: []string{
				"wait", "wait_*", "scroll*", "screenshot", "get_*",
				"read_*", "observe*", "go_back", "hover",
			},
			DataProducingActions: []string{
				"extract*", "summarize*", "generate*", "scrape*", "collect*",
			},
			MinDataConfidence:       DefaultMinDataConfidence,
			DefaultExtractionScore:  DefaultExtractionConfidence,
			ApprovalCacheSize:       DefaultApprovalCacheSize,
			ApprovalCacheTTL:        DefaultApprovalCacheTTL,
			RepeatedActionThreshold: DefaultRepeatedActionThreshold,
		},
		Orchestrator: OrchestratorConfig{
			RecoveryFailures:     DefaultRecoveryFailures,
			RecoveryConfidence:   DefaultRecoveryConfidence,
			ExplorationActions:   DefaultExplorationActions,
			FastTrackConfidence:  DefaultFastTrackConfidence,
			CautiousConfidence:   DefaultCautiousConfidence,
			CautiousAdjustment:   DefaultCautiousAdjustment,
			RecoveryAdjustment:   DefaultRecoveryAdjustment,
			RecentActionsHistory: DefaultRecentActionsHistory,
		},
		Summarizer: SummarizerConfig{
			Provider:         "none",
			Model:            "gemini-2.5-flash",
			OllamaBaseURL:    "http://localhost:11434",
			Timeout:          DefaultSummarizerTimeout,
			MaxOutputChars:   DefaultSummaryMaxChars,
			CacheSize:        DefaultSummaryCacheSize,
			CacheTTL:         DefaultSummaryCacheTTL,
			BreakerThreshold: DefaultBreakerThreshold,
			BreakerReset:     DefaultBreakerReset,

			RequestsPerMinute: DefaultSummaryRequestsPerMinute,
			TokensPerMinute:   DefaultSummaryTokensPerMinute,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
		Metrics: MetricsConfig{
			Enabled:   true,
			Namespace: "pilot",
		},
		Audit: AuditConfig{
			Enabled:    true,
			MaxEntries: DefaultAuditMaxEntries,
		},
	}
}
