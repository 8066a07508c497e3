package config

import "time"

// Default configuration values.
const (
	// Memory zones
	DefaultMaxTokens                = 32000
	DefaultReserveFraction          = 0.25
	DefaultWindowSize               = 10
	DefaultMilestoneCapacity        = 20
	DefaultMaxIterationsBeforeReset = 20
	DefaultResetKeepRecent          = 2
	DefaultManageThreshold          = 0.8
	DefaultMaxMessages              = 60

	// Confidence
	DefaultInitialConfidence = 0.5
	DefaultSignalWindow      = 10
	DefaultEscalateThreshold = 0.3
	DefaultVerifyThreshold   = 0.6
	DefaultFastPathThreshold = 0.85
	DefaultMinActionsForRate = 3
	DefaultSuccessRateWeight = 0.5
	DefaultSuccessRateWindow = 10

	// Reflection
	DefaultPeriodicInterval         = 5
	DefaultMaxFailuresBeforeReflect = 2
	DefaultConfidenceDropThreshold  = 0.2
	DefaultStallThreshold           = 3
	DefaultReflectionHistory        = 5
	DefaultLoopRepeat               = 3
	DefaultResetAfterIteration      = 10
	DefaultStopAfterIteration       = 15

	// Gate
	DefaultMinDataConfidence       = 0.5
	DefaultExtractionConfidence    = 0.8
	DefaultApprovalCacheSize       = 256
	DefaultApprovalCacheTTL        = 30 * time.Minute
	DefaultRepeatedActionThreshold = 3

	// Orchestrator modes
	DefaultRecoveryFailures     = 5
	DefaultRecoveryConfidence   = 0.25
	DefaultExplorationActions   = 3
	DefaultFastTrackConfidence  = 0.85
	DefaultCautiousConfidence   = 0.4
	DefaultCautiousAdjustment   = -0.05
	DefaultRecoveryAdjustment   = -0.1
	DefaultRecentActionsHistory = 10

	// Summarizer
	DefaultSummarizerTimeout = 30 * time.Second
	DefaultSummaryMaxChars   = 2000
	DefaultSummaryCacheSize  = 100
	DefaultSummaryCacheTTL   = 30 * time.Minute
	DefaultBreakerThreshold  = 3
	DefaultBreakerReset      = time.Minute

	DefaultSummaryRequestsPerMinute = 30
	DefaultSummaryTokensPerMinute   = 200000

	// Audit settings
	DefaultAuditMaxEntries = 10000
)
