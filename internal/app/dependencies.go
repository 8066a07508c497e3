package app

import (
	"pilot/internal/client"
	"pilot/internal/confidence"
	"pilot/internal/config"
	ctxmgr "pilot/internal/context"
	"pilot/internal/gate"
	"pilot/internal/orchestrator"
	"pilot/internal/reflection"
)

// The functions below translate the YAML configuration into each
// subsystem's own Config type.

func memoryConfig(cfg *config.Config) ctxmgr.Config {
	m := cfg.Memory
	return ctxmgr.Config{
		MaxTokens:                m.MaxTokens,
		ReserveFraction:          m.ReserveFraction,
		WindowSize:               m.WindowSize,
		MilestoneCapacity:        m.MilestoneCapacity,
		MaxIterationsBeforeReset: m.MaxIterationsBeforeReset,
		ResetKeepRecent:          m.ResetKeepRecent,
		ManageThreshold:          m.ManageThreshold,
		MaxMessages:              m.MaxMessages,
		SummaryMaxChars:          cfg.Summarizer.MaxOutputChars,
	}
}

func confidenceConfig(cfg *config.Config) confidence.Config {
	c := cfg.Confidence
	return confidence.Config{
		Initial:           c.Initial,
		WindowSize:        c.WindowSize,
		EscalateThreshold: c.EscalateThreshold,
		VerifyThreshold:   c.VerifyThreshold,
		FastPathThreshold: c.FastPathThreshold,
		MinActionsForRate: c.MinActionsForRate,
		SuccessRateWeight: c.SuccessRateWeight,
		SuccessRateWindow: c.SuccessRateWindow,
	}
}

func reflectionConfig(cfg *config.Config) reflection.Config {
	r := cfg.Reflection
	return reflection.Config{
		PeriodicInterval:         r.PeriodicInterval,
		MaxFailuresBeforeReflect: r.MaxFailuresBeforeReflect,
		ConfidenceDropThreshold:  r.ConfidenceDropThreshold,
		StallThreshold:           r.StallThreshold,
		HistoryWindow:            r.HistoryWindow,
		LoopRepeat:               r.LoopRepeat,
		ResetAfterIteration:      r.ResetAfterIteration,
		StopAfterIteration:       r.StopAfterIteration,
	}
}

func gateConfig(cfg *config.Config) gate.Config {
	g := cfg.Gate
	return gate.Config{
		AllowList:                   g.AllowList,
		ApprovalList:                g.ApprovalList,
		DataProducingActions:        g.DataProducingActions,
		MinDataConfidence:           g.MinDataConfidence,
		DefaultExtractionConfidence: g.DefaultExtractionScore,
		RepeatedActionThreshold:     g.RepeatedActionThreshold,
	}
}

func orchestratorConfig(cfg *config.Config) orchestrator.Config {
	o := cfg.Orchestrator
	return orchestrator.Config{
		RecoveryFailures:     o.RecoveryFailures,
		RecoveryConfidence:   o.RecoveryConfidence,
		ExplorationActions:   o.ExplorationActions,
		FastTrackConfidence:  o.FastTrackConfidence,
		CautiousConfidence:   o.CautiousConfidence,
		CautiousAdjustment:   o.CautiousAdjustment,
		RecoveryAdjustment:   o.RecoveryAdjustment,
		RecentActionsHistory: o.RecentActionsHistory,
	}
}

func clientConfig(cfg *config.Config) client.Config {
	s := cfg.Summarizer
	c := client.Config{
		Provider: s.Provider,
		Model:    s.Model,
		APIKey:   s.APIKey,
		Timeout:  s.Timeout,
	}
	if s.Provider == "ollama" {
		c.BaseURL = s.OllamaBaseURL
	}
	return c
}
