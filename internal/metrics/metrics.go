package metrics

import (
	"io"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/common/expfmt"
)

// Recorder holds the control-layer metrics of one task. Each recorder owns
// its registry so concurrent tasks never collide. A nil *Recorder is valid
// and records nothing.
type Recorder struct {
	registry *prometheus.Registry

	decisions         *prometheus.CounterVec
	outputChecks      *prometheus.CounterVec
	actions           *prometheus.CounterVec
	reflections       *prometheus.CounterVec
	validationLatency prometheus.Histogram
	confidence        prometheus.Gauge
	confidenceDist    prometheus.Histogram
	mode              *prometheus.GaugeVec
	pendingApprovals  prometheus.Gauge
	compressions      prometheus.Counter
	resets            prometheus.Counter
	summaryFallbacks  prometheus.Counter
	tokensSaved       prometheus.Counter
}

// New creates a recorder with metrics under namespace.
func New(namespace string) *Recorder {
	if namespace == "" {
		namespace = "pilot"
	}
	reg := prometheus.NewRegistry()
	f := promauto.With(reg)

	return &Recorder{
		registry: reg,

		// Labels: decision (allow, deny, requires_approval, modify), risk (low, medium, high)
		decisions: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "gate",
			Name:      "decisions_total",
			Help:      "Action gate decisions by outcome and risk",
		}, []string{"decision", "risk"}),

		outputChecks: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "gate",
			Name:      "output_checks_total",
			Help:      "Post-execution output checks by decision",
		}, []string{"decision"}),

		validationLatency: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "gate",
			Name:      "validation_seconds",
			Help:      "Time spent validating one proposed action",
			Buckets:   []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1},
		}),

		// Labels: outcome (success, failure)
		actions: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "loop",
			Name:      "actions_total",
			Help:      "Executed actions reported by the host loop",
		}, []string{"outcome"}),

		reflections: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "reflection",
			Name:      "total",
			Help:      "Reflections by trigger and assessment",
		}, []string{"trigger", "assessment"}),

		confidence: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "confidence",
			Name:      "overall",
			Help:      "Current overall confidence",
		}),

		confidenceDist: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "confidence",
			Name:      "observed",
			Help:      "Distribution of overall confidence after each result",
			Buckets:   []float64{0.1, 0.2, 0.3, 0.4, 0.5, 0.6, 0.7, 0.8, 0.9, 1.0},
		}),

		mode: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "loop",
			Name:      "mode",
			Help:      "Current operating mode (1 for the active mode)",
		}, []string{"mode"}),

		pendingApprovals: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "gate",
			Name:      "pending_approvals",
			Help:      "Approval requests waiting for a decision",
		}),

		compressions: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "memory",
			Name:      "compressions_total",
			Help:      "Context compression passes that removed messages",
		}),

		resets: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "memory",
			Name:      "resets_total",
			Help:      "Full context resets",
		}),

		summaryFallbacks: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "memory",
			Name:      "summarizer_fallbacks_total",
			Help:      "Summaries produced by the extractive fallback after a summarizer failure",
		}),

		tokensSaved: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "memory",
			Name:      "tokens_saved_total",
			Help:      "Estimated tokens removed by compression",
		}),
	}
}

// Registry returns the recorder's registry, e.g. for an HTTP handler.
func (r *Recorder) Registry() *prometheus.Registry {
	if r == nil {
		return nil
	}
	return r.registry
}

// ObserveDecision counts one gate decision.
func (r *Recorder) ObserveDecision(decision, risk string, took time.Duration) {
	if r == nil {
		return
	}
	r.decisions.WithLabelValues(decision, risk).Inc()
	r.validationLatency.Observe(took.Seconds())
}

// ObserveOutputCheck counts one post-execution output check.
func (r *Recorder) ObserveOutputCheck(decision string) {
	if r == nil {
		return
	}
	r.outputChecks.WithLabelValues(decision).Inc()
}

// ObserveAction counts one executed action and the resulting confidence.
func (r *Recorder) ObserveAction(success bool, confidence float64) {
	if r == nil {
		return
	}
	outcome := "failure"
	if success {
		outcome = "success"
	}
	r.actions.WithLabelValues(outcome).Inc()
	r.SetConfidence(confidence)
	r.confidenceDist.Observe(confidence)
}

// ObserveReflection counts one reflection.
func (r *Recorder) ObserveReflection(trigger, assessment string) {
	if r == nil {
		return
	}
	r.reflections.WithLabelValues(trigger, assessment).Inc()
}

// SetConfidence sets the confidence gauge.
func (r *Recorder) SetConfidence(v float64) {
	if r == nil {
		return
	}
	r.confidence.Set(v)
}

// SetMode marks current as the active mode among all.
func (r *Recorder) SetMode(current string, all []string) {
	if r == nil {
		return
	}
	for _, m := range all {
		v := 0.0
		if m == current {
			v = 1
		}
		r.mode.WithLabelValues(m).Set(v)
	}
}

// SetPendingApprovals sets the pending-approval gauge.
func (r *Recorder) SetPendingApprovals(n int) {
	if r == nil {
		return
	}
	r.pendingApprovals.Set(float64(n))
}

// ObserveCompression counts one compression pass and its savings.
func (r *Recorder) ObserveCompression(tokensSaved int) {
	if r == nil {
		return
	}
	r.compressions.Inc()
	if tokensSaved > 0 {
		r.tokensSaved.Add(float64(tokensSaved))
	}
}

// ObserveReset counts one context reset.
func (r *Recorder) ObserveReset() {
	if r == nil {
		return
	}
	r.resets.Inc()
}

// ObserveSummarizerFallbacks adds n fallback summaries.
func (r *Recorder) ObserveSummarizerFallbacks(n int) {
	if r == nil || n <= 0 {
		return
	}
	r.summaryFallbacks.Add(float64(n))
}

// WriteText writes all metrics in the Prometheus text exposition format.
func (r *Recorder) WriteText(w io.Writer) error {
	if r == nil {
		return nil
	}
	families, err := r.registry.Gather()
	if err != nil {
		return err
	}
	for _, mf := range families {
		if _, err := expfmt.MetricFamilyToText(w, mf); err != nil {
			return err
		}
	}
	return nil
}
