// Package performance classifies accuracy trends and recommends instructional
// adjustments from recent session metrics.
package performance

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"

	"lessonforge/internal/config"
	"lessonforge/internal/logging"
	"lessonforge/internal/types"
)

// ErrNoMetrics is returned when a student has no metrics for the subject.
var ErrNoMetrics = errors.New("no performance metrics")

// Thresholds are the accuracy cut-offs (percent) used by Recommend.
type Thresholds struct {
	Advance    float64
	Maintain   float64
	Reteach    float64
	TrendDelta float64
	MinSamples int
	Window     int
}

// nearAdvanceMargin lets an improving student advance slightly below the advance threshold.
const nearAdvanceMargin = 5

// ThresholdsFromConfig converts analyzer configuration.
func ThresholdsFromConfig(c config.AnalyzerConfig) Thresholds {
	return Thresholds{
		Advance:    c.AdvanceThreshold,
		Maintain:   c.MaintainThreshold,
		Reteach:    c.ReteachThreshold,
		TrendDelta: c.TrendDelta,
		MinSamples: c.MinSamples,
		Window:     c.Window,
	}
}

// DefaultThresholds returns the built-in cut-offs.
func DefaultThresholds() Thresholds {
	return ThresholdsFromConfig(config.DefaultConfig().Analyzer)
}

// ClassifyTrend compares the mean of the newer half of accuracies (ordered
// oldest to newest) with the mean of the older half. With an odd count the
// middle value belongs to neither half. Fewer than minSamples values is stable.
func ClassifyTrend(accuracies []float64, delta float64, minSamples int) types.Trend {
	if minSamples < 2 {
		minSamples = 2
	}
	n := len(accuracies)
	if n < minSamples {
		return types.TrendStable
	}
	half := n / 2
	older := mean(accuracies[:half])
	newer := mean(accuracies[n-half:])
	diff := newer - older
	switch {
	case diff > delta:
		return types.TrendImproving
	case diff < -delta:
		return types.TrendDeclining
	default:
		return types.TrendStable
	}
}

// Recommend maps an average accuracy and trend to an adjustment.
func Recommend(average float64, trend types.Trend, th Thresholds) types.AdjustmentType {
	switch {
	case average >= th.Advance && trend != types.TrendDeclining:
		return types.AdjustAdvance
	case average >= th.Advance-nearAdvanceMargin && trend == types.TrendImproving:
		return types.AdjustAdvance
	case average >= th.Maintain:
		return types.AdjustMaintain
	case average >= th.Reteach:
		return types.AdjustReteach
	default:
		return types.AdjustPrerequisite
	}
}

// Analysis summarises recent performance for one student and subject.
type Analysis struct {
	StudentID      string               `json:"student_id"`
	Subject        string               `json:"subject"`
	Accuracies     []float64            `json:"accuracies"`
	Average        float64              `json:"average"`
	Trend          types.Trend          `json:"trend"`
	Recommendation types.AdjustmentType `json:"recommendation"`
	Samples        int                  `json:"samples"`
	Confidence     float64              `json:"confidence"`
}

// Reason renders the analysis as a queue reason.
func (a *Analysis) Reason() string {
	return fmt.Sprintf("%s average %.1f%% over %d sessions, trend %s", a.Subject, a.Average, a.Samples, a.Trend)
}

// MetricsSource supplies recent metrics oldest first.
type MetricsSource interface {
	RecentMetrics(ctx context.Context, studentID, subject string, limit int) ([]types.PerformanceMetric, error)
}

// Enqueuer receives recommended adjustments.
type Enqueuer interface {
	Enqueue(ctx context.Context, a types.Adjustment) (*types.Adjustment, error)
}

// Analyzer derives trends and recommendations from stored metrics.
type Analyzer struct {
	metrics    MetricsSource
	queue      Enqueuer
	thresholds Thresholds
}

// NewAnalyzer creates an analyzer. queue may be nil when only Analyze is used.
func NewAnalyzer(metrics MetricsSource, queue Enqueuer, th Thresholds) *Analyzer {
	if th.Window <= 0 {
		th.Window = 10
	}
	if th.MinSamples <= 0 {
		th.MinSamples = 3
	}
	return &Analyzer{metrics: metrics, queue: queue, thresholds: th}
}

// Thresholds returns the cut-offs in use.
func (a *Analyzer) Thresholds() Thresholds {
	return a.thresholds
}

// Analyze loads the most recent Window metrics and classifies them.
func (a *Analyzer) Analyze(ctx context.Context, studentID, subject string) (*Analysis, error) {
	subject = strings.ToLower(strings.TrimSpace(subject))
	metrics, err := a.metrics.RecentMetrics(ctx, studentID, subject, a.thresholds.Window)
	if err != nil {
		return nil, fmt.Errorf("failed to load metrics: %w", err)
	}
	if len(metrics) == 0 {
		return nil, fmt.Errorf("%s/%s: %w", studentID, subject, ErrNoMetrics)
	}

	acc := make([]float64, len(metrics))
	for i, m := range metrics {
		acc[i] = m.Accuracy
	}

	res := &Analysis{
		StudentID:  studentID,
		Subject:    subject,
		Accuracies: acc,
		Average:    mean(acc),
		Trend:      ClassifyTrend(acc, a.thresholds.TrendDelta, a.thresholds.MinSamples),
		Samples:    len(acc),
		Confidence: types.ClampConfidence(float64(len(acc)) / float64(a.thresholds.Window)),
	}
	res.Recommendation = Recommend(res.Average, res.Trend, a.thresholds)

	logging.AnalyzerDebug("%s/%s: avg=%.1f trend=%s rec=%s samples=%d",
		studentID, subject, res.Average, res.Trend, res.Recommendation, res.Samples)
	return res, nil
}

// Evaluate analyzes and enqueues the recommendation unless it is maintain.
// The returned adjustment is nil when nothing was queued.
func (a *Analyzer) Evaluate(ctx context.Context, studentID, subject string) (*Analysis, *types.Adjustment, error) {
	res, err := a.Analyze(ctx, studentID, subject)
	if err != nil {
		return nil, nil, err
	}
	if res.Recommendation == types.AdjustMaintain || a.queue == nil {
		return res, nil, nil
	}

	adj, err := a.queue.Enqueue(ctx, types.Adjustment{
		StudentID: studentID,
		Subject:   res.Subject,
		Type:      res.Recommendation,
		Priority:  res.Recommendation.Priority(),
		Reason:    res.Reason(),
		Details: map[string]interface{}{
			"average":    math.Round(res.Average*10) / 10,
			"trend":      string(res.Trend),
			"samples":    res.Samples,
			"confidence": res.Confidence,
		},
	})
	if err != nil {
		return res, nil, fmt.Errorf("failed to enqueue adjustment: %w", err)
	}
	logging.Analyzer("Queued %s for %s/%s", res.Recommendation, studentID, res.Subject)
	return res, adj, nil
}

func mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	var sum float64
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}
