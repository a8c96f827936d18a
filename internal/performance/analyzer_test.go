package performance

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lessonforge/internal/types"
)

func TestClassifyTrend(t *testing.T) {
	tests := []struct {
		name string
		acc  []float64
		want types.Trend
	}{
		{"empty", nil, types.TrendStable},
		{"too few samples", []float64{10, 90}, types.TrendStable},
		{"improving", []float64{50, 55, 60, 70, 75, 80}, types.TrendImproving},
		{"declining", []float64{90, 85, 80, 60, 55, 50}, types.TrendDeclining},
		{"flat", []float64{70, 72, 71, 70, 73, 71}, types.TrendStable},
		{"odd count ignores middle", []float64{60, 0, 66}, types.TrendImproving},
		{"exactly delta is stable", []float64{70, 75, 75}, types.TrendStable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ClassifyTrend(tt.acc, 5, 3))
		})
	}
}

func TestRecommend(t *testing.T) {
	th := DefaultThresholds()
	tests := []struct {
		avg   float64
		trend types.Trend
		want  types.AdjustmentType
	}{
		{95, types.TrendStable, types.AdjustAdvance},
		{90, types.TrendImproving, types.AdjustAdvance},
		{92, types.TrendDeclining, types.AdjustMaintain},
		{86, types.TrendImproving, types.AdjustAdvance},
		{85, types.TrendImproving, types.AdjustAdvance},
		{84.9, types.TrendImproving, types.AdjustMaintain},
		{86, types.TrendStable, types.AdjustMaintain},
		{70, types.TrendDeclining, types.AdjustMaintain},
		{69.9, types.TrendStable, types.AdjustReteach},
		{50, types.TrendImproving, types.AdjustReteach},
		{49.9, types.TrendStable, types.AdjustPrerequisite},
		{0, types.TrendStable, types.AdjustPrerequisite},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Recommend(tt.avg, tt.trend, th), "avg=%.1f trend=%s", tt.avg, tt.trend)
	}
}

type fakeMetrics struct {
	values []float64
	err    error
	limit  int
}

func (f *fakeMetrics) RecentMetrics(_ context.Context, studentID, subject string, limit int) ([]types.PerformanceMetric, error) {
	f.limit = limit
	if f.err != nil {
		return nil, f.err
	}
	vals := f.values
	if len(vals) > limit {
		vals = vals[len(vals)-limit:]
	}
	out := make([]types.PerformanceMetric, len(vals))
	for i, v := range vals {
		out[i] = types.PerformanceMetric{StudentID: studentID, Subject: subject, Accuracy: v,
			SessionDate: time.Date(2025, 1, 1+i, 0, 0, 0, 0, time.UTC)}
	}
	return out, nil
}

type recordingQueue struct {
	got []types.Adjustment
}

func (q *recordingQueue) Enqueue(_ context.Context, a types.Adjustment) (*types.Adjustment, error) {
	a.ID = "adj-1"
	q.got = append(q.got, a)
	return &a, nil
}

func TestAnalyze(t *testing.T) {
	m := &fakeMetrics{values: []float64{40, 45, 50, 42, 48}}
	a := NewAnalyzer(m, nil, DefaultThresholds())

	res, err := a.Analyze(context.Background(), "s1", " Math ")
	require.NoError(t, err)
	assert.Equal(t, 10, m.limit)
	assert.Equal(t, "math", res.Subject)
	assert.Equal(t, 5, res.Samples)
	assert.InDelta(t, 45.0, res.Average, 1e-9)
	assert.Equal(t, types.TrendStable, res.Trend)
	assert.Equal(t, types.AdjustPrerequisite, res.Recommendation)
	assert.InDelta(t, 0.5, res.Confidence, 1e-9)
}

func TestAnalyze_ThresholdsUseUnroundedAverage(t *testing.T) {
	q := &recordingQueue{}
	a := NewAnalyzer(&fakeMetrics{values: []float64{79.88, 85, 90}}, q, DefaultThresholds())

	res, adj, err := a.Evaluate(context.Background(), "s1", "math")
	require.NoError(t, err)
	assert.InDelta(t, 84.96, res.Average, 1e-9)
	assert.Equal(t, types.TrendImproving, res.Trend)
	assert.Equal(t, types.AdjustMaintain, res.Recommendation, "84.96 is below the improving-advance cut-off of 85")
	assert.Nil(t, adj)
	assert.Empty(t, q.got)
	assert.Contains(t, res.Reason(), "average 85.0%")
}

func TestAnalyze_ConfidenceCapsAtOne(t *testing.T) {
	vals := make([]float64, 25)
	for i := range vals {
		vals[i] = 80
	}
	a := NewAnalyzer(&fakeMetrics{values: vals}, nil, DefaultThresholds())
	res, err := a.Analyze(context.Background(), "s1", "math")
	require.NoError(t, err)
	assert.Equal(t, 10, res.Samples)
	assert.Equal(t, 1.0, res.Confidence)
}

func TestAnalyze_NoMetrics(t *testing.T) {
	a := NewAnalyzer(&fakeMetrics{}, nil, DefaultThresholds())
	_, err := a.Analyze(context.Background(), "s1", "math")
	assert.True(t, errors.Is(err, ErrNoMetrics))

	a = NewAnalyzer(&fakeMetrics{err: errors.New("db down")}, nil, DefaultThresholds())
	_, err = a.Analyze(context.Background(), "s1", "math")
	require.Error(t, err)
	assert.False(t, errors.Is(err, ErrNoMetrics))
}

func TestEvaluate_EnqueuesNonMaintain(t *testing.T) {
	q := &recordingQueue{}
	a := NewAnalyzer(&fakeMetrics{values: []float64{55, 60, 58}}, q, DefaultThresholds())

	res, adj, err := a.Evaluate(context.Background(), "s1", "ela")
	require.NoError(t, err)
	assert.Equal(t, types.AdjustReteach, res.Recommendation)
	require.NotNil(t, adj)
	require.Len(t, q.got, 1)
	assert.Equal(t, 2, q.got[0].Priority)
	assert.Equal(t, "ela", q.got[0].Subject)
	assert.Contains(t, q.got[0].Reason, "ela average")
	assert.Equal(t, "stable", q.got[0].Details["trend"])
}

func TestEvaluate_MaintainIsNotQueued(t *testing.T) {
	q := &recordingQueue{}
	a := NewAnalyzer(&fakeMetrics{values: []float64{75, 78, 80}}, q, DefaultThresholds())

	res, adj, err := a.Evaluate(context.Background(), "s1", "math")
	require.NoError(t, err)
	assert.Equal(t, types.AdjustMaintain, res.Recommendation)
	assert.Nil(t, adj)
	assert.Empty(t, q.got)
}
