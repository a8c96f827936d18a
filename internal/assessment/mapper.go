package assessment

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"lessonforge/internal/logging"
	"lessonforge/internal/types"
)

// StudentAssessments is the uniform view of one student's measurements.
type StudentAssessments struct {
	StudentID  string                 `json:"student_id"`
	Items      []types.AssessmentData `json:"items"`
	Confidence float64                `json:"confidence"`
}

// Recency weights used by item confidence.
const (
	recencyUnknown = 0.7
	recencyFloor   = 0.5
	recencyExpired = 0.3
)

// MapStudent maps every active assessment type onto the student's raw data.
// Types with no data for the student are omitted.
func (r *Registry) MapStudent(ctx context.Context, studentID string, now time.Time) (*StudentAssessments, error) {
	if err := r.ensureLoaded(ctx); err != nil {
		return nil, err
	}

	src, err := r.loadSources(ctx, studentID)
	if err != nil {
		return nil, err
	}

	out := &StudentAssessments{StudentID: studentID}
	var confidences, weights []float64
	for _, t := range r.Types() {
		data, assessedAt, ok := src.extract(t)
		if !ok {
			continue
		}
		item := types.AssessmentData{
			AssessmentType: t.Key,
			Category:       t.Category,
			Data:           data,
			AssessedAt:     assessedAt,
			Confidence:     types.ClampConfidence(Completeness(t.Fields, data) * Recency(assessedAt, now, t.MaxAgeDays)),
		}
		out.Items = append(out.Items, item)
		confidences = append(confidences, item.Confidence)
		weights = append(weights, t.Weight)
	}
	out.Confidence = types.WeightedAverage(confidences, weights)

	logging.RegistryDebug("Mapped %d assessment items for %s (confidence %.2f)", len(out.Items), studentID, out.Confidence)
	return out, nil
}

// sources holds the raw records for one student.
type sources struct {
	profile *types.StudentProfile
	metrics []types.PerformanceMetric
	records map[string]types.AssessmentRecord
}

func (r *Registry) loadSources(ctx context.Context, studentID string) (*sources, error) {
	src := &sources{}

	profile, err := r.store.GetProfile(ctx, studentID)
	switch {
	case err == nil:
		src.profile = profile
	case errors.Is(err, types.ErrNotFound):
		logging.RegistryDebug("No profile for %s", studentID)
	default:
		return nil, fmt.Errorf("failed to load profile for %s: %w", studentID, err)
	}

	src.metrics, err = r.store.RecentMetrics(ctx, studentID, "", r.metricsLimit)
	if err != nil {
		return nil, fmt.Errorf("failed to load metrics for %s: %w", studentID, err)
	}

	src.records, err = r.store.LatestAssessmentRecords(ctx, studentID)
	if err != nil {
		return nil, fmt.Errorf("failed to load assessment records for %s: %w", studentID, err)
	}
	return src, nil
}

// extract returns the data a type contributes, its assessment date, and
// whether anything was found.
func (s *sources) extract(t types.AssessmentType) (map[string]interface{}, time.Time, bool) {
	switch t.Source {
	case SourceReadingLevel:
		if s.profile == nil || strings.TrimSpace(s.profile.ReadingLevel) == "" {
			return nil, time.Time{}, false
		}
		return map[string]interface{}{"reading_level": s.profile.ReadingLevel}, s.profile.UpdatedAt, true

	case SourceIEPGoals:
		if s.profile == nil || len(s.profile.IEPGoals) == 0 {
			return nil, time.Time{}, false
		}
		return map[string]interface{}{"goals": s.profile.IEPGoals}, s.profile.UpdatedAt, true

	case SourceAccommodations:
		if s.profile == nil || len(s.profile.Accommodations) == 0 {
			return nil, time.Time{}, false
		}
		return map[string]interface{}{"accommodations": s.profile.Accommodations}, s.profile.UpdatedAt, true

	case SourceCognitive:
		if s.profile == nil || len(s.profile.CognitiveScores) == 0 {
			return nil, time.Time{}, false
		}
		data := make(map[string]interface{})
		if len(t.Fields) == 0 {
			for k, v := range s.profile.CognitiveScores {
				data[k] = v
			}
		} else {
			for _, f := range t.Fields {
				if v, ok := s.profile.CognitiveScores[f]; ok {
					data[f] = v
				}
			}
		}
		if len(data) == 0 {
			return nil, time.Time{}, false
		}
		return data, s.profile.UpdatedAt, true

	case SourceMetrics:
		return summarizeMetrics(s.metrics)

	case SourceRecords:
		rec, ok := s.records[t.ID]
		if !ok || len(rec.Data) == 0 {
			return nil, time.Time{}, false
		}
		return rec.Data, rec.AssessedAt, true

	default:
		logging.RegistryWarn("Skipping assessment type %s: unknown source %q", t.Key, t.Source)
		return nil, time.Time{}, false
	}
}

// summarizeMetrics aggregates metrics per subject.
func summarizeMetrics(metrics []types.PerformanceMetric) (map[string]interface{}, time.Time, bool) {
	if len(metrics) == 0 {
		return nil, time.Time{}, false
	}

	type agg struct {
		sum    float64
		n      int
		latest types.PerformanceMetric
	}
	bySubject := make(map[string]*agg)
	var newest time.Time
	for _, m := range metrics {
		a, ok := bySubject[m.Subject]
		if !ok {
			a = &agg{}
			bySubject[m.Subject] = a
		}
		a.sum += m.Accuracy
		a.n++
		if !m.SessionDate.Before(a.latest.SessionDate) {
			a.latest = m
		}
		if m.SessionDate.After(newest) {
			newest = m.SessionDate
		}
	}

	subjects := make(map[string]interface{}, len(bySubject))
	for subject, a := range bySubject {
		subjects[subject] = map[string]interface{}{
			"average":  math.Round(a.sum/float64(a.n)*10) / 10,
			"sessions": a.n,
			"latest":   a.latest.Accuracy,
		}
	}
	return map[string]interface{}{"subjects": subjects}, newest, true
}

// Completeness is the share of declared fields present in data. With no
// declared fields any non-empty data is complete.
func Completeness(fields []string, data map[string]interface{}) float64 {
	if len(data) == 0 {
		return 0
	}
	if len(fields) == 0 {
		return 1
	}
	present := 0
	for _, f := range fields {
		if hasValue(data[f]) {
			present++
		}
	}
	return float64(present) / float64(len(fields))
}

func hasValue(v interface{}) bool {
	switch x := v.(type) {
	case nil:
		return false
	case string:
		return strings.TrimSpace(x) != ""
	case []string:
		return len(x) > 0
	case []interface{}:
		return len(x) > 0
	case map[string]interface{}:
		return len(x) > 0
	default:
		return true
	}
}

// Recency is 1.0 while the assessment is younger than half of maxAgeDays,
// falls linearly to 0.5 at maxAgeDays, and is 0.3 beyond. An unknown date
// scores 0.7; maxAgeDays <= 0 never expires.
func Recency(assessedAt, now time.Time, maxAgeDays int) float64 {
	if assessedAt.IsZero() {
		return recencyUnknown
	}
	if maxAgeDays <= 0 {
		return 1
	}
	age := now.Sub(assessedAt).Hours() / 24
	half := float64(maxAgeDays) / 2
	switch {
	case age <= half:
		return 1
	case age <= float64(maxAgeDays):
		return 1 - (1-recencyFloor)*(age-half)/half
	default:
		return recencyExpired
	}
}
