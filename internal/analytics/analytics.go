// Package analytics derives read-only summaries from the complaint table for
// the admin dashboard. Nothing here writes.
package analytics

import (
	"context"
	"math"
	"sort"
	"time"

	"go.uber.org/zap"

	"raggingwatch/internal/models"
)

const unknownStatus = "Unknown"

type Source interface {
	ComplaintFacts(ctx context.Context) ([]models.ComplaintFacts, error)
	ListComplaints(ctx context.Context, query models.ComplaintQuery) ([]models.Complaint, int, error)
}

type MonthCount struct {
	Key   string `json:"key"`
	Label string `json:"label"`
	Count int    `json:"count"`
}

type NamedCount struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

type ResponseTimes struct {
	Buckets     []NamedCount `json:"buckets"`
	AverageDays float64      `json:"average_days"`
	Sample      int          `json:"sample"`
}

type Dashboard struct {
	Total         int `json:"total"`
	Pending       int `json:"pending"`
	UnderReview   int `json:"under_review"`
	Investigating int `json:"investigating"`
	Resolved      int `json:"resolved"`
	Closed        int `json:"closed"`
	Anonymous     int `json:"anonymous"`
}

type Aggregator struct {
	src Source
	log *zap.Logger
	now func() time.Time
}

func NewAggregator(src Source, log *zap.Logger) *Aggregator {
	if log == nil {
		log = zap.NewNop()
	}
	return &Aggregator{src: src, log: log, now: func() time.Time { return time.Now().UTC() }}
}

func (a *Aggregator) facts(ctx context.Context) ([]models.ComplaintFacts, error) {
	facts, err := a.src.ComplaintFacts(ctx)
	if err != nil {
		a.log.Error("load complaint facts", zap.Error(err))
		return nil, err
	}
	return facts, nil
}

func (a *Aggregator) MonthlyTrend(ctx context.Context) ([]MonthCount, error) {
	facts, err := a.facts(ctx)
	if err != nil {
		return nil, err
	}
	return MonthlyTrend(facts, a.now()), nil
}

func (a *Aggregator) Categories(ctx context.Context) ([]NamedCount, error) {
	facts, err := a.facts(ctx)
	if err != nil {
		return nil, err
	}
	return CategoryBreakdown(facts), nil
}

func (a *Aggregator) Statuses(ctx context.Context) ([]NamedCount, error) {
	facts, err := a.facts(ctx)
	if err != nil {
		return nil, err
	}
	return StatusDistribution(facts), nil
}

func (a *Aggregator) Locations(ctx context.Context) ([]NamedCount, error) {
	facts, err := a.facts(ctx)
	if err != nil {
		return nil, err
	}
	return TopLocations(facts, 10), nil
}

func (a *Aggregator) ResponseTimes(ctx context.Context) (ResponseTimes, error) {
	facts, err := a.facts(ctx)
	if err != nil {
		return ResponseTimes{}, err
	}
	return ResponseTimeStats(facts), nil
}

func (a *Aggregator) Dashboard(ctx context.Context) (Dashboard, error) {
	facts, err := a.facts(ctx)
	if err != nil {
		return Dashboard{}, err
	}
	return Summarize(facts), nil
}

// MonthlyTrend counts submissions for the twelve calendar months ending with
// the month of now. Months without submissions are reported as zero.
func MonthlyTrend(facts []models.ComplaintFacts, now time.Time) []MonthCount {
	now = now.UTC()
	start := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC).AddDate(0, -11, 0)
	out := make([]MonthCount, 12)
	index := make(map[string]int, 12)
	for i := range out {
		m := start.AddDate(0, i, 0)
		out[i] = MonthCount{Key: m.Format("2006-01"), Label: m.Format("January 2006")}
		index[out[i].Key] = i
	}
	for _, f := range facts {
		at := f.SubmittedAt.UTC()
		if at.Before(start) {
			continue
		}
		if i, ok := index[at.Format("2006-01")]; ok {
			out[i].Count++
		}
	}
	return out
}

func CategoryBreakdown(facts []models.ComplaintFacts) []NamedCount {
	counts := map[string]int{}
	for _, f := range facts {
		if f.Category == nil || *f.Category == "" {
			continue
		}
		counts[*f.Category]++
	}
	return sortCounts(counts)
}

func StatusDistribution(facts []models.ComplaintFacts) []NamedCount {
	counts := map[string]int{}
	for _, f := range facts {
		name := unknownStatus
		if f.Status != nil && *f.Status != "" {
			name = *f.Status
		}
		counts[name]++
	}
	return sortCounts(counts)
}

// TopLocations returns the n most reported incident locations.
func TopLocations(facts []models.ComplaintFacts, n int) []NamedCount {
	counts := map[string]int{}
	for _, f := range facts {
		if f.Location == nil || *f.Location == "" {
			continue
		}
		counts[*f.Location]++
	}
	out := sortCounts(counts)
	if len(out) > n {
		out = out[:n]
	}
	return out
}

var responseBuckets = []struct {
	name     string
	min, max int
}{
	{"1-3", 1, 3},
	{"4-7", 4, 7},
	{"8-14", 8, 14},
	{"15-30", 15, 30},
	{"31+", 31, math.MaxInt},
}

// ResponseTimeStats measures whole days from submission to the first
// Resolved history entry. Resolved or closed complaints that never passed
// through Resolved are left out.
func ResponseTimeStats(facts []models.ComplaintFacts) ResponseTimes {
	out := ResponseTimes{Buckets: make([]NamedCount, len(responseBuckets))}
	for i, b := range responseBuckets {
		out.Buckets[i].Name = b.name
	}
	total := 0
	for _, f := range facts {
		if f.Status == nil || (*f.Status != string(models.StatusResolved) && *f.Status != string(models.StatusClosed)) {
			continue
		}
		if f.ResolvedAt == nil {
			continue
		}
		days := int(f.ResolvedAt.Sub(f.SubmittedAt) / (24 * time.Hour))
		if days < 0 {
			days = 0
		}
		total += days
		out.Sample++
		for i, b := range responseBuckets {
			if days >= b.min && days <= b.max {
				out.Buckets[i].Count++
				break
			}
		}
	}
	if out.Sample > 0 {
		out.AverageDays = math.Round(float64(total)/float64(out.Sample)*100) / 100
	}
	return out
}

func Summarize(facts []models.ComplaintFacts) Dashboard {
	var d Dashboard
	for _, f := range facts {
		d.Total++
		if f.Anonymous {
			d.Anonymous++
		}
		if f.Status == nil {
			continue
		}
		switch models.Status(*f.Status) {
		case models.StatusPending:
			d.Pending++
		case models.StatusUnderReview:
			d.UnderReview++
		case models.StatusInvestigating:
			d.Investigating++
		case models.StatusResolved:
			d.Resolved++
		case models.StatusClosed:
			d.Closed++
		}
	}
	return d
}

// sortCounts orders by count descending, then name.
func sortCounts(counts map[string]int) []NamedCount {
	out := make([]NamedCount, 0, len(counts))
	for name, n := range counts {
		out = append(out, NamedCount{Name: name, Count: n})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Name < out[j].Name
	})
	return out
}
