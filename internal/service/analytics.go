package service

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/leadflow/backend/internal/metrics"
	"github.com/leadflow/backend/internal/models"
)

type summaryKey struct {
	sdr        string
	consultant string
}

type summaryAcc struct {
	row          models.DailyAnalyticsSummary
	processingMs int64
	numberSum    int
	reasons      map[string]int
	leads        map[string]struct{}
}

// DayStart returns midnight of t's calendar day in loc.
func DayStart(t time.Time, loc *time.Location) time.Time {
	if loc == nil {
		loc = time.UTC
	}
	t = t.In(loc)
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, loc)
}

// Summarize folds the events that fall on day into one row per
// (sdr, new consultant). Rows are ordered by sdr then consultant.
func Summarize(day time.Time, events []models.ReassignmentEvent) []models.DailyAnalyticsSummary {
	start := DayStart(day, day.Location())
	end := start.AddDate(0, 0, 1)

	groups := map[summaryKey]*summaryAcc{}
	for _, ev := range events {
		if ev.Timestamp.Before(start) || !ev.Timestamp.Before(end) {
			continue
		}
		k := summaryKey{sdr: ev.SDRID, consultant: ev.NewConsultantID}
		acc, ok := groups[k]
		if !ok {
			acc = &summaryAcc{
				row: models.DailyAnalyticsSummary{
					Date:         start,
					SDRID:        ev.SDRID,
					ConsultantID: ev.NewConsultantID,
				},
				reasons: map[string]int{},
				leads:   map[string]struct{}{},
			}
			groups[k] = acc
		}
		acc.row.TotalReassignments++
		if ev.Success {
			acc.row.SuccessfulReassignments++
		} else {
			acc.row.FailedReassignments++
		}
		acc.processingMs += ev.ProcessingTimeMs
		acc.numberSum += ev.ReassignmentNumber
		if ev.ReassignmentNumber > acc.row.MaxReassignmentNumber {
			acc.row.MaxReassignmentNumber = ev.ReassignmentNumber
		}
		if len(ev.SkillsRequirements) > 0 {
			acc.row.SkillsBasedReassignmentCount++
		}
		if ev.Reason != "" {
			acc.reasons[ev.Reason]++
		}
		acc.leads[ev.LeadIdentifier] = struct{}{}
	}

	out := make([]models.DailyAnalyticsSummary, 0, len(groups))
	for _, acc := range groups {
		row := acc.row
		row.AvgProcessingTimeMs = float64(acc.processingMs) / float64(row.TotalReassignments)
		row.AvgReassignmentNumber = float64(acc.numberSum) / float64(row.TotalReassignments)
		row.UniqueLeadsReassigned = len(acc.leads)
		row.MostCommonReason = mostCommonReason(acc.reasons)
		out = append(out, row)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].SDRID != out[j].SDRID {
			return out[i].SDRID < out[j].SDRID
		}
		return out[i].ConsultantID < out[j].ConsultantID
	})
	return out
}

// mostCommonReason picks the highest count; ties go to the lexicographically
// smallest reason.
func mostCommonReason(counts map[string]int) *string {
	best, bestN := "", 0
	for reason, n := range counts {
		if n > bestN || (n == bestN && reason < best) {
			best, bestN = reason, n
		}
	}
	if bestN == 0 {
		return nil
	}
	return &best
}

type AnalyticsAggregator struct {
	Events    EventReader
	Summaries AnalyticsSummaryStore
	Location  *time.Location
	// Concurrency bounds the days processed at once by AggregateRange.
	Concurrency int
	Metrics     *metrics.Metrics
	Logger      zerolog.Logger
}

func (a *AnalyticsAggregator) location() *time.Location {
	if a.Location == nil {
		return time.UTC
	}
	return a.Location
}

// PreviousDay is the default aggregation target relative to now.
func (a *AnalyticsAggregator) PreviousDay(now time.Time) time.Time {
	return DayStart(now, a.location()).AddDate(0, 0, -1)
}

// Aggregate recomputes the summary rows of day from the ledger and replaces
// the stored rows for that day. Running it twice yields identical rows.
func (a *AnalyticsAggregator) Aggregate(ctx context.Context, day time.Time) ([]models.DailyAnalyticsSummary, error) {
	start := DayStart(day, a.location())
	end := start.AddDate(0, 0, 1)

	events, err := a.Events.ListEventsBetween(ctx, start, end)
	if err != nil {
		a.Metrics.ObserveAggregation(0, err)
		return nil, storeError("list reassignment events", err)
	}
	rows := Summarize(start, events)
	if err := a.Summaries.ReplaceDailySummaries(ctx, start, rows); err != nil {
		a.Metrics.ObserveAggregation(0, err)
		return nil, storeError("store daily summaries", err)
	}

	a.Metrics.ObserveAggregation(len(rows), nil)
	a.Logger.Info().
		Str("date", start.Format("2006-01-02")).
		Int("events", len(events)).
		Int("rows", len(rows)).
		Msg("daily analytics aggregated")
	return rows, nil
}

// AggregateRange aggregates every day from from to to inclusive and returns
// the number of rows written.
func (a *AnalyticsAggregator) AggregateRange(ctx context.Context, from, to time.Time) (int, error) {
	first := DayStart(from, a.location())
	last := DayStart(to, a.location())
	if last.Before(first) {
		first, last = last, first
	}

	limit := a.Concurrency
	if limit <= 0 {
		limit = 4
	}
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)

	var days []time.Time
	for d := first; !d.After(last); d = d.AddDate(0, 0, 1) {
		days = append(days, d)
	}
	counts := make([]int, len(days))
	for i, d := range days {
		i, d := i, d
		g.Go(func() error {
			rows, err := a.Aggregate(gctx, d)
			if err != nil {
				return err
			}
			counts[i] = len(rows)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return 0, err
	}
	total := 0
	for _, n := range counts {
		total += n
	}
	return total, nil
}

// ParseDay reads a YYYY-MM-DD date in the aggregation location.
func (a *AnalyticsAggregator) ParseDay(v string) (time.Time, error) {
	day, err := time.ParseInLocation(time.DateOnly, v, a.location())
	if err != nil {
		return time.Time{}, fmt.Errorf("date must be YYYY-MM-DD: %w", err)
	}
	return day, nil
}

// Daily returns the stored summary rows of day.
func (a *AnalyticsAggregator) Daily(ctx context.Context, day time.Time) ([]models.DailyAnalyticsSummary, error) {
	rows, err := a.Summaries.ListDailySummaries(ctx, DayStart(day, a.location()))
	if err != nil {
		return nil, storeError("list daily summaries", err)
	}
	return rows, nil
}
