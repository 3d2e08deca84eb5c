// Package dashboard loads the KPI overview and lays out its volume chart.
package dashboard

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"email-monitor-go/internal/models"
)

// Source provides KPI aggregates
type Source interface {
	KPISummary(ctx context.Context, hours int) (models.KPISummary, error)
	KPITimeseries(ctx context.Context, hours int) (models.Timeseries, error)
}

// Card is one KPI tile
type Card struct {
	Title string `json:"title"`
	Total int64  `json:"total"`
	Last  int64  `json:"last"`
}

// Snapshot is everything the dashboard page shows
type Snapshot struct {
	Hours    int                  `json:"hours"`
	Summary  models.KPISummary    `json:"summary"`
	Series   []models.SeriesPoint `json:"series"`
	Cards    []Card               `json:"cards"`
	Chart    Chart                `json:"chart"`
	LoadedAt time.Time            `json:"loaded_at"`
}

// Load fetches the summary and the timeseries concurrently. Either failure
// fails the whole load.
func Load(ctx context.Context, src Source, hours int) (Snapshot, error) {
	var (
		summary models.KPISummary
		series  models.Timeseries
	)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		summary, err = src.KPISummary(ctx, hours)
		if err != nil {
			return fmt.Errorf("failed to load kpi summary: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		var err error
		series, err = src.KPITimeseries(ctx, hours)
		if err != nil {
			return fmt.Errorf("failed to load kpi timeseries: %w", err)
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return Snapshot{}, err
	}

	return Snapshot{
		Hours:    hours,
		Summary:  summary,
		Series:   series.Series,
		Cards:    cards(summary),
		Chart:    BuildChart(series.Series, DefaultChartWidth, DefaultChartHeight),
		LoadedAt: time.Now().UTC(),
	}, nil
}

func cards(s models.KPISummary) []Card {
	return []Card{
		{Title: "Total", Total: s.Total.All, Last: s.Last.All},
		{Title: "Mainlog", Total: s.Total.Mainlog, Last: s.Last.Mainlog},
		{Title: "Rejectlog", Total: s.Total.Rejectlog, Last: s.Last.Rejectlog},
		{Title: "Paniclog", Total: s.Total.Paniclog, Last: s.Last.Paniclog},
	}
}
