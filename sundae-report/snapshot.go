package sundaereport

import (
	"context"
	"fmt"
	"time"

	"github.com/SundaeSwap-finance/sundae-slides/sundae-registry/presentationdao"
	"github.com/SundaeSwap-finance/sundae-slides/sundae-slide/feedbackdao"
	"golang.org/x/sync/errgroup"
)

// FeedbackReportName is the report name feedback snapshots are stored under.
const FeedbackReportName = "feedback"

type PresentationLister interface {
	Entries(ctx context.Context) ([]presentationdao.Entry, error)
}

type FeedbackReader interface {
	ListFeedback(ctx context.Context, slideKey string) ([]feedbackdao.Row, error)
}

// Snapshot is a point in time copy of every presentation's reaction tallies.
type Snapshot struct {
	GeneratedAt   time.Time              `json:"generatedAt"`
	Presentations []PresentationSnapshot `json:"presentations"`
}

type PresentationSnapshot struct {
	Number int64                          `json:"number"`
	Title  string                         `json:"title"`
	Slug   string                         `json:"slug"`
	Slides []feedbackdao.Row              `json:"slides"`
	Totals map[feedbackdao.Category]int64 `json:"totals"`
}

// FeedbackSnapshot returns a GenerateCallback that reads the feedback of every
// registered presentation, at most concurrency at a time.
func FeedbackSnapshot(presentations PresentationLister, feedback FeedbackReader, concurrency int) GenerateCallback {
	if concurrency <= 0 {
		concurrency = 1
	}

	return func(ctx context.Context) (interface{}, error) {
		entries, err := presentations.Entries(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to list presentations: %w", err)
		}

		snapshot := Snapshot{
			GeneratedAt:   time.Now().UTC(),
			Presentations: make([]PresentationSnapshot, len(entries)),
		}

		g, ctx := errgroup.WithContext(ctx)
		g.SetLimit(concurrency)
		for i, entry := range entries {
			i, entry := i, entry
			g.Go(func() error {
				rows, err := feedback.ListFeedback(ctx, entry.Slug)
				if err != nil {
					return fmt.Errorf("failed to read feedback for %v: %w", entry.Slug, err)
				}
				if rows == nil {
					rows = []feedbackdao.Row{}
				}

				totals := make(map[feedbackdao.Category]int64, len(feedbackdao.Categories))
				for _, c := range feedbackdao.Categories {
					for _, row := range rows {
						totals[c] += row.Count(c)
					}
				}

				snapshot.Presentations[i] = PresentationSnapshot{
					Number: entry.Number,
					Title:  entry.Title,
					Slug:   entry.Slug,
					Slides: rows,
					Totals: totals,
				}
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return nil, err
		}
		return snapshot, nil
	}
}
