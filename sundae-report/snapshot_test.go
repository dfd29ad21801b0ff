package sundaereport

import (
	"context"
	"path/filepath"
	"testing"

	sundaeregistry "github.com/SundaeSwap-finance/sundae-slides/sundae-registry"
	"github.com/SundaeSwap-finance/sundae-slides/sundae-registry/presentationdao"
	"github.com/SundaeSwap-finance/sundae-slides/sundae-slide/feedbackdao"
	sundaesqlite "github.com/SundaeSwap-finance/sundae-slides/sundae-sqlite"
	"github.com/rs/zerolog"
	"github.com/tj/assert"
)

func TestFeedbackSnapshot(t *testing.T) {
	ctx := context.Background()
	db, err := sundaesqlite.Open(ctx, filepath.Join(t.TempDir(), "report.db"))
	assert.Nil(t, err)
	defer db.Close()

	var (
		registry = sundaeregistry.New(presentationdao.NewSQLite(db), zerolog.Nop())
		feedback = feedbackdao.NewSQLite(db)
	)

	_, err = registry.AddEntry(ctx, "First", "first")
	assert.Nil(t, err)
	_, err = registry.AddEntry(ctx, "Quiet", "quiet")
	assert.Nil(t, err)

	assert.Nil(t, feedback.RecordFeedback(ctx, "first", 1, "One", feedbackdao.Good))
	assert.Nil(t, feedback.RecordFeedback(ctx, "first", 2, "Two", feedbackdao.Good))
	assert.Nil(t, feedback.RecordFeedback(ctx, "first", 2, "Two", feedbackdao.MindBlown))

	v, err := FeedbackSnapshot(registry, feedback, 2)(ctx)
	assert.Nil(t, err)

	snapshot := v.(Snapshot)
	assert.Len(t, snapshot.Presentations, 2)

	first := snapshot.Presentations[0]
	assert.Equal(t, "first", first.Slug)
	assert.Len(t, first.Slides, 2)
	assert.EqualValues(t, 2, first.Totals[feedbackdao.Good])
	assert.EqualValues(t, 1, first.Totals[feedbackdao.MindBlown])
	assert.EqualValues(t, 0, first.Totals[feedbackdao.Okay])

	quiet := snapshot.Presentations[1]
	assert.Equal(t, "Quiet", quiet.Title)
	assert.Len(t, quiet.Slides, 0)
}
