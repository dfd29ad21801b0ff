package feedbackdao

import (
	"context"
	"database/sql"
	"path/filepath"
	"sync"
	"testing"

	sundaesqlite "github.com/SundaeSwap-finance/sundae-slides/sundae-sqlite"
	"github.com/tj/assert"
)

func withSQLite(t *testing.T, callback func(ctx context.Context, db *sql.DB, store *SQLite)) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	db, err := sundaesqlite.Open(ctx, filepath.Join(t.TempDir(), "feedback.db"))
	assert.Nil(t, err)
	defer db.Close()

	store := NewSQLite(db)
	assert.Nil(t, store.EnsureTable(ctx))

	callback(ctx, db, store)
}

func TestSQLiteRecordFeedback(t *testing.T) {
	withSQLite(t, func(ctx context.Context, db *sql.DB, store *SQLite) {
		err := store.RecordFeedback(ctx, "talk", 3, "Intro", Good)
		assert.Nil(t, err)
		err = store.RecordFeedback(ctx, "talk", 3, "Renamed", Good)
		assert.Nil(t, err)
		err = store.RecordFeedback(ctx, "talk", 3, "", MindBlown)
		assert.Nil(t, err)

		rows, err := store.ListFeedback(ctx, "talk")
		assert.Nil(t, err)
		assert.Len(t, rows, 1)
		assert.Equal(t, Row{SlideKey: "talk", SlideNumber: 3, SlideTitle: "Intro", Good: 2, MindBlown: 1}, rows[0])
	})
}

func TestSQLiteRecordFeedbackUnknownCategory(t *testing.T) {
	withSQLite(t, func(ctx context.Context, db *sql.DB, store *SQLite) {
		err := store.RecordFeedback(ctx, "talk", 1, "Intro", Category("meh"))
		assert.NotNil(t, err)

		rows, err := store.ListFeedback(ctx, "talk")
		assert.Nil(t, err)
		assert.Len(t, rows, 0)
	})
}

func TestSQLiteConcurrentIncrements(t *testing.T) {
	withSQLite(t, func(ctx context.Context, db *sql.DB, store *SQLite) {
		const n = 50

		var wg sync.WaitGroup
		errs := make(chan error, n)
		for i := 0; i < n; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				errs <- store.RecordFeedback(ctx, "talk", 7, "Demo", Great)
			}()
		}
		wg.Wait()
		close(errs)
		for err := range errs {
			assert.Nil(t, err)
		}

		rows, err := store.ListFeedback(ctx, "talk")
		assert.Nil(t, err)
		assert.Len(t, rows, 1)
		assert.EqualValues(t, n, rows[0].Great)
		assert.EqualValues(t, 0, rows[0].Okay)
	})
}

func TestSQLiteListFeedbackSorted(t *testing.T) {
	withSQLite(t, func(ctx context.Context, db *sql.DB, store *SQLite) {
		assert.Nil(t, store.RecordFeedback(ctx, "talk", 5, "Five", Okay))
		assert.Nil(t, store.RecordFeedback(ctx, "talk", 2, "Two", Okay))
		assert.Nil(t, store.RecordFeedback(ctx, "other", 1, "Elsewhere", Okay))

		_, err := db.ExecContext(ctx, `INSERT INTO slide_feedback (slide_key, slide_number, slide_title) VALUES (?, ?, ?)`, "talk", 3, "Three")
		assert.Nil(t, err)

		rows, err := store.ListFeedback(ctx, "talk")
		assert.Nil(t, err)
		assert.Len(t, rows, 3)
		assert.EqualValues(t, 2, rows[0].SlideNumber)
		assert.EqualValues(t, 3, rows[1].SlideNumber)
		assert.EqualValues(t, 5, rows[2].SlideNumber)
		assert.Equal(t, Row{SlideKey: "talk", SlideNumber: 3, SlideTitle: "Three"}, rows[1])
	})
}

func TestParseCategory(t *testing.T) {
	for _, c := range Categories {
		got, ok := ParseCategory(string(c))
		assert.True(t, ok)
		assert.Equal(t, c, got)
	}

	_, ok := ParseCategory("mind_blown")
	assert.False(t, ok)

	row := Row{Okay: 1, Good: 2, Great: 3, MindBlown: 4}
	assert.EqualValues(t, 4, row.Count(MindBlown))
	assert.EqualValues(t, 0, row.Count(Category("nope")))
}
