package main

import (
	"context"
	"database/sql"
	"fmt"

	sundaecli "github.com/SundaeSwap-finance/sundae-slides/sundae-cli"
	sundaeddb "github.com/SundaeSwap-finance/sundae-slides/sundae-ddb"
	sundaeregistry "github.com/SundaeSwap-finance/sundae-slides/sundae-registry"
	"github.com/SundaeSwap-finance/sundae-slides/sundae-registry/presentationdao"
	sundaeslide "github.com/SundaeSwap-finance/sundae-slides/sundae-slide"
	"github.com/SundaeSwap-finance/sundae-slides/sundae-slide/connectiondao"
	"github.com/SundaeSwap-finance/sundae-slides/sundae-slide/feedbackdao"
	sundaesqlite "github.com/SundaeSwap-finance/sundae-slides/sundae-sqlite"
)

type connectionStore interface {
	sundaeslide.ConnectionStore
	DeleteExpired(ctx context.Context, now int64) (int, error)
}

type stores struct {
	feedback      sundaeslide.FeedbackStore
	connections   connectionStore
	presentations sundaeregistry.Store
	db            *sql.DB
}

func (s *stores) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// openStores builds the feedback, connection and presentation stores for the
// backend selected by --store.
func openStores(ctx context.Context) (*stores, error) {
	if err := sundaeslide.ValidateStore(sundaeslide.SlideOpts.Store); err != nil {
		return nil, err
	}

	if sundaeslide.SlideOpts.Store == sundaeslide.StoreSQLite {
		db, err := sundaesqlite.Open(ctx, sundaesqlite.SQLiteOpts.Path)
		if err != nil {
			return nil, err
		}
		return &stores{
			feedback:      feedbackdao.NewSQLite(db),
			connections:   connectiondao.NewSQLite(db),
			presentations: presentationdao.NewSQLite(db),
			db:            db,
		}, nil
	}

	sess, err := sundaeddb.Session()
	if err != nil {
		return nil, fmt.Errorf("failed to create aws session: %w", err)
	}
	api, err := sundaeddb.DynamoDBAPI(sess)
	if err != nil {
		return nil, err
	}

	env := sundaecli.CommonOpts.Env
	connections := connectiondao.Build(api, env)
	presentations := presentationdao.Build(api, env)
	if err := connections.CreateTable(ctx); err != nil {
		return nil, err
	}
	if err := presentations.CreateTable(ctx); err != nil {
		return nil, err
	}

	return &stores{
		feedback:      feedbackdao.Build(api, env),
		connections:   connections,
		presentations: presentations,
	}, nil
}
