package connectiondao

import (
	"context"
	"errors"
	"fmt"
	"os"
	"testing"
	"time"

	sundaeddb "github.com/SundaeSwap-finance/sundae-slides/sundae-ddb"
	"github.com/tj/assert"
)

func withTable(t *testing.T, callback func(ctx context.Context, dao *DAO)) {
	endpoint := os.Getenv("DYNAMODB_ENDPOINT")
	if endpoint == "" {
		t.Skip("DYNAMODB_ENDPOINT not set")
	}

	var (
		api       = sundaeddb.LocalAPI(endpoint)
		tableName = fmt.Sprintf("connections-%v", time.Now().UnixNano())
		dao       = New(api, tableName)
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	assert.Nil(t, dao.CreateTable(ctx))
	defer dao.table.DeleteTableIfExists(ctx)

	callback(ctx, dao)
}

func TestDAO(t *testing.T) {
	withTable(t, func(ctx context.Context, dao *DAO) {
		assert.Nil(t, dao.Put(ctx, Connection{ConnectionID: "a", SlideKey: "talk", ConnectedAt: 1, TTL: 5}))
		assert.Nil(t, dao.Put(ctx, Connection{ConnectionID: "b", SlideKey: "talk", ConnectedAt: 1, TTL: 50}))

		assert.Nil(t, dao.SetIdentity(ctx, "a", "xyz"))
		got, err := dao.Get(ctx, "a")
		assert.Nil(t, err)
		assert.Equal(t, "xyz", got.Identity)

		err = dao.SetIdentity(ctx, "missing", "xyz")
		assert.True(t, errors.Is(err, ErrNotFound))

		assert.Nil(t, dao.Touch(ctx, "b", 60))
		err = dao.Touch(ctx, "missing", 60)
		assert.True(t, errors.Is(err, ErrNotFound))

		n, err := dao.DeleteExpired(ctx, 10)
		assert.Nil(t, err)
		assert.Equal(t, 1, n)

		_, err = dao.Get(ctx, "a")
		assert.True(t, errors.Is(err, ErrNotFound))
		_, err = dao.Get(ctx, "b")
		assert.Nil(t, err)
	})
}
