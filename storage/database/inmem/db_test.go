package inmemdb_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/shule/core"
	"github.com/trezcool/shule/core/user"
	inmemdb "github.com/trezcool/shule/storage/database/inmem"
)

func newUser(uname string) user.User {
	now := time.Now().UTC()
	return user.User{Username: uname, Email: uname + "@test.cd", CreatedAt: now, UpdatedAt: now}
}

func TestTxRunner(t *testing.T) {
	ctx := context.Background()
	db := inmemdb.Open()
	tx := inmemdb.NewTxRunner(db)
	repo := inmemdb.NewUserRepository(db)

	t.Run("commit", func(t *testing.T) {
		err := tx.RunInTx(ctx, func(exec core.DBExecutor) error {
			_, err := repo.CreateUser(ctx, newUser("ada"), exec)
			return err
		})
		require.NoError(t, err)
		_, err = repo.GetUser(ctx, user.GetFilter{Username: "ada"})
		assert.NoError(t, err)
	})

	t.Run("rollback on error", func(t *testing.T) {
		boom := errors.New("boom")
		err := tx.RunInTx(ctx, func(exec core.DBExecutor) error {
			if _, err := repo.CreateUser(ctx, newUser("bola"), exec); err != nil {
				return err
			}
			return boom
		})
		assert.Equal(t, boom, err)
		_, err = repo.GetUser(ctx, user.GetFilter{Username: "bola"})
		assert.Equal(t, user.ErrNotFound, err)
	})

	t.Run("rollback on panic", func(t *testing.T) {
		assert.Panics(t, func() {
			_ = tx.RunInTx(ctx, func(exec core.DBExecutor) error {
				_, _ = repo.CreateUser(ctx, newUser("chidi"), exec)
				panic("lol")
			})
		})
		_, err := repo.GetUser(ctx, user.GetFilter{Username: "chidi"})
		assert.Equal(t, user.ErrNotFound, err)
	})

	users, err := repo.QueryUsers(ctx, nil, nil)
	require.NoError(t, err)
	assert.Len(t, users, 1)

	db.Reset()
	users, err = repo.QueryUsers(ctx, nil, nil)
	require.NoError(t, err)
	assert.Empty(t, users)
}
