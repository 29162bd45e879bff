package sweeper

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/blastsocial/backend/internal/cache"
	"github.com/blastsocial/backend/internal/database"
	"github.com/blastsocial/backend/internal/models"
	"github.com/blastsocial/backend/internal/notifications"
	"github.com/blastsocial/backend/internal/posts"
	"github.com/blastsocial/backend/internal/ranking"
)

func setupSweeper(t *testing.T) (*gorm.DB, *posts.Service) {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, database.Migrate(db))

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })

	anonymous := &models.User{Username: models.AnonymousUsername, Phone: "anonymous"}
	require.NoError(t, db.Create(anonymous).Error)

	notifier := notifications.NewDispatcher(db, nil)
	notifier.Start()
	t.Cleanup(notifier.Stop)

	ledger := ranking.NewLedger(db, cache.NewFromRedis(rdb), nil, anonymous.ID)
	return db, posts.NewService(db, ledger, notifier, nil)
}

func TestSweepOnceRemovesExpired(t *testing.T) {
	db, postSvc := setupSweeper(t)
	ctx := context.Background()

	user := &models.User{Username: "alice", Phone: "alice"}
	require.NoError(t, db.Create(user).Error)

	live, err := postSvc.Create(ctx, user.ID, "still here", false)
	require.NoError(t, err)
	expired, err := postSvc.Create(ctx, user.ID, "going away", false)
	require.NoError(t, err)
	require.NoError(t, db.Model(&models.Post{}).Where("id = ?", expired.ID).
		Update("expires_at", time.Now().Add(-time.Second)).Error)

	s := New(postSvc, time.Minute, nil)
	s.SweepOnce(ctx)

	var remaining []models.Post
	require.NoError(t, db.Find(&remaining).Error)
	require.Len(t, remaining, 1)
	assert.Equal(t, live.ID, remaining[0].ID)
}

func TestStartStopAreClean(t *testing.T) {
	_, postSvc := setupSweeper(t)

	s := New(postSvc, 10*time.Millisecond, nil)
	s.Start()
	time.Sleep(30 * time.Millisecond)
	s.Stop()
}
