package posts

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
	"github.com/blastsocial/backend/internal/ranking"
)

type svcFixture struct {
	db       *gorm.DB
	mr       *miniredis.Miniredis
	svc      *Service
	ledger   *ranking.Ledger
	notifier *notifications.Dispatcher

	anonymousID uint
}

func setupService(t *testing.T) *svcFixture {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, database.Migrate(db))

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })

	anonymous := &models.User{Username: models.AnonymousUsername, Phone: "anonymous", IsPrivate: true}
	require.NoError(t, db.Create(anonymous).Error)

	notifier := notifications.NewDispatcher(db, nil)
	notifier.Start()
	t.Cleanup(notifier.Stop)

	ledger := ranking.NewLedger(db, cache.NewFromRedis(rdb), nil, anonymous.ID)
	return &svcFixture{
		db:          db,
		mr:          mr,
		svc:         NewService(db, ledger, notifier, nil),
		ledger:      ledger,
		notifier:    notifier,
		anonymousID: anonymous.ID,
	}
}

func (f *svcFixture) createUser(t *testing.T, username string) *models.User {
	t.Helper()
	user := &models.User{Username: username, Phone: username, Popularity: 1}
	require.NoError(t, f.db.Create(user).Error)
	require.NoError(t, f.db.Create(&models.UserSettings{UserID: user.ID}).Error)
	return user
}

func (f *svcFixture) notificationsFor(t *testing.T, userID uint) []models.Notification {
	t.Helper()
	// Stop drains the queue so every enqueued row is persisted.
	f.notifier.Stop()
	var rows []models.Notification
	require.NoError(t, f.db.Where("user_id = ?", userID).Find(&rows).Error)
	return rows
}

func TestCreateExtractsTags(t *testing.T) {
	f := setupService(t)
	ctx := context.Background()

	alice := f.createUser(t, "alice")
	post, err := f.svc.Create(ctx, alice.ID, "shipping the new build #golang #backend", false)
	require.NoError(t, err)

	var tags []models.Tag
	require.NoError(t, f.db.Order("title").Find(&tags).Error)
	require.Len(t, tags, 2)
	assert.Equal(t, "backend", tags[0].Title)
	assert.Equal(t, "golang", tags[1].Title)
	assert.Equal(t, 1, tags[0].TotalPosts)

	members, err := f.ledger.Sets().RangeByScoreDesc(ctx, ranking.TagPostsKey("golang"), 0, -1)
	require.NoError(t, err)
	assert.Contains(t, members, ranking.EncodeID(post.ID))
}

func TestCreateReusesExistingTag(t *testing.T) {
	f := setupService(t)
	ctx := context.Background()

	alice := f.createUser(t, "alice")
	_, err := f.svc.Create(ctx, alice.ID, "first #golang", false)
	require.NoError(t, err)
	_, err = f.svc.Create(ctx, alice.ID, "second #golang", false)
	require.NoError(t, err)

	var tags []models.Tag
	require.NoError(t, f.db.Find(&tags).Error)
	require.Len(t, tags, 1)
	assert.Equal(t, 2, tags[0].TotalPosts)
}

func TestCreateAnonymousHasNoOwner(t *testing.T) {
	f := setupService(t)
	ctx := context.Background()

	alice := f.createUser(t, "alice")
	post, err := f.svc.Create(ctx, alice.ID, "nobody knows", true)
	require.NoError(t, err)

	assert.Nil(t, post.UserID)
	assert.True(t, post.IsAnonymous)

	members, err := f.ledger.Sets().RangeByScoreDesc(ctx, ranking.UserPostsKey(f.anonymousID), 0, -1)
	require.NoError(t, err)
	assert.Contains(t, members, ranking.EncodeID(post.ID))
}

func TestUpvoteExtendsExpiry(t *testing.T) {
	f := setupService(t)
	ctx := context.Background()

	alice := f.createUser(t, "alice")
	bob := f.createUser(t, "bob")
	post, err := f.svc.Create(ctx, alice.ID, "more time please", false)
	require.NoError(t, err)

	_, err = f.svc.Vote(ctx, bob.ID, post.ID, true)
	require.NoError(t, err)

	var updated models.Post
	require.NoError(t, f.db.First(&updated, post.ID).Error)
	assert.WithinDuration(t, post.ExpiresAt.Add(5*time.Minute), updated.ExpiresAt, time.Second)
	assert.Equal(t, 1, updated.VotedCount)
}

func TestDownvoteShortensExpiry(t *testing.T) {
	f := setupService(t)
	ctx := context.Background()

	alice := f.createUser(t, "alice")
	bob := f.createUser(t, "bob")
	post, err := f.svc.Create(ctx, alice.ID, "less time then", false)
	require.NoError(t, err)

	_, err = f.svc.Vote(ctx, bob.ID, post.ID, false)
	require.NoError(t, err)

	var updated models.Post
	require.NoError(t, f.db.First(&updated, post.ID).Error)
	assert.WithinDuration(t, post.ExpiresAt.Add(-10*time.Minute), updated.ExpiresAt, time.Second)
	assert.Equal(t, 1, updated.DownvotedCount)
}

func TestRevoteSamePolarityIsNoop(t *testing.T) {
	f := setupService(t)
	ctx := context.Background()

	alice := f.createUser(t, "alice")
	bob := f.createUser(t, "bob")
	post, err := f.svc.Create(ctx, alice.ID, "steady", false)
	require.NoError(t, err)

	_, err = f.svc.Vote(ctx, bob.ID, post.ID, true)
	require.NoError(t, err)
	afterFirst := f.fetchPost(t, post.ID)

	_, err = f.svc.Vote(ctx, bob.ID, post.ID, true)
	require.NoError(t, err)
	afterSecond := f.fetchPost(t, post.ID)

	assert.Equal(t, afterFirst.VotedCount, afterSecond.VotedCount)
	assert.Equal(t, afterFirst.ExpiresAt, afterSecond.ExpiresAt, "a repeated vote must not move the clock")
}

func TestUnvoteRestoresCounters(t *testing.T) {
	f := setupService(t)
	ctx := context.Background()

	alice := f.createUser(t, "alice")
	bob := f.createUser(t, "bob")
	post, err := f.svc.Create(ctx, alice.ID, "take it back", false)
	require.NoError(t, err)

	_, err = f.svc.Vote(ctx, bob.ID, post.ID, true)
	require.NoError(t, err)
	_, err = f.svc.Unvote(ctx, bob.ID, post.ID)
	require.NoError(t, err)

	updated := f.fetchPost(t, post.ID)
	assert.Equal(t, 0, updated.VotedCount)
	assert.Equal(t, 0, updated.DownvotedCount)
}

func TestVoteOnExpiredPostFails(t *testing.T) {
	f := setupService(t)
	ctx := context.Background()

	alice := f.createUser(t, "alice")
	post, err := f.svc.Create(ctx, alice.ID, "already gone", false)
	require.NoError(t, err)

	require.NoError(t, f.db.Model(&models.Post{}).Where("id = ?", post.ID).
		Update("expires_at", time.Now().Add(-time.Minute)).Error)

	_, err = f.svc.Vote(ctx, alice.ID, post.ID, true)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestDeleteRequiresOwnership(t *testing.T) {
	f := setupService(t)
	ctx := context.Background()

	alice := f.createUser(t, "alice")
	bob := f.createUser(t, "bob")
	post, err := f.svc.Create(ctx, alice.ID, "mine", false)
	require.NoError(t, err)

	assert.ErrorIs(t, f.svc.Delete(ctx, post.ID, bob.ID), ErrNotOwner)
	assert.NoError(t, f.svc.Delete(ctx, post.ID, alice.ID))
	assert.ErrorIs(t, f.svc.Delete(ctx, post.ID, alice.ID), ErrNotFound)
}

func TestDeleteCleansUpEverything(t *testing.T) {
	f := setupService(t)
	ctx := context.Background()

	alice := f.createUser(t, "alice")
	bob := f.createUser(t, "bob")
	post, err := f.svc.Create(ctx, alice.ID, "full teardown #bye", false)
	require.NoError(t, err)

	_, err = f.svc.Vote(ctx, bob.ID, post.ID, true)
	require.NoError(t, err)
	require.NoError(t, f.svc.Pin(ctx, bob.ID, post.ID))

	require.NoError(t, f.svc.Delete(ctx, post.ID, alice.ID))

	var votes, joins int64
	f.db.Model(&models.PostVote{}).Where("post_id = ?", post.ID).Count(&votes)
	f.db.Model(&models.PostTag{}).Where("post_id = ?", post.ID).Count(&joins)
	assert.Zero(t, votes)
	assert.Zero(t, joins)

	pinned, err := f.svc.PinnedPostIDs(ctx, bob.ID)
	require.NoError(t, err)
	assert.Empty(t, pinned)

	members, err := f.ledger.Sets().RangeByScoreDesc(ctx, ranking.UserPostsKey(alice.ID), 0, -1)
	require.NoError(t, err)
	assert.NotContains(t, members, ranking.EncodeID(post.ID))
}

func TestPinHideRoundTrip(t *testing.T) {
	f := setupService(t)
	ctx := context.Background()

	alice := f.createUser(t, "alice")
	post, err := f.svc.Create(ctx, alice.ID, "keep this one", false)
	require.NoError(t, err)

	require.NoError(t, f.svc.Pin(ctx, alice.ID, post.ID))
	require.NoError(t, f.svc.Pin(ctx, alice.ID, post.ID), "re-pinning is a no-op")

	ids, err := f.svc.PinnedPostIDs(ctx, alice.ID)
	require.NoError(t, err)
	assert.Equal(t, []uint{post.ID}, ids)

	require.NoError(t, f.svc.Unpin(ctx, alice.ID, post.ID))
	ids, err = f.svc.PinnedPostIDs(ctx, alice.ID)
	require.NoError(t, err)
	assert.Empty(t, ids)

	require.NoError(t, f.svc.Hide(ctx, alice.ID, post.ID))
	hidden, err := f.svc.HiddenPostIDs(ctx, alice.ID)
	require.NoError(t, err)
	assert.Equal(t, []uint{post.ID}, hidden)

	require.NoError(t, f.svc.Show(ctx, alice.ID, post.ID))
	hidden, err = f.svc.HiddenPostIDs(ctx, alice.ID)
	require.NoError(t, err)
	assert.Empty(t, hidden)
}

func TestDeleteExpiredSweeps(t *testing.T) {
	f := setupService(t)
	ctx := context.Background()

	alice := f.createUser(t, "alice")
	expired1, err := f.svc.Create(ctx, alice.ID, "old one #stale", false)
	require.NoError(t, err)
	expired2, err := f.svc.Create(ctx, alice.ID, "old two", false)
	require.NoError(t, err)
	keeper, err := f.svc.Create(ctx, alice.ID, "fresh", false)
	require.NoError(t, err)

	past := time.Now().Add(-time.Minute)
	require.NoError(t, f.db.Model(&models.Post{}).
		Where("id IN ?", []uint{expired1.ID, expired2.ID}).
		Update("expires_at", past).Error)

	swept, err := f.svc.DeleteExpired(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, swept)

	var remaining []models.Post
	require.NoError(t, f.db.Find(&remaining).Error)
	require.Len(t, remaining, 1)
	assert.Equal(t, keeper.ID, remaining[0].ID)

	members, err := f.ledger.Sets().RangeByScoreDesc(ctx, ranking.UserPostsKey(alice.ID), 0, -1)
	require.NoError(t, err)
	assert.Equal(t, []string{ranking.EncodeID(keeper.ID)}, members)
}

func TestMentionNotifiesMentionedUser(t *testing.T) {
	f := setupService(t)
	ctx := context.Background()

	alice := f.createUser(t, "alice")
	bob := f.createUser(t, "bob")

	_, err := f.svc.Create(ctx, alice.ID, "shoutout to @bob", false)
	require.NoError(t, err)

	rows := f.notificationsFor(t, bob.ID)
	require.Len(t, rows, 1)
	assert.Equal(t, models.NotificationMention, rows[0].Type)
	require.NotNil(t, rows[0].OtherID)
	assert.Equal(t, alice.ID, *rows[0].OtherID)
}

func TestVoteMilestoneNotifiesOwner(t *testing.T) {
	f := setupService(t)
	ctx := context.Background()

	alice := f.createUser(t, "alice")
	bob := f.createUser(t, "bob")
	post, err := f.svc.Create(ctx, alice.ID, "almost famous", false)
	require.NoError(t, err)

	// Put the post one vote short of the first milestone.
	require.NoError(t, f.db.Model(&models.Post{}).Where("id = ?", post.ID).
		Update("voted_count", 9).Error)

	_, err = f.svc.Vote(ctx, bob.ID, post.ID, true)
	require.NoError(t, err)

	rows := f.notificationsFor(t, alice.ID)
	require.Len(t, rows, 1)
	assert.Equal(t, models.NotificationVoteMilestone, rows[0].Type)
}

func (f *svcFixture) fetchPost(t *testing.T, id uint) *models.Post {
	t.Helper()
	var post models.Post
	require.NoError(t, f.db.First(&post, id).Error)
	return &post
}
