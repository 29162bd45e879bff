package ranking

import (
	"context"
	"time"

	"github.com/blastsocial/backend/internal/metrics"
	"github.com/blastsocial/backend/internal/models"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// FallbackFunc answers a ranked-ID query straight from the relational
// store, for requests where the cache is cold and could not be warmed.
type FallbackFunc func(ctx context.Context, start, stop int64) ([]uint, error)

// Query is the read API over ranked sets. Reads warm the cache on demand,
// range over it, then materialize full rows in one batched lookup that
// preserves cache order. IDs present in the cache but gone from the store
// are silently dropped; a reader never fails because the cache is stale or
// unreachable.
type Query struct {
	db      *gorm.DB
	ledger  *Ledger
	log     *zap.Logger
	metrics *metrics.Metrics
}

// NewQuery creates a ranked read API sharing the ledger's store handles.
func NewQuery(db *gorm.DB, ledger *Ledger, log *zap.Logger) *Query {
	if log == nil {
		log = zap.NewNop()
	}
	return &Query{
		db:      db,
		ledger:  ledger,
		log:     log,
		metrics: metrics.Get(),
	}
}

// topIDs warms, ranges, decodes. Any cache failure downgrades the request
// to the relational fallback.
func (q *Query) topIDs(ctx context.Context, set, kind string, loader Loader, fallback FallbackFunc, start, stop int64) ([]uint, error) {
	if err := q.ledger.Warmer().EnsureWarm(ctx, set, kind, loader); err != nil {
		q.log.Warn("Warm-up failed, falling back to relational query",
			zap.String("set", set), zap.Error(err))
		q.metrics.CacheFallbackTotal.WithLabelValues(kind).Inc()
		return fallback(ctx, start, stop)
	}

	members, err := q.ledger.Sets().RangeByScoreDesc(ctx, set, start, stop)
	if err != nil {
		q.log.Warn("Ranked range failed, falling back to relational query",
			zap.String("set", set), zap.Error(err))
		q.metrics.CacheFallbackTotal.WithLabelValues(kind).Inc()
		return fallback(ctx, start, stop)
	}

	return DecodeIDs(members), nil
}

// TopPostIDsByOwner returns the rank positions [start, stop] of a user's
// post set, most popular first.
func (q *Query) TopPostIDsByOwner(ctx context.Context, ownerID uint, start, stop int64) ([]uint, error) {
	anonymousID := q.ledger.AnonymousID()
	return q.topIDs(ctx,
		UserPostsKey(ownerID), "user_posts",
		OwnerPostsLoader(q.db, ownerID, anonymousID),
		func(ctx context.Context, start, stop int64) ([]uint, error) {
			return ownerPostIDsByPopularity(ctx, q.db, ownerID, anonymousID, start, stop)
		},
		start, stop)
}

// TopPostsByOwner materializes TopPostIDsByOwner into full posts.
func (q *Query) TopPostsByOwner(ctx context.Context, ownerID uint, start, stop int64) ([]models.Post, error) {
	ids, err := q.TopPostIDsByOwner(ctx, ownerID, start, stop)
	if err != nil {
		return nil, err
	}
	return q.materializePosts(ctx, ids)
}

// TopPostIDsByTag returns the rank positions [start, stop] of a tag's post
// set, most popular first.
func (q *Query) TopPostIDsByTag(ctx context.Context, title string, start, stop int64) ([]uint, error) {
	return q.topIDs(ctx,
		TagPostsKey(title), "tag_posts",
		TagPostsLoader(q.db, title),
		func(ctx context.Context, start, stop int64) ([]uint, error) {
			return tagPostIDsByPopularity(ctx, q.db, title, start, stop)
		},
		start, stop)
}

// TopPostsByTag materializes TopPostIDsByTag into full posts.
func (q *Query) TopPostsByTag(ctx context.Context, title string, start, stop int64) ([]models.Post, error) {
	ids, err := q.TopPostIDsByTag(ctx, title, start, stop)
	if err != nil {
		return nil, err
	}
	return q.materializePosts(ctx, ids)
}

// MostPopularUserIDs returns global rank positions [start, stop].
func (q *Query) MostPopularUserIDs(ctx context.Context, start, stop int64) ([]uint, error) {
	return q.topIDs(ctx,
		GlobalUsersZSet, "users_global",
		AllUsersLoader(q.db),
		func(ctx context.Context, start, stop int64) ([]uint, error) {
			return userIDsByPopularity(ctx, q.db, start, stop)
		},
		start, stop)
}

// TopFollowerIDs returns the most popular followers of a user.
func (q *Query) TopFollowerIDs(ctx context.Context, userID uint, start, stop int64) ([]uint, error) {
	return q.topIDs(ctx,
		UserFollowersKey(userID), "followers",
		FollowersLoader(q.db, userID),
		func(ctx context.Context, start, stop int64) ([]uint, error) {
			var ids []uint
			err := q.db.WithContext(ctx).Table("users").
				Joins("JOIN followers ON followers.follower_id = users.id").
				Where("followers.followee_id = ?", userID).
				Order("users.popularity DESC, users.id DESC").
				Offset(int(start)).Limit(int(stop - start + 1)).
				Pluck("users.id", &ids).Error
			return ids, err
		},
		start, stop)
}

// UsersCount reports the cached cardinality of the global popularity set,
// zero when it is cold. Callers that warmed the set first (the feed
// composer does) get an exact count.
func (q *Query) UsersCount(ctx context.Context) int64 {
	warm, err := q.ledger.Sets().Exists(ctx, GlobalUsersZSet)
	if err != nil || !warm {
		return 0
	}
	n, err := q.ledger.Sets().Cardinality(ctx, GlobalUsersZSet)
	if err != nil {
		return 0
	}
	return n
}

// Rebuild drops a ranked set and warms it from the store. Used by the
// admin CLI and by anything that wants a forced reconciliation.
func (q *Query) Rebuild(ctx context.Context, set, kind string, loader Loader) error {
	if err := q.ledger.Sets().Drop(ctx, set); err != nil {
		return err
	}
	return q.ledger.Warmer().EnsureWarm(ctx, set, kind, loader)
}

// materializePosts fetches full rows for ids in one query and reorders
// them to cache order, dropping ids with no live row.
func (q *Query) materializePosts(ctx context.Context, ids []uint) ([]models.Post, error) {
	if len(ids) == 0 {
		return []models.Post{}, nil
	}

	var rows []models.Post
	err := q.db.WithContext(ctx).
		Where("id IN ?", ids).
		Where("expires_at >= ?", time.Now()).
		Find(&rows).Error
	if err != nil {
		return nil, err
	}

	byID := make(map[uint]models.Post, len(rows))
	for _, p := range rows {
		byID[p.ID] = p
	}

	posts := make([]models.Post, 0, len(ids))
	for _, id := range ids {
		if p, ok := byID[id]; ok {
			posts = append(posts, p)
		}
	}
	return posts, nil
}

// MaterializeUsers fetches full user rows for ids, preserving order and
// dropping ids with no row.
func (q *Query) MaterializeUsers(ctx context.Context, ids []uint) ([]models.User, error) {
	if len(ids) == 0 {
		return []models.User{}, nil
	}

	var rows []models.User
	if err := q.db.WithContext(ctx).Where("id IN ?", ids).Find(&rows).Error; err != nil {
		return nil, err
	}

	byID := make(map[uint]models.User, len(rows))
	for _, u := range rows {
		byID[u.ID] = u
	}

	users := make([]models.User, 0, len(ids))
	for _, id := range ids {
		if u, ok := byID[id]; ok {
			users = append(users, u)
		}
	}
	return users, nil
}
