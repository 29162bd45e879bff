package ranking

import (
	"context"
	"fmt"

	"github.com/blastsocial/backend/internal/cache"
	"github.com/blastsocial/backend/internal/metrics"
	"github.com/blastsocial/backend/internal/models"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Ledger is the single choke point for popularity-affecting domain events.
// Domain services call it explicitly after their own transaction commits;
// nothing here runs as a side effect of a save.
//
// Every event applies its relational counter update first, as one atomic
// increment. Cache updates come second and are non-fatal: ranked sets are
// rebuildable, so a failed or skipped cache write costs staleness, never
// correctness. A cold set is left cold unless the event needs it warm, in
// which case warming happens through the loader and already includes the
// committed relational change, so the in-place mutation is skipped.
type Ledger struct {
	db      *gorm.DB
	sets    *cache.ScoredSetStore
	warmer  *Warmer
	log     *zap.Logger
	metrics *metrics.Metrics

	// anonymousID is the sentinel owner for posts with a NULL user_id.
	anonymousID uint
}

// NewLedger creates a ledger with explicit handles.
func NewLedger(db *gorm.DB, client *cache.Client, log *zap.Logger, anonymousID uint) *Ledger {
	if log == nil {
		log = zap.NewNop()
	}
	sets := cache.NewScoredSetStore(client)
	return &Ledger{
		db:          db,
		sets:        sets,
		warmer:      NewWarmer(sets, log),
		log:         log,
		metrics:     metrics.Get(),
		anonymousID: anonymousID,
	}
}

// Sets exposes the underlying store, shared with RankedQuery.
func (l *Ledger) Sets() *cache.ScoredSetStore {
	return l.sets
}

// Warmer exposes the warmer, shared with RankedQuery.
func (l *Ledger) Warmer() *Warmer {
	return l.warmer
}

// AnonymousID returns the sentinel owner ID.
func (l *Ledger) AnonymousID() uint {
	return l.anonymousID
}

// OwnerID resolves a post's ranked-set owner.
func (l *Ledger) OwnerID(post *models.Post) uint {
	if post.UserID == nil {
		return l.anonymousID
	}
	return *post.UserID
}

// UserCreated records a new account: membership in the random-sample set
// and a starting rank of 1 in the global popularity set. Cold caches are
// left cold; the next warm-up picks the user up from the store.
func (l *Ledger) UserCreated(ctx context.Context, userID uint) {
	l.metrics.LedgerEventsTotal.WithLabelValues("user_created").Inc()

	l.applyIfWarm(ctx, GlobalUsersZSet, "users_global", func() error {
		return l.sets.Upsert(ctx, GlobalUsersZSet, 1, EncodeID(userID))
	})
	l.addToRandomSetIfWarm(ctx, userID)
}

// PostCreated records a committed post: +1 owner popularity, and the post
// appended to the owner's ranked set (warming it first if needed).
func (l *Ledger) PostCreated(ctx context.Context, post *models.Post) error {
	l.metrics.LedgerEventsTotal.WithLabelValues("post_created").Inc()
	ownerID := l.OwnerID(post)

	err := l.db.WithContext(ctx).Model(&models.User{}).
		Where("id = ?", ownerID).
		UpdateColumn("popularity", gorm.Expr("popularity + ?", 1)).Error
	if err != nil {
		return fmt.Errorf("increment owner popularity: %w", err)
	}
	l.applyIfWarm(ctx, GlobalUsersZSet, "users_global", func() error {
		return l.sets.IncrementScore(ctx, GlobalUsersZSet, EncodeID(ownerID), 1)
	})

	set := UserPostsKey(ownerID)
	l.applyOrWarm(ctx, set, "user_posts", OwnerPostsLoader(l.db, ownerID, l.anonymousID), func() error {
		return l.sets.Upsert(ctx, set, post.Popularity(), EncodeID(post.ID))
	})
	return nil
}

// PostDeleted records a post's removal (explicit delete or expiry): -1
// owner popularity, -1 total_posts per tag, and the post purged from the
// owner's set and every tag set it belonged to.
func (l *Ledger) PostDeleted(ctx context.Context, post *models.Post, tagTitles []string) error {
	l.metrics.LedgerEventsTotal.WithLabelValues("post_deleted").Inc()
	ownerID := l.OwnerID(post)

	err := l.db.WithContext(ctx).Model(&models.User{}).
		Where("id = ?", ownerID).
		UpdateColumn("popularity", gorm.Expr("popularity - ?", 1)).Error
	if err != nil {
		return fmt.Errorf("decrement owner popularity: %w", err)
	}

	if len(tagTitles) > 0 {
		err = l.db.WithContext(ctx).Model(&models.Tag{}).
			Where("title IN ?", tagTitles).
			UpdateColumn("total_posts", gorm.Expr("total_posts - ?", 1)).Error
		if err != nil {
			return fmt.Errorf("decrement tag counters: %w", err)
		}
	}

	member := EncodeID(post.ID)
	l.applyIfWarm(ctx, GlobalUsersZSet, "users_global", func() error {
		return l.sets.IncrementScore(ctx, GlobalUsersZSet, EncodeID(ownerID), -1)
	})

	// ZREM on a cold key is a no-op, so these are safe unconditionally.
	l.removeMember(ctx, UserPostsKey(ownerID), "user_posts", member)
	for _, title := range tagTitles {
		l.removeMember(ctx, TagPostsKey(title), "tag_posts", member)
	}
	return nil
}

// VoteChanged records a vote polarity transition: one atomic counter
// update on the post row and the matching score delta on the owner's
// ranked set. Deltas commute, so two racing votes on one post converge
// regardless of order.
func (l *Ledger) VoteChanged(ctx context.Context, post *models.Post, old, new *bool) error {
	dVoted, dDownvoted := VoteDelta(old, new)
	if dVoted == 0 && dDownvoted == 0 {
		return nil
	}
	l.metrics.LedgerEventsTotal.WithLabelValues("vote_changed").Inc()

	err := l.db.WithContext(ctx).Model(&models.Post{}).
		Where("id = ?", post.ID).
		UpdateColumns(map[string]interface{}{
			"voted_count":     gorm.Expr("voted_count + ?", dVoted),
			"downvoted_count": gorm.Expr("downvoted_count + ?", dDownvoted),
		}).Error
	if err != nil {
		return fmt.Errorf("update vote counters: %w", err)
	}

	ownerID := l.OwnerID(post)
	set := UserPostsKey(ownerID)
	delta := PopularityDelta(old, new)
	member := EncodeID(post.ID)

	l.applyOrWarm(ctx, set, "user_posts", OwnerPostsLoader(l.db, ownerID, l.anonymousID), func() error {
		return l.sets.IncrementScore(ctx, set, member, delta)
	})

	// Tag sets rank the same posts by the same score.
	var titles []string
	if err := l.db.WithContext(ctx).Model(&models.PostTag{}).
		Where("post_id = ?", post.ID).
		Pluck("tag_title", &titles).Error; err == nil {
		for _, title := range titles {
			tagSet := TagPostsKey(title)
			l.applyIfWarm(ctx, tagSet, "tag_posts", func() error {
				return l.sets.IncrementScore(ctx, tagSet, member, delta)
			})
		}
	}
	return nil
}

// FollowCreated records a new follow edge: +1 followee popularity, and the
// edge reflected in the already-warm ranked sets. Cold sets stay cold;
// they rebuild correctly from the store on next access.
func (l *Ledger) FollowCreated(ctx context.Context, followerID, followeeID uint) error {
	return l.followChanged(ctx, followerID, followeeID, +1)
}

// FollowDestroyed is the symmetric decrement.
func (l *Ledger) FollowDestroyed(ctx context.Context, followerID, followeeID uint) error {
	return l.followChanged(ctx, followerID, followeeID, -1)
}

func (l *Ledger) followChanged(ctx context.Context, followerID, followeeID uint, direction int) error {
	event := "follow_created"
	if direction < 0 {
		event = "follow_destroyed"
	}
	l.metrics.LedgerEventsTotal.WithLabelValues(event).Inc()

	err := l.db.WithContext(ctx).Model(&models.User{}).
		Where("id = ?", followeeID).
		UpdateColumn("popularity", gorm.Expr("popularity + ?", direction)).Error
	if err != nil {
		return fmt.Errorf("update followee popularity: %w", err)
	}

	l.applyIfWarm(ctx, GlobalUsersZSet, "users_global", func() error {
		return l.sets.IncrementScore(ctx, GlobalUsersZSet, EncodeID(followeeID), float64(direction))
	})

	followersSet := UserFollowersKey(followeeID)
	followeesSet := UserFolloweesKey(followerID)

	if direction > 0 {
		l.applyIfWarm(ctx, followersSet, "followers", func() error {
			return l.sets.Upsert(ctx, followersSet, l.userPopularity(ctx, followerID), EncodeID(followerID))
		})
		l.applyIfWarm(ctx, followeesSet, "followers", func() error {
			return l.sets.Upsert(ctx, followeesSet, l.userPopularity(ctx, followeeID), EncodeID(followeeID))
		})
	} else {
		l.removeMember(ctx, followersSet, "followers", EncodeID(followerID))
		l.removeMember(ctx, followeesSet, "followers", EncodeID(followeeID))
	}
	return nil
}

// PostTagged records the tags discovered on a new post: Tag rows created
// if absent (a concurrent creation of the same tag is fine), the join rows
// written, total_posts incremented, and the post added to each tag's
// ranked set.
func (l *Ledger) PostTagged(ctx context.Context, post *models.Post, titles []string) error {
	if len(titles) == 0 {
		return nil
	}
	l.metrics.LedgerEventsTotal.WithLabelValues("post_tagged").Inc()

	tags := make([]models.Tag, 0, len(titles))
	joins := make([]models.PostTag, 0, len(titles))
	for _, title := range titles {
		tags = append(tags, models.Tag{Title: title})
		joins = append(joins, models.PostTag{PostID: post.ID, TagTitle: title})
	}

	// Two posts introducing the same new tag race here; DoNothing turns
	// the loser's conflict into "already exists".
	err := l.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&tags).Error
	if err != nil {
		return fmt.Errorf("create tags: %w", err)
	}

	err = l.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&joins).Error
	if err != nil {
		return fmt.Errorf("create post tags: %w", err)
	}

	err = l.db.WithContext(ctx).Model(&models.Tag{}).
		Where("title IN ?", titles).
		UpdateColumn("total_posts", gorm.Expr("total_posts + ?", 1)).Error
	if err != nil {
		return fmt.Errorf("increment tag counters: %w", err)
	}

	for _, title := range titles {
		set := TagPostsKey(title)
		l.applyOrWarm(ctx, set, "tag_posts", TagPostsLoader(l.db, title), func() error {
			return l.sets.Upsert(ctx, set, post.Popularity(), EncodeID(post.ID))
		})
	}
	return nil
}

// applyOrWarm mutates the set in place when it is warm. When it is cold
// the set is rebuilt through the loader instead; the relational change was
// already committed, so the rebuild bakes it in and the in-place mutation
// must not also run.
func (l *Ledger) applyOrWarm(ctx context.Context, set, kind string, loader Loader, apply func() error) {
	warm, err := l.sets.Exists(ctx, set)
	if err != nil {
		l.metrics.CacheErrorsTotal.WithLabelValues(kind, "exists").Inc()
		l.log.Warn("Cache unreachable, skipping ranked-set update",
			zap.String("set", set), zap.Error(err))
		return
	}

	if !warm {
		if err := l.warmer.EnsureWarm(ctx, set, kind, loader); err != nil {
			l.log.Warn("Ranked set warm-up failed, leaving cold",
				zap.String("set", set), zap.Error(err))
		}
		return
	}

	if err := apply(); err != nil {
		l.metrics.CacheErrorsTotal.WithLabelValues(kind, "apply").Inc()
		l.log.Error("Ranked-set update failed, cache stale until rebuild",
			zap.String("set", set), zap.Error(err))
	}
}

// applyIfWarm mutates the set only when warm; cold sets are left cold.
func (l *Ledger) applyIfWarm(ctx context.Context, set, kind string, apply func() error) {
	warm, err := l.sets.Exists(ctx, set)
	if err != nil {
		l.metrics.CacheErrorsTotal.WithLabelValues(kind, "exists").Inc()
		l.log.Warn("Cache unreachable, skipping ranked-set update",
			zap.String("set", set), zap.Error(err))
		return
	}
	if !warm {
		return
	}
	if err := apply(); err != nil {
		l.metrics.CacheErrorsTotal.WithLabelValues(kind, "apply").Inc()
		l.log.Error("Ranked-set update failed, cache stale until rebuild",
			zap.String("set", set), zap.Error(err))
	}
}

func (l *Ledger) removeMember(ctx context.Context, set, kind, member string) {
	if err := l.sets.Remove(ctx, set, member); err != nil {
		l.metrics.CacheErrorsTotal.WithLabelValues(kind, "remove").Inc()
		l.log.Error("Ranked-set removal failed, stale member filtered at read time",
			zap.String("set", set), zap.String("member", member), zap.Error(err))
	}
}

func (l *Ledger) addToRandomSetIfWarm(ctx context.Context, userID uint) {
	client := l.sets.Client()
	n, err := client.Exists(ctx, GlobalUsersSet, GlobalUsersSet+":warm")
	if err != nil {
		l.log.Warn("Cache unreachable, skipping random-set update", zap.Error(err))
		return
	}
	if n == 0 {
		return
	}
	if err := client.SAdd(ctx, GlobalUsersSet, EncodeID(userID)); err != nil {
		l.log.Error("Random-set update failed", zap.Error(err))
	}
}

func (l *Ledger) userPopularity(ctx context.Context, userID uint) float64 {
	var popularity float64
	l.db.WithContext(ctx).Model(&models.User{}).
		Where("id = ?", userID).
		Pluck("popularity", &popularity)
	return popularity
}
