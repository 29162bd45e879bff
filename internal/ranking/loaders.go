package ranking

import (
	"context"
	"time"

	"github.com/blastsocial/backend/internal/cache"
	"gorm.io/gorm"
)

// scoredRow is the shape every loader query scans into.
type scoredRow struct {
	ID    uint
	Score float64
}

func rowsToMembers(rows []scoredRow) []cache.ScoredMember {
	members := make([]cache.ScoredMember, 0, len(rows))
	for _, r := range rows {
		members = append(members, cache.ScoredMember{
			Score:  r.Score,
			Member: EncodeID(r.ID),
		})
	}
	return members
}

// ownerPostsQuery scopes posts to one owner. The sentinel anonymous user
// owns every post with a NULL user_id.
func ownerPostsQuery(db *gorm.DB, ownerID, anonymousID uint, now time.Time) *gorm.DB {
	q := db.Table("posts").Where("expires_at >= ?", now)
	if ownerID == anonymousID {
		return q.Where("user_id IS NULL")
	}
	return q.Where("user_id = ?", ownerID)
}

// OwnerPostsLoader loads a user's live posts scored by popularity.
func OwnerPostsLoader(db *gorm.DB, ownerID, anonymousID uint) Loader {
	return func(ctx context.Context) ([]cache.ScoredMember, error) {
		var rows []scoredRow
		err := ownerPostsQuery(db.WithContext(ctx), ownerID, anonymousID, time.Now()).
			Select("id, (voted_count - downvoted_count) AS score").
			Scan(&rows).Error
		if err != nil {
			return nil, err
		}
		return rowsToMembers(rows), nil
	}
}

// TagPostsLoader loads a tag's live posts scored by popularity.
func TagPostsLoader(db *gorm.DB, title string) Loader {
	return func(ctx context.Context) ([]cache.ScoredMember, error) {
		var rows []scoredRow
		err := db.WithContext(ctx).Table("posts").
			Joins("JOIN post_tags ON post_tags.post_id = posts.id").
			Where("post_tags.tag_title = ?", title).
			Where("posts.expires_at >= ?", time.Now()).
			Select("posts.id AS id, (posts.voted_count - posts.downvoted_count) AS score").
			Scan(&rows).Error
		if err != nil {
			return nil, err
		}
		return rowsToMembers(rows), nil
	}
}

// AllUsersLoader loads every user scored by popularity, for the global
// ranking set.
func AllUsersLoader(db *gorm.DB) Loader {
	return func(ctx context.Context) ([]cache.ScoredMember, error) {
		var rows []scoredRow
		err := db.WithContext(ctx).Table("users").
			Select("id, popularity AS score").
			Scan(&rows).Error
		if err != nil {
			return nil, err
		}
		return rowsToMembers(rows), nil
	}
}

// FollowersLoader loads the users following userID, scored by their own
// popularity.
func FollowersLoader(db *gorm.DB, userID uint) Loader {
	return func(ctx context.Context) ([]cache.ScoredMember, error) {
		var rows []scoredRow
		err := db.WithContext(ctx).Table("users").
			Joins("JOIN followers ON followers.follower_id = users.id").
			Where("followers.followee_id = ?", userID).
			Select("users.id AS id, users.popularity AS score").
			Scan(&rows).Error
		if err != nil {
			return nil, err
		}
		return rowsToMembers(rows), nil
	}
}

// FolloweesLoader loads the users that userID follows, scored by their own
// popularity.
func FolloweesLoader(db *gorm.DB, userID uint) Loader {
	return func(ctx context.Context) ([]cache.ScoredMember, error) {
		var rows []scoredRow
		err := db.WithContext(ctx).Table("users").
			Joins("JOIN followers ON followers.followee_id = users.id").
			Where("followers.follower_id = ?", userID).
			Select("users.id AS id, users.popularity AS score").
			Scan(&rows).Error
		if err != nil {
			return nil, err
		}
		return rowsToMembers(rows), nil
	}
}

// Relational fallbacks mirror the cache ordering exactly:
// score descending, then ID descending.

func ownerPostIDsByPopularity(ctx context.Context, db *gorm.DB, ownerID, anonymousID uint, start, stop int64) ([]uint, error) {
	var ids []uint
	err := ownerPostsQuery(db.WithContext(ctx), ownerID, anonymousID, time.Now()).
		Order("(voted_count - downvoted_count) DESC, id DESC").
		Offset(int(start)).Limit(int(stop - start + 1)).
		Pluck("id", &ids).Error
	return ids, err
}

func tagPostIDsByPopularity(ctx context.Context, db *gorm.DB, title string, start, stop int64) ([]uint, error) {
	var ids []uint
	err := db.WithContext(ctx).Table("posts").
		Joins("JOIN post_tags ON post_tags.post_id = posts.id").
		Where("post_tags.tag_title = ?", title).
		Where("posts.expires_at >= ?", time.Now()).
		Order("(posts.voted_count - posts.downvoted_count) DESC, posts.id DESC").
		Offset(int(start)).Limit(int(stop - start + 1)).
		Pluck("posts.id", &ids).Error
	return ids, err
}

func userIDsByPopularity(ctx context.Context, db *gorm.DB, start, stop int64) ([]uint, error) {
	var ids []uint
	err := db.WithContext(ctx).Table("users").
		Order("popularity DESC, id DESC").
		Offset(int(start)).Limit(int(stop - start + 1)).
		Pluck("id", &ids).Error
	return ids, err
}
