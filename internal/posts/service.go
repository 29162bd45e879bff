package posts

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/blastsocial/backend/internal/models"
	"github.com/blastsocial/backend/internal/notifications"
	"github.com/blastsocial/backend/internal/ranking"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Vote lifetime adjustments, carried over from the original product rules:
// an upvote buys a post five more minutes, a downvote costs it ten.
const (
	upvoteExtension = 5 * time.Minute
	downvotePenalty = 10 * time.Minute
)

// voteMilestones are the voted-count thresholds that trigger a
// notification when crossed upward.
var voteMilestones = []int{10, 100, 1000}

// ErrNotFound is returned when the target post does not exist or already
// expired.
var ErrNotFound = errors.New("post not found")

// ErrNotOwner is returned when a caller tries to delete someone else's post.
var ErrNotOwner = errors.New("not the post owner")

// Service owns post lifecycle: creation, voting, deletion, expiry. It
// commits its relational writes first, then reports each event to the
// popularity ledger as an explicit call.
type Service struct {
	db       *gorm.DB
	ledger   *ranking.Ledger
	notifier *notifications.Dispatcher
	log      *zap.Logger
}

// NewService creates a post service with explicit handles.
func NewService(db *gorm.DB, ledger *ranking.Ledger, notifier *notifications.Dispatcher, log *zap.Logger) *Service {
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{db: db, ledger: ledger, notifier: notifier, log: log}
}

// Create stores a new post and reports it to the ledger. Anonymous posts
// get a nil owner; the ledger routes them to the sentinel account.
func (s *Service) Create(ctx context.Context, authorID uint, text string, isAnonymous bool) (*models.Post, error) {
	post := models.Post{
		Text:        text,
		IsAnonymous: isAnonymous,
		ExpiresAt:   time.Now().Add(models.PostLifetime),
	}
	if !isAnonymous {
		post.UserID = &authorID
	}

	if err := s.db.WithContext(ctx).Create(&post).Error; err != nil {
		return nil, fmt.Errorf("create post: %w", err)
	}

	if err := s.ledger.PostCreated(ctx, &post); err != nil {
		return nil, err
	}
	if err := s.ledger.PostTagged(ctx, &post, post.TagTitles()); err != nil {
		return nil, err
	}

	s.notifyMentions(ctx, &post, authorID)

	s.log.Info("Post created",
		zap.Uint("post_id", post.ID),
		zap.Bool("anonymous", isAnonymous))
	return &post, nil
}

// Delete removes a post and every trace of it: votes, tag joins, pin/hide
// references, and its entries in all ranked sets. callerID zero skips the
// ownership check (sweeper, admin CLI).
func (s *Service) Delete(ctx context.Context, postID uint, callerID uint) error {
	var post models.Post
	if err := s.db.WithContext(ctx).First(&post, postID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrNotFound
		}
		return err
	}

	if callerID != 0 && (post.UserID == nil || *post.UserID != callerID) {
		return ErrNotOwner
	}

	var titles []string
	if err := s.db.WithContext(ctx).Model(&models.PostTag{}).
		Where("post_id = ?", post.ID).
		Pluck("tag_title", &titles).Error; err != nil {
		return fmt.Errorf("load post tags: %w", err)
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("post_id = ?", post.ID).Delete(&models.PostVote{}).Error; err != nil {
			return err
		}
		if err := tx.Where("post_id = ?", post.ID).Delete(&models.PostTag{}).Error; err != nil {
			return err
		}
		if err := tx.Where("post_id = ?", post.ID).Delete(&models.PostComment{}).Error; err != nil {
			return err
		}
		tx.Exec("DELETE FROM user_pinned_posts WHERE post_id = ?", post.ID)
		tx.Exec("DELETE FROM user_hidden_posts WHERE post_id = ?", post.ID)
		return tx.Delete(&models.Post{}, post.ID).Error
	})
	if err != nil {
		return fmt.Errorf("delete post: %w", err)
	}

	if err := s.ledger.PostDeleted(ctx, &post, titles); err != nil {
		return err
	}

	s.log.Info("Post deleted", zap.Uint("post_id", post.ID), zap.Strings("tags", titles))
	return nil
}

// Vote applies an upvote or downvote for userID on postID. Re-voting flips
// the stored polarity and the ledger applies only the delta between old
// and new, so counters stay exact under any sequence of flips.
func (s *Service) Vote(ctx context.Context, userID, postID uint, positive bool) (*models.PostVote, error) {
	return s.setVote(ctx, userID, postID, &positive)
}

// Unvote clears userID's vote on postID.
func (s *Service) Unvote(ctx context.Context, userID, postID uint) (*models.PostVote, error) {
	return s.setVote(ctx, userID, postID, nil)
}

func (s *Service) setVote(ctx context.Context, userID, postID uint, polarity *bool) (*models.PostVote, error) {
	var post models.Post
	err := s.db.WithContext(ctx).
		Where("expires_at >= ?", time.Now()).
		First(&post, postID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	var vote models.PostVote
	err = s.db.WithContext(ctx).
		Where(models.PostVote{UserID: userID, PostID: postID}).
		FirstOrCreate(&vote).Error
	if err != nil {
		return nil, fmt.Errorf("load vote: %w", err)
	}

	old := vote.IsPositive
	dVoted, dDownvoted := ranking.VoteDelta(old, polarity)
	if dVoted == 0 && dDownvoted == 0 {
		return &vote, nil
	}

	vote.IsPositive = polarity
	if err := s.db.WithContext(ctx).Model(&vote).Update("is_positive", polarity).Error; err != nil {
		return nil, fmt.Errorf("update vote: %w", err)
	}

	// Votes move the expiry clock.
	if polarity != nil {
		shift := upvoteExtension
		if !*polarity {
			shift = -downvotePenalty
		}
		s.db.WithContext(ctx).Model(&models.Post{}).
			Where("id = ?", post.ID).
			Update("expires_at", post.ExpiresAt.Add(shift))
	}

	if err := s.ledger.VoteChanged(ctx, &post, old, polarity); err != nil {
		return nil, err
	}

	s.checkMilestones(&post, dVoted)
	return &vote, nil
}

// checkMilestones fires a notification when the voted count crosses a
// milestone upward.
func (s *Service) checkMilestones(post *models.Post, dVoted int) {
	if dVoted <= 0 || post.UserID == nil {
		return
	}
	before := post.VotedCount
	after := before + dVoted
	for _, m := range voteMilestones {
		if before < m && after >= m {
			s.notifier.VoteMilestone(*post.UserID, post.ID, m)
		}
	}
}

// Pin adds a post to the user's pinned list.
func (s *Service) Pin(ctx context.Context, userID, postID uint) error {
	return s.setMembership(ctx, "user_pinned_posts", userID, postID, true)
}

// Unpin removes a post from the user's pinned list.
func (s *Service) Unpin(ctx context.Context, userID, postID uint) error {
	return s.setMembership(ctx, "user_pinned_posts", userID, postID, false)
}

// Hide adds a post to the user's hidden list.
func (s *Service) Hide(ctx context.Context, userID, postID uint) error {
	return s.setMembership(ctx, "user_hidden_posts", userID, postID, true)
}

// Show removes a post from the user's hidden list.
func (s *Service) Show(ctx context.Context, userID, postID uint) error {
	return s.setMembership(ctx, "user_hidden_posts", userID, postID, false)
}

func (s *Service) setMembership(ctx context.Context, table string, userID, postID uint, member bool) error {
	var post models.Post
	if err := s.db.WithContext(ctx).First(&post, postID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrNotFound
		}
		return err
	}

	var count int64
	s.db.WithContext(ctx).Table(table).
		Where("user_id = ? AND post_id = ?", userID, postID).
		Count(&count)

	switch {
	case member && count == 0:
		return s.db.WithContext(ctx).
			Exec(fmt.Sprintf("INSERT INTO %s (user_id, post_id) VALUES (?, ?)", table), userID, postID).Error
	case !member && count > 0:
		return s.db.WithContext(ctx).
			Exec(fmt.Sprintf("DELETE FROM %s WHERE user_id = ? AND post_id = ?", table), userID, postID).Error
	}
	return nil
}

// PinnedPostIDs returns the user's pinned post IDs.
func (s *Service) PinnedPostIDs(ctx context.Context, userID uint) ([]uint, error) {
	var ids []uint
	err := s.db.WithContext(ctx).Table("user_pinned_posts").
		Where("user_id = ?", userID).
		Pluck("post_id", &ids).Error
	return ids, err
}

// PinnedPosts returns the user's pinned posts that are still live,
// newest first.
func (s *Service) PinnedPosts(ctx context.Context, userID uint) ([]models.Post, error) {
	var list []models.Post
	err := s.db.WithContext(ctx).Model(&models.Post{}).
		Joins("JOIN user_pinned_posts pp ON pp.post_id = posts.id").
		Where("pp.user_id = ? AND posts.expires_at > ?", userID, time.Now()).
		Order("posts.id DESC").
		Find(&list).Error
	if err != nil {
		return nil, fmt.Errorf("load pinned posts: %w", err)
	}
	return list, nil
}

// HiddenPostIDs returns the user's hidden post IDs.
func (s *Service) HiddenPostIDs(ctx context.Context, userID uint) ([]uint, error) {
	var ids []uint
	err := s.db.WithContext(ctx).Table("user_hidden_posts").
		Where("user_id = ?", userID).
		Pluck("post_id", &ids).Error
	return ids, err
}

// Comment stores a threaded comment and fans out mention notifications.
func (s *Service) Comment(ctx context.Context, userID, postID uint, parentID *uint, text string) (*models.PostComment, error) {
	var post models.Post
	if err := s.db.WithContext(ctx).First(&post, postID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	comment := models.PostComment{
		UserID:   userID,
		PostID:   postID,
		ParentID: parentID,
		Text:     text,
	}
	if err := s.db.WithContext(ctx).Create(&comment).Error; err != nil {
		return nil, fmt.Errorf("create comment: %w", err)
	}

	author := s.username(ctx, userID)
	for _, mentioned := range s.resolveUsernames(ctx, comment.MentionedUsernames()) {
		if mentioned != userID {
			s.notifier.Mention(mentioned, userID, postID, author)
		}
	}
	return &comment, nil
}

// DeleteExpired removes every expired post through the full deletion path,
// so ranked sets and tag counters stay in step. Returns how many posts
// were swept.
func (s *Service) DeleteExpired(ctx context.Context) (int, error) {
	var ids []uint
	err := s.db.WithContext(ctx).Model(&models.Post{}).
		Where("expires_at < ?", time.Now()).
		Pluck("id", &ids).Error
	if err != nil {
		return 0, fmt.Errorf("list expired posts: %w", err)
	}

	swept := 0
	for _, id := range ids {
		if err := s.Delete(ctx, id, 0); err != nil {
			s.log.Error("Failed to sweep expired post",
				zap.Uint("post_id", id), zap.Error(err))
			continue
		}
		swept++
	}
	return swept, nil
}

// notifyMentions fans out @mention notifications for a new post.
func (s *Service) notifyMentions(ctx context.Context, post *models.Post, authorID uint) {
	names := post.MentionedUsernames()
	if len(names) == 0 || post.IsAnonymous {
		return
	}
	author := s.username(ctx, authorID)
	for _, mentioned := range s.resolveUsernames(ctx, names) {
		if mentioned != authorID {
			s.notifier.Mention(mentioned, authorID, post.ID, author)
		}
	}
}

func (s *Service) resolveUsernames(ctx context.Context, names []string) []uint {
	if len(names) == 0 {
		return nil
	}
	var ids []uint
	s.db.WithContext(ctx).Model(&models.User{}).
		Where("username IN ?", names).
		Pluck("id", &ids)
	return ids
}

func (s *Service) username(ctx context.Context, userID uint) string {
	var name string
	s.db.WithContext(ctx).Model(&models.User{}).
		Where("id = ?", userID).
		Pluck("username", &name)
	return name
}
