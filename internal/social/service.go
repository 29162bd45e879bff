package social

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/blastsocial/backend/internal/models"
	"github.com/blastsocial/backend/internal/notifications"
	"github.com/blastsocial/backend/internal/ranking"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

// ErrUserNotFound is returned when the target user does not exist.
var ErrUserNotFound = errors.New("user not found")

// ErrSelfFollow is returned when a user tries to follow themselves.
var ErrSelfFollow = errors.New("cannot follow yourself")

// recentPostsPerUser is how many live posts get attached to each entry in
// follower/following listings.
const recentPostsPerUser = 3

// Service owns accounts and the follow graph. Relational writes commit
// first; ledger calls follow as explicit events.
type Service struct {
	db       *gorm.DB
	ledger   *ranking.Ledger
	notifier *notifications.Dispatcher
	log      *zap.Logger
}

// NewService creates a social service with explicit handles.
func NewService(db *gorm.DB, ledger *ranking.Ledger, notifier *notifications.Dispatcher, log *zap.Logger) *Service {
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{db: db, ledger: ledger, notifier: notifier, log: log}
}

// EnsureAnonymousUser creates (or finds) the sentinel account that owns
// anonymous posts. Call once at startup, before the ledger is built.
func EnsureAnonymousUser(db *gorm.DB) (uint, error) {
	var user models.User
	err := db.
		Where(models.User{Username: models.AnonymousUsername}).
		Attrs(models.User{Phone: "anonymous", IsPrivate: true}).
		FirstOrCreate(&user).Error
	if err != nil {
		return 0, fmt.Errorf("ensure anonymous user: %w", err)
	}
	return user.ID, nil
}

// Register creates an account with hashed credentials, its settings row,
// and reports the new user to the ledger.
func (s *Service) Register(ctx context.Context, phone, username, password string) (*models.User, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	user := models.User{
		Phone:        phone,
		Username:     username,
		PasswordHash: string(hash),
		Popularity:   1,
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&user).Error; err != nil {
			return err
		}
		return tx.Create(&models.UserSettings{UserID: user.ID}).Error
	})
	if err != nil {
		return nil, fmt.Errorf("create user: %w", err)
	}

	s.ledger.UserCreated(ctx, user.ID)

	s.log.Info("User registered",
		zap.Uint("user_id", user.ID),
		zap.String("username", username))
	return &user, nil
}

// CheckPassword verifies credentials for a username.
func (s *Service) CheckPassword(ctx context.Context, username, password string) (*models.User, error) {
	var user models.User
	err := s.db.WithContext(ctx).Where("username = ?", username).First(&user).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	if bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)) != nil {
		return nil, errors.New("invalid credentials")
	}
	return &user, nil
}

// Follow creates the follow edge if absent. A duplicate follow is a no-op;
// only a genuinely new edge moves popularity and notifies the followee.
func (s *Service) Follow(ctx context.Context, followerID, followeeID uint) error {
	if followerID == followeeID {
		return ErrSelfFollow
	}
	if err := s.mustExist(ctx, followeeID); err != nil {
		return err
	}

	var edge models.Follower
	res := s.db.WithContext(ctx).
		Where(models.Follower{FollowerID: followerID, FolloweeID: followeeID}).
		FirstOrCreate(&edge)
	if res.Error != nil {
		return fmt.Errorf("create follow edge: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return nil // already following
	}

	if err := s.ledger.FollowCreated(ctx, followerID, followeeID); err != nil {
		return err
	}

	s.notifier.NewFollower(followeeID, followerID, s.username(ctx, followerID))
	return nil
}

// Unfollow removes the edge if present; removing a nonexistent edge is a
// no-op and moves no counters.
func (s *Service) Unfollow(ctx context.Context, followerID, followeeID uint) error {
	res := s.db.WithContext(ctx).
		Where("follower_id = ? AND followee_id = ?", followerID, followeeID).
		Delete(&models.Follower{})
	if res.Error != nil {
		return fmt.Errorf("delete follow edge: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return nil
	}
	return s.ledger.FollowDestroyed(ctx, followerID, followeeID)
}

// IsFollowing reports whether follower follows followee.
func (s *Service) IsFollowing(ctx context.Context, followerID, followeeID uint) bool {
	var count int64
	s.db.WithContext(ctx).Model(&models.Follower{}).
		Where("follower_id = ? AND followee_id = ?", followerID, followeeID).
		Count(&count)
	return count > 0
}

// FolloweeSet returns which of candidateIDs the viewer follows.
func (s *Service) FolloweeSet(ctx context.Context, viewerID uint, candidateIDs []uint) map[uint]bool {
	followees := make(map[uint]bool)
	if viewerID == 0 || len(candidateIDs) == 0 {
		return followees
	}
	var ids []uint
	s.db.WithContext(ctx).Model(&models.Follower{}).
		Where("follower_id = ? AND followee_id IN ?", viewerID, candidateIDs).
		Pluck("followee_id", &ids)
	for _, id := range ids {
		followees[id] = true
	}
	return followees
}

// ListEntry is one row of a followers/following listing.
type ListEntry struct {
	User       models.User   `json:"user"`
	IsFollowee bool          `json:"is_followee"`
	Posts      []models.Post `json:"posts"`
}

// Followers lists who follows userID, with the viewer's followee flags and
// each user's latest live posts attached.
func (s *Service) Followers(ctx context.Context, userID, viewerID uint, limit, offset int) ([]ListEntry, error) {
	var users []models.User
	err := s.db.WithContext(ctx).
		Joins("JOIN followers ON followers.follower_id = users.id").
		Where("followers.followee_id = ?", userID).
		Order("followers.created_at DESC").
		Offset(offset).Limit(limit).
		Find(&users).Error
	if err != nil {
		return nil, fmt.Errorf("list followers: %w", err)
	}
	return s.buildEntries(ctx, users, viewerID)
}

// Following lists who userID follows, in the same shape as Followers.
func (s *Service) Following(ctx context.Context, userID, viewerID uint, limit, offset int) ([]ListEntry, error) {
	var users []models.User
	err := s.db.WithContext(ctx).
		Joins("JOIN followers ON followers.followee_id = users.id").
		Where("followers.follower_id = ?", userID).
		Order("followers.created_at DESC").
		Offset(offset).Limit(limit).
		Find(&users).Error
	if err != nil {
		return nil, fmt.Errorf("list following: %w", err)
	}
	return s.buildEntries(ctx, users, viewerID)
}

func (s *Service) buildEntries(ctx context.Context, users []models.User, viewerID uint) ([]ListEntry, error) {
	ids := make([]uint, 0, len(users))
	for _, u := range users {
		ids = append(ids, u.ID)
	}
	followees := s.FolloweeSet(ctx, viewerID, ids)
	recent := s.recentPosts(ctx, ids)

	entries := make([]ListEntry, 0, len(users))
	for _, u := range users {
		posts := recent[u.ID]
		if posts == nil {
			posts = []models.Post{}
		}
		entries = append(entries, ListEntry{
			User:       u,
			IsFollowee: followees[u.ID],
			Posts:      posts,
		})
	}
	return entries, nil
}

// recentPosts fetches the latest live posts for a batch of users in one
// query and groups them, capped per user.
func (s *Service) recentPosts(ctx context.Context, userIDs []uint) map[uint][]models.Post {
	grouped := make(map[uint][]models.Post, len(userIDs))
	if len(userIDs) == 0 {
		return grouped
	}

	var posts []models.Post
	err := s.db.WithContext(ctx).
		Where("user_id IN ?", userIDs).
		Where("expires_at >= ?", time.Now()).
		Order("user_id, created_at DESC").
		Find(&posts).Error
	if err != nil {
		s.log.Warn("Failed to load recent posts for listing", zap.Error(err))
		return grouped
	}

	for _, p := range posts {
		if p.UserID == nil {
			continue
		}
		id := *p.UserID
		if len(grouped[id]) >= recentPostsPerUser {
			continue
		}
		grouped[id] = append(grouped[id], p)
	}
	return grouped
}

func (s *Service) mustExist(ctx context.Context, userID uint) error {
	var count int64
	s.db.WithContext(ctx).Model(&models.User{}).Where("id = ?", userID).Count(&count)
	if count == 0 {
		return ErrUserNotFound
	}
	return nil
}

func (s *Service) username(ctx context.Context, userID uint) string {
	var name string
	s.db.WithContext(ctx).Model(&models.User{}).
		Where("id = ?", userID).
		Pluck("username", &name)
	return name
}
