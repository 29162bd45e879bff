package seed

import (
	"context"
	"fmt"
	"math/rand"
	"strings"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"gorm.io/gorm"

	"github.com/blastsocial/backend/internal/logger"
	"github.com/blastsocial/backend/internal/models"
	"github.com/blastsocial/backend/internal/posts"
	"github.com/blastsocial/backend/internal/social"
)

// Seeder fills the development database with realistic data. Everything
// goes through the real services so popularity counters and cache sets
// stay consistent with what production traffic would produce.
type Seeder struct {
	db     *gorm.DB
	posts  *posts.Service
	social *social.Service
}

// NewSeeder creates a new seeder instance
func NewSeeder(db *gorm.DB, postSvc *posts.Service, socialSvc *social.Service) *Seeder {
	_ = gofakeit.Seed(time.Now().UnixNano())
	return &Seeder{db: db, posts: postSvc, social: socialSvc}
}

// SeedDev seeds the development database
func (s *Seeder) SeedDev(ctx context.Context) error {
	logger.InfoWithFields("seeding users")
	users, err := s.seedUsers(ctx, 50)
	if err != nil {
		return fmt.Errorf("seed users: %w", err)
	}

	logger.InfoWithFields("seeding posts")
	created, err := s.seedPosts(ctx, users, 200)
	if err != nil {
		return fmt.Errorf("seed posts: %w", err)
	}

	logger.InfoWithFields("seeding votes")
	if err := s.seedVotes(ctx, users, created, 800); err != nil {
		return fmt.Errorf("seed votes: %w", err)
	}

	logger.InfoWithFields("seeding follows")
	if err := s.seedFollows(ctx, users, 300); err != nil {
		return fmt.Errorf("seed follows: %w", err)
	}

	logger.InfoWithFields("seeding comments")
	if err := s.seedComments(ctx, users, created, 400); err != nil {
		return fmt.Errorf("seed comments: %w", err)
	}

	logger.InfoWithFields("seeding complete")
	return nil
}

func (s *Seeder) seedUsers(ctx context.Context, count int) ([]*models.User, error) {
	users := make([]*models.User, 0, count)
	for i := 0; i < count; i++ {
		username := fmt.Sprintf("%s%d", strings.ToLower(gofakeit.Username()), i)
		if len(username) > 15 {
			username = username[:15]
		}
		user, err := s.social.Register(ctx, gofakeit.Phone(), username, gofakeit.Password(true, true, true, false, false, 12))
		if err != nil {
			return nil, err
		}
		users = append(users, user)
	}
	return users, nil
}

func (s *Seeder) seedPosts(ctx context.Context, users []*models.User, count int) ([]*models.Post, error) {
	out := make([]*models.Post, 0, count)
	for i := 0; i < count; i++ {
		author := users[rand.Intn(len(users))]
		text := gofakeit.Sentence(6)
		if rand.Float64() < 0.4 {
			text += " #" + strings.ToLower(gofakeit.HackerNoun())
		}
		if len(text) > 256 {
			text = text[:256]
		}
		post, err := s.posts.Create(ctx, author.ID, text, rand.Float64() < 0.1)
		if err != nil {
			return nil, err
		}
		out = append(out, post)
	}
	return out, nil
}

func (s *Seeder) seedVotes(ctx context.Context, users []*models.User, created []*models.Post, count int) error {
	for i := 0; i < count; i++ {
		voter := users[rand.Intn(len(users))]
		post := created[rand.Intn(len(created))]
		// Skew positive so rankings move visibly.
		if _, err := s.posts.Vote(ctx, voter.ID, post.ID, rand.Float64() < 0.8); err != nil {
			if err == posts.ErrNotFound {
				continue
			}
			return err
		}
	}
	return nil
}

func (s *Seeder) seedFollows(ctx context.Context, users []*models.User, count int) error {
	for i := 0; i < count; i++ {
		follower := users[rand.Intn(len(users))]
		followee := users[rand.Intn(len(users))]
		if follower.ID == followee.ID {
			continue
		}
		if err := s.social.Follow(ctx, follower.ID, followee.ID); err != nil {
			return err
		}
	}
	return nil
}

func (s *Seeder) seedComments(ctx context.Context, users []*models.User, created []*models.Post, count int) error {
	for i := 0; i < count; i++ {
		commenter := users[rand.Intn(len(users))]
		post := created[rand.Intn(len(created))]
		text := gofakeit.Sentence(4)
		if rand.Float64() < 0.2 {
			text += " @" + users[rand.Intn(len(users))].Username
		}
		if len(text) > 256 {
			text = text[:256]
		}
		if _, err := s.posts.Comment(ctx, commenter.ID, post.ID, nil, text); err != nil {
			if err == posts.ErrNotFound {
				continue
			}
			return err
		}
	}
	return nil
}
