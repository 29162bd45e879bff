package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"gorm.io/gorm"

	"github.com/blastsocial/backend/internal/cache"
	"github.com/blastsocial/backend/internal/config"
	"github.com/blastsocial/backend/internal/database"
	"github.com/blastsocial/backend/internal/logger"
	"github.com/blastsocial/backend/internal/models"
	"github.com/blastsocial/backend/internal/notifications"
	"github.com/blastsocial/backend/internal/posts"
	"github.com/blastsocial/backend/internal/ranking"
	"github.com/blastsocial/backend/internal/seed"
	"github.com/blastsocial/backend/internal/social"
)

// app bundles the handles every subcommand needs.
type app struct {
	cfg      *config.Config
	db       *gorm.DB
	redis    *cache.Client
	ledger   *ranking.Ledger
	query    *ranking.Query
	notifier *notifications.Dispatcher
	posts    *posts.Service
	social   *social.Service
}

func newApp() (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	if err := logger.Initialize(cfg.LogLevel, cfg.LogFile); err != nil {
		return nil, err
	}

	db, err := database.Initialize(cfg.DSN(), cfg.Environment)
	if err != nil {
		return nil, err
	}

	redisClient, err := cache.New(cfg.RedisHost, cfg.RedisPort, cfg.RedisPassword)
	if err != nil {
		return nil, err
	}

	anonymousID, err := social.EnsureAnonymousUser(db)
	if err != nil {
		return nil, err
	}

	ledger := ranking.NewLedger(db, redisClient, logger.Log, anonymousID)
	query := ranking.NewQuery(db, ledger, logger.Log)
	notifier := notifications.NewDispatcher(db, logger.Log)
	notifier.Start()

	return &app{
		cfg:      cfg,
		db:       db,
		redis:    redisClient,
		ledger:   ledger,
		query:    query,
		notifier: notifier,
		posts:    posts.NewService(db, ledger, notifier, logger.Log),
		social:   social.NewService(db, ledger, notifier, logger.Log),
	}, nil
}

func (a *app) close() {
	a.notifier.Stop()
	a.redis.Close()
	database.Close(a.db)
	logger.Close()
}

var rootCmd = &cobra.Command{
	Use:   "blast",
	Short: "Blast backend operations",
	Long:  "Operational commands for the Blast backend: migrations, seeding, expired-post sweeping and ranked-set rebuilds.",
}

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Run database migrations",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}
		if err := logger.Initialize(cfg.LogLevel, cfg.LogFile); err != nil {
			return err
		}
		db, err := database.Initialize(cfg.DSN(), cfg.Environment)
		if err != nil {
			return err
		}
		defer database.Close(db)
		if err := database.Migrate(db); err != nil {
			return err
		}
		fmt.Println("migrations applied")
		return nil
	},
}

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Seed the development database",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.close()

		if err := database.Migrate(a.db); err != nil {
			return err
		}

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
		defer cancel()
		return seed.NewSeeder(a.db, a.posts, a.social).SeedDev(ctx)
	},
}

var sweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Delete expired posts once and exit",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.close()

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
		defer cancel()
		swept, err := a.posts.DeleteExpired(ctx)
		if err != nil {
			return err
		}
		fmt.Printf("swept %d expired posts\n", swept)
		return nil
	},
}

var rebuildRanksCmd = &cobra.Command{
	Use:       "rebuild-ranks [user|tag|users-global]",
	Short:     "Drop and rebuild the cached ranked sets",
	Long:      "Rebuilds ranked sets from the relational store. With no argument every set is rebuilt; pass a scope to limit the rebuild to user post sets, tag post sets or the global user ranking.",
	Args:      cobra.MatchAll(cobra.MaximumNArgs(1), cobra.OnlyValidArgs),
	ValidArgs: []string{"user", "tag", "users-global"},
	RunE: func(cmd *cobra.Command, args []string) error {
		scope := ""
		if len(args) == 1 {
			scope = args[0]
		}

		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.close()

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
		defer cancel()

		if scope == "" || scope == "users-global" {
			if err := a.query.Rebuild(ctx, ranking.GlobalUsersZSet, "users_global", ranking.AllUsersLoader(a.db)); err != nil {
				return fmt.Errorf("rebuild global users: %w", err)
			}
			fmt.Println("rebuilt the global user ranking")
		}

		if scope == "" || scope == "user" {
			var userIDs []uint
			if err := a.db.WithContext(ctx).Model(&models.User{}).Pluck("id", &userIDs).Error; err != nil {
				return fmt.Errorf("list users: %w", err)
			}
			for _, id := range userIDs {
				set := ranking.UserPostsKey(id)
				loader := ranking.OwnerPostsLoader(a.db, id, a.ledger.AnonymousID())
				if err := a.query.Rebuild(ctx, set, "user_posts", loader); err != nil {
					return fmt.Errorf("rebuild posts for user %d: %w", id, err)
				}
			}
			fmt.Printf("rebuilt %d user post sets\n", len(userIDs))
		}

		if scope == "" || scope == "tag" {
			var titles []string
			if err := a.db.WithContext(ctx).Model(&models.Tag{}).Pluck("title", &titles).Error; err != nil {
				return fmt.Errorf("list tags: %w", err)
			}
			for _, title := range titles {
				set := ranking.TagPostsKey(title)
				loader := ranking.TagPostsLoader(a.db, title)
				if err := a.query.Rebuild(ctx, set, "tag_posts", loader); err != nil {
					return fmt.Errorf("rebuild posts for tag %q: %w", title, err)
				}
			}
			fmt.Printf("rebuilt %d tag post sets\n", len(titles))
		}

		return nil
	},
}

func init() {
	rootCmd.AddCommand(migrateCmd)
	rootCmd.AddCommand(seedCmd)
	rootCmd.AddCommand(sweepCmd)
	rootCmd.AddCommand(rebuildRanksCmd)
}

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("no .env file found, using system environment")
	}
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
