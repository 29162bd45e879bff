package feed

import (
	"context"
	"time"

	"github.com/blastsocial/backend/internal/cache"
	"github.com/blastsocial/backend/internal/metrics"
	"github.com/blastsocial/backend/internal/models"
	"github.com/blastsocial/backend/internal/ranking"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	// MaxPageSize caps a single discovery page.
	MaxPageSize = 250

	// DefaultPageSize is used when the caller does not ask for a size.
	DefaultPageSize = 10

	blockSize      = 10
	randomPerBlock = 3

	// randomOversample is how many extra random candidates are drawn to
	// survive overlap with the popular window.
	randomOversample = 2
)

// Page is one composed discovery-feed page.
type Page struct {
	Users []models.User `json:"users"`

	// Total is the cached cardinality of the global popularity set. It is
	// a documented approximation: when the random pool runs dry the page
	// carries fewer entries than the ratio implies, but Total does not
	// shrink to match.
	Total    int64 `json:"total"`
	Page     int   `json:"page"`
	PageSize int   `json:"page_size"`
}

// Composer blends the global popularity ranking with a random sample at a
// fixed 7:3 ratio per block of 10 slots.
type Composer struct {
	db      *gorm.DB
	query   *ranking.Query
	client  *cache.Client
	log     *zap.Logger
	metrics *metrics.Metrics
}

// NewComposer creates a feed composer with explicit handles.
func NewComposer(db *gorm.DB, query *ranking.Query, client *cache.Client, log *zap.Logger) *Composer {
	if log == nil {
		log = zap.NewNop()
	}
	return &Composer{
		db:      db,
		query:   query,
		client:  client,
		log:     log,
		metrics: metrics.Get(),
	}
}

// Compose builds one page of the discovery feed: per block of 10 slots,
// 7 from the popularity ranking and up to 3 from the random pool, with
// duplicates removed from the random side. A sparse random pool stops the
// interleave early instead of padding or failing.
func (c *Composer) Compose(ctx context.Context, page, pageSize int) (*Page, error) {
	start := time.Now()
	defer func() {
		c.metrics.FeedCompositionTime.WithLabelValues("main").Observe(time.Since(start).Seconds())
	}()

	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	if pageSize > MaxPageSize {
		pageSize = MaxPageSize
	}
	if page < 0 {
		page = 0
	}

	randomCount := pageSize / blockSize * randomPerBlock
	popularSlots := pageSize - randomCount

	popularIDs, err := c.query.MostPopularUserIDs(ctx,
		int64(page*popularSlots), int64((page+1)*popularSlots)-1)
	if err != nil {
		return nil, err
	}

	randomIDs := c.randomSample(ctx, popularIDs, randomCount)

	ids := interleave(popularIDs, randomIDs, pageSize)

	users, err := c.query.MaterializeUsers(ctx, ids)
	if err != nil {
		return nil, err
	}

	return &Page{
		Users:    users,
		Total:    c.query.UsersCount(ctx),
		Page:     page,
		PageSize: pageSize,
	}, nil
}

// randomSample draws oversampled random users, removes any already in the
// popular window, and truncates to count. Cache trouble degrades the page
// to popular-only rather than failing the read.
func (c *Composer) randomSample(ctx context.Context, popularIDs []uint, count int) []uint {
	if count <= 0 {
		return nil
	}

	if err := c.ensureRandomPool(ctx); err != nil {
		c.log.Warn("Random pool unavailable, composing popular-only feed", zap.Error(err))
		return nil
	}

	members, err := c.client.SRandMember(ctx, ranking.GlobalUsersSet, count*randomOversample)
	if err != nil {
		c.log.Warn("Random sample failed, composing popular-only feed", zap.Error(err))
		return nil
	}

	seen := make(map[uint]bool, len(popularIDs))
	for _, id := range popularIDs {
		seen[id] = true
	}

	ids := make([]uint, 0, count)
	for _, id := range ranking.DecodeIDs(members) {
		if seen[id] {
			continue
		}
		seen[id] = true
		ids = append(ids, id)
		if len(ids) == count {
			break
		}
	}
	return ids
}

// ensureRandomPool warms the random-membership set, marker included, so an
// empty user table does not re-trigger the load on every page.
func (c *Composer) ensureRandomPool(ctx context.Context) error {
	marker := ranking.GlobalUsersSet + ":warm"
	n, err := c.client.Exists(ctx, ranking.GlobalUsersSet, marker)
	if err != nil {
		return err
	}
	if n > 0 {
		return nil
	}

	var ids []uint
	if err := c.db.WithContext(ctx).Table("users").Pluck("id", &ids).Error; err != nil {
		return err
	}

	if len(ids) > 0 {
		members := make([]interface{}, 0, len(ids))
		for _, id := range ids {
			members = append(members, ranking.EncodeID(id))
		}
		if err := c.client.SAdd(ctx, ranking.GlobalUsersSet, members...); err != nil {
			return err
		}
	}
	if err := c.client.SetWarmMarker(ctx, marker); err != nil {
		return err
	}

	c.log.Info("Random user pool warmed", zap.Int("members", len(ids)))
	return nil
}

// interleave walks popular IDs in blocks of 7, inserting up to 3 random
// IDs after each block, until limit slots are filled or both pools run
// out. Only the final partial block may deviate from the 7:3 ratio.
func interleave(popular, random []uint, limit int) []uint {
	out := make([]uint, 0, limit)
	pi, ri := 0, 0

	for len(out) < limit && (pi < len(popular) || ri < len(random)) {
		for k := 0; k < blockSize-randomPerBlock && pi < len(popular) && len(out) < limit; k++ {
			out = append(out, popular[pi])
			pi++
		}
		for k := 0; k < randomPerBlock && ri < len(random) && len(out) < limit; k++ {
			out = append(out, random[ri])
			ri++
		}
	}
	return out
}

// Recent returns the latest live public posts, newest first. This is the
// chronological second feed.
func (c *Composer) Recent(ctx context.Context, limit, offset int) ([]models.Post, error) {
	if limit <= 0 {
		limit = DefaultPageSize
	}
	if limit > MaxPageSize {
		limit = MaxPageSize
	}

	var posts []models.Post
	err := c.db.WithContext(ctx).
		Joins("LEFT JOIN users ON users.id = posts.user_id").
		Where("posts.expires_at >= ?", time.Now()).
		Where("users.is_private = ? OR posts.user_id IS NULL", false).
		Order("posts.created_at DESC, posts.id DESC").
		Offset(offset).Limit(limit).
		Find(&posts).Error
	if err != nil {
		return nil, err
	}
	return posts, nil
}
