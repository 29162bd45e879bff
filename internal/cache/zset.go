package cache

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// ScoredMember is one (score, member) pair of a ranked set.
type ScoredMember struct {
	Score  float64
	Member string
}

// ScoredSetStore maintains named ordered sets of (score, member) pairs on
// top of Redis ZSETs. Equal scores tie-break lexicographically on the
// member string (Redis semantics); descending reads therefore return the
// lexicographically greatest member first.
//
// Warmth is tracked separately from cardinality: Populate writes a
// companion marker key so "warmed but empty" is distinguishable from
// "never warmed". Every operation is a single Redis command or a MULTI
// pipeline, so a call either fully applies or leaves the set unchanged.
type ScoredSetStore struct {
	client *Client
}

// NewScoredSetStore creates a store over an explicit cache client.
func NewScoredSetStore(client *Client) *ScoredSetStore {
	return &ScoredSetStore{client: client}
}

// Client returns the underlying cache client.
func (s *ScoredSetStore) Client() *Client {
	return s.client
}

// warmMarkerKey is the companion key that records a set has been warmed.
func warmMarkerKey(set string) string {
	return set + ":warm"
}

// Upsert adds member with the given score, replacing any previous score.
func (s *ScoredSetStore) Upsert(ctx context.Context, set string, score float64, member string) error {
	return s.client.redis().ZAdd(ctx, set, redis.Z{Score: score, Member: member}).Err()
}

// IncrementScore moves member's score by delta, creating it at delta if
// absent. Deltas commute, so concurrent writers may apply in any order.
func (s *ScoredSetStore) IncrementScore(ctx context.Context, set string, member string, delta float64) error {
	return s.client.redis().ZIncrBy(ctx, set, delta, member).Err()
}

// Remove deletes member from the set.
func (s *ScoredSetStore) Remove(ctx context.Context, set string, member string) error {
	return s.client.redis().ZRem(ctx, set, member).Err()
}

// Exists reports whether the set is warm: either it has members or its
// warm marker is present.
func (s *ScoredSetStore) Exists(ctx context.Context, set string) (bool, error) {
	n, err := s.client.Exists(ctx, set, warmMarkerKey(set))
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// Cardinality returns the number of members in the set.
func (s *ScoredSetStore) Cardinality(ctx context.Context, set string) (int64, error) {
	return s.client.redis().ZCard(ctx, set).Result()
}

// RangeByScoreDesc returns members at rank positions [start, stop]
// (inclusive, zero-based) ordered by score descending.
func (s *ScoredSetStore) RangeByScoreDesc(ctx context.Context, set string, start, stop int64) ([]string, error) {
	return s.client.redis().ZRevRange(ctx, set, start, stop).Result()
}

// Drop invalidates the set entirely: members and warm marker. The next
// access rebuilds it from the authoritative store.
func (s *ScoredSetStore) Drop(ctx context.Context, set string) error {
	return s.client.Del(ctx, set, warmMarkerKey(set))
}

// Populate bulk-inserts members and marks the set warm in one MULTI
// pipeline. An empty members slice still writes the marker, so a set that
// legitimately has no members does not trigger repeated rebuilds.
func (s *ScoredSetStore) Populate(ctx context.Context, set string, members []ScoredMember) error {
	pipe := s.client.redis().TxPipeline()
	if len(members) > 0 {
		zs := make([]redis.Z, 0, len(members))
		for _, m := range members {
			zs = append(zs, redis.Z{Score: m.Score, Member: m.Member})
		}
		pipe.ZAdd(ctx, set, zs...)
	}
	pipe.Set(ctx, warmMarkerKey(set), "1", 0)

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("populate %s: %w", set, err)
	}
	return nil
}
