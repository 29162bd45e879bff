package ranking

import (
	"fmt"
	"strconv"
)

// Redis key scheme, carried over from the original deployment so warm
// caches survive a rollout.
const (
	// GlobalUsersZSet ranks every user by popularity.
	GlobalUsersZSet = "users:zset:all"

	// GlobalUsersSet is the plain set the feed composer samples random
	// users from.
	GlobalUsersSet = "users:set:all"
)

// UserPostsKey names the ranked set of a user's live posts.
func UserPostsKey(userID uint) string {
	return fmt.Sprintf("user:%d:posts", userID)
}

// TagPostsKey names the ranked set of a tag's live posts.
func TagPostsKey(title string) string {
	return fmt.Sprintf("tag:%s:posts", title)
}

// UserFollowersKey names the ranked set of a user's followers.
func UserFollowersKey(userID uint) string {
	return fmt.Sprintf("user:%d:followers", userID)
}

// UserFolloweesKey names the ranked set of users someone follows.
func UserFolloweesKey(userID uint) string {
	return fmt.Sprintf("user:%d:followees", userID)
}

// EncodeID formats an ID as a zero-padded 20-digit decimal string.
// Padding makes Redis's lexicographic tie-break on equal scores identical
// to numeric ID order, so descending reads return the highest (newest)
// ID first among ties. That ordering is part of the contract: ranked sets
// and their relational fallbacks both order by score desc, then ID desc.
func EncodeID(id uint) string {
	return fmt.Sprintf("%020d", id)
}

// DecodeID parses a member written by EncodeID.
func DecodeID(member string) (uint, error) {
	id, err := strconv.ParseUint(member, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("bad ranked-set member %q: %w", member, err)
	}
	return uint(id), nil
}

// DecodeIDs parses a slice of members, skipping any that do not parse.
func DecodeIDs(members []string) []uint {
	ids := make([]uint, 0, len(members))
	for _, m := range members {
		id, err := DecodeID(m)
		if err != nil {
			continue
		}
		ids = append(ids, id)
	}
	return ids
}
