package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestTagTitles(t *testing.T) {
	testCases := []struct {
		name string
		text string
		tags []string
	}{
		{"single tag", "check this out #golang", []string{"golang"}},
		{"multiple tags", "#first and #second", []string{"first", "second"}},
		{"tag at start", "#lead the text", []string{"lead"}},
		{"no tags", "plain text", []string{}},
		{"mid-word hash ignored", "price is 100#200", []string{}},
		{"digits-only ignored", "issue #123", []string{}},
		{"digits with letters", "version #v2", []string{"v2"}},
		{"underscore allowed", "#snake_case works", []string{"snake_case"}},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			post := Post{Text: tc.text}
			assert.Equal(t, tc.tags, post.TagTitles())
		})
	}
}

func TestMentionedUsernames(t *testing.T) {
	testCases := []struct {
		name  string
		text  string
		names []string
	}{
		{"single mention", "hello @alice", []string{"alice"}},
		{"multiple mentions", "@alice meet @bob", []string{"alice", "bob"}},
		{"no mentions", "nobody here", []string{}},
		{"email not a mention", "mail me at alice@example.com", []string{}},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			post := Post{Text: tc.text}
			assert.Equal(t, tc.names, post.MentionedUsernames())
		})
	}
}

func TestPostPopularity(t *testing.T) {
	post := Post{VotedCount: 7, DownvotedCount: 3}
	assert.Equal(t, float64(4), post.Popularity())

	post = Post{VotedCount: 1, DownvotedCount: 5}
	assert.Equal(t, float64(-4), post.Popularity())
}

func TestPostExpired(t *testing.T) {
	now := time.Now()
	live := Post{ExpiresAt: now.Add(time.Minute)}
	gone := Post{ExpiresAt: now.Add(-time.Minute)}

	assert.False(t, live.Expired(now))
	assert.True(t, gone.Expired(now))
}
