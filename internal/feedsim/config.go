// Package feedsim drives synthetic forum traffic against a running
// gateway and verifies the feeds converge.
package feedsim

import "time"

// Config holds configuration for a simulation run.
type Config struct {
	BaseURL  string        // Base URL of the gateway
	NumPosts int           // Number of posts to create
	Workers  int           // Number of concurrent writers
	Timeout  time.Duration // HTTP request timeout
	Verbose  bool          // Enable verbose logging
}

// Stats holds the outcome of a run.
type Stats struct {
	PostsCreated    int
	CommentsCreated int
	LikesApplied    int
	WritesFailed    int
	FeedEntries     int
	StartTime       time.Time
	Duration        time.Duration
}
