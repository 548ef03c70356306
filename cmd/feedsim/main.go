package main

import (
	"context"
	"flag"
	"os"
	"runtime"
	"time"

	"github.com/sadwik-learner/feedsync/internal/feedsim"
	"github.com/sadwik-learner/feedsync/pkg/logger"
)

const (
	defaultNumPosts = 200
	defaultTimeout  = 10 * time.Second
	defaultRunLimit = 5 * time.Minute
)

func main() {
	var (
		baseURL  = flag.String("url", "http://localhost:9080", "Base URL of the gateway")
		numPosts = flag.Int("posts", defaultNumPosts, "Number of posts to create")
		workers  = flag.Int("workers", runtime.NumCPU()*2, "Number of concurrent writers")
		timeout  = flag.Duration("timeout", defaultTimeout, "HTTP request timeout")
		verbose  = flag.Bool("verbose", false, "Enable verbose logging")
	)
	flag.Parse()

	if err := logger.Init(); err != nil {
		os.Stderr.WriteString("failed to initialize logging: " + err.Error() + "\n")
		os.Exit(1)
	}
	if *verbose {
		_ = logger.SetLevelString("debug")
	}

	ctx, cancel := context.WithTimeout(context.Background(), defaultRunLimit)
	defer cancel()

	cfg := &feedsim.Config{
		BaseURL:  *baseURL,
		NumPosts: *numPosts,
		Workers:  *workers,
		Timeout:  *timeout,
		Verbose:  *verbose,
	}

	if _, err := feedsim.Run(ctx, cfg); err != nil {
		os.Stderr.WriteString("simulation failed: " + err.Error() + "\n")
		os.Exit(1)
	}
}
