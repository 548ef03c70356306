package feedsim

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/sadwik-learner/feedsync/pkg/logger"
)

var sampleTexts = []string{
	"anyone else staying on campus for the break",
	"lost my calculator in the library, DM if found",
	"study group for the OS midterm, room 204",
	"the mess hall coffee is actually good today",
	"looking for a badminton partner this weekend",
}

// Run executes the simulation: concurrent post/comment/like traffic
// followed by a feed readback check.
func Run(ctx context.Context, cfg *Config) (*Stats, error) {
	log := logger.Named("feedsim")
	stats := &Stats{StartTime: time.Now()}

	client := &http.Client{Timeout: cfg.Timeout}

	var (
		posted atomic.Int64
		failed atomic.Int64
		ids    = make(chan string, cfg.NumPosts)
	)

	jobs := make(chan int)
	var wg sync.WaitGroup
	for w := 0; w < cfg.Workers; w++ {
		wg.Add(1)
		go func(worker int) {
			defer wg.Done()
			token := token(fmt.Sprintf("sim-%d", worker))
			for i := range jobs {
				id, err := createPost(ctx, client, cfg.BaseURL, token, sampleTexts[i%len(sampleTexts)], i%3 == 0)
				if err != nil {
					failed.Add(1)
					if cfg.Verbose {
						log.Warn(ctx, "post failed", logger.Error(err))
					}
					continue
				}
				posted.Add(1)
				select {
				case ids <- id:
				default:
				}
			}
		}(w)
	}

	for i := 0; i < cfg.NumPosts; i++ {
		select {
		case jobs <- i:
		case <-ctx.Done():
			close(jobs)
			wg.Wait()
			return stats, ctx.Err()
		}
	}
	close(jobs)
	wg.Wait()
	close(ids)
	stats.PostsCreated = int(posted.Load())

	// Comment on and like a sample of the created posts.
	token := token("sim-reader")
	for id := range ids {
		if rand.Intn(2) == 0 {
			if err := createComment(ctx, client, cfg.BaseURL, token, id, "nice one"); err != nil {
				failed.Add(1)
			} else {
				stats.CommentsCreated++
			}
		}
		for i := 0; i < rand.Intn(4); i++ {
			if err := like(ctx, client, cfg.BaseURL, token, id); err != nil {
				failed.Add(1)
			} else {
				stats.LikesApplied++
			}
		}
	}
	stats.WritesFailed = int(failed.Load())

	// Readback: the feed must contain every successful post.
	entries, err := feedSize(ctx, client, cfg.BaseURL)
	if err != nil {
		return stats, err
	}
	stats.FeedEntries = entries
	stats.Duration = time.Since(stats.StartTime)

	if stats.FeedEntries < stats.PostsCreated {
		return stats, fmt.Errorf("feed has %d entries, want at least %d", stats.FeedEntries, stats.PostsCreated)
	}
	log.Info(ctx, "simulation complete",
		logger.Int("posts", stats.PostsCreated),
		logger.Int("comments", stats.CommentsCreated),
		logger.Int("likes", stats.LikesApplied),
		logger.Int("failed", stats.WritesFailed),
		logger.Duration("took", stats.Duration),
	)
	return stats, nil
}

// token mints an unsigned-trust bearer token for a synthetic user.
func token(sub string) string {
	t, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub":   sub,
		"name":  "Sim " + sub,
		"email": sub + "@sim.campus.edu",
	}).SignedString([]byte("feedsim"))
	if err != nil {
		panic(err)
	}
	return t
}

func post(ctx context.Context, client *http.Client, url, token string, body any, out any) error {
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return err
		}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("%s: unexpected status %d", url, resp.StatusCode)
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

func createPost(ctx context.Context, client *http.Client, base, token, text string, anonymous bool) (string, error) {
	var resp struct {
		ID string `json:"id"`
	}
	err := post(ctx, client, base+"/posts", token, map[string]any{
		"text":      text,
		"anonymous": anonymous,
	}, &resp)
	if err != nil {
		return "", err
	}
	if resp.ID == "" {
		return "", errors.New("empty id in create response")
	}
	return resp.ID, nil
}

func createComment(ctx context.Context, client *http.Client, base, token, postID, text string) error {
	return post(ctx, client, base+"/posts/"+postID+"/comments", token, map[string]any{"text": text}, nil)
}

func like(ctx context.Context, client *http.Client, base, token, postID string) error {
	return post(ctx, client, base+"/posts/"+postID+"/like", token, nil, nil)
}

func feedSize(ctx context.Context, client *http.Client, base string) (int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, base+"/feed", nil)
	if err != nil {
		return 0, err
	}
	resp, err := client.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("feed: unexpected status %d", resp.StatusCode)
	}
	var feed struct {
		Entries []json.RawMessage `json:"entries"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&feed); err != nil {
		return 0, err
	}
	return len(feed.Entries), nil
}
