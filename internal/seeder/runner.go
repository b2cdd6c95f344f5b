package seeder

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log"
	"math/rand"
	"net/http"
	"time"

	"github.com/brianvoe/gofakeit/v6"

	"github.com/driftline-systems/driftline/internal/models"
)

// Config controls a seeding run.
type Config struct {
	CaptureURL string
	Token      string
	Count      int
	Sessions   int
	Interval   time.Duration
	// DuplicateRate is the fraction of captures resubmitted verbatim to
	// exercise the dedup window.
	DuplicateRate float64
}

// Runner drives synthetic captures against a running engine.
type Runner struct {
	Config     *Config
	HTTPClient *http.Client
}

// NewRunner creates a seeder runner.
func NewRunner(config *Config) *Runner {
	return &Runner{
		Config: config,
		HTTPClient: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

// Run executes the seeding process.
func (r *Runner) Run() error {
	gofakeit.Seed(time.Now().UnixNano())

	if r.Config.Sessions < 1 {
		r.Config.Sessions = 1
	}

	log.Printf("Starting capture seeder:")
	log.Printf("  Capture URL: %s", r.Config.CaptureURL)
	log.Printf("  Capture count: %d", r.Config.Count)
	log.Printf("  Sessions: %d", r.Config.Sessions)
	log.Printf("  Interval: %v", r.Config.Interval)
	log.Printf("  Duplicate rate: %.2f", r.Config.DuplicateRate)

	sessions := make([]*session, r.Config.Sessions)
	for i := range sessions {
		sessions[i] = newSession()
	}

	successCount := 0
	failCount := 0
	dupCount := 0

	var last *models.CaptureRequest
	for i := 0; i < r.Config.Count; i++ {
		var req *models.CaptureRequest
		if last != nil && rand.Float64() < r.Config.DuplicateRate {
			req = last
			dupCount++
		} else {
			req = sessions[rand.Intn(len(sessions))].capture()
			last = req
		}

		if err := r.send(req); err != nil {
			log.Printf("Failed to send capture: %v", err)
			failCount++
		} else {
			successCount++
		}

		if r.Config.Interval > 0 && i < r.Config.Count-1 {
			time.Sleep(r.Config.Interval)
		}
	}

	log.Printf("\nSeeding complete:")
	log.Printf("  Success: %d captures", successCount)
	log.Printf("  Duplicates sent: %d", dupCount)
	log.Printf("  Failed: %d captures", failCount)

	return nil
}

func (r *Runner) send(capture *models.CaptureRequest) error {
	body, err := json.Marshal(capture)
	if err != nil {
		return fmt.Errorf("failed to encode capture: %w", err)
	}

	req, err := http.NewRequest(http.MethodPost, r.Config.CaptureURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if r.Config.Token != "" {
		req.Header.Set("Authorization", "Bearer "+r.Config.Token)
	}

	resp, err := r.HTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusAccepted {
		return fmt.Errorf("capture endpoint returned status %d", resp.StatusCode)
	}

	return nil
}
