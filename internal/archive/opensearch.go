// Package archive indexes terminal records into OpenSearch so console
// search and retention policy run outside the engine.
package archive

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/opensearch-project/opensearch-go/v2"
	"github.com/opensearch-project/opensearch-go/v2/opensearchapi"

	"github.com/driftline-systems/driftline/internal/metrics"
	"github.com/driftline-systems/driftline/internal/models"
)

// Config holds OpenSearch connection settings.
type Config struct {
	URL           string
	Username      string
	Password      string
	TLSSkipVerify bool
	IndexPrefix   string
}

// Archiver is an event sink that persists terminal record transitions.
// Indexing happens on a buffered background loop so Publish never blocks.
type Archiver struct {
	client *opensearch.Client
	index  string
	queue  chan models.Event
	stop   chan struct{}
	done   chan struct{}
}

// New creates an archiver and starts its index loop.
func New(cfg Config) (*Archiver, error) {
	osCfg := opensearch.Config{
		Addresses: []string{cfg.URL},
		Username:  cfg.Username,
		Password:  cfg.Password,
		Transport: &http.Transport{
			TLSClientConfig: &tls.Config{InsecureSkipVerify: cfg.TLSSkipVerify},
		},
	}

	client, err := opensearch.NewClient(osCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create opensearch client: %w", err)
	}

	prefix := cfg.IndexPrefix
	if prefix == "" {
		prefix = "driftline-records"
	}

	a := &Archiver{
		client: client,
		index:  prefix,
		queue:  make(chan models.Event, 1024),
		stop:   make(chan struct{}),
		done:   make(chan struct{}),
	}
	go a.loop()
	return a, nil
}

// Publish enqueues terminal transitions for indexing. Non-terminal events
// and full-queue overflow are dropped; the archive is an observability
// surface, not a source of truth.
func (a *Archiver) Publish(event models.Event) {
	if event.Topic != models.TopicRecordUpdated || !event.State.Terminal() {
		return
	}

	select {
	case a.queue <- event:
	default:
		metrics.ArchiveErrors.Inc()
	}
}

// Close flushes the queue and stops the loop.
func (a *Archiver) Close() {
	close(a.stop)
	<-a.done
}

func (a *Archiver) loop() {
	defer close(a.done)

	for {
		select {
		case event := <-a.queue:
			a.indexEvent(event)
		case <-a.stop:
			// Drain whatever is queued before exiting.
			for {
				select {
				case event := <-a.queue:
					a.indexEvent(event)
				default:
					return
				}
			}
		}
	}
}

func (a *Archiver) indexEvent(event models.Event) {
	doc, err := json.Marshal(event)
	if err != nil {
		metrics.ArchiveErrors.Inc()
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	req := opensearchapi.IndexRequest{
		Index:      a.index,
		DocumentID: event.RecordID,
		Body:       strings.NewReader(string(doc)),
	}

	resp, err := req.Do(ctx, a.client)
	if err != nil {
		metrics.ArchiveErrors.Inc()
		slog.Warn("archive index failed",
			slog.String("record_id", event.RecordID),
			slog.String("error", err.Error()),
		)
		return
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.IsError() {
		metrics.ArchiveErrors.Inc()
		slog.Warn("archive index rejected",
			slog.String("record_id", event.RecordID),
			slog.String("status", resp.Status()),
		)
		return
	}
	metrics.ArchiveIndexedTotal.Inc()
}
