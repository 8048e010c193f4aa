package realtime

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"dining-service/internal/models"
)

// ErrStreamEnded is returned when the server closes an event stream
var ErrStreamEnded = errors.New("event stream ended")

const maxEventSize = 1 << 20

// HTTPSource reads the server's SSE stream and snapshot endpoint
type HTTPSource struct {
	baseURL string
	client  *http.Client
}

// NewHTTPSource creates a source for a dining-service base URL such as http://localhost:8080
func NewHTTPSource(baseURL string, client *http.Client) *HTTPSource {
	if client == nil {
		client = &http.Client{}
	}
	return &HTTPSource{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  client,
	}
}

func (s *HTTPSource) storeURL(storeID, suffix string) string {
	return fmt.Sprintf("%s/api/v1/stores/%s/%s", s.baseURL, url.PathEscape(storeID), suffix)
}

// Snapshot fetches the polling fallback snapshot
func (s *HTTPSource) Snapshot(ctx context.Context, storeID string) (*models.Snapshot, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.storeURL(storeID, "snapshot"), nil)
	if err != nil {
		return nil, err
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch snapshot: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("snapshot request failed: %s: %s", resp.Status, strings.TrimSpace(string(body)))
	}

	var snap models.Snapshot
	if err := json.NewDecoder(resp.Body).Decode(&snap); err != nil {
		return nil, fmt.Errorf("failed to decode snapshot: %w", err)
	}
	return &snap, nil
}

// Stream connects to the SSE endpoint and hands every event to handle
func (s *HTTPSource) Stream(ctx context.Context, storeID string, handle func(models.Envelope) error) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.storeURL(storeID, "events"), nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Cache-Control", "no-cache")

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to connect to event stream: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("event stream request failed: %s", resp.Status)
	}
	return readEvents(resp.Body, handle)
}

// readEvents parses a text/event-stream body. Only data lines are used;
// comments, event names, ids and retry hints are skipped.
func readEvents(r io.Reader, handle func(models.Envelope) error) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxEventSize)

	var data strings.Builder
	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case line == "":
			if data.Len() == 0 {
				continue
			}
			var env models.Envelope
			if err := json.Unmarshal([]byte(data.String()), &env); err != nil {
				return fmt.Errorf("failed to decode event: %w", err)
			}
			data.Reset()
			if err := handle(env); err != nil {
				return err
			}
		case strings.HasPrefix(line, ":"):
		case strings.HasPrefix(line, "data:"):
			if data.Len() > 0 {
				data.WriteByte('\n')
			}
			data.WriteString(strings.TrimPrefix(strings.TrimPrefix(line, "data:"), " "))
		}
	}
	if err := scanner.Err(); err != nil {
		return err
	}
	return ErrStreamEnded
}

// LocalSource follows a broadcaster in the same process
type LocalSource struct {
	broadcaster *Broadcaster
	snapshots   SnapshotSource
	client      string
}

// NewLocalSource creates a source over an in-process broadcaster
func NewLocalSource(b *Broadcaster, snapshots SnapshotSource, client string) *LocalSource {
	return &LocalSource{broadcaster: b, snapshots: snapshots, client: client}
}

// Snapshot returns the committed state of the store
func (s *LocalSource) Snapshot(_ context.Context, storeID string) (*models.Snapshot, error) {
	snap := s.snapshots.Snapshot(storeID)
	return &snap, nil
}

// Stream subscribes to the broadcaster until ctx ends or handle fails
func (s *LocalSource) Stream(ctx context.Context, storeID string, handle func(models.Envelope) error) error {
	sub, err := s.broadcaster.Subscribe(storeID, s.client)
	if err != nil {
		return err
	}
	defer s.broadcaster.Unsubscribe(sub)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case env, ok := <-sub.Events():
			if !ok {
				return ErrStreamEnded
			}
			if err := handle(env); err != nil {
				return err
			}
		}
	}
}
