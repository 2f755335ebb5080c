package analyzer

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"sort"
	"time"

	"github.com/goccy/go-json"

	"github.com/vietddude/triage/internal/core/domain"
	"github.com/vietddude/triage/internal/infra/storage"
	"github.com/vietddude/triage/internal/pipeline/history"
	"github.com/vietddude/triage/internal/pipeline/metrics"
	"github.com/vietddude/triage/internal/pipeline/retry"
)

// ErrTimeout marks an analysis call that exceeded the configured deadline.
var ErrTimeout = errors.New("analysis request timed out")

// HTTPError represents a non-2xx response from the analysis endpoint.
type HTTPError struct {
	StatusCode int
	Body       string // first 512 bytes
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("analysis endpoint returned %d: %s", e.StatusCode, e.Body)
}

// Config holds the endpoint settings.
type Config struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration
}

// Client talks to the external classification endpoint and merges its results
// back onto stored events.
type Client struct {
	cfg        Config
	httpClient *http.Client
	executor   *retry.Executor
	store      storage.EventRepository
	log        *slog.Logger
	now        func() time.Time
}

// NewClient creates an analysis client.
func NewClient(cfg Config, executor *retry.Executor, store storage.EventRepository, log *slog.Logger) *Client {
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	if log == nil {
		log = slog.Default()
	}
	return &Client{
		cfg: cfg,
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
		executor: executor,
		store:    store,
		log:      log,
		now:      time.Now,
	}
}

// BuildRequest maps events to the wire shape. When no historical context is
// supplied, a minimal one is derived from the batch itself.
func (c *Client) BuildRequest(events []domain.ErrorEvent, hctx *domain.HistoricalContext) domain.AnalysisRequest {
	logs := make([]domain.AnalysisLogEntry, 0, len(events))
	for _, e := range events {
		logs = append(logs, domain.AnalysisLogEntry{
			ID:         e.ID,
			Timestamp:  e.Timestamp,
			Message:    e.Message,
			StackTrace: e.StackTrace,
			Source:     e.Source,
		})
	}

	if hctx == nil {
		hctx = history.BatchContext(events, c.now())
	}

	return domain.AnalysisRequest{
		Logs:    logs,
		Context: hctx,
		Parameters: domain.AnalysisParameters{
			IncludeClassification: true,
			IncludePriority:       true,
			IncludeReasoning:      true,
			MaxResponseTimeSecs:   int(c.cfg.Timeout.Seconds()),
		},
	}
}

// Analyze submits the batch through the backoff executor and returns the
// parsed response, or the terminal failure once retries are exhausted.
func (c *Client) Analyze(ctx context.Context, events []domain.ErrorEvent, hctx *domain.HistoricalContext) (*domain.AnalysisResponse, error) {
	request := c.BuildRequest(events, hctx)

	payload, err := json.Marshal(request)
	if err != nil {
		return nil, fmt.Errorf("marshal analysis request: %w", err)
	}

	return retry.Do(ctx, c.executor, "analyze", func(ctx context.Context) (*domain.AnalysisResponse, error) {
		return c.post(ctx, payload)
	})
}

func (c *Client) post(ctx context.Context, payload []byte) (*domain.AnalysisResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+"/api/analyze", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		var urlErr *url.Error
		if errors.As(err, &urlErr) && urlErr.Timeout() {
			return nil, fmt.Errorf("%w after %s: %w", ErrTimeout, c.cfg.Timeout, err)
		}
		return nil, fmt.Errorf("analysis call: %w", err)
	}
	defer resp.Body.Close()
	metrics.AnalyzeLatency.Observe(time.Since(start).Seconds())

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		bodyStr := string(body)
		if len(bodyStr) > 512 {
			bodyStr = bodyStr[:512]
		}
		c.log.Warn("Analysis endpoint returned non-2xx",
			"status", resp.StatusCode, "body", bodyStr)
		// Non-2xx is eligible for the retry budget like a transport failure.
		return nil, retry.Retryable(&HTTPError{StatusCode: resp.StatusCode, Body: bodyStr})
	}

	var parsed domain.AnalysisResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("parse analysis response: %w", err)
	}
	return &parsed, nil
}

// ProcessResults merges classification results onto the original events by
// logId. Events without a result, and events whose result fails validation,
// pass through unchanged. The input is never mutated.
func (c *Client) ProcessResults(originalEvents []domain.ErrorEvent, response *domain.AnalysisResponse) []domain.ErrorEvent {
	results := make(map[string]domain.AnalysisResult, len(response.Results))
	for _, r := range response.Results {
		results[r.LogID] = r
	}

	out := make([]domain.ErrorEvent, 0, len(originalEvents))
	for _, e := range originalEvents {
		r, ok := results[e.ID]
		if !ok {
			out = append(out, e)
			continue
		}
		if err := validateResult(r); err != nil {
			c.log.Warn("Discarding invalid analysis result",
				"event", e.ID, "error", err)
			metrics.InvalidResults.Inc()
			out = append(out, e)
			continue
		}

		analyzedAt := c.now()
		e.Severity = r.Severity
		e.Priority = r.Priority
		e.AIReasoning = r.Reasoning
		e.PotentialFix = r.PotentialFix
		e.AnalyzedAt = &analyzedAt
		e.IsAnalyzed = true
		out = append(out, e)
		metrics.EventsAnalyzed.Inc()
	}
	return out
}

func validateResult(r domain.AnalysisResult) error {
	if !r.Severity.Valid() {
		return fmt.Errorf("invalid severity %q", r.Severity)
	}
	if !r.Priority.Valid() {
		return fmt.Errorf("invalid priority %q", r.Priority)
	}
	if r.ConfidenceScore < 0 || r.ConfidenceScore > 1 {
		return fmt.Errorf("confidence score %v out of range", r.ConfidenceScore)
	}
	if r.Reasoning == "" {
		return errors.New("empty reasoning")
	}
	return nil
}

// UpdateStore merges analyzed events into the partition: matching IDs have
// their analysis fields overwritten, unmatched events are appended, and the
// partition is re-sorted by timestamp before saving. Applying the same set
// twice yields the same partition state.
func (c *Client) UpdateStore(ctx context.Context, analyzedEvents []domain.ErrorEvent, partitionKey string) error {
	existing, err := c.store.Load(ctx, partitionKey)
	if err != nil {
		return fmt.Errorf("load partition %s: %w", partitionKey, err)
	}

	index := make(map[string]int, len(existing))
	for i, e := range existing {
		index[e.ID] = i
	}

	for _, a := range analyzedEvents {
		i, ok := index[a.ID]
		if !ok {
			existing = append(existing, a)
			index[a.ID] = len(existing) - 1
			continue
		}
		existing[i].Severity = a.Severity
		existing[i].Priority = a.Priority
		existing[i].AIReasoning = a.AIReasoning
		existing[i].PotentialFix = a.PotentialFix
		existing[i].AnalyzedAt = a.AnalyzedAt
		existing[i].IsAnalyzed = a.IsAnalyzed
	}

	sort.SliceStable(existing, func(i, j int) bool {
		return existing[i].Timestamp.Before(existing[j].Timestamp)
	})

	if err := c.store.Save(ctx, partitionKey, existing); err != nil {
		return fmt.Errorf("save partition %s: %w", partitionKey, err)
	}
	return nil
}
