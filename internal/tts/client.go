// Package tts is the client for the hosted voice-cloning service: it
// creates synthesis tasks, polls for their completion, downloads the
// produced audio, and caches it on disk keyed by text.
package tts

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/solenne/livecast/internal/domain"
	"github.com/solenne/livecast/internal/logger"
)

const (
	pathCreate = "/api/voice/tts"
	pathResult = "/api/voice/tts/result"
	pathPlay   = "/api/voice/tts/play"
)

// Task states reported by the result endpoint.
const (
	taskPending = 0
	taskRunning = 1
	taskDone    = 2
	taskFailed  = 3
)

// ClientOption configures the client.
type ClientOption func(*Client)

// WithHTTPClient replaces the underlying HTTP client. Tests use this.
func WithHTTPClient(h *http.Client) ClientOption {
	return func(c *Client) {
		c.http = h
	}
}

// WithPollSchedule tunes the result polling cadence: the first wait,
// the per-poll increment, and the cap.
func WithPollSchedule(initial, step, max time.Duration) ClientOption {
	return func(c *Client) {
		c.pollInitial = initial
		c.pollStep = step
		c.pollMax = max
	}
}

// WithDeadline bounds the total time one synthesis may take.
func WithDeadline(d time.Duration) ClientOption {
	return func(c *Client) {
		c.deadline = d
	}
}

// Compile-time interface check.
var _ domain.Synthesizer = (*Client)(nil)

// Client synthesizes speech through the voice service. Synthesis is
// asynchronous on the server side: a create call returns a task id, the
// result endpoint is polled with a slowly widening interval, and the
// finished audio is fetched through the service's play proxy.
type Client struct {
	baseURL     string
	licenseKey  string
	machineCode string
	modelID     int

	http  *http.Client
	cache *Cache
	log   *logger.Logger

	pollInitial time.Duration
	pollStep    time.Duration
	pollMax     time.Duration
	deadline    time.Duration
}

// NewClient creates a synthesis client. cache may be nil to disable
// caching.
func NewClient(baseURL, licenseKey string, modelID int, cache *Cache, log *logger.Logger, opts ...ClientOption) *Client {
	c := &Client{
		baseURL:     trimBase(baseURL),
		licenseKey:  licenseKey,
		machineCode: MachineCode(),
		modelID:     modelID,
		http:        &http.Client{Timeout: 30 * time.Second},
		cache:       cache,
		log:         log,
		pollInitial: 800 * time.Millisecond,
		pollStep:    300 * time.Millisecond,
		pollMax:     3 * time.Second,
		deadline:    5 * time.Minute,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Synthesize produces an audio file for text and returns its local path.
// Cached text is served without touching the service.
func (c *Client) Synthesize(ctx context.Context, text string) (string, error) {
	if c.cache != nil {
		if path, ok := c.cache.Get(text); ok {
			return path, nil
		}
	}

	ctx, cancel := context.WithTimeout(ctx, c.deadline)
	defer cancel()

	taskID, err := c.createTask(ctx, text)
	if err != nil {
		return "", fmt.Errorf("creating synthesis task: %w", err)
	}
	c.log.Debug("synthesis task %s created: %s", taskID, truncate(text, 40))

	voiceURL, err := c.waitResult(ctx, taskID)
	if err != nil {
		return "", err
	}

	audio, ext, err := c.download(ctx, voiceURL)
	if err != nil {
		return "", fmt.Errorf("downloading synthesized audio: %w", err)
	}

	if c.cache != nil {
		return c.cache.Put(text, ext, audio)
	}

	// No cache: hand back a throwaway file.
	f, err := os.CreateTemp("", "livecast-tts-*"+ext)
	if err != nil {
		return "", fmt.Errorf("saving synthesized audio: %w", err)
	}
	defer f.Close()
	if _, err := f.Write(audio); err != nil {
		return "", fmt.Errorf("saving synthesized audio: %w", err)
	}
	return f.Name(), nil
}

// envelope is the service's uniform response wrapper.
type envelope struct {
	Code int             `json:"code"`
	Msg  string          `json:"msg"`
	Data json.RawMessage `json:"data"`
}

func (c *Client) createTask(ctx context.Context, text string) (string, error) {
	body := fmt.Sprintf(`{"model_id":%d,"text":%s}`, c.modelID, mustJSON(text))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+pathCreate, strings.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	env, err := c.do(req)
	if err != nil {
		return "", err
	}
	if env.Code != 0 {
		return "", fmt.Errorf("%s: %w", env.Msg, domain.ErrSynthesisFailed)
	}

	var data struct {
		TaskID string `json:"taskId"`
	}
	if err := json.Unmarshal(env.Data, &data); err != nil || data.TaskID == "" {
		return "", fmt.Errorf("malformed task response: %w", domain.ErrSynthesisFailed)
	}
	return data.TaskID, nil
}

// waitResult polls until the task finishes. The interval starts short
// and widens a little each round so long syntheses do not hammer the
// service.
func (c *Client) waitResult(ctx context.Context, taskID string) (string, error) {
	interval := c.pollInitial

	for {
		select {
		case <-ctx.Done():
			return "", fmt.Errorf("task %s: %w", taskID, domain.ErrSynthesisTimeout)
		case <-time.After(interval):
		}
		if interval += c.pollStep; interval > c.pollMax {
			interval = c.pollMax
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet,
			c.baseURL+pathResult+"?taskId="+url.QueryEscape(taskID), nil)
		if err != nil {
			return "", err
		}

		env, err := c.do(req)
		if err != nil {
			// One poll failing is not fatal; the next round retries.
			c.log.Warn("polling task %s: %v", taskID, err)
			continue
		}
		if env.Code != 0 {
			return "", fmt.Errorf("%s: %w", env.Msg, domain.ErrSynthesisFailed)
		}

		var data struct {
			Status   int    `json:"status"`
			VoiceURL string `json:"voiceUrl"`
			Msg      string `json:"msg"`
		}
		if err := json.Unmarshal(env.Data, &data); err != nil {
			c.log.Warn("malformed poll response for task %s: %v", taskID, err)
			continue
		}

		switch data.Status {
		case taskDone:
			if data.VoiceURL == "" {
				return "", fmt.Errorf("task %s finished with no audio: %w", taskID, domain.ErrSynthesisFailed)
			}
			return data.VoiceURL, nil
		case taskFailed:
			return "", fmt.Errorf("task %s: %s: %w", taskID, data.Msg, domain.ErrSynthesisFailed)
		case taskPending, taskRunning:
			// keep polling
		}
	}
}

// download fetches the audio through the service's play proxy and sniffs
// the extension from the Content-Type header.
func (c *Client) download(ctx context.Context, voiceURL string) ([]byte, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		c.baseURL+pathPlay+"?voice_url="+url.QueryEscape(voiceURL), nil)
	if err != nil {
		return nil, "", err
	}
	c.authorize(req)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, "", fmt.Errorf("play proxy returned %s", resp.Status)
	}

	audio, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, "", err
	}
	return audio, extFromContentType(resp.Header.Get("Content-Type")), nil
}

func (c *Client) do(req *http.Request) (*envelope, error) {
	c.authorize(req)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var env envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return nil, fmt.Errorf("non-JSON response (status %s): %w", resp.Status, err)
	}
	return &env, nil
}

func (c *Client) authorize(req *http.Request) {
	req.Header.Set("Authorization", "Bearer "+c.licenseKey)
	req.Header.Set("X-Machine-Code", c.machineCode)
}

// extFromContentType maps the proxy's Content-Type to a file extension,
// defaulting to .mp3 which is what the service usually produces.
func extFromContentType(ct string) string {
	if i := strings.IndexByte(ct, ';'); i >= 0 {
		ct = ct[:i]
	}
	switch strings.TrimSpace(strings.ToLower(ct)) {
	case "audio/wav", "audio/x-wav", "audio/wave":
		return ".wav"
	case "audio/ogg":
		return ".ogg"
	case "audio/flac", "audio/x-flac":
		return ".flac"
	case "audio/aac":
		return ".aac"
	default:
		return ".mp3"
	}
}

func mustJSON(s string) string {
	b, _ := json.Marshal(s)
	return string(b)
}
