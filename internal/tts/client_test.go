package tts

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/solenne/livecast/internal/domain"
	"github.com/solenne/livecast/internal/logger"
)

// fakeVoiceService serves the create/result/play endpoints. pollsNeeded
// controls how many result polls report "still running" before done.
type fakeVoiceService struct {
	t           *testing.T
	pollsNeeded int32
	polls       int32
	creates     int32
	fail        bool
	audio       []byte
	contentType string
}

func (s *fakeVoiceService) handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc(pathCreate, func(w http.ResponseWriter, r *http.Request) {
		s.checkAuth(r)
		atomic.AddInt32(&s.creates, 1)
		w.Write([]byte(`{"code":0,"msg":"ok","data":{"taskId":"task-42"}}`))
	})

	mux.HandleFunc(pathResult, func(w http.ResponseWriter, r *http.Request) {
		s.checkAuth(r)
		if r.URL.Query().Get("taskId") != "task-42" {
			s.t.Errorf("poll for unknown task %q", r.URL.Query().Get("taskId"))
		}
		if s.fail {
			w.Write([]byte(`{"code":0,"msg":"ok","data":{"status":3,"msg":"model error"}}`))
			return
		}
		if atomic.AddInt32(&s.polls, 1) <= atomic.LoadInt32(&s.pollsNeeded) {
			w.Write([]byte(`{"code":0,"msg":"ok","data":{"status":1}}`))
			return
		}
		w.Write([]byte(`{"code":0,"msg":"ok","data":{"status":2,"voiceUrl":"https://cdn.example/task-42"}}`))
	})

	mux.HandleFunc(pathPlay, func(w http.ResponseWriter, r *http.Request) {
		s.checkAuth(r)
		if r.URL.Query().Get("voice_url") != "https://cdn.example/task-42" {
			s.t.Errorf("play proxy got voice_url %q", r.URL.Query().Get("voice_url"))
		}
		ct := s.contentType
		if ct == "" {
			ct = "audio/mpeg"
		}
		w.Header().Set("Content-Type", ct)
		w.Write(s.audio)
	})

	return mux
}

func (s *fakeVoiceService) checkAuth(r *http.Request) {
	if got := r.Header.Get("Authorization"); got != "Bearer key-123" {
		s.t.Errorf("missing bearer token, got %q", got)
	}
	if r.Header.Get("X-Machine-Code") == "" {
		s.t.Error("missing machine code header")
	}
}

func newTestClient(t *testing.T, svc *fakeVoiceService, opts ...ClientOption) *Client {
	t.Helper()
	srv := httptest.NewServer(svc.handler())
	t.Cleanup(srv.Close)

	log := logger.New(logger.LevelOff, nil)
	cache := NewCache(t.TempDir(), 7, log)
	base := []ClientOption{
		WithPollSchedule(time.Millisecond, time.Millisecond, 5*time.Millisecond),
		WithDeadline(2 * time.Second),
	}
	return NewClient(srv.URL, "key-123", 7, cache, log, append(base, opts...)...)
}

func TestSynthesizeEndToEnd(t *testing.T) {
	svc := &fakeVoiceService{t: t, pollsNeeded: 2, audio: []byte("mp3-bytes")}
	c := newTestClient(t, svc)

	path, err := c.Synthesize(context.Background(), "现在是北京时间")
	if err != nil {
		t.Fatalf("synthesize failed: %v", err)
	}
	if !strings.HasSuffix(path, ".mp3") {
		t.Fatalf("path %q, want .mp3 extension", path)
	}
	data, err := os.ReadFile(path)
	if err != nil || string(data) != "mp3-bytes" {
		t.Fatalf("cached file wrong: %q, %v", data, err)
	}
	if polls := atomic.LoadInt32(&svc.polls); polls < 3 {
		t.Fatalf("expected at least 3 polls, got %d", polls)
	}
}

func TestSynthesizeServedFromCache(t *testing.T) {
	svc := &fakeVoiceService{t: t, audio: []byte("x")}
	c := newTestClient(t, svc)

	if _, err := c.Synthesize(context.Background(), "hello"); err != nil {
		t.Fatal(err)
	}
	if _, err := c.Synthesize(context.Background(), "hello"); err != nil {
		t.Fatal(err)
	}
	if n := atomic.LoadInt32(&svc.creates); n != 1 {
		t.Fatalf("cache miss: %d create calls, want 1", n)
	}
}

func TestSynthesizeWithoutCache(t *testing.T) {
	svc := &fakeVoiceService{t: t, audio: []byte("one-shot")}
	srv := httptest.NewServer(svc.handler())
	t.Cleanup(srv.Close)

	c := NewClient(srv.URL, "key-123", 7, nil, logger.New(logger.LevelOff, nil),
		WithPollSchedule(time.Millisecond, time.Millisecond, 5*time.Millisecond),
		WithDeadline(2*time.Second))

	path, err := c.Synthesize(context.Background(), "no cache")
	if err != nil {
		t.Fatalf("synthesize without cache failed: %v", err)
	}
	t.Cleanup(func() { os.Remove(path) })

	data, err := os.ReadFile(path)
	if err != nil || string(data) != "one-shot" {
		t.Fatalf("temp file wrong: %q, %v", data, err)
	}
	if !strings.HasSuffix(path, ".mp3") {
		t.Fatalf("path %q, want .mp3 extension", path)
	}
}

func TestSynthesizeExtensionFromContentType(t *testing.T) {
	svc := &fakeVoiceService{t: t, audio: []byte("riff"), contentType: "audio/wav; charset=binary"}
	c := newTestClient(t, svc)

	path, err := c.Synthesize(context.Background(), "wav please")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasSuffix(path, ".wav") {
		t.Fatalf("path %q, want .wav extension", path)
	}
}

func TestSynthesizeTaskFailure(t *testing.T) {
	svc := &fakeVoiceService{t: t, fail: true}
	c := newTestClient(t, svc)

	_, err := c.Synthesize(context.Background(), "nope")
	if !errors.Is(err, domain.ErrSynthesisFailed) {
		t.Fatalf("want ErrSynthesisFailed, got %v", err)
	}
}

func TestSynthesizeDeadline(t *testing.T) {
	svc := &fakeVoiceService{t: t, pollsNeeded: 1 << 30} // never finishes
	c := newTestClient(t, svc, WithDeadline(30*time.Millisecond))

	_, err := c.Synthesize(context.Background(), "forever")
	if !errors.Is(err, domain.ErrSynthesisTimeout) {
		t.Fatalf("want ErrSynthesisTimeout, got %v", err)
	}
}

func TestCacheWarmStartFromDisk(t *testing.T) {
	log := logger.New(logger.LevelOff, nil)
	dir := t.TempDir()

	c1 := NewCache(dir, 7, log)
	if _, err := c1.Put("text", ".mp3", []byte("bytes")); err != nil {
		t.Fatal(err)
	}

	// A fresh index finds the file from the previous run.
	c2 := NewCache(dir, 7, log)
	path, ok := c2.Get("text")
	if !ok {
		t.Fatal("disk entry not found on warm start")
	}
	if data, _ := os.ReadFile(path); string(data) != "bytes" {
		t.Fatalf("wrong content %q", data)
	}

	// A different model id misses.
	c3 := NewCache(dir, 8, log)
	if _, ok := c3.Get("text"); ok {
		t.Fatal("model change must invalidate the cache")
	}
}
