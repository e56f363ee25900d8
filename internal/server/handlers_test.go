package server

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gorilla/websocket"

	"github.com/govambam/macroscope-code-review-sub002/internal/config"
	"github.com/govambam/macroscope-code-review-sub002/internal/recreate"
	"github.com/govambam/macroscope-code-review-sub002/internal/refcache"
	"github.com/govambam/macroscope-code-review-sub002/internal/state"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()
	cfg := &config.Config{
		GitHubToken: "test-token",
		TargetOrg:   "review-org",
		CacheDir:    t.TempDir(),
		WorkDir:     t.TempDir(),
	}
	cache := refcache.NewManager(cfg.CacheDir, state.New(""), 3)
	return NewServer(cfg, nil, cache)
}

func TestHandleRecreateInvalidBody(t *testing.T) {
	s := newTestServer(t)
	router := s.Router()

	req := httptest.NewRequest("POST", "/api/recreate", strings.NewReader("{"))
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Errorf("expected status 400, got %d", rr.Code)
	}
}

func TestHandleRecreateInvalidURL(t *testing.T) {
	s := newTestServer(t)
	router := s.Router()

	body, _ := json.Marshal(map[string]any{"pr_url": "https://github.com/o/r/issues/5"})
	req := httptest.NewRequest("POST", "/api/recreate", bytes.NewReader(body))
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Errorf("expected status 400, got %d", rr.Code)
	}
}

func TestHandleJobEventsNotFound(t *testing.T) {
	s := newTestServer(t)
	router := s.Router()

	req := httptest.NewRequest("GET", "/api/recreate/nope", nil)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusNotFound {
		t.Errorf("expected status 404, got %d", rr.Code)
	}
}

func TestHandleJobEvents(t *testing.T) {
	s := newTestServer(t)
	router := s.Router()

	stream := make(chan recreate.Event, 2)
	stream <- recreate.Event{Type: recreate.EventProgress, Step: 1, Message: "resolving"}
	stream <- recreate.Event{Type: recreate.EventCompleted, Step: 2}
	close(stream)
	job := s.jobs.Create("https://github.com/o/r/pull/9", stream)
	waitFor(t, job.Done)

	req := httptest.NewRequest("GET", "/api/recreate/"+job.ID, nil)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}
	var resp jobEventsResponse
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if !resp.Done || len(resp.Events) != 2 {
		t.Errorf("expected done job with 2 events, got %+v", resp)
	}
}

func TestCacheAddStatsRemove(t *testing.T) {
	s := newTestServer(t)
	router := s.Router()

	body, _ := json.Marshal(cacheAddRequest{Owner: "octo", Repo: "widgets", Notes: "big repo"})
	req := httptest.NewRequest("POST", "/api/cache", bytes.NewReader(body))
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	if rr.Code != http.StatusCreated {
		t.Fatalf("expected status 201, got %d", rr.Code)
	}

	req = httptest.NewRequest("GET", "/api/cache/stats", nil)
	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}
	var stats refcache.Stats
	if err := json.NewDecoder(rr.Body).Decode(&stats); err != nil {
		t.Fatalf("failed to decode stats: %v", err)
	}
	if len(stats.AllowListEntries) != 1 {
		t.Errorf("expected 1 allow-list entry, got %d", len(stats.AllowListEntries))
	}

	req = httptest.NewRequest("DELETE", "/api/cache/octo/widgets?delete_from_disk=false", nil)
	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	if rr.Code != http.StatusNoContent {
		t.Fatalf("expected status 204, got %d", rr.Code)
	}

	if s.cache.IsEligible("octo", "widgets") {
		t.Error("expected repo to be removed from allow-list")
	}
}

func TestCacheAddValidation(t *testing.T) {
	s := newTestServer(t)
	router := s.Router()

	body, _ := json.Marshal(cacheAddRequest{Owner: "", Repo: "widgets"})
	req := httptest.NewRequest("POST", "/api/cache", bytes.NewReader(body))
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	if rr.Code != http.StatusBadRequest {
		t.Errorf("expected status 400, got %d", rr.Code)
	}
}

func TestCacheClear(t *testing.T) {
	s := newTestServer(t)
	router := s.Router()

	s.cache.AllowList().AddEntry("octo", "widgets", "")

	req := httptest.NewRequest("POST", "/api/cache/clear", nil)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	if rr.Code != http.StatusNoContent {
		t.Fatalf("expected status 204, got %d", rr.Code)
	}
	if s.cache.IsEligible("octo", "widgets") {
		t.Error("expected allow-list to be emptied")
	}
}

func TestJobWebSocketStreamsEvents(t *testing.T) {
	s := newTestServer(t)
	srv := httptest.NewServer(s.Router())
	defer srv.Close()

	stream := make(chan recreate.Event, 3)
	stream <- recreate.Event{Type: recreate.EventProgress, Step: 1, Message: "resolving"}
	job := s.jobs.Create("https://github.com/o/r/pull/4", stream)
	waitFor(t, func() bool { return len(job.Events()) == 1 })

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/recreate/" + job.ID
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("websocket dial failed: %v", err)
	}
	defer conn.Close()

	// Buffered history arrives first.
	var event recreate.Event
	if err := conn.ReadJSON(&event); err != nil {
		t.Fatalf("failed to read history event: %v", err)
	}
	if event.Message != "resolving" {
		t.Errorf("expected history event, got %+v", event)
	}

	// Then live events.
	stream <- recreate.Event{Type: recreate.EventCompleted, Step: 2}
	close(stream)
	if err := conn.ReadJSON(&event); err != nil {
		t.Fatalf("failed to read live event: %v", err)
	}
	if event.Type != recreate.EventCompleted {
		t.Errorf("expected completed event, got %+v", event)
	}
}
