package reporting

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/marketkeeper/keeper/internal/clock"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestHandleHealthReturnsOK(t *testing.T) {
	t.Parallel()
	s := NewServer(ServerConfig{Addr: ":0"}, fakeProvider{state: "running"}, clock.NewFake(time.Now()),
		func() (string, string) { return "0.40", "25" }, testLogger())

	rr := httptest.NewRecorder()
	s.handleHealth(rr, httptest.NewRequest(http.MethodGet, "/health", nil))

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rr.Code)
	}
	var body map[string]string
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body["status"] != "ok" {
		t.Errorf("status body = %v, want ok", body)
	}
}

func TestHandleSnapshotEncodesCurrentState(t *testing.T) {
	t.Parallel()
	s := NewServer(ServerConfig{Addr: ":0"}, fakeProvider{state: "draining"}, clock.NewFake(time.Now()),
		func() (string, string) { return "0.42", "10" }, testLogger())

	rr := httptest.NewRecorder()
	s.handleSnapshot(rr, httptest.NewRequest(http.MethodGet, "/snapshot", nil))

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rr.Code)
	}
	var snap Snapshot
	if err := json.Unmarshal(rr.Body.Bytes(), &snap); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if snap.State != "draining" || snap.Price != "0.42" {
		t.Errorf("snapshot = %+v", snap)
	}
}
