package commands

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/mmynk/splitledger/internal/storage/sqlite"
)

func setupTestStore(t *testing.T) *sqlite.SQLiteStore {
	t.Helper()

	tempDir, err := os.MkdirTemp("", "splitledger-cmd-*")
	if err != nil {
		t.Fatalf("failed to create temp dir: %v", err)
	}
	t.Cleanup(func() { os.RemoveAll(tempDir) })

	store, err := sqlite.New(filepath.Join(tempDir, "test.db"))
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func TestSeedDemo_Idempotent(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		if err := seedDemo(ctx, store); err != nil {
			t.Fatalf("seedDemo run %d failed: %v", i+1, err)
		}
	}

	group, err := store.GetGroup(ctx, demoGroupID)
	if err != nil {
		t.Fatalf("GetGroup failed: %v", err)
	}
	if len(group.MemberIDs) != len(demoMembers) {
		t.Errorf("expected %d members, got %v", len(demoMembers), group.MemberIDs)
	}
	carol, err := store.GetMember(ctx, "carol")
	if err != nil {
		t.Fatalf("GetMember failed: %v", err)
	}
	if carol.PaymentHandle != "carol@okbank" {
		t.Errorf("expected seeded handle, got %q", carol.PaymentHandle)
	}
}

func TestHealthz(t *testing.T) {
	store := setupTestStore(t)

	rec := httptest.NewRecorder()
	healthz(store, nil)(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var body map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("invalid body: %v", err)
	}
	if body["status"] != "ok" {
		t.Errorf("unexpected body: %v", body)
	}
	if _, ok := body["events"]; ok {
		t.Error("events state reported without a publisher")
	}

	store.Close()
	rec = httptest.NewRecorder()
	healthz(store, nil)(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("expected 503 after close, got %d", rec.Code)
	}
}
