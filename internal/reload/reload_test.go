package reload

import (
	"io"
	"log/slog"
	"testing"

	"github.com/spf13/afero"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

const validDoc = `{
  "buyBands":  [ { "minMargin": "0", "avgMargin": "0.01", "maxMargin": "0.02",
                   "minAmount": "10", "avgAmount": "30", "maxAmount": "50", "dustCutoff": "1" } ],
  "sellBands": [ { "minMargin": "0", "avgMargin": "0.01", "maxMargin": "0.02",
                   "minAmount": "10", "avgAmount": "30", "maxAmount": "50", "dustCutoff": "1" } ],
  "buyLimits":  [ { "period": "1h", "amount": 100 } ],
  "sellLimits": [ ]
}`

const invalidDoc = `{
  "buyBands": [ { "minMargin": "0.02", "avgMargin": "0.01", "maxMargin": "0.03",
                  "minAmount": "10", "avgAmount": "30", "maxAmount": "50" } ]
}`

func TestLoadValidDocumentPublishesSnapshot(t *testing.T) {
	t.Parallel()
	fs := afero.NewMemMapFs()
	afero.WriteFile(fs, "/bands.json", []byte(validDoc), 0o644)

	rc := New(fs, "/bands.json", testLogger())
	if err := rc.Load(); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if rc.Current() == nil {
		t.Fatal("expected a published snapshot")
	}
	if len(rc.Current().BuyLimits) != 1 {
		t.Errorf("expected one buy limit rule, got %d", len(rc.Current().BuyLimits))
	}
}

func TestLoadFirstFailureReturnsError(t *testing.T) {
	t.Parallel()
	fs := afero.NewMemMapFs()
	afero.WriteFile(fs, "/bands.json", []byte(invalidDoc), 0o644)

	rc := New(fs, "/bands.json", testLogger())
	if err := rc.Load(); err == nil {
		t.Fatal("expected error on first load of an invalid document")
	}
	if rc.Current() != nil {
		t.Fatal("expected no snapshot published after a failed first load")
	}
}

func TestLoadKeepsPreviousSnapshotOnBadEdit(t *testing.T) {
	t.Parallel()
	fs := afero.NewMemMapFs()
	afero.WriteFile(fs, "/bands.json", []byte(validDoc), 0o644)

	rc := New(fs, "/bands.json", testLogger())
	if err := rc.Load(); err != nil {
		t.Fatalf("initial Load: %v", err)
	}
	first := rc.Current()

	afero.WriteFile(fs, "/bands.json", []byte(invalidDoc), 0o644)
	if err := rc.Load(); err != nil {
		t.Fatalf("second Load returned an error instead of logging and keeping: %v", err)
	}
	if rc.Current() != first {
		t.Fatal("expected the previous good snapshot to survive a bad edit")
	}
}

func TestLoadSkipsReparseWhenHashUnchanged(t *testing.T) {
	t.Parallel()
	fs := afero.NewMemMapFs()
	afero.WriteFile(fs, "/bands.json", []byte(validDoc), 0o644)

	rc := New(fs, "/bands.json", testLogger())
	if err := rc.Load(); err != nil {
		t.Fatalf("initial Load: %v", err)
	}
	first := rc.Current()

	if err := rc.Load(); err != nil {
		t.Fatalf("second Load: %v", err)
	}
	if rc.Current() != first {
		t.Fatal("expected the same snapshot pointer when content hash is unchanged")
	}
}
