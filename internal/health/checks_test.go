package health

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/MrWong99/frontdesk/internal/ledger"
	"github.com/MrWong99/frontdesk/pkg/provider/llm/mock"
)

type stubLedger struct{ err error }

func (s stubLedger) CheckWritable() error { return s.err }

func TestLedgerCheck(t *testing.T) {
	ok := LedgerCheck(ledger.New(filepath.Join(t.TempDir(), "tickets.txt")))
	if err := ok.Check(context.Background()); err != nil {
		t.Errorf("writable ledger: %v", err)
	}
	if ok.Name != "ledger" {
		t.Errorf("Name = %q", ok.Name)
	}

	bad := LedgerCheck(stubLedger{err: errors.New("read-only file system")})
	if err := bad.Check(context.Background()); err == nil {
		t.Error("expected failure for unwritable ledger")
	}

	if err := LedgerCheck(nil).Check(context.Background()); err == nil {
		t.Error("expected failure for nil ledger")
	}
}

func TestLedgerCheck_MissingDirectory(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "gone")
	if err := os.Mkdir(dir, 0o755); err != nil {
		t.Fatal(err)
	}
	l := ledger.New(filepath.Join(dir, "tickets.txt"))
	if err := os.Remove(dir); err != nil {
		t.Fatal(err)
	}
	if err := LedgerCheck(l).Check(context.Background()); err == nil {
		t.Error("expected failure when the ledger directory is missing")
	}
}

func TestProviderCheck(t *testing.T) {
	if err := ProviderCheck(&mock.Provider{}).Check(context.Background()); err != nil {
		t.Errorf("configured provider: %v", err)
	}
	if err := ProviderCheck(nil).Check(context.Background()); err == nil {
		t.Error("expected failure for nil provider")
	}
}
