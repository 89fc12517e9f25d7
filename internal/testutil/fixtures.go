// Package testutil provides test helpers for creating routing fixtures.
package testutil

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/infodancer/msgstore"
	_ "github.com/infodancer/msgstore/maildir" // register maildir backend

	"github.com/infodancer/mailroute/internal/routing"
	"github.com/infodancer/mailroute/internal/store"
)

// TestAccount is one account in a test domain.
type TestAccount struct {
	Local   string
	UserID  int64
	Deleted bool
	// Policy is stored for UserID when non-nil.
	Policy *routing.RolePolicy
}

// TestDomain groups accounts under one domain.
type TestDomain struct {
	Name     string
	Accounts []TestAccount
}

// DefaultTestDomains returns the standard fixture: a display domain with a
// regular user and a sink, and an admin domain.
func DefaultTestDomains() []TestDomain {
	return []TestDomain{
		{
			Name: "display.example",
			Accounts: []TestAccount{
				{Local: "alice", UserID: 1},
				{Local: "root", UserID: 2},
			},
		},
		{
			Name: "corp.example",
			Accounts: []TestAccount{
				{Local: "admin", UserID: 99},
			},
		},
	}
}

// DefaultSettings routes recv.example to display.example with root as the
// sink and admin@corp.example as administrator.
func DefaultSettings() map[string]string {
	return map[string]string{
		routing.KeyDisplayDomainMap: `{"recv.example": "display.example"}`,
		routing.KeySinkAccounts:     `{"display.example": "root@display.example"}`,
		routing.KeyAdminAddress:     `"admin@corp.example"`,
	}
}

// SetupTestDB opens an in-memory store seeded with domains and settings.
// The store is closed when the test ends.
func SetupTestDB(t *testing.T, domains []TestDomain, settings map[string]string) *store.DB {
	t.Helper()

	db, err := store.Open(":memory:")
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	ctx := context.Background()
	for _, d := range domains {
		for _, a := range d.Accounts {
			id, err := db.CreateAccount(ctx, a.UserID, a.Local+"@"+d.Name)
			if err != nil {
				t.Fatalf("failed to create account %s@%s: %v", a.Local, d.Name, err)
			}
			if a.Deleted {
				if err := db.DeleteAccount(ctx, id); err != nil {
					t.Fatalf("failed to delete account %s@%s: %v", a.Local, d.Name, err)
				}
			}
			if a.Policy != nil {
				if err := db.SetRolePolicy(ctx, a.UserID, *a.Policy); err != nil {
					t.Fatalf("failed to set policy for user %d: %v", a.UserID, err)
				}
			}
		}
	}

	for k, v := range settings {
		if err := db.SetSetting(ctx, k, v); err != nil {
			t.Fatalf("failed to set %s: %v", k, err)
		}
	}

	return db
}

// SetupDefaultTestDB is SetupTestDB with DefaultTestDomains and
// DefaultSettings.
func SetupDefaultTestDB(t *testing.T) *store.DB {
	t.Helper()
	return SetupTestDB(t, DefaultTestDomains(), DefaultSettings())
}

// SetupArchiveDir creates an empty archive base directory and returns the
// store options that file each recipient under <base>/<localpart>/Maildir.
func SetupArchiveDir(t *testing.T) (string, map[string]string) {
	t.Helper()
	base := t.TempDir()
	return base, map[string]string{
		"maildir_subdir": "Maildir",
		"path_template":  "{localpart}",
	}
}

// OpenMaildirArchive opens a maildir msgstore rooted at base for use as an
// archive delivery agent.
func OpenMaildirArchive(t *testing.T, base string, opts map[string]string) msgstore.DeliveryAgent {
	t.Helper()
	agent, err := msgstore.Open(msgstore.StoreConfig{
		Type:     "maildir",
		BasePath: base,
		Options:  opts,
	})
	if err != nil {
		t.Fatalf("failed to open maildir archive: %v", err)
	}
	return agent
}

// MaildirFiles lists the files under <base>/<localpart>/Maildir/new.
func MaildirFiles(t *testing.T, base, localpart string) []string {
	t.Helper()
	entries, err := os.ReadDir(filepath.Join(base, localpart, "Maildir", "new"))
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		t.Fatalf("failed to read maildir: %v", err)
	}
	var out []string
	for _, e := range entries {
		out = append(out, e.Name())
	}
	return out
}

// Delivery is one call captured by MockArchive.
type Delivery struct {
	Envelope msgstore.Envelope
	Data     []byte
}

// MockArchive is a msgstore.DeliveryAgent that records deliveries.
type MockArchive struct {
	mu         sync.Mutex
	Deliveries []Delivery
	// Err, if set, is returned from every Deliver call.
	Err error
}

// Deliver records the envelope and message bytes.
func (m *MockArchive) Deliver(_ context.Context, envelope msgstore.Envelope, message io.Reader) error {
	if m.Err != nil {
		return m.Err
	}
	data, err := io.ReadAll(message)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Deliveries = append(m.Deliveries, Delivery{Envelope: envelope, Data: data})
	return nil
}

// Recipients returns the recipients of every recorded delivery in order.
func (m *MockArchive) Recipients() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []string
	for _, d := range m.Deliveries {
		out = append(out, d.Envelope.Recipients...)
	}
	return out
}
