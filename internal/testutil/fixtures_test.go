package testutil

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/infodancer/msgstore"

	"github.com/infodancer/mailroute/internal/routing"
)

func TestSetupTestDB(t *testing.T) {
	domains := []TestDomain{
		{
			Name: "a.example",
			Accounts: []TestAccount{
				{Local: "live", UserID: 1},
				{Local: "old", UserID: 2, Deleted: true},
				{Local: "banned", UserID: 3, Policy: &routing.RolePolicy{
					BanEmail:     []string{"spam.example"},
					BanEmailType: routing.BanAll,
				}},
			},
		},
	}
	db := SetupTestDB(t, domains, map[string]string{routing.KeyPrimaryDomain: `"a.example"`})
	ctx := context.Background()

	for _, addr := range []string{"live@a.example", "old@a.example", "banned@a.example"} {
		acct, err := db.LookupAccount(ctx, addr)
		if err != nil {
			t.Fatalf("LookupAccount(%s): %v", addr, err)
		}
		if acct == nil {
			t.Errorf("account %s not created", addr)
		}
	}

	p, err := db.LookupRolePolicy(ctx, 3)
	if err != nil || p == nil {
		t.Fatalf("policy not stored: %v", err)
	}
	if !reflect.DeepEqual(p.BanEmail, []string{"spam.example"}) {
		t.Errorf("BanEmail = %v", p.BanEmail)
	}

	v, ok, err := db.Setting(ctx, routing.KeyPrimaryDomain)
	if err != nil || !ok || v != `"a.example"` {
		t.Errorf("setting = %q %v %v", v, ok, err)
	}
}

func TestSetupDefaultTestDB(t *testing.T) {
	db := SetupDefaultTestDB(t)
	snap, err := routing.LoadSnapshot(context.Background(), db, nil)
	if err != nil {
		t.Fatalf("LoadSnapshot: %v", err)
	}
	if snap.SinkAccounts["display.example"] != "root@display.example" {
		t.Errorf("sink = %v", snap.SinkAccounts)
	}
	if snap.AdminAddress != "admin@corp.example" {
		t.Errorf("admin = %q", snap.AdminAddress)
	}
}

func TestMaildirFiles(t *testing.T) {
	base, opts := SetupArchiveDir(t)
	if opts["path_template"] != "{localpart}" {
		t.Errorf("unexpected options %v", opts)
	}
	if got := MaildirFiles(t, base, "nobody"); got != nil {
		t.Errorf("expected no files, got %v", got)
	}

	dir := filepath.Join(base, "alice", "Maildir", "new")
	if err := os.MkdirAll(dir, 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "1.msg"), []byte("x"), 0644); err != nil {
		t.Fatal(err)
	}
	if got := MaildirFiles(t, base, "alice"); len(got) != 1 || got[0] != "1.msg" {
		t.Errorf("MaildirFiles = %v", got)
	}
}

func TestMockArchive(t *testing.T) {
	var m MockArchive
	env := msgstore.Envelope{From: "s@x.example", Recipients: []string{"u@a.example"}}
	if err := m.Deliver(context.Background(), env, bytes.NewReader([]byte("data"))); err != nil {
		t.Fatalf("Deliver: %v", err)
	}
	if got := m.Recipients(); !reflect.DeepEqual(got, []string{"u@a.example"}) {
		t.Errorf("Recipients = %v", got)
	}
	if string(m.Deliveries[0].Data) != "data" {
		t.Errorf("data = %q", m.Deliveries[0].Data)
	}

	m.Err = errors.New("disk full")
	if err := m.Deliver(context.Background(), env, bytes.NewReader(nil)); err == nil {
		t.Error("expected error")
	}
}
