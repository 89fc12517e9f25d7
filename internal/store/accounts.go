package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/infodancer/mailroute/internal/address"
	"github.com/infodancer/mailroute/internal/routing"
)

// CreateAccount adds an account for addr owned by userID and returns its id.
func (db *DB) CreateAccount(ctx context.Context, userID int64, addr string) (int64, error) {
	n, ok := address.Normalize(addr, address.Options{})
	if !ok {
		return 0, fmt.Errorf("invalid account address %q", addr)
	}
	res, err := db.ExecContext(ctx,
		"INSERT INTO accounts (user_id, email, created_at) VALUES (?, ?, ?)",
		userID, n, time.Now().Unix())
	if err != nil {
		return 0, fmt.Errorf("failed to create account: %w", err)
	}
	return res.LastInsertId()
}

// DeleteAccount soft-deletes an account. The row stays visible to
// LookupAccount.
func (db *DB) DeleteAccount(ctx context.Context, id int64) error {
	res, err := db.ExecContext(ctx,
		"UPDATE accounts SET deleted_at = ? WHERE id = ? AND deleted_at IS NULL",
		time.Now().Unix(), id)
	if err != nil {
		return fmt.Errorf("failed to delete account: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// LookupAccount implements routing.AccountLookup. Soft-deleted accounts are
// returned; a live account is preferred when both exist for one address.
func (db *DB) LookupAccount(ctx context.Context, addr string) (*routing.Account, error) {
	var a routing.Account
	err := db.QueryRowContext(ctx, `
		SELECT id, user_id, email FROM accounts
		WHERE email = ?
		ORDER BY deleted_at IS NOT NULL, id
		LIMIT 1
	`, addr).Scan(&a.ID, &a.UserID, &a.Email)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to look up account: %w", err)
	}
	return &a, nil
}

// SetRolePolicy stores the policy for userID, replacing any existing one.
func (db *DB) SetRolePolicy(ctx context.Context, userID int64, p routing.RolePolicy) error {
	bans, err := json.Marshal(nonNil(p.BanEmail))
	if err != nil {
		return err
	}
	avail, err := json.Marshal(nonNil(p.AvailDomain))
	if err != nil {
		return err
	}
	banType := p.BanEmailType
	if banType == "" {
		banType = routing.BanAll
	}
	_, err = db.ExecContext(ctx, `
		INSERT INTO role_policies (user_id, ban_email, ban_email_type, avail_domain)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(user_id) DO UPDATE SET
			ban_email = excluded.ban_email,
			ban_email_type = excluded.ban_email_type,
			avail_domain = excluded.avail_domain
	`, userID, string(bans), string(banType), string(avail))
	if err != nil {
		return fmt.Errorf("failed to set role policy: %w", err)
	}
	return nil
}

// LookupRolePolicy implements routing.PolicyLookup. Unparseable JSON lists
// are treated as empty.
func (db *DB) LookupRolePolicy(ctx context.Context, userID int64) (*routing.RolePolicy, error) {
	var bans, banType, avail string
	err := db.QueryRowContext(ctx,
		"SELECT ban_email, ban_email_type, avail_domain FROM role_policies WHERE user_id = ?",
		userID).Scan(&bans, &banType, &avail)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to look up role policy: %w", err)
	}

	p := &routing.RolePolicy{BanEmailType: routing.ParseBanType(banType)}
	_ = json.Unmarshal([]byte(bans), &p.BanEmail)
	_ = json.Unmarshal([]byte(avail), &p.AvailDomain)
	return p, nil
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
