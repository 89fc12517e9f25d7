package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/infodancer/mailroute/internal/config"
	"github.com/infodancer/mailroute/internal/inbound"
	"github.com/infodancer/mailroute/internal/logging"
	"github.com/infodancer/mailroute/internal/routing"
	"github.com/infodancer/mailroute/internal/store"
)

// resolution is the printed form of one recipient's outcome.
type resolution struct {
	Recipient     string   `json:"recipient"`
	Disposition   string   `json:"disposition"`
	Reason        string   `json:"reason,omitempty"`
	FinalAddress  string   `json:"final_address,omitempty"`
	AccountID     int64    `json:"account_id,omitempty"`
	UserID        int64    `json:"user_id,omitempty"`
	Source        string   `json:"source"`
	Status        string   `json:"status,omitempty"`
	DisplayDomain string   `json:"display_domain,omitempty"`
	Candidates    []string `json:"candidates,omitempty"`
}

func newResolution(d inbound.Delivery) resolution {
	out := d.Outcome
	r := resolution{
		Recipient:     d.Recipient,
		Disposition:   string(out.Disposition),
		Reason:        string(out.Reason),
		FinalAddress:  out.Result.FinalAddress,
		Source:        string(out.Source),
		Status:        string(out.Status),
		DisplayDomain: out.DisplayDomain,
		Candidates:    out.Candidates,
	}
	if acct := out.Result.Account; acct != nil {
		r.AccountID = acct.ID
		r.UserID = acct.UserID
	}
	return r
}

// runResolve reads a message from in and prints the routing outcome for
// every -to recipient without storing anything.
func runResolve(args []string, in io.Reader, out io.Writer) error {
	fs := flag.NewFlagSet("resolve", flag.ContinueOnError)
	flags := config.RegisterFlags(fs)
	from := fs.String("from", "", "Envelope sender")
	to := fs.String("to", "", "Comma-separated envelope recipients")
	if err := fs.Parse(args); err != nil {
		return err
	}

	var recipients []string
	for _, r := range strings.Split(*to, ",") {
		if r = strings.TrimSpace(r); r != "" {
			recipients = append(recipients, r)
		}
	}
	if len(recipients) == 0 {
		return errors.New("-to is required")
	}

	cfg, err := config.LoadWithFlags(flags)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	data, err := io.ReadAll(in)
	if err != nil {
		return fmt.Errorf("reading message: %w", err)
	}

	db, err := store.Open(cfg.Store.Path)
	if err != nil {
		return err
	}
	defer db.Close()

	var settings routing.SettingsSource
	if len(cfg.Settings) > 0 {
		settings = routing.MapSource(cfg.Settings)
	}
	handler := inbound.NewHandler(inbound.Config{
		Store:    db,
		Settings: settings,
		Logger:   logging.NewLogger(cfg.LogLevel),
		Hostname: cfg.Hostname,
	})

	deliveries, err := handler.Resolve(context.Background(), inbound.Request{
		From:         *from,
		Recipients:   recipients,
		Data:         data,
		ReceivedTime: time.Now(),
	})
	if err != nil {
		return err
	}

	results := make([]resolution, 0, len(deliveries))
	for _, d := range deliveries {
		results = append(results, newResolution(d))
	}
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(results)
}
