package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"

	"github.com/infodancer/mailroute/internal/config"
	"github.com/infodancer/mailroute/internal/routing"
	"github.com/infodancer/mailroute/internal/store"
)

// openStore parses the common flags in args and opens the configured
// database. It returns the remaining positional arguments.
func openStore(name string, args []string, extra func(fs *flag.FlagSet)) (*store.DB, []string, error) {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	flags := config.RegisterFlags(fs)
	if extra != nil {
		extra(fs)
	}
	if err := fs.Parse(args); err != nil {
		return nil, nil, err
	}
	cfg, err := config.LoadWithFlags(flags)
	if err != nil {
		return nil, nil, fmt.Errorf("loading config: %w", err)
	}
	db, err := store.Open(cfg.Store.Path)
	if err != nil {
		return nil, nil, err
	}
	return db, fs.Args(), nil
}

// runAccount manages accounts:
//
//	account add <user-id> <address>
//	account delete <account-id>
//	account policy <user-id> [-ban a,b] [-ban-type ALL|CONTENT] [-domains x,y]
func runAccount(args []string, out io.Writer) error {
	if len(args) == 0 {
		return errors.New("usage: account add|delete|policy ...")
	}
	action := args[0]

	var ban, banType, domains string
	db, rest, err := openStore("account", args[1:], func(fs *flag.FlagSet) {
		if action == "policy" {
			fs.StringVar(&ban, "ban", "", "Comma-separated banned senders (address, @domain or domain)")
			fs.StringVar(&banType, "ban-type", string(routing.BanAll), "Ban type: ALL drops, CONTENT redacts")
			fs.StringVar(&domains, "domains", "", "Comma-separated permitted domains; empty means any")
		}
	})
	if err != nil {
		return err
	}
	defer db.Close()
	ctx := context.Background()

	switch action {
	case "add":
		if len(rest) != 2 {
			return errors.New("usage: account add <user-id> <address>")
		}
		userID, err := strconv.ParseInt(rest[0], 10, 64)
		if err != nil {
			return fmt.Errorf("invalid user id %q: %w", rest[0], err)
		}
		id, err := db.CreateAccount(ctx, userID, rest[1])
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "created account %d for %s\n", id, rest[1])
		return nil

	case "delete":
		if len(rest) != 1 {
			return errors.New("usage: account delete <account-id>")
		}
		id, err := strconv.ParseInt(rest[0], 10, 64)
		if err != nil {
			return fmt.Errorf("invalid account id %q: %w", rest[0], err)
		}
		if err := db.DeleteAccount(ctx, id); err != nil {
			return err
		}
		fmt.Fprintf(out, "deleted account %d\n", id)
		return nil

	case "policy":
		if len(rest) != 1 {
			return errors.New("usage: account policy <user-id> [flags]")
		}
		userID, err := strconv.ParseInt(rest[0], 10, 64)
		if err != nil {
			return fmt.Errorf("invalid user id %q: %w", rest[0], err)
		}
		p := routing.RolePolicy{
			BanEmail:     splitList(ban),
			BanEmailType: routing.ParseBanType(banType),
			AvailDomain:  splitList(domains),
		}
		if err := db.SetRolePolicy(ctx, userID, p); err != nil {
			return err
		}
		fmt.Fprintf(out, "updated policy for user %d\n", userID)
		return nil

	default:
		return fmt.Errorf("unknown account action %q", action)
	}
}

// runSetting manages routing settings stored in the database:
//
//	setting list
//	setting get <key>
//	setting set <key> <json>
//	setting delete <key>
func runSetting(args []string, out io.Writer) error {
	if len(args) == 0 {
		return errors.New("usage: setting list|get|set|delete ...")
	}
	action := args[0]

	db, rest, err := openStore("setting", args[1:], nil)
	if err != nil {
		return err
	}
	defer db.Close()
	ctx := context.Background()

	switch action {
	case "list":
		all, err := db.Settings(ctx)
		if err != nil {
			return err
		}
		keys := make([]string, 0, len(all))
		for k := range all {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			fmt.Fprintf(out, "%s = %s\n", k, all[k])
		}
		return nil

	case "get":
		if len(rest) != 1 {
			return errors.New("usage: setting get <key>")
		}
		v, err := db.GetSetting(ctx, rest[0])
		if err != nil {
			return err
		}
		fmt.Fprintln(out, v)
		return nil

	case "set":
		if len(rest) != 2 {
			return errors.New("usage: setting set <key> <json>")
		}
		if err := routing.ValidateSetting(rest[0], rest[1]); err != nil {
			return err
		}
		return db.SetSetting(ctx, rest[0], rest[1])

	case "delete":
		if len(rest) != 1 {
			return errors.New("usage: setting delete <key>")
		}
		return db.DeleteSetting(ctx, rest[0])

	default:
		return fmt.Errorf("unknown setting action %q", action)
	}
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
