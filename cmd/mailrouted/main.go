// Command mailrouted receives inbound mail, decides which account owns each
// recipient, and stores the result.
package main

import (
	"fmt"
	"os"
	"strings"

	_ "github.com/infodancer/msgstore/maildir" // register maildir backend
)

const usage = `usage: mailrouted <subcommand> [flags]

subcommands:
  serve     run the SMTP/LMTP listeners (default)
  resolve   dry-run routing for a message read from stdin
  account   add, delete or set the policy of an account
  setting   get, set, delete or list routing settings
`

func main() {
	// Dispatch to a subcommand before flag parsing so the chosen function
	// owns its flags. Strip the subcommand from os.Args so flag.Parse sees
	// only flags.
	var subcommand string
	if len(os.Args) > 1 && !strings.HasPrefix(os.Args[1], "-") {
		subcommand = os.Args[1]
		os.Args = append(os.Args[:1], os.Args[2:]...)
	}

	var err error
	switch subcommand {
	case "", "serve":
		runServe()
		return
	case "resolve":
		err = runResolve(os.Args[1:], os.Stdin, os.Stdout)
	case "account":
		err = runAccount(os.Args[1:], os.Stdout)
	case "setting":
		err = runSetting(os.Args[1:], os.Stdout)
	case "help":
		fmt.Fprint(os.Stdout, usage)
		return
	default:
		fmt.Fprintf(os.Stderr, "unknown subcommand %q\n%s", subcommand, usage)
		os.Exit(1)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "mailrouted %s: %v\n", subcommand, err)
		os.Exit(1)
	}
}
