package smtp_test

import (
	"bufio"
	"context"
	"fmt"
	"net"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/infodancer/mailroute/internal/config"
	smtpserver "github.com/infodancer/mailroute/internal/smtp"
	"github.com/infodancer/mailroute/internal/testutil"
)

const stackMessage = "From: Bob <bob@sender.example>\r\n" +
	"To: alice@recv.example\r\n" +
	"Subject: Stack test\r\n" +
	"Message-ID: <stack@sender.example>\r\n" +
	"\r\n" +
	"Hello, Stack!\r\n"

func freeAddr(t *testing.T) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("find free port: %v", err)
	}
	addr := ln.Addr().String()
	if err := ln.Close(); err != nil {
		t.Fatalf("close listener: %v", err)
	}
	return addr
}

// rawClient speaks the protocol line by line.
type rawClient struct {
	t    *testing.T
	conn net.Conn
	r    *bufio.Reader
}

func dialRaw(t *testing.T, addr string) *rawClient {
	t.Helper()

	var conn net.Conn
	var err error
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		conn, err = net.DialTimeout("tcp", addr, 100*time.Millisecond)
		if err == nil {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	if err != nil {
		t.Fatalf("dial %s: %v", addr, err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	_ = conn.SetDeadline(time.Now().Add(10 * time.Second))

	c := &rawClient{t: t, conn: conn, r: bufio.NewReader(conn)}
	if reply := c.reply(); !strings.HasPrefix(reply, "220") {
		t.Fatalf("expected 220 greeting, got %q", reply)
	}
	return c
}

// reply reads one possibly multi-line reply and returns its last line.
func (c *rawClient) reply() string {
	for {
		line, err := c.r.ReadString('\n')
		if err != nil {
			c.t.Fatalf("read reply: %v", err)
		}
		if len(line) < 4 || line[3] == ' ' {
			return strings.TrimRight(line, "\r\n")
		}
	}
}

func (c *rawClient) cmd(line string, wantCode string) string {
	c.t.Helper()
	fmt.Fprintf(c.conn, "%s\r\n", line)
	reply := c.reply()
	if !strings.HasPrefix(reply, wantCode) {
		c.t.Fatalf("%s: expected %s, got %q", line, wantCode, reply)
	}
	return reply
}

func (c *rawClient) data(msg string) {
	c.t.Helper()
	c.cmd("DATA", "354")
	fmt.Fprintf(c.conn, "%s.\r\n", msg)
}

func startStack(t *testing.T, listeners []config.ListenerConfig) (*smtpserver.Stack, string) {
	t.Helper()

	archiveDir, opts := testutil.SetupArchiveDir(t)
	cfg := config.Default()
	cfg.Hostname = "mx.test"
	cfg.Listeners = listeners
	cfg.Store.Path = filepath.Join(t.TempDir(), "mailroute.db")
	cfg.Archive = config.ArchiveConfig{Type: "maildir", BasePath: archiveDir, Options: opts}
	cfg.Settings = testutil.DefaultSettings()
	cfg.Timeouts.Connection = "5s"

	stack, err := smtpserver.NewStack(smtpserver.StackConfig{Config: cfg})
	if err != nil {
		t.Fatalf("NewStack: %v", err)
	}
	t.Cleanup(func() {
		if err := stack.Close(); err != nil {
			t.Logf("stack.Close: %v", err)
		}
	})

	ctx := context.Background()
	for _, d := range testutil.DefaultTestDomains() {
		for _, a := range d.Accounts {
			if _, err := stack.DB.CreateAccount(ctx, a.UserID, a.Local+"@"+d.Name); err != nil {
				t.Fatalf("create account: %v", err)
			}
		}
	}

	runCtx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go func() { _ = stack.Run(runCtx) }()

	return stack, archiveDir
}

func countMessages(t *testing.T, stack *smtpserver.Stack, addr string) int {
	t.Helper()
	n, err := stack.DB.CountMessages(context.Background(), addr)
	if err != nil {
		t.Fatalf("CountMessages(%s): %v", addr, err)
	}
	return n
}

func TestStackSMTPDelivery(t *testing.T) {
	addr := freeAddr(t)
	stack, archiveDir := startStack(t, []config.ListenerConfig{{Address: addr, Mode: config.ModeSmtp}})

	c := dialRaw(t, addr)
	c.cmd("EHLO client.test", "250")
	c.cmd("MAIL FROM:<bob@sender.example>", "250")
	c.cmd("RCPT TO:<alice@recv.example>", "250")
	// Unknown domain without a sink: filed under the admin account.
	c.cmd("RCPT TO:<ghost@elsewhere.example>", "250")
	c.data(stackMessage)
	if reply := c.reply(); !strings.HasPrefix(reply, "250") {
		t.Fatalf("DATA end: expected 250, got %q", reply)
	}
	c.cmd("QUIT", "221")

	if n := countMessages(t, stack, "alice@display.example"); n != 1 {
		t.Errorf("alice has %d messages, want 1", n)
	}
	if n := countMessages(t, stack, "ghost@elsewhere.example"); n != 0 {
		t.Errorf("ghost@elsewhere.example has %d messages, want 0", n)
	}
	if n := countMessages(t, stack, "admin@corp.example"); n != 1 {
		t.Errorf("admin has %d messages, want 1", n)
	}
	if files := testutil.MaildirFiles(t, archiveDir, "alice"); len(files) != 1 {
		t.Errorf("expected 1 archived message for alice, got %d", len(files))
	}
}

func TestStackSMTPParseFailure(t *testing.T) {
	addr := freeAddr(t)
	stack, _ := startStack(t, []config.ListenerConfig{{Address: addr, Mode: config.ModeSmtp}})

	c := dialRaw(t, addr)
	c.cmd("EHLO client.test", "250")
	c.cmd("MAIL FROM:<bob@sender.example>", "250")
	c.cmd("RCPT TO:<alice@recv.example>", "250")
	c.data("this line has no colon\r\n\r\nbody\r\n")
	if reply := c.reply(); !strings.HasPrefix(reply, "451") {
		t.Fatalf("DATA end: expected 451, got %q", reply)
	}

	// The session continues after a failed message.
	c.cmd("RSET", "250")
	c.cmd("NOOP", "250")

	if n := countMessages(t, stack, "alice@display.example"); n != 0 {
		t.Errorf("alice has %d messages, want 0", n)
	}
}

func TestStackLMTPDelivery(t *testing.T) {
	addr := freeAddr(t)
	stack, _ := startStack(t, []config.ListenerConfig{{Address: addr, Mode: config.ModeLMTP}})

	c := dialRaw(t, addr)
	c.cmd("LHLO client.test", "250")
	c.cmd("MAIL FROM:<bob@sender.example>", "250")
	c.cmd("RCPT TO:<alice@recv.example>", "250")
	c.cmd("RCPT TO:<carol@recv.example>", "250")
	c.data(stackMessage)

	// One reply per recipient.
	for i := 0; i < 2; i++ {
		if reply := c.reply(); !strings.HasPrefix(reply, "250") {
			t.Fatalf("recipient %d: expected 250, got %q", i, reply)
		}
	}
	c.cmd("QUIT", "221")

	if n := countMessages(t, stack, "alice@display.example"); n != 1 {
		t.Errorf("alice has %d messages, want 1", n)
	}
	// carol has no account and lands in the display domain sink.
	if n := countMessages(t, stack, "root@display.example"); n != 1 {
		t.Errorf("sink has %d messages, want 1", n)
	}
}

func TestLoadTLSConfigEmpty(t *testing.T) {
	tlsConfig, err := smtpserver.LoadTLSConfig(config.TLSConfig{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if tlsConfig != nil {
		t.Error("expected nil TLS config without certificates")
	}

	if _, err := smtpserver.LoadTLSConfig(config.TLSConfig{CertFile: "/nonexistent.pem", KeyFile: "/nonexistent.key"}); err == nil {
		t.Error("expected error for missing certificate files")
	}
}
