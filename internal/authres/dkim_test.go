package authres

import (
	"bytes"
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"strings"
	"testing"

	msgauthres "github.com/emersion/go-msgauth/authres"
	"github.com/emersion/go-msgauth/dkim"
)

const testMessage = "From: Sender <sender@signer.example>\r\n" +
	"To: user@recv.example\r\n" +
	"Subject: signed\r\n" +
	"Message-ID: <1@signer.example>\r\n" +
	"\r\n" +
	"Hello, this body is signed.\r\n"

func signMessage(t *testing.T) ([]byte, LookupTXTFunc) {
	t.Helper()
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}

	var signed bytes.Buffer
	err = dkim.Sign(&signed, strings.NewReader(testMessage), &dkim.SignOptions{
		Domain:   "signer.example",
		Selector: "sel",
		Signer:   priv,
	})
	if err != nil {
		t.Fatalf("sign: %v", err)
	}

	record := "v=DKIM1; k=ed25519; p=" + base64.StdEncoding.EncodeToString(pub)
	lookup := func(_ context.Context, domain string) ([]string, error) {
		if domain == "sel._domainkey.signer.example" {
			return []string{record}, nil
		}
		return nil, errors.New("no such record")
	}
	return signed.Bytes(), lookup
}

func TestVerify(t *testing.T) {
	signed, lookup := signMessage(t)
	tampered := bytes.Replace(signed, []byte("Hello"), []byte("Howdy"), 1)

	tests := []struct {
		name       string
		raw        []byte
		want       msgauthres.ResultValue
		wantDomain string
		wantCount  int
	}{
		{"valid signature", signed, msgauthres.ResultPass, "signer.example", 1},
		{"tampered body", tampered, msgauthres.ResultFail, "signer.example", 1},
		{"unsigned", []byte(testMessage), msgauthres.ResultNone, "", 0},
	}

	v := NewVerifier(lookup)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := v.Verify(context.Background(), tt.raw)
			if err != nil {
				t.Fatalf("Verify: %v", err)
			}
			if res.Value != tt.want {
				t.Errorf("value = %s, want %s", res.Value, tt.want)
			}
			if res.Domain != tt.wantDomain {
				t.Errorf("domain = %q, want %q", res.Domain, tt.wantDomain)
			}
			if len(res.Results) != tt.wantCount {
				t.Errorf("results = %d, want %d", len(res.Results), tt.wantCount)
			}
		})
	}
}

func TestVerifyMissingKey(t *testing.T) {
	signed, _ := signMessage(t)
	v := NewVerifier(func(context.Context, string) ([]string, error) {
		return nil, errors.New("lookup failed")
	})
	res, err := v.Verify(context.Background(), signed)
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if res.Value == msgauthres.ResultPass || res.Value == msgauthres.ResultNone {
		t.Errorf("value = %s, want a failure", res.Value)
	}
}

func TestHeader(t *testing.T) {
	signed, lookup := signMessage(t)
	res, err := NewVerifier(lookup).Verify(context.Background(), signed)
	if err != nil {
		t.Fatal(err)
	}
	h := res.Header("mx.recv.example")
	if !strings.HasPrefix(h, "mx.recv.example") || !strings.Contains(h, "dkim=pass") {
		t.Errorf("header = %q", h)
	}

	none := Result{Value: msgauthres.ResultNone}.Header("mx.recv.example")
	if !strings.Contains(none, "dkim=none") {
		t.Errorf("header = %q", none)
	}
}

func TestRank(t *testing.T) {
	if rank(msgauthres.ResultPass) <= rank(msgauthres.ResultFail) {
		t.Error("pass must outrank fail")
	}
	if rank(msgauthres.ResultNone) <= rank("") {
		t.Error("none must outrank unknown")
	}
}
