package sailor

import (
	"context"
	"errors"
	"io"
	"net"
	"testing"
	"time"
)

// badSSLGuard returns a guard using the embedded Mozilla roots, skipping the
// test when the network or badssl.com is unavailable.
func badSSLGuard(t *testing.T, trust *TrustStore, prompter Prompter) *Guard {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping network test in short mode")
	}
	conn, err := net.DialTimeout("tcp", "badssl.com:443", 5*time.Second)
	if err != nil {
		t.Skipf("badssl.com unreachable: %v", err)
	}
	_ = conn.Close()

	roots, err := RootPool("mozilla")
	if err != nil {
		t.Fatal(err)
	}
	g, err := NewGuard(GuardOptions{Trust: trust, Prompter: prompter, Roots: roots, Output: io.Discard, DialTimeout: 10 * time.Second})
	if err != nil {
		t.Fatal(err)
	}
	return g
}

func connectBadSSL(g *Guard, host string) error {
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()
	conn, err := g.Connect(ctx, ConnectOptions{Host: host, Addr: net.JoinHostPort(host, "443")})
	if err == nil {
		_ = conn.Close()
	}
	return err
}

func TestBadSSL_Rejected(t *testing.T) {
	// WHY: Real-world broken certificates must be classified by kind and
	// rejected when nobody approves them.
	t.Parallel()

	tests := []struct {
		host string
		kind error
	}{
		{"expired.badssl.com", ErrHandshakeAuthorization},
		{"self-signed.badssl.com", ErrHandshakeAuthorization},
		{"untrusted-root.badssl.com", ErrHandshakeAuthorization},
		{"wrong.host.badssl.com", ErrHostnameIdentity},
	}
	for _, tt := range tests {
		t.Run(tt.host, func(t *testing.T) {
			t.Parallel()
			g := badSSLGuard(t, NewTrustStore(&MemoryFingerprints{}), nil)
			err := connectBadSSL(g, tt.host)
			if !errors.Is(err, ErrCertificateRejected) || !errors.Is(err, tt.kind) {
				t.Errorf("err = %v, want ErrCertificateRejected wrapping %v", err, tt.kind)
			}
		})
	}
}

func TestBadSSL_Valid(t *testing.T) {
	// WHY: A publicly trusted certificate must connect without ever
	// consulting the trust store's prompt.
	t.Parallel()
	prompter := PrompterFunc(func(context.Context, string) (bool, error) {
		t.Error("prompted for a valid certificate")
		return false, nil
	})
	g := badSSLGuard(t, NewTrustStore(&MemoryFingerprints{}), prompter)
	if err := connectBadSSL(g, "badssl.com"); err != nil {
		t.Errorf("connecting to badssl.com: %v", err)
	}
}

func TestBadSSL_TrustOnFirstUse(t *testing.T) {
	// WHY: Approving a self-signed certificate once must persist its
	// fingerprint so the next connection succeeds without a prompt.
	t.Parallel()
	fps := &MemoryFingerprints{}
	prompts := 0
	prompter := PrompterFunc(func(context.Context, string) (bool, error) {
		prompts++
		return true, nil
	})
	g := badSSLGuard(t, NewTrustStore(fps), prompter)

	for range 2 {
		if err := connectBadSSL(g, "self-signed.badssl.com"); err != nil {
			t.Fatalf("connecting: %v", err)
		}
	}
	if prompts != 1 {
		t.Errorf("prompted %d times, want 1", prompts)
	}
	stored, _ := fps.Fingerprints()
	if len(stored) != 1 {
		t.Errorf("stored fingerprints = %v, want one", stored)
	}
}
