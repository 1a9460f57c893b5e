package sailor

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"
)

// trustQuestion is the confirmation shown after an erroneous certificate is reported.
const trustQuestion = "Permanently trust this certificate?"

// Prompter asks the user a yes/no question. An error is treated as "no".
type Prompter interface {
	Confirm(ctx context.Context, message string) (bool, error)
}

// PrompterFunc adapts a function to the Prompter interface.
type PrompterFunc func(ctx context.Context, message string) (bool, error)

// Confirm calls f(ctx, message).
func (f PrompterFunc) Confirm(ctx context.Context, message string) (bool, error) {
	return f(ctx, message)
}

// GuardOptions configures a Guard.
type GuardOptions struct {
	// Trust holds the fingerprints the user has already approved. Required.
	Trust *TrustStore
	// Prompter asks whether to trust an erroneous certificate. When nil,
	// untrusted erroneous certificates are always rejected.
	Prompter Prompter
	// Roots are the trust anchors used to evaluate the peer chain. When nil,
	// the system pool is used.
	Roots *x509.CertPool
	// Report receives the failed attempt before the user is prompted. When
	// nil, FormatAttempt output is written to Output.
	Report func(*ConnectionAttempt)
	// Output receives the default report. Defaults to os.Stderr.
	Output io.Writer
	// DialTimeout bounds the TCP connect. Zero means no timeout.
	DialTimeout time.Duration
	// Now overrides the clock used for chain validation.
	Now func() time.Time
}

// ConnectOptions identify one outbound TLS connection.
type ConnectOptions struct {
	// Host is the name the peer certificate must match.
	Host string
	// Addr is the host:port to dial.
	Addr string
	// NextProtos is the ALPN list. Defaults to http/1.1.
	NextProtos []string
}

// ConnectionAttempt records the outcome of the certificate checks for one
// handshake. It lives only for the duration of one trust decision.
type ConnectionAttempt struct {
	Host        string
	Certificate *x509.Certificate
	Fingerprint string
	// Authorized is true when the chain verified against the guard's roots.
	Authorized         bool
	AuthorizationError error
	// IdentityError is set when the chain is valid but does not match Host.
	IdentityError error
}

// Err returns the certificate failure for the attempt, or nil when both the
// chain and the host name checks passed.
func (a *ConnectionAttempt) Err() error {
	if !a.Authorized {
		cause := a.AuthorizationError
		if cause == nil {
			cause = errors.New("certificate chain was not authorized")
		}
		return &CertificateError{Kind: ErrHandshakeAuthorization, Host: a.Host, Fingerprint: a.Fingerprint, Err: cause}
	}
	if a.IdentityError != nil {
		return &CertificateError{Kind: ErrHostnameIdentity, Host: a.Host, Fingerprint: a.Fingerprint, Err: a.IdentityError}
	}
	return nil
}

// FormatAttempt renders the diagnostic block shown before the trust prompt.
func FormatAttempt(a *ConnectionAttempt) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Host %s returned a TLS certificate that is invalid, expired, or self-signed.\n", a.Host)
	if err := a.Err(); err != nil {
		fmt.Fprintf(&sb, "Authorization error: %s\n", err)
	}
	subject, issuer, expiry := "<unknown>", "<unknown>", "<unknown>"
	if a.Certificate != nil {
		subject = CertSubjectSummary(a.Certificate)
		issuer = CertIssuerSummary(a.Certificate)
		expiry = a.Certificate.NotAfter.UTC().Format(time.RFC3339)
	}
	fmt.Fprintf(&sb, "  Fingerprint: %s\n", a.Fingerprint)
	fmt.Fprintf(&sb, "  Subject: %s\n", subject)
	fmt.Fprintf(&sb, "  Issuer: %s\n", issuer)
	fmt.Fprintf(&sb, "  Expiration: %s\n", expiry)
	sb.WriteString("This could indicate that you've connected to the wrong server or possibly something more nefarious.\n")
	sb.WriteString("Only proceed if you're certain that this error is expected!\n")
	return sb.String()
}

// Guard establishes TLS connections whose certificates either verify normally
// or have been explicitly trusted by the user. Verification is disabled inside
// the handshake and performed afterwards, so failures can be reconciled
// against the trust store instead of aborting the connection. Only exact leaf
// fingerprints are ever trusted.
type Guard struct {
	trust    *TrustStore
	prompter Prompter
	roots    *x509.CertPool
	report   func(*ConnectionAttempt)
	dialer   *net.Dialer
	now      func() time.Time

	// promptMu serializes trust prompts so concurrent first-use decisions on
	// the same fingerprint ask only once.
	promptMu sync.Mutex
}

// NewGuard creates a Guard from the given options.
func NewGuard(opts GuardOptions) (*Guard, error) {
	if opts.Trust == nil {
		return nil, errors.New("guard requires a trust store")
	}
	g := &Guard{
		trust:    opts.Trust,
		prompter: opts.Prompter,
		roots:    opts.Roots,
		report:   opts.Report,
		dialer:   &net.Dialer{Timeout: opts.DialTimeout},
		now:      opts.Now,
	}
	if g.now == nil {
		g.now = time.Now
	}
	if g.report == nil {
		out := opts.Output
		if out == nil {
			out = os.Stderr
		}
		g.report = func(a *ConnectionAttempt) {
			_, _ = io.WriteString(out, FormatAttempt(a))
		}
	}
	return g, nil
}

// Transport returns an HTTP transport that dials every https connection
// through the guard.
func (g *Guard) Transport() *http.Transport {
	return &http.Transport{
		DialTLSContext:  g.DialTLSContext,
		MaxIdleConns:    10,
		IdleConnTimeout: 90 * time.Second,
	}
}

// DialTLSContext has the signature of http.Transport.DialTLSContext. The host
// portion of addr is the name the certificate must match.
func (g *Guard) DialTLSContext(ctx context.Context, network, addr string) (net.Conn, error) {
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		return nil, fmt.Errorf("parsing address %q: %w", addr, err)
	}
	if network != "tcp" && network != "tcp4" && network != "tcp6" {
		return nil, fmt.Errorf("unsupported network %q", network)
	}
	conn, err := g.Connect(ctx, ConnectOptions{Host: host, Addr: addr})
	if err != nil {
		return nil, err
	}
	return conn, nil
}

// Connect dials opts.Addr, performs exactly one TLS handshake, and then
// decides whether the peer may be used. A connection is returned when the
// certificate verifies and matches opts.Host, when its fingerprint is already
// trusted, or when the user agrees to trust it (which is persisted). Otherwise
// the connection is closed and an error is returned.
func (g *Guard) Connect(ctx context.Context, opts ConnectOptions) (*tls.Conn, error) {
	if opts.Host == "" {
		return nil, &CertificateError{Kind: ErrMissingHost}
	}
	nextProtos := opts.NextProtos
	if len(nextProtos) == 0 {
		nextProtos = []string{"http/1.1"}
	}

	slog.Debug("connecting using TLS", "host", opts.Host, "addr", opts.Addr)

	raw, err := g.dialer.DialContext(ctx, "tcp", opts.Addr)
	if err != nil {
		return nil, fmt.Errorf("dialing %s: %w", opts.Addr, err)
	}

	conn := tls.Client(raw, &tls.Config{
		ServerName:         opts.Host,
		NextProtos:         nextProtos,
		InsecureSkipVerify: true, //nolint:gosec // the chain and host name are verified after the handshake
	})
	if err := conn.HandshakeContext(ctx); err != nil {
		_ = raw.Close()
		return nil, fmt.Errorf("tls handshake with %s: %w", opts.Addr, err)
	}

	slog.Debug("connected", "host", opts.Host, "remote", conn.RemoteAddr().String())

	attempt := g.inspect(opts.Host, conn.ConnectionState())
	if err := g.decide(ctx, attempt); err != nil {
		_ = conn.Close()
		return nil, err
	}
	return conn, nil
}

// inspect performs the two checks a verifying handshake would have done: chain
// validity against the guard's roots, then the host name match.
func (g *Guard) inspect(host string, state tls.ConnectionState) *ConnectionAttempt {
	attempt := &ConnectionAttempt{Host: host}
	if len(state.PeerCertificates) == 0 {
		attempt.AuthorizationError = errors.New("peer presented no certificates")
		return attempt
	}

	leaf := state.PeerCertificates[0]
	attempt.Certificate = leaf
	attempt.Fingerprint = CertFingerprintColonSHA256(leaf)

	intermediates := x509.NewCertPool()
	for _, cert := range state.PeerCertificates[1:] {
		intermediates.AddCert(cert)
	}
	_, err := leaf.Verify(x509.VerifyOptions{
		Roots:         g.roots,
		Intermediates: intermediates,
		CurrentTime:   g.now(),
		KeyUsages:     []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
	})
	if err != nil {
		attempt.AuthorizationError = err
		return attempt
	}
	attempt.Authorized = true

	if err := leaf.VerifyHostname(host); err != nil {
		attempt.IdentityError = err
	}
	return attempt
}

func (g *Guard) decide(ctx context.Context, attempt *ConnectionAttempt) error {
	failure := attempt.Err()
	if failure == nil {
		return nil
	}
	if attempt.Certificate == nil {
		return failure
	}

	trusted, err := g.trust.HasFingerprint(attempt.Fingerprint)
	if err != nil {
		return err
	}
	if trusted {
		slog.Debug("erroneous certificate is marked as trusted by the local user", "host", attempt.Host, "fingerprint", attempt.Fingerprint)
		return nil
	}

	g.promptMu.Lock()
	defer g.promptMu.Unlock()

	// Another connection may have been approved while this one waited.
	trusted, err = g.trust.HasFingerprint(attempt.Fingerprint)
	if err != nil {
		return err
	}
	if trusted {
		return nil
	}

	g.report(attempt)

	if g.prompter == nil {
		return fmt.Errorf("%w: %w", ErrCertificateRejected, failure)
	}
	confirmed, err := g.prompter.Confirm(ctx, trustQuestion)
	if err != nil {
		return fmt.Errorf("%w: %w (prompt failed: %w)", ErrCertificateRejected, failure, err)
	}
	if !confirmed {
		return fmt.Errorf("%w: %w", ErrCertificateRejected, failure)
	}

	if err := g.trust.AddFingerprint(attempt.Fingerprint); err != nil {
		return err
	}
	slog.Debug("added certificate to the local list of trusted fingerprints", "fingerprint", attempt.Fingerprint)
	return nil
}
