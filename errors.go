package sailor

import (
	"errors"
	"fmt"
)

var (
	// ErrHandshakeAuthorization is returned when the peer's certificate chain
	// is invalid, expired, or signed by an unknown authority.
	ErrHandshakeAuthorization = errors.New("sailor: certificate authorization failed")

	// ErrHostnameIdentity is returned when a valid certificate does not match
	// the requested host.
	ErrHostnameIdentity = errors.New("sailor: certificate does not match host")

	// ErrCertificateRejected is returned when the user declines to trust an
	// erroneous certificate, or the trust prompt fails.
	ErrCertificateRejected = errors.New("sailor: rejected TLS certificate")

	// ErrMissingHost is returned when no host name is available to verify the
	// peer's identity against.
	ErrMissingHost = errors.New("sailor: no host was available on the connection")

	// ErrStreamCancelled is returned when a stream is aborted by its context.
	ErrStreamCancelled = errors.New("sailor: stream cancelled")

	// ErrUnsupportedSource is returned when a stream source is neither a
	// reader nor a chunk sequence.
	ErrUnsupportedSource = errors.New("sailor: unsupported stream source")

	// ErrEmptyDelimiter is returned when splitting on an empty literal or byte
	// delimiter.
	ErrEmptyDelimiter = errors.New("sailor: empty delimiter")
)

// CertificateError describes a failed certificate check for one connection
// attempt. It matches both its Kind sentinel and its cause with errors.Is.
type CertificateError struct {
	Kind        error
	Host        string
	Fingerprint string
	Err         error
}

func (e *CertificateError) Error() string {
	if e.Err == nil {
		return e.Kind.Error()
	}
	return e.Err.Error()
}

func (e *CertificateError) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

// BuildError is a failure reported inside a build-log stream.
type BuildError struct {
	Message string
}

func (e *BuildError) Error() string {
	return fmt.Sprintf("build failed: %s", e.Message)
}
