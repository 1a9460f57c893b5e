package sailor

import (
	"crypto/x509"
	"errors"
	"fmt"

	"github.com/breml/rootcerts/embedded"
)

// RootPool returns the trust anchors the guard evaluates peer chains against.
// Recognized stores are "system" (the platform pool), "mozilla" (the embedded
// Mozilla CA bundle), and "custom" (only the given certificates).
func RootPool(trustStore string, custom ...*x509.Certificate) (*x509.CertPool, error) {
	switch trustStore {
	case "system", "":
		pool, err := x509.SystemCertPool()
		if err != nil {
			return nil, fmt.Errorf("loading system cert pool: %w", err)
		}
		return pool, nil
	case "mozilla":
		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM([]byte(embedded.MozillaCACertificatesPEM())) {
			return nil, errors.New("parsing embedded Mozilla root certificates")
		}
		return pool, nil
	case "custom":
		pool := x509.NewCertPool()
		for _, cert := range custom {
			pool.AddCert(cert)
		}
		return pool, nil
	default:
		return nil, fmt.Errorf("unknown trust store: %q", trustStore)
	}
}
