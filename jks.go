package sailor

import (
	"bytes"
	"crypto/x509"
	"errors"
	"fmt"

	"github.com/pavlo-v-chernykh/keystore-go/v4"
)

// DecodeJKSCertificates decodes a Java KeyStore (JKS) and returns the
// certificates it contains. The same password is used for both the store and
// individual entries (standard Java convention).
//
// TrustedCertificateEntry entries yield their certificate. PrivateKeyEntry
// entries yield their certificate chain; the keys themselves are ignored.
// Individual entry errors are skipped; an error is returned only if the store
// cannot be loaded or no certificate is found.
func DecodeJKSCertificates(data []byte, password string) ([]*x509.Certificate, error) {
	ks := keystore.New()
	if err := ks.Load(bytes.NewReader(data), []byte(password)); err != nil {
		return nil, fmt.Errorf("loading JKS: %w", err)
	}

	var certs []*x509.Certificate
	for _, alias := range ks.Aliases() {
		if ks.IsTrustedCertificateEntry(alias) {
			entry, err := ks.GetTrustedCertificateEntry(alias)
			if err != nil {
				continue
			}
			cert, err := x509.ParseCertificate(entry.Certificate.Content)
			if err != nil {
				continue
			}
			certs = append(certs, cert)
		}

		if ks.IsPrivateKeyEntry(alias) {
			chain, err := ks.GetPrivateKeyEntryCertificateChain(alias)
			if err != nil {
				continue
			}
			for _, certEntry := range chain {
				cert, err := x509.ParseCertificate(certEntry.Content)
				if err != nil {
					continue
				}
				certs = append(certs, cert)
			}
		}
	}

	if len(certs) == 0 {
		return nil, errors.New("JKS contains no usable certificates")
	}
	return certs, nil
}
