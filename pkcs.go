package sailor

import (
	"crypto/x509"
	"errors"
	"fmt"

	"github.com/smallstep/pkcs7"
	gopkcs12 "software.sslmate.com/src/go-pkcs12"
)

// DecodePKCS12Certificates decodes a PKCS#12/PFX bundle and returns every
// certificate it holds, leaf first. Stores that only carry trusted
// certificates (no private key) are also accepted.
func DecodePKCS12Certificates(pfxData []byte, password string) ([]*x509.Certificate, error) {
	_, leaf, caCerts, err := gopkcs12.DecodeChain(pfxData, password)
	if err == nil {
		return append([]*x509.Certificate{leaf}, caCerts...), nil
	}
	trusted, trustErr := gopkcs12.DecodeTrustStore(pfxData, password)
	if trustErr == nil && len(trusted) > 0 {
		return trusted, nil
	}
	return nil, fmt.Errorf("decoding PKCS#12: %w", err)
}

// DecodePKCS7 decodes a DER-encoded PKCS#7 bundle and returns the certificates it contains.
// Returns an error if decoding fails or the bundle contains no certificates.
func DecodePKCS7(derData []byte) ([]*x509.Certificate, error) {
	p7, err := pkcs7.Parse(derData)
	if err != nil {
		return nil, fmt.Errorf("parsing PKCS#7: %w", err)
	}
	if len(p7.Certificates) == 0 {
		return nil, errors.New("PKCS#7 bundle contains no certificates")
	}
	return p7.Certificates, nil
}
