package sailor

import (
	"bytes"
	"crypto/x509"
	"errors"
)

// DefaultPasswords returns the list of passwords tried by default when opening
// password-protected PKCS#12 or JKS files. Returns a fresh copy each call.
func DefaultPasswords() []string {
	return []string{"", "password", "changeit", "keypassword"}
}

// DeduplicatePasswords merges additional passwords with the defaults and removes
// duplicates while preserving order. Defaults come first.
func DeduplicatePasswords(extra []string) []string {
	all := append(DefaultPasswords(), extra...)
	seen := make(map[string]bool, len(all))
	result := make([]string, 0, len(all))
	for _, p := range all {
		if !seen[p] {
			seen[p] = true
			result = append(result, p)
		}
	}
	return result
}

// LoadCertificates extracts every certificate from a certificate container.
// Formats are tried in order: PKCS#12, JKS, PKCS#7, PEM, then a single DER
// certificate. Password-protected formats are tried with each password.
func LoadCertificates(data []byte, passwords []string) ([]*x509.Certificate, error) {
	if len(data) == 0 {
		return nil, errors.New("empty certificate data")
	}

	for _, pw := range passwords {
		if certs, err := DecodePKCS12Certificates(data, pw); err == nil {
			return certs, nil
		}
	}

	for _, pw := range passwords {
		if certs, err := DecodeJKSCertificates(data, pw); err == nil {
			return certs, nil
		}
	}

	if certs, err := DecodePKCS7(data); err == nil {
		return certs, nil
	}

	if bytes.Contains(data, []byte("-----BEGIN")) {
		return ParsePEMCertificates(data)
	}

	cert, err := x509.ParseCertificate(data)
	if err == nil {
		return []*x509.Certificate{cert}, nil
	}

	return nil, errors.New("could not parse data as PKCS#12, JKS, PKCS#7, PEM, or DER")
}
