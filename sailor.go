// Package sailor provides the secure transport and stream decoding used to
// talk to a remote Portainer server: a trust-on-first-use TLS connection
// guard backed by a fingerprint trust store, and a delimiter-based stream
// demultiplexer for chunked build-log responses.
package sailor

import (
	"crypto/sha256"
	"crypto/x509"
	"encoding/hex"
	"encoding/pem"
	"errors"
	"fmt"
	"strings"
)

// ParsePEMCertificates parses all certificates from a PEM bundle.
func ParsePEMCertificates(pemData []byte) ([]*x509.Certificate, error) {
	var certs []*x509.Certificate
	rest := pemData
	for {
		var block *pem.Block
		block, rest = pem.Decode(rest)
		if block == nil {
			break
		}
		if block.Type != "CERTIFICATE" {
			continue
		}
		cert, err := x509.ParseCertificate(block.Bytes)
		if err != nil {
			return nil, fmt.Errorf("parsing certificate: %w", err)
		}
		certs = append(certs, cert)
	}
	if len(certs) == 0 {
		return nil, errors.New("no certificates found in PEM data")
	}
	return certs, nil
}

// CertToPEM encodes a certificate as PEM.
func CertToPEM(cert *x509.Certificate) string {
	return string(pem.EncodeToMemory(&pem.Block{
		Type:  "CERTIFICATE",
		Bytes: cert.Raw,
	}))
}

// ColonHex formats a byte slice as colon-separated lowercase hex.
func ColonHex(b []byte) string {
	h := hex.EncodeToString(b)
	parts := make([]string, 0, len(h)/2)
	for i := 0; i < len(h); i += 2 {
		end := min(i+2, len(h))
		parts = append(parts, h[i:end])
	}
	return strings.Join(parts, ":")
}

// CertFingerprintColonSHA256 returns the SHA-256 fingerprint of a certificate
// in uppercase colon-separated hex format (AA:BB:CC:...). This is the
// canonical fingerprint form kept in the trust store.
func CertFingerprintColonSHA256(cert *x509.Certificate) string {
	hash := sha256.Sum256(cert.Raw)
	return strings.ToUpper(ColonHex(hash[:]))
}

// NormalizeFingerprint canonicalizes a fingerprint for comparison and storage.
// Surrounding whitespace is removed and hex digits are uppercased. A
// colon-free hex string of even length is rewritten in colon-separated form so
// "abcd" and "AB:CD" compare equal. Anything else is only trimmed and
// uppercased.
func NormalizeFingerprint(fingerprint string) string {
	fp := strings.ToUpper(strings.TrimSpace(fingerprint))
	if strings.Contains(fp, ":") || len(fp)%2 != 0 {
		return fp
	}
	raw, err := hex.DecodeString(fp)
	if err != nil || len(raw) == 0 {
		return fp
	}
	return strings.ToUpper(ColonHex(raw))
}

// CertIssuerSummary returns the issuer's CN, O, L, ST and C joined with
// commas, skipping blank fields. Returns "<unknown>" if every field is blank.
func CertIssuerSummary(cert *x509.Certificate) string {
	issuer := cert.Issuer
	segments := []string{issuer.CommonName}
	segments = append(segments, issuer.Organization...)
	segments = append(segments, issuer.Locality...)
	segments = append(segments, issuer.Province...)
	segments = append(segments, issuer.Country...)
	return joinNonBlank(segments)
}

// CertSubjectSummary returns the certificate's subject alternative names in
// "DNS:x, IP Address:y" form, falling back to the subject common name.
// Returns "<unknown>" if neither is present.
func CertSubjectSummary(cert *x509.Certificate) string {
	var names []string
	for _, dns := range cert.DNSNames {
		names = append(names, "DNS:"+dns)
	}
	for _, ip := range cert.IPAddresses {
		names = append(names, "IP Address:"+ip.String())
	}
	if len(names) > 0 {
		return strings.Join(names, ", ")
	}
	return joinNonBlank([]string{cert.Subject.CommonName})
}

func joinNonBlank(segments []string) string {
	var kept []string
	for _, s := range segments {
		if s = strings.TrimSpace(s); s != "" {
			kept = append(kept, s)
		}
	}
	if len(kept) == 0 {
		return "<unknown>"
	}
	return strings.Join(kept, ", ")
}
