package internal

import (
	"crypto/x509"
	"fmt"
	"os"

	"github.com/sensiblebit/sailor"
)

// ContainerContents holds the certificates of a certificate container file.
type ContainerContents struct {
	// Leaf is the first certificate that is not a CA, or the first
	// certificate when every one is a CA.
	Leaf       *x509.Certificate
	ExtraCerts []*x509.Certificate
}

// All returns the leaf followed by the extra certificates.
func (c *ContainerContents) All() []*x509.Certificate {
	return append([]*x509.Certificate{c.Leaf}, c.ExtraCerts...)
}

// LoadContainerFile reads a file and parses it as PKCS#12, JKS, PKCS#7, PEM,
// or DER, trying each password for the protected formats.
func LoadContainerFile(path string, passwords []string) (*ContainerContents, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	certs, err := sailor.LoadCertificates(data, passwords)
	if err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	if len(certs) == 0 {
		return nil, fmt.Errorf("parsing %s: no certificates found", path)
	}

	leafIdx := 0
	for i, cert := range certs {
		if !cert.IsCA {
			leafIdx = i
			break
		}
	}
	contents := &ContainerContents{Leaf: certs[leafIdx]}
	for i, cert := range certs {
		if i != leafIdx {
			contents.ExtraCerts = append(contents.ExtraCerts, cert)
		}
	}
	return contents, nil
}
