package internal

import (
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"
)

// TrustSeed is the YAML document used to share trusted fingerprints between
// machines.
type TrustSeed struct {
	Fingerprints []string `yaml:"fingerprints"`
}

// LoadTrustSeed reads fingerprints from a YAML seed file. Both the
// `fingerprints:` document and a bare YAML list are accepted; an empty file
// yields no fingerprints.
func LoadTrustSeed(path string) ([]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading trust seed: %w", err)
	}

	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parsing trust seed %s: %w", path, err)
	}
	if len(doc.Content) == 0 {
		return nil, nil
	}

	root := doc.Content[0]
	switch root.Kind {
	case yaml.MappingNode:
		var seed TrustSeed
		if err := root.Decode(&seed); err != nil {
			return nil, fmt.Errorf("decoding trust seed %s: %w", path, err)
		}
		return seed.Fingerprints, nil
	case yaml.SequenceNode:
		var list []string
		if err := root.Decode(&list); err != nil {
			return nil, fmt.Errorf("decoding trust seed %s: %w", path, err)
		}
		return list, nil
	default:
		return nil, fmt.Errorf("trust seed %s: expected a mapping or a list", path)
	}
}

// WriteTrustSeed writes fingerprints as a YAML seed document.
func WriteTrustSeed(w io.Writer, fingerprints []string) error {
	if fingerprints == nil {
		fingerprints = []string{}
	}
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(TrustSeed{Fingerprints: fingerprints}); err != nil {
		return fmt.Errorf("encoding trust seed: %w", err)
	}
	return enc.Close()
}
