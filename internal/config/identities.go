package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/driftline-systems/driftline/internal/egress"
)

type identityFile struct {
	Identities []egress.IdentitySpec `yaml:"identities"`
}

// LoadIdentities reads the egress identity roster from a YAML file.
func LoadIdentities(path string) ([]egress.IdentitySpec, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read identity file: %w", err)
	}

	var file identityFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse identity file: %w", err)
	}

	if len(file.Identities) == 0 {
		return nil, fmt.Errorf("identity file %s lists no identities", path)
	}

	seen := make(map[string]struct{}, len(file.Identities))
	for _, spec := range file.Identities {
		if spec.ID == "" {
			return nil, fmt.Errorf("identity file %s contains an identity with no id", path)
		}
		if spec.Addr == "" {
			return nil, fmt.Errorf("identity %s has no addr", spec.ID)
		}
		if _, dup := seen[spec.ID]; dup {
			return nil, fmt.Errorf("identity %s is listed twice", spec.ID)
		}
		seen[spec.ID] = struct{}{}
	}

	return file.Identities, nil
}
