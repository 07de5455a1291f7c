package descriptor

import (
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

// document is the shape accepted from external configuration sources. Either a
// bare list or an object with a "descriptors" key is accepted.
type document struct {
	Descriptors []Resource `yaml:"descriptors"`
}

// Decode parses a YAML or JSON descriptor document and prepares it.
func Decode(data []byte) ([]Resource, error) {
	trimmed := strings.TrimSpace(string(data))
	if trimmed == "" {
		return []Resource{}, nil
	}

	var list []Resource
	if strings.HasPrefix(trimmed, "[") || strings.HasPrefix(trimmed, "-") {
		if err := yaml.Unmarshal(data, &list); err != nil {
			return nil, fmt.Errorf("failed to parse descriptor list: %w", err)
		}
	} else {
		var doc document
		if err := yaml.Unmarshal(data, &doc); err != nil {
			return nil, fmt.Errorf("failed to parse descriptor document: %w", err)
		}
		list = doc.Descriptors
	}

	return Prepare(list)
}

// Encode renders a descriptor list as a YAML document.
func Encode(list []Resource) ([]byte, error) {
	return yaml.Marshal(document{Descriptors: list})
}
