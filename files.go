package tactus

import (
	"encoding/json"
	"fmt"

	"gopkg.in/yaml.v3"
)

// ParseComposition reads a composition from its serialized form. The
// primary format is YAML; JSON is accepted as a fallback since every
// JSON document is also valid YAML metadata-wise but gives better
// errors when parsed directly.
func ParseComposition(data []byte) (*Composition, error) {
	var c Composition
	if errJSON := json.Unmarshal(data, &c); errJSON != nil {
		if errYaml := yaml.Unmarshal(data, &c); errYaml != nil {
			return nil, fmt.Errorf("the composition could not be parsed as .json (%v) or .yml (%v)", errJSON, errYaml)
		}
	}
	c.attach()
	return &c, nil
}

// FormatComposition serializes a composition as YAML.
func FormatComposition(c *Composition) ([]byte, error) {
	out, err := yaml.Marshal(c)
	if err != nil {
		return nil, fmt.Errorf("could not marshal composition: %w", err)
	}
	return out, nil
}
