package scoring

import (
	"io"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"
)

// ParseProfileYAML decodes a weight profile from YAML and validates it.
// The file carries name, version, weights, tiers, and fatal-flaw
// thresholds; ID and active status are assigned at save time.
func ParseProfileYAML(r io.Reader) (*WeightProfile, error) {
	var p WeightProfile
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&p); err != nil {
		return nil, eris.Wrap(err, "scoring: decode profile yaml")
	}
	if p.Version == 0 {
		p.Version = 1
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return &p, nil
}
