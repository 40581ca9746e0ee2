package spec

import (
	"fmt"
	"io"
	"os"

	"github.com/mitchellh/mapstructure"
	"gopkg.in/yaml.v3"
)

// Load reads the specification file at path, decodes it (YAML or JSON) and
// returns a validated [Spec].
func Load(path string) (*Spec, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("spec: open %q: %w", path, err)
	}
	defer f.Close()

	sp, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("spec: load %q: %w", path, err)
	}
	return sp, nil
}

// LoadFromReader decodes a specification from r and validates the result.
// Useful in tests where specifications are built from string literals.
func LoadFromReader(r io.Reader) (*Spec, error) {
	sp := &Spec{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(sp); err != nil {
		return nil, fmt.Errorf("decode: %w", err)
	}
	if err := Validate(sp); err != nil {
		return nil, err
	}
	return sp, nil
}

// decodeBackendConfig decodes the raw Config mapping into the typed variant
// matching the backend kind. Unknown keys are an error so that typos in
// specification files surface at load time instead of silently defaulting.
func decodeBackendConfig(b *Backend) error {
	switch b.Type {
	case KindProcess:
		if b.Process != nil {
			return nil
		}
		cfg := &ProcessConfig{}
		if err := decodeStrict(b.Config, cfg); err != nil {
			return fmt.Errorf("backend config: %w", err)
		}
		b.Process = cfg
	case KindHTTP:
		if b.HTTP != nil {
			return nil
		}
		cfg := &HTTPConfig{}
		if err := decodeStrict(b.Config, cfg); err != nil {
			return fmt.Errorf("backend config: %w", err)
		}
		b.HTTP = cfg
	}
	return nil
}

func decodeStrict(in map[string]any, out any) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           out,
		ErrorUnused:      true,
		WeaklyTypedInput: true,
	})
	if err != nil {
		return err
	}
	return dec.Decode(in)
}
