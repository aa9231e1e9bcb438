// Package encoding provides small helpers for loading configuration from
// disk.
package encoding

import (
	"bytes"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// LoadAndUnmarshal reads the file at path and invokes unmarshal on its
// contents. A not-exist error is passed through unwrapped so callers can use
// os.IsNotExist to distinguish "no config file" from "bad config file".
func LoadAndUnmarshal(path string, unmarshal func([]byte) error) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return err
		}
		return fmt.Errorf("unable to load file: %w", err)
	}
	if err := unmarshal(data); err != nil {
		return fmt.Errorf("unable to unmarshal data: %w", err)
	}
	return nil
}

// LoadAndUnmarshalYAML loads YAML data from the specified path and decodes
// it into value. Unknown fields are rejected (KnownFields) so a typo in the
// configuration file fails loudly instead of silently being ignored.
func LoadAndUnmarshalYAML(path string, value interface{}) error {
	return LoadAndUnmarshal(path, func(data []byte) error {
		decoder := yaml.NewDecoder(bytes.NewReader(data))
		decoder.KnownFields(true)
		return decoder.Decode(value)
	})
}
