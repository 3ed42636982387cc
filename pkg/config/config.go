// Package config loads YAML configuration files with environment
// variable expansion and strict field checking.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Validator is implemented by configuration types that can validate
// themselves after loading.
type Validator interface {
	Validate() error
}

// Load reads filename, expands ${VAR} references from the environment,
// and unmarshals the result into target. Unknown YAML keys are
// rejected, so typos in config files fail loudly. If target implements
// Validator, its Validate method runs after unmarshalling.
func Load[T any](filename string, target *T) error {
	data, err := os.ReadFile(filename)
	if err != nil {
		return fmt.Errorf("failed to read config file %s: %w", filename, err)
	}

	expanded := os.ExpandEnv(string(data))

	dec := yaml.NewDecoder(bytes.NewReader([]byte(expanded)))
	dec.KnownFields(true)
	if err := dec.Decode(target); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", filename, err)
	}

	if validator, ok := any(target).(Validator); ok {
		if err := validator.Validate(); err != nil {
			return fmt.Errorf("config validation failed: %w", err)
		}
	}

	return nil
}

// LoadOptional is Load for config files that may not exist: a missing
// file leaves target untouched and returns (false, nil), so the caller
// keeps whatever defaults it seeded. Any other failure is an error.
func LoadOptional[T any](filename string, target *T) (bool, error) {
	if _, err := os.Stat(filename); errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	if err := Load(filename, target); err != nil {
		return false, err
	}
	return true, nil
}
