package config

import (
	"os"

	"golang.org/x/xerrors"
	"gopkg.in/yaml.v3"
)

// NewFile reads YAML settings from path. Keys left out keep their defaults.
func NewFile(path string) (IService, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, xerrors.Errorf("read config %s: %w", path, err)
	}

	s := Defaults()
	if err := yaml.Unmarshal(data, &s); err != nil {
		return nil, xerrors.Errorf("parse config %s: %w", path, err)
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return NewHardCoded(s), nil
}
