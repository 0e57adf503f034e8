package config

import (
	_ "embed"
)

//go:embed defaults.yaml
var defaultsYAML []byte

var defaults Config

func init() {
	cfg, err := ParseYAML(defaultsYAML)
	if err != nil {
		panic(err)
	}
	defaults = *cfg
}

// Default returns a copy of the built-in configuration.
func Default() *Config {
	cfg := defaults
	return &cfg
}
