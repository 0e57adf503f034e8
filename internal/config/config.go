package config

import (
	"bytes"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"
	"go.uber.org/multierr"
	"gopkg.in/yaml.v3"
)

const Version = "v1"

// Config is the content of cellbook.yaml.
type Config struct {
	Version   string          `yaml:"version" validate:"required,eq=v1"`
	Kernel    KernelConfig    `yaml:"kernel"`
	Log       LogConfig       `yaml:"log"`
	Server    ServerConfig    `yaml:"server"`
	Execution ExecutionConfig `yaml:"execution"`
}

type LogConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
	Verbose bool   `yaml:"verbose"`
}

type ServerConfig struct {
	Address string `yaml:"address" validate:"required,hostname_port"`
	// Token enables bearer authentication of the HTTP API when set.
	Token string `yaml:"token"`
}

type ExecutionConfig struct {
	Timeout time.Duration `yaml:"timeout" validate:"gte=0"`
}

// ParseYAML decodes documents in order, each overriding the fields the
// previous ones set, and validates the result.
func ParseYAML(data ...[]byte) (*Config, error) {
	var cfg Config
	if err := decodeYAML(&cfg, data...); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func decodeYAML(cfg *Config, data ...[]byte) error {
	for _, d := range data {
		if len(bytes.TrimSpace(d)) == 0 {
			continue
		}
		dec := yaml.NewDecoder(bytes.NewReader(d))
		dec.KnownFields(true)
		if err := dec.Decode(cfg); err != nil {
			return errors.Wrap(err, "failed to parse config")
		}
	}
	return nil
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("yaml"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// Validate reports every invalid field, keyed by its yaml path.
func (c *Config) Validate() error {
	err := validate.Struct(c)
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return errors.WithStack(err)
	}

	var result error
	for _, fe := range fieldErrs {
		result = multierr.Append(result, fieldError(fe))
	}
	return errors.Wrap(result, "failed to validate config")
}

func fieldError(fe validator.FieldError) error {
	// Drop the root struct name.
	_, path, _ := strings.Cut(fe.Namespace(), ".")
	if fe.Param() != "" {
		return errors.Errorf("%s: failed on %s=%s (got %v)", path, fe.Tag(), fe.Param(), fe.Value())
	}
	return errors.Errorf("%s: failed on %s (got %v)", path, fe.Tag(), fe.Value())
}
