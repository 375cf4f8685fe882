package tracepoint

import (
	"errors"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/goccy/go-yaml"

	"github.com/ardnew/tracepoint/sink"
)

// Config is the file format read by [LoadConfig]:
//
//	sink:
//	  kind: stream
//	  format: msgpack
//	  path: trace.mp
//	rules:
//	  - module: example.com/app/*
//	    name: parse*
//	    enable: true
//	  - func: "~flush"
//	    enable: true
//	    mode: configure
type Config struct {
	Sink  sink.Config `yaml:"sink,omitempty"`
	Rules []Rule      `yaml:"rules,omitempty"`
}

// Mode selects how a [Rule] is applied.
type Mode string

const (
	// ModeEnable applies a rule with [Registry.Enable].
	ModeEnable Mode = "enable"
	// ModeConfigure applies a rule with [Registry.Configure].
	ModeConfigure Mode = "configure"
)

// Rule sets the state of the tracepoints matching its filter.
type Rule struct {
	FilterSpec `yaml:",inline"`

	Enable bool `yaml:"enable"`
	Mode   Mode `yaml:"mode,omitempty"`
}

// LoadConfig decodes a configuration and validates every rule.
func LoadConfig(r io.Reader) (*Config, error) {
	var cfg Config

	if err := yaml.NewDecoder(r).Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, ErrInvalidConfig.Wrap(err)
	}

	for i, rule := range cfg.Rules {
		if _, err := rule.Compile(); err != nil {
			return nil, ErrInvalidConfig.Wrap(err).With(slog.Int("rule", i))
		}

		switch Mode(strings.ToLower(string(rule.Mode))) {
		case "", ModeEnable, ModeConfigure:
		default:
			return nil, ErrInvalidConfig.With(
				slog.Int("rule", i),
				slog.String("mode", string(rule.Mode)))
		}
	}

	return &cfg, nil
}

// LoadConfigFile reads a configuration file.
func LoadConfigFile(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, ErrInvalidConfig.Wrap(err).With(slog.String("path", path))
	}
	defer f.Close()

	return LoadConfig(f)
}

// Marshal encodes the configuration as YAML.
func (c *Config) Marshal() ([]byte, error) { return yaml.Marshal(c) }

// Apply applies every rule in order to r. Rules continue past a failed
// configure; the errors are joined.
func (c *Config) Apply(r *Registry) error {
	var errs []error

	for i, rule := range c.Rules {
		f, err := rule.Compile()
		if err != nil {
			errs = append(errs, ErrInvalidConfig.Wrap(err).With(slog.Int("rule", i)))

			continue
		}

		if Mode(strings.ToLower(string(rule.Mode))) == ModeConfigure {
			if _, err := r.Configure(f, rule.Enable); err != nil {
				errs = append(errs, err)
			}

			continue
		}

		r.Enable(f, rule.Enable)
	}

	return errors.Join(errs...)
}
