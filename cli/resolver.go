package cli

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/alecthomas/kong"
	"github.com/goccy/go-yaml"
)

// resolve returns a [kong.ConfigurationLoader] that reads flag values from the
// mapping under key in a YAML document, as written by the init command:
//
//	config:
//	  addr: localhost:6070
//	  log-level: debug
//	  log-pretty: false
//
// Keys may use either hyphens or underscores. Flags given on the command line
// override the file. A missing or empty file resolves nothing.
func resolve(key string) kong.ConfigurationLoader {
	return func(r io.Reader) (kong.Resolver, error) {
		data, err := io.ReadAll(r)
		if err != nil {
			return nil, err
		}

		var doc map[string]any

		if err := yaml.Unmarshal(data, &doc); err != nil {
			return nil, fmt.Errorf("invalid configuration: %w", err)
		}

		section, _ := doc[key].(map[string]any)
		cfg := make(config, len(section))

		for k, v := range section {
			cfg[strings.ReplaceAll(k, "_", "-")] = flagText(v)
		}

		return cfg, nil
	}
}

// config implements [kong.Resolver] over a flat flag map.
type config map[string]any

// Validate implements [kong.Resolver].
func (config) Validate(*kong.Application) error { return nil }

// Resolve implements [kong.Resolver].
func (c config) Resolve(_ *kong.Context, _ *kong.Path, flag *kong.Flag) (any, error) {
	if v, ok := c[flag.Name]; ok {
		return v, nil
	}

	return nil, nil
}

// flagText converts YAML scalars into values kong can decode. Kong parses
// numeric flags from strings.
func flagText(v any) any {
	switch v := v.(type) {
	case int:
		return strconv.Itoa(v)
	case int64:
		return strconv.FormatInt(v, 10)
	case uint64:
		return strconv.FormatUint(v, 10)
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case []any:
		s := make([]string, len(v))
		for i, e := range v {
			s[i] = fmt.Sprint(flagText(e))
		}

		return strings.Join(s, ",")
	default:
		return v
	}
}
