package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/spf13/pflag"
)

var configFileUsed string

// findConfigFile picks the config file to use.
// Priority: explicit path > munaudit.yaml > munaudit.yml
func findConfigFile(explicit string) string {
	if explicit != "" {
		return explicit
	}
	for _, name := range []string{"munaudit.yaml", "munaudit.yml"} {
		if _, err := os.Stat(name); err == nil {
			return name
		}
	}
	return ""
}

// Load assembles the configuration from defaults, the config file,
// MUNAUDIT_-prefixed environment variables, and explicitly-set flags.
func Load(cfgFile string, flags *pflag.FlagSet) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(confmap.Provider(map[string]interface{}{
		"data_dir":    DefaultDataDir,
		"rules_path":  DefaultRulesPath,
		"output_dir":  DefaultOutputDir,
		"state_path":  DefaultStatePath,
		"output":      "csv",
		"verbose":     false,
		"demographics": map[string]interface{}{
			"table":              "p1_1_1_2",
			"entity_id_column":   "mp_id",
			"entity_name_column": "municipality_name",
			"district_column":    "district_name",
			"population_column":  "p1_1_3_4_tot_25_no",
			"grade_column":       "p1_1_1_2_grade",
		},
	}, "."), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	configFileUsed = findConfigFile(cfgFile)
	if configFileUsed != "" {
		if err := k.Load(file.Provider(configFileUsed), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("error reading config file %s: %w", configFileUsed, err)
		}
	}

	// MUNAUDIT_DATA_DIR -> data_dir, MUNAUDIT_DEMOGRAPHICS__TABLE -> demographics.table
	if err := k.Load(env.Provider("MUNAUDIT_", ".", func(s string) string {
		s = strings.ToLower(strings.TrimPrefix(s, "MUNAUDIT_"))
		return strings.ReplaceAll(s, "__", ".")
	}), nil); err != nil {
		return nil, fmt.Errorf("failed to load env vars: %w", err)
	}

	if flags != nil {
		if err := k.Load(posflag.ProviderWithFlag(flags, ".", k, func(f *pflag.Flag) (string, interface{}) {
			if !f.Changed {
				return "", nil
			}
			key := strings.ReplaceAll(f.Name, "-", "_")
			if key == "state" {
				return "state_path", posflag.FlagVal(flags, f)
			}
			if key == "rules" {
				return "rules_path", posflag.FlagVal(flags, f)
			}
			if key == "data" {
				return "data_dir", posflag.FlagVal(flags, f)
			}
			return key, posflag.FlagVal(flags, f)
		}), nil); err != nil {
			return nil, fmt.Errorf("failed to load flags: %w", err)
		}
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}
	return &cfg, nil
}

// ConfigFileUsed returns the path of the config file Load read, if any.
func ConfigFileUsed() string {
	return configFileUsed
}
