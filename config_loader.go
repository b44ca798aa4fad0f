package eventadmin

import (
	"fmt"
	"os"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

// LoadConfigYAML reads a Config from a YAML file, matching the teacher's own
// yaml.v3-based config loader: start from DefaultConfig(), unmarshal over it so
// only the fields present in the file override the defaults, and leave Validate()
// to the caller.
func LoadConfigYAML(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("eventadmin: read config %s: %w", path, err)
	}
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("eventadmin: parse yaml config %s: %w", path, err)
	}
	return cfg, nil
}

// LoadConfigTOML reads a Config from a TOML file using BurntSushi/toml, the format
// the teacher package offers alongside YAML for operators who prefer it.
func LoadConfigTOML(path string) (Config, error) {
	cfg := DefaultConfig()
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return Config{}, fmt.Errorf("eventadmin: parse toml config %s: %w", path, err)
	}
	return cfg, nil
}
