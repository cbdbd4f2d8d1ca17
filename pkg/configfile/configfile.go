// Package configfile loads YAML configuration files with shell-style
// ${VAR} / ${VAR:-default} environment variable expansion, the same
// config-file convention the teacher's main binary offers alongside its
// flag and env var layers.
package configfile

import (
	"fmt"
	"os"

	"github.com/drone/envsubst"
	"gopkg.in/yaml.v2"
)

// LoadYAML reads path, expands environment variables referenced in it, and
// unmarshals the result into dest.
func LoadYAML(path string, dest interface{}) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read %s: %w", path, err)
	}

	expanded, err := envsubst.EvalEnv(string(raw))
	if err != nil {
		return fmt.Errorf("expand env vars in %s: %w", path, err)
	}

	if err := yaml.Unmarshal([]byte(expanded), dest); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}
	return nil
}
