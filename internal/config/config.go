// Package config loads driftdriver's startup settings with viper.
//
// Precedence, highest first: command-line flags (bound by the caller),
// DRIFT_* environment variables, .workgraph/driftdriver.yaml found by
// walking up from the working directory, ~/.config/driftdriver/config.yaml,
// then built-in defaults.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// FileName is the project config file inside the workgraph directory.
const FileName = "driftdriver.yaml"

const workgraphDir = ".workgraph"

var v *viper.Viper

// Initialize sets up the viper instance. It is safe to call repeatedly;
// each call starts from a clean instance.
func Initialize() error {
	v = viper.New()
	v.SetConfigType("yaml")

	if path := findProjectConfig(); path != "" {
		v.SetConfigFile(path)
	} else if home, err := os.UserHomeDir(); err == nil {
		v.AddConfigPath(filepath.Join(home, ".config", "driftdriver"))
		v.SetConfigName("config")
	}

	v.SetEnvPrefix("DRIFT")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return fmt.Errorf("error reading config file: %w", err)
		}
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("dir", "")
	v.SetDefault("wg-bin", "wg")
	v.SetDefault("json", false)
	v.SetDefault("lane-strategy", "auto")
	v.SetDefault("queue-limit", 10)
	v.SetDefault("defer-hours", 24)
	v.SetDefault("watch-debounce", 500*time.Millisecond)
	v.SetDefault("families-file", "drift-families.yaml")
}

// findProjectConfig walks up from the working directory looking for
// .workgraph/driftdriver.yaml.
func findProjectConfig() string {
	cwd, err := os.Getwd()
	if err != nil {
		return ""
	}
	for dir := cwd; ; {
		path := filepath.Join(dir, workgraphDir, FileName)
		if info, err := os.Stat(path); err == nil && !info.IsDir() {
			return path
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return ""
		}
		dir = parent
	}
}

func instance() *viper.Viper {
	if v == nil {
		_ = Initialize()
	}
	return v
}

// ConfigFileUsed returns the config file that was loaded, if any.
func ConfigFileUsed() string {
	return instance().ConfigFileUsed()
}

// GetString retrieves a string configuration value
func GetString(key string) string {
	return instance().GetString(key)
}

// GetBool retrieves a boolean configuration value
func GetBool(key string) bool {
	return instance().GetBool(key)
}

// GetInt retrieves an integer configuration value
func GetInt(key string) int {
	return instance().GetInt(key)
}

// GetDuration retrieves a duration configuration value
func GetDuration(key string) time.Duration {
	return instance().GetDuration(key)
}

// Set overrides a value for this process only.
func Set(key string, value interface{}) {
	instance().Set(key, value)
}

// AllSettings returns every resolved key.
func AllSettings() map[string]interface{} {
	return instance().AllSettings()
}

// ResetForTesting drops the viper instance so the next access reinitializes.
func ResetForTesting() {
	v = nil
}
