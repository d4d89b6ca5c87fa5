package translation

import (
	"encoding/json"
	"fmt"
	"os"

	"translator/pkg/jitcache"
)

// DumpPathEnv overrides Config.DumpPath when set.
const DumpPathEnv = "TRANSLATOR_DUMP_PATH"

// Config represents the configuration loaded from the JSON file
type Config struct {
	CacheSize       int    `json:"cache_size"`        // Bytes reserved for generated code
	WriteXorExecute bool   `json:"write_xor_execute"` // Never map code pages writable and executable at once
	DumpPath        string `json:"dump_path"`         // Pebble directory for base/diff dumps, empty disables dumping
	DumpConcurrency int    `json:"dump_concurrency"`  // Dump writers allowed in flight
	LogPasses       bool   `json:"log_passes"`        // Log every pass start and end
	Mode            string `json:"mode"`              // highcq, mediumcq or lowcq
}

func DefaultConfig() Config {
	return Config{
		CacheSize:       jitcache.DefaultCacheSize,
		WriteXorExecute: true,
		Mode:            "highcq",
	}
}

// LoadConfig reads path over the defaults. An empty path yields the
// defaults. The environment is applied last.
func LoadConfig(path string) (Config, error) {
	config := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := json.Unmarshal(data, &config); err != nil {
			return Config{}, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	if dumpPath := os.Getenv(DumpPathEnv); dumpPath != "" {
		config.DumpPath = dumpPath
	}

	if _, err := config.CompilerOptions(); err != nil {
		return Config{}, err
	}

	return config, nil
}

func (c Config) CompilerOptions() (CompilerOptions, error) {
	return ParseCompilerOptions(c.Mode)
}

// CacheConfig converts c into the code cache settings.
func (c Config) CacheConfig() jitcache.Config {
	config := jitcache.DefaultConfig()
	if c.CacheSize > 0 {
		config.Size = c.CacheSize
	}
	config.AllowReadWriteExecute = !c.WriteXorExecute
	return config
}
