package cmd

import (
	"fmt"
	"reflect"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/mosaictv/mosaic/internal/config"
	"github.com/mosaictv/mosaic/pkg/bytesize"
	"github.com/mosaictv/mosaic/pkg/duration"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Configuration management commands",
	Long:  `Commands for managing mosaic configuration.`,
}

var configDumpCmd = &cobra.Command{
	Use:   "dump",
	Short: "Dump the effective configuration",
	Long: `Dump the effective configuration values in YAML format.

This shows all available configuration options with their current values,
after defaults, config file, and environment variables have been applied.
You can redirect this output to a file to create a configuration template:

  mosaic config dump > config.yaml

Configuration can be set via:
  - Config file (config.yaml in ., /etc/mosaic, or $HOME/.mosaic)
  - Environment variables (MOSAIC_SERVER_PORT, MOSAIC_SOURCE_URL, etc.)
  - Command-line flags (for some options)

Environment variables use the MOSAIC_ prefix and underscores for nesting.
Example: server.port -> MOSAIC_SERVER_PORT

The bare legacy variables M3U_SOURCE, ENCODER_PREFERENCE, IDLE_TIMEOUT,
PORT, and MAX_STREAM_SIZE are also honoured.`,
	RunE: runConfigDump,
}

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configDumpCmd)
}

// toMap converts a struct to a map, formatting durations and sizes for human readability.
func toMap(v any) map[string]any {
	result := make(map[string]any)
	val := reflect.ValueOf(v)
	if val.Kind() == reflect.Ptr {
		val = val.Elem()
	}
	typ := val.Type()

	for i := 0; i < val.NumField(); i++ {
		field := val.Field(i)
		fieldType := typ.Field(i)

		key := fieldType.Tag.Get("mapstructure")
		if key == "" {
			key = fieldType.Tag.Get("yaml")
		}
		if key == "" {
			key = fieldType.Name
		}

		switch v := field.Interface().(type) {
		case time.Duration:
			result[key] = duration.Format(v)
		case int64:
			// int64 fields named like sizes get human-readable units
			if contains(key, "size", "bytes") {
				result[key] = bytesize.Format(bytesize.Size(v))
			} else {
				result[key] = v
			}
		default:
			if field.Kind() == reflect.Struct {
				result[key] = toMap(field.Interface())
			} else {
				result[key] = field.Interface()
			}
		}
	}
	return result
}

func contains(s string, substrs ...string) bool {
	for _, sub := range substrs {
		if len(s) >= len(sub) {
			for i := 0; i <= len(s)-len(sub); i++ {
				if s[i:i+len(sub)] == sub {
					return true
				}
			}
		}
	}
	return false
}

func runConfigDump(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	cfgMap := toMap(cfg)

	yamlData, err := yaml.Marshal(cfgMap)
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}

	fmt.Println("# mosaic Configuration File")
	fmt.Println("# ==========================")
	fmt.Println("#")
	fmt.Println("# All values reflect the current effective configuration.")
	fmt.Println("# Duration format: 30s, 5m, 1h")
	fmt.Println("# Size format: 5MB, 1GB")
	fmt.Println("#")
	fmt.Println("# Environment variable overrides:")
	fmt.Println("#   MOSAIC_SERVER_HOST, MOSAIC_SERVER_PORT")
	fmt.Println("#   MOSAIC_SOURCE_URL, MOSAIC_ENCODER_PREFERENCE")
	fmt.Println("#   MOSAIC_STREAM_IDLE_TIMEOUT, MOSAIC_STREAM_MAX_STREAM_SIZE")
	fmt.Println("#   MOSAIC_LOGGING_LEVEL, MOSAIC_LOGGING_FORMAT")
	fmt.Println("#   etc.")
	fmt.Println("#")
	fmt.Println("")
	fmt.Print(string(yamlData))

	return nil
}
