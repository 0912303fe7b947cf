package cmd

import (
	"fmt"
	"reflect"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/pirelike/hlsvault/internal/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Configuration management commands",
	Long:  `Commands for inspecting hlsvault configuration.`,
}

var configDumpCmd = &cobra.Command{
	Use:   "dump",
	Short: "Dump the effective configuration",
	Long: `Dump the effective configuration in YAML format, with account
credentials redacted.

Configuration can be set via:
  - Config file (config.yaml, /etc/hlsvault/config.yaml, $HOME/.hlsvault/config.yaml)
  - Environment variables (HLSVAULT_SERVER_PORT, HLSVAULT_PLATFORM_BASE_URL, etc.)
  - Command-line flags (for some options)

Environment variables use the HLSVAULT_ prefix and underscores for nesting.
Example: server.port -> HLSVAULT_SERVER_PORT`,
	RunE: runConfigDump,
}

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configDumpCmd)
}

// redactedFieldNames never get printed verbatim, since config dump output
// is routinely pasted into bug reports and chat threads.
var redactedFieldNames = map[string]bool{
	"credential": true,
}

// toMap converts a struct to a map, formatting durations and byte sizes for
// human readability and redacting credential fields.
func toMap(v any) any {
	val := reflect.ValueOf(v)
	if val.Kind() == reflect.Ptr {
		val = val.Elem()
	}

	switch val.Kind() {
	case reflect.Slice, reflect.Array:
		out := make([]any, val.Len())
		for i := 0; i < val.Len(); i++ {
			out[i] = toMap(val.Index(i).Interface())
		}
		return out
	case reflect.Struct:
		result := make(map[string]any)
		typ := val.Type()
		for i := 0; i < val.NumField(); i++ {
			field := val.Field(i)
			fieldType := typ.Field(i)

			key := fieldType.Tag.Get("mapstructure")
			if key == "" {
				key = fieldType.Name
			}

			if redactedFieldNames[key] {
				result[key] = "[REDACTED]"
				continue
			}

			switch fv := field.Interface().(type) {
			case time.Duration:
				result[key] = fv.String()
			case config.ByteSize:
				result[key] = fv.String()
			default:
				result[key] = toMap(field.Interface())
			}
		}
		return result
	default:
		return v
	}
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

	fmt.Println("# hlsvault configuration (account credentials redacted)")
	fmt.Println("# Duration format: 30s, 5m, 1h")
	fmt.Println("# Size format: 5MB, 1GB")
	fmt.Println()
	fmt.Print(string(yamlData))

	return nil
}
