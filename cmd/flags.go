package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/vmihailenco/msgpack/v5"
	"gopkg.in/yaml.v3"
)

// ParamFlags holds the flags that supply template parameters.
type ParamFlags struct {
	ParamsFile string   `flag:"params,p" desc:"Parameters file (YAML, JSON or msgpack)"`
	Props      string   `flag:"props" desc:"Parameters as inline JSON or @file.json"`
	Set        []string `flag:"set" desc:"Set a parameter (key=value, dotted keys nest)"`
}

// addParamFlags adds the parameter flags to a command
func addParamFlags(cmd *cobra.Command) *ParamFlags {
	flags := &ParamFlags{}
	cmd.Flags().StringVarP(&flags.ParamsFile, "params", "p", "", "Parameters file (.yaml, .yml, .json, .msgpack)")
	cmd.Flags().StringVar(&flags.Props, "props", "", "Parameters as inline JSON or @file.json")
	cmd.Flags().StringArrayVar(&flags.Set, "set", nil, "Set a parameter (key=value, dotted keys nest)")
	AddFlagValidation(cmd, "params", ValidateFileExists)
	return flags
}

// ParseParams merges the parameters file, inline props and --set values,
// in that order.
func (f *ParamFlags) ParseParams() (map[string]interface{}, error) {
	if f.ParamsFile != "" && f.Props != "" {
		return nil, fmt.Errorf("cannot specify both --params and --props")
	}

	params := make(map[string]interface{})

	if f.ParamsFile != "" {
		data, err := os.ReadFile(f.ParamsFile)
		if err != nil {
			return nil, fmt.Errorf("failed to read params file %s: %w", f.ParamsFile, err)
		}
		if params, err = decodeParams(f.ParamsFile, data); err != nil {
			return nil, err
		}
	}

	if f.Props != "" {
		data := []byte(f.Props)
		name := "props"
		if strings.HasPrefix(f.Props, "@") {
			name = strings.TrimPrefix(f.Props, "@")
			var err error
			if data, err = os.ReadFile(name); err != nil {
				return nil, fmt.Errorf("failed to read props file %s: %w", name, err)
			}
		}
		if err := json.Unmarshal(data, &params); err != nil {
			return nil, fmt.Errorf("invalid JSON in %s: %w", name, err)
		}
	}

	for _, kv := range f.Set {
		key, value, ok := strings.Cut(kv, "=")
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid --set %q, expected key=value", kv)
		}
		if err := setParam(params, key, parseValue(value)); err != nil {
			return nil, err
		}
	}
	return params, nil
}

// decodeParams decodes a parameters file by its extension.
func decodeParams(name string, data []byte) (map[string]interface{}, error) {
	params := make(map[string]interface{})
	var err error
	switch ext := strings.ToLower(filepath.Ext(name)); ext {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, &params)
	case ".json":
		err = json.Unmarshal(data, &params)
	case ".msgpack", ".mp":
		err = msgpack.Unmarshal(data, &params)
	default:
		return nil, fmt.Errorf("unsupported params file %s (supported: .yaml, .yml, .json, .msgpack)", name)
	}
	if err != nil {
		return nil, fmt.Errorf("invalid params file %s: %w", name, err)
	}
	return params, nil
}

// parseValue reads a --set value as a YAML scalar, so numbers and booleans
// keep their type.
func parseValue(s string) interface{} {
	var v interface{}
	if err := yaml.Unmarshal([]byte(s), &v); err != nil || v == nil {
		return s
	}
	switch v.(type) {
	case map[string]interface{}, []interface{}:
		return s
	}
	return v
}

func setParam(params map[string]interface{}, key string, value interface{}) error {
	parts := strings.Split(key, ".")
	m := params
	for i, p := range parts[:len(parts)-1] {
		next, ok := m[p]
		if !ok {
			child := make(map[string]interface{})
			m[p] = child
			m = child
			continue
		}
		child, ok := next.(map[string]interface{})
		if !ok {
			return fmt.Errorf("--set %s: %s is not a map", key, strings.Join(parts[:i+1], "."))
		}
		m = child
	}
	m[parts[len(parts)-1]] = value
	return nil
}

// AddFlagValidation adds validation for a specific flag
func AddFlagValidation(cmd *cobra.Command, flagName string, validator func(string) error) {
	flag := cmd.Flags().Lookup(flagName)
	if flag == nil {
		return
	}

	flag.Value = &validatingValue{
		Value:     flag.Value,
		validator: validator,
	}
}

type validatingValue struct {
	pflag.Value
	validator func(string) error
}

func (v *validatingValue) Set(val string) error {
	if v.validator != nil {
		if err := v.validator(val); err != nil {
			return err
		}
	}
	return v.Value.Set(val)
}

// ValidateFileExists fails for names that do not exist. Empty is valid for
// optional files.
func ValidateFileExists(filename string) error {
	if filename == "" {
		return nil
	}

	if _, err := os.Stat(filename); os.IsNotExist(err) {
		return fmt.Errorf("file does not exist: %s", filename)
	}

	return nil
}
