// Package config provides configuration management for breve using Viper
// for loading from files, environment variables, and command-line flags.
//
// The configuration system supports YAML files, environment variable
// overrides with the BREVE_ prefix, defaults and validation. It covers the
// template root and search paths, the default render options, the compiled
// unit cache and logging.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/hashicorp/hcl/v2/hclsyntax"
	"github.com/spf13/viper"

	"github.com/conneroisu/breve/internal/logging"
	berrors "github.com/conneroisu/breve/pkg/errors"
	"github.com/conneroisu/breve/pkg/loader"
	"github.com/conneroisu/breve/pkg/render"
	"github.com/conneroisu/breve/pkg/tags"
)

type Config struct {
	Templates TemplatesConfig `mapstructure:"templates" yaml:"templates"`
	Render    RenderConfig    `mapstructure:"render" yaml:"render"`
	Cache     CacheConfig     `mapstructure:"cache" yaml:"cache"`
	Log       LogConfig       `mapstructure:"log" yaml:"log"`
}

type TemplatesConfig struct {
	Root      string   `mapstructure:"root" yaml:"root"`
	Extension string   `mapstructure:"extension" yaml:"extension"`
	Paths     []string `mapstructure:"paths" yaml:"paths"`
}

type RenderConfig struct {
	Namespace      string `mapstructure:"namespace" yaml:"namespace"`
	XMLNS          string `mapstructure:"xmlns" yaml:"xmlns"`
	Doctype        string `mapstructure:"doctype" yaml:"doctype"`
	XMLDeclaration string `mapstructure:"xml_declaration" yaml:"xml_declaration"`
	Tidy           bool   `mapstructure:"tidy" yaml:"tidy"`
	Debug          bool   `mapstructure:"debug" yaml:"debug"`
	Fragment       bool   `mapstructure:"fragment" yaml:"fragment"`
	MashupEntities bool   `mapstructure:"mashup_entities" yaml:"mashup_entities"`
	AutoTags       string `mapstructure:"autotags" yaml:"autotags"`
	AutoTagPolicy  string `mapstructure:"autotag_policy" yaml:"autotag_policy"`
}

type CacheConfig struct {
	MaxEntries int `mapstructure:"max_entries" yaml:"max_entries"`
}

type LogConfig struct {
	Level  string `mapstructure:"level" yaml:"level"`
	Format string `mapstructure:"format" yaml:"format"`
}

// SetDefaults registers the default values on v. Every key gets one so
// that AutomaticEnv overrides reach Unmarshal.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("templates.root", ".")
	v.SetDefault("templates.extension", "b")
	v.SetDefault("templates.paths", []string{})

	v.SetDefault("render.namespace", "")
	v.SetDefault("render.xmlns", "")
	v.SetDefault("render.doctype", "")
	v.SetDefault("render.xml_declaration", render.DefaultXMLDeclaration)
	v.SetDefault("render.tidy", false)
	v.SetDefault("render.debug", false)
	v.SetDefault("render.fragment", false)
	v.SetDefault("render.mashup_entities", false)
	v.SetDefault("render.autotags", "")
	v.SetDefault("render.autotag_policy", "html")

	v.SetDefault("cache.max_entries", 0)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
}

// Load reads the configuration from the global viper instance.
func Load() (*Config, error) {
	return LoadFrom(viper.GetViper())
}

// LoadFrom reads the configuration from v.
func LoadFrom(v *viper.Viper) (*Config, error) {
	SetDefaults(v)

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, berrors.NewConfigError(berrors.ErrCodeConfigInvalid, "cannot decode configuration").
			WithContext("cause", err.Error())
	}

	// Env overrides for slices arrive as a single string.
	if len(config.Templates.Paths) == 1 && strings.Contains(config.Templates.Paths[0], string(os.PathListSeparator)) {
		config.Templates.Paths = filepath.SplitList(config.Templates.Paths[0])
	}

	if err := validateConfig(&config); err != nil {
		return nil, err
	}
	return &config, nil
}

// validateConfig validates configuration values for security and correctness
func validateConfig(config *Config) error {
	if err := validatePath(config.Templates.Root); err != nil {
		return invalid("templates.root", config.Templates.Root, err.Error())
	}
	for _, p := range config.Templates.Paths {
		if err := validatePath(p); err != nil {
			return invalid("templates.paths", p, err.Error())
		}
	}
	if strings.ContainsAny(config.Templates.Extension, `/\`) {
		return invalid("templates.extension", config.Templates.Extension, "must not contain path separators")
	}

	if ns := config.Render.Namespace; ns != "" && !hclsyntax.ValidIdentifier(ns) {
		return invalid("render.namespace", ns, "must be a valid identifier")
	}
	if at := config.Render.AutoTags; at != "" && !hclsyntax.ValidIdentifier(at) {
		return invalid("render.autotags", at, "must be a valid identifier")
	}
	if _, err := parsePolicy(config.Render.AutoTagPolicy); err != nil {
		return invalid("render.autotag_policy", config.Render.AutoTagPolicy, err.Error()).
			WithSuggestions(berrors.SuggestNames(config.Render.AutoTagPolicy, []string{"any", "html"})...)
	}

	if config.Cache.MaxEntries < 0 {
		return invalid("cache.max_entries", config.Cache.MaxEntries, "must not be negative")
	}

	if _, err := logging.ParseLevel(config.Log.Level); err != nil {
		return invalid("log.level", config.Log.Level, err.Error())
	}
	switch config.Log.Format {
	case "text", "json":
	default:
		return invalid("log.format", config.Log.Format, "must be text or json").
			WithSuggestions(berrors.SuggestNames(config.Log.Format, []string{"json", "text"})...)
	}
	return nil
}

// validatePath validates a template directory.
func validatePath(path string) error {
	if path == "" {
		return fmt.Errorf("empty path")
	}
	if strings.ContainsRune(path, 0) {
		return fmt.Errorf("path contains a NUL byte")
	}
	return nil
}

func invalid(field string, value any, msg string) *berrors.BreveError {
	return berrors.NewConfigError(berrors.ErrCodeConfigInvalid, fmt.Sprintf("%s: %s", field, msg)).
		WithContext("field", field).
		WithContext("value", value)
}

func parsePolicy(s string) (tags.Policy, error) {
	switch s {
	case "", "html":
		return tags.HTMLOnly, nil
	case "any":
		return tags.AllowAny, nil
	}
	return 0, fmt.Errorf("unknown policy %q", s)
}

// Settings converts the render section into engine defaults.
func (c *Config) Settings() []render.Setting {
	r := c.Render
	policy, _ := parsePolicy(r.AutoTagPolicy)
	return []render.Setting{
		render.Extension(c.Templates.Extension),
		render.Namespace(r.Namespace),
		render.XMLNS(r.XMLNS),
		render.Doctype(r.Doctype),
		render.XMLDeclaration(r.XMLDeclaration),
		render.Tidy(r.Tidy),
		render.Debug(r.Debug),
		render.Fragment(r.Fragment),
		render.MashupEntities(r.MashupEntities),
		render.AutoTags(r.AutoTags, policy),
	}
}

// Loader returns the template loader: the search paths when configured,
// the file system under the root otherwise.
func (c *Config) Loader() loader.Loader {
	if len(c.Templates.Paths) > 0 {
		return loader.NewPathLoader(c.Templates.Paths...)
	}
	return loader.FileLoader{}
}

// LoggerConfig returns the logging settings. Invalid levels were rejected
// by validation.
func (c *Config) LoggerConfig() *logging.LoggerConfig {
	lc := logging.DefaultConfig()
	if level, err := logging.ParseLevel(c.Log.Level); err == nil {
		lc.Level = level
	}
	lc.Format = c.Log.Format
	return lc
}
