// Package cmd provides the command-line interface for breve with
// configuration management supporting multiple configuration sources.
//
// Configuration System:
//
//	The CLI supports flexible configuration through multiple sources with clear precedence:
//	1. Command-line flags (--config, --root, --namespace, etc.) - highest priority
//	2. BREVE_CONFIG_FILE environment variable - custom config file path
//	3. Individual environment variables (BREVE_RENDER_NAMESPACE, etc.)
//	4. Configuration files (.breve.yml) - lowest priority
//
// Environment Variables:
//
//	BREVE_CONFIG_FILE: Path to custom configuration file
//	BREVE_TEMPLATES_ROOT: Override the template root
//	BREVE_RENDER_DEBUG: Render failing templates as inline diagnostics
//	And more following the BREVE_<SECTION>_<OPTION> pattern
package cmd

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/conneroisu/breve/internal/config"
	"github.com/conneroisu/breve/internal/logging"
	"github.com/conneroisu/breve/pkg/cache"
	"github.com/conneroisu/breve/pkg/render"
)

var cfgFile string

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "breve",
	Short: "Render markup from breve templates",
	Long: `breve renders HTML and XML from templates written as nested
tag expressions.

Quick Start:
  breve render index                    Render index.b under the template root
  breve render index --params data.yml  Render with parameters from a file
  breve check index layout              Compile templates without rendering
  breve convert page.html               Turn existing HTML into a template

Documentation: https://github.com/conneroisu/breve`,
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is .breve.yml, can also use BREVE_CONFIG_FILE env var)")
	rootCmd.PersistentFlags().StringP("log-level", "l", "info", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringP("root", "r", ".", "template root directory")
	bindFlag("log.level", rootCmd.PersistentFlags().Lookup("log-level"))
	bindFlag("templates.root", rootCmd.PersistentFlags().Lookup("root"))
}

// flagBindings maps configuration keys to the flags that override them.
var flagBindings = make(map[string]*pflag.Flag)

func bindFlag(key string, flag *pflag.Flag) {
	flagBindings[key] = flag
	_ = viper.BindPFlag(key, flag)
}

// rebindFlags restores the flag bindings after viper.Reset.
func rebindFlags() {
	for key, flag := range flagBindings {
		_ = viper.BindPFlag(key, flag)
	}
}

// initConfig initializes the configuration system with support for multiple config sources.
//
// Configuration Loading Priority (highest to lowest):
//  1. --config flag: Explicitly specified config file path
//  2. BREVE_CONFIG_FILE environment variable: Custom config file path
//  3. Default: .breve.yml in current directory
func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else if envConfigFile := os.Getenv("BREVE_CONFIG_FILE"); envConfigFile != "" {
		viper.SetConfigFile(envConfigFile)
	} else {
		viper.AddConfigPath(".")
		viper.SetConfigType("yaml")
		viper.SetConfigName(".breve")
	}

	viper.SetEnvPrefix("BREVE")
	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// A missing or unreadable config file leaves the defaults in place.
	if err := viper.ReadInConfig(); err == nil {
		fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
	}
}

// newEngine builds an engine from the loaded configuration.
func newEngine() (*render.Engine, *config.Config, logging.Logger, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, nil, err
	}

	logger := logging.NewLogger(cfg.LoggerConfig())
	c := cache.New(
		cache.WithMaxEntries(cfg.Cache.MaxEntries),
		cache.WithLogger(logger),
	)
	e := render.New(nil, cfg.Templates.Root,
		render.WithOptions(cfg.Settings()...),
		render.WithLoader(cfg.Loader()),
		render.WithCache(c),
		render.WithLogger(logger),
	)
	return e, cfg, logger, nil
}
