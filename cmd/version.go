package cmd

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/conneroisu/breve/internal/version"
)

var (
	versionFormat string
	versionShort  bool
)

// versionCmd represents the version command
var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show version information",
	Long: `Display version information for breve including:

- Semantic version number
- Git commit hash
- Build timestamp
- Go version used for compilation
- Target platform (OS/architecture)

Examples:
  breve version              # Show version
  breve version --short      # Show short version only
  breve version --format json`,
	RunE: runVersionCommand,
}

func init() {
	rootCmd.AddCommand(versionCmd)

	versionCmd.Flags().StringVarP(&versionFormat, "format", "f", "text", "Output format (text, json)")
	versionCmd.Flags().BoolVar(&versionShort, "short", false, "Show short version only")
}

func runVersionCommand(cmd *cobra.Command, args []string) error {
	w := cmd.OutOrStdout()

	switch versionFormat {
	case "json":
		return outputVersionJSON(w)
	case "text":
		if versionShort {
			_, err := fmt.Fprintln(w, version.GetShortVersion())
			return err
		}
		return outputVersionDefault(w)
	default:
		return fmt.Errorf("unsupported format: %s (supported: text, json)", versionFormat)
	}
}

func outputVersionDefault(w io.Writer) error {
	info := version.GetBuildInfo()

	fmt.Fprintf(w, "breve %s", info.Version)
	if info.GitCommit != "unknown" && len(info.GitCommit) >= 7 {
		fmt.Fprintf(w, " (%s)", info.GitCommit[:7])
	}
	if version.IsDirty() {
		fmt.Fprint(w, " (dirty)")
	}
	fmt.Fprintln(w)

	if !info.BuildTime.IsZero() {
		fmt.Fprintf(w, "Built: %s\n", info.BuildTime.Format("2006-01-02 15:04:05 UTC"))
	}
	fmt.Fprintf(w, "Go: %s\n", info.GoVersion)
	_, err := fmt.Fprintf(w, "Platform: %s\n", info.Platform)
	return err
}

func outputVersionJSON(w io.Writer) error {
	info := version.GetBuildInfo()

	jsonInfo := map[string]interface{}{
		"version":    info.Version,
		"git_commit": info.GitCommit,
		"build_time": info.BuildTime,
		"go_version": info.GoVersion,
		"platform":   info.Platform,
		"is_release": version.IsRelease(),
		"is_dirty":   version.IsDirty(),
	}

	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(jsonInfo)
}
