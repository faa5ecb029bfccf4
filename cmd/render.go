package cmd

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	berrors "github.com/conneroisu/breve/pkg/errors"
)

var (
	renderParams *ParamFlags
	renderOutput string
)

var renderCmd = &cobra.Command{
	Use:     "render <template>...",
	Aliases: []string{"r"},
	Short:   "Render templates to markup",
	Long: `Render one or more templates found under the template root.

Template names are given without the extension. With a single template the
result goes to stdout or the --output file; with several, --output names a
directory that receives one <template>.html per template.

Examples:
  breve render index
  breve render index --params data.yml --set title=Home
  breve render index about --output ./public
  breve render index --namespace v --doctype "<!DOCTYPE html>" --tidy`,
	Args: cobra.MinimumNArgs(1),
	RunE: runRender,
}

func init() {
	rootCmd.AddCommand(renderCmd)

	renderParams = addParamFlags(renderCmd)
	renderCmd.Flags().StringVarP(&renderOutput, "output", "o", "", "output file, or directory when rendering several templates")

	renderCmd.Flags().String("namespace", "", "expose parameters under this name instead of top level")
	renderCmd.Flags().String("doctype", "", "doctype line written before the document")
	renderCmd.Flags().String("xmlns", "", "value bound to xmlns in templates")
	renderCmd.Flags().String("extension", "b", "template file extension")
	renderCmd.Flags().Bool("fragment", false, "omit the XML declaration and doctype")
	renderCmd.Flags().Bool("debug", false, "render failing templates as inline diagnostics")
	renderCmd.Flags().Bool("tidy", false, "re-indent the output")
	renderCmd.Flags().Bool("mashup-entities", false, "bind entity names at top level")

	for flag, key := range map[string]string{
		"namespace":       "render.namespace",
		"doctype":         "render.doctype",
		"xmlns":           "render.xmlns",
		"extension":       "templates.extension",
		"fragment":        "render.fragment",
		"debug":           "render.debug",
		"tidy":            "render.tidy",
		"mashup-entities": "render.mashup_entities",
	} {
		bindFlag(key, renderCmd.Flags().Lookup(flag))
	}
}

func runRender(cmd *cobra.Command, args []string) error {
	params, err := renderParams.ParseParams()
	if err != nil {
		return err
	}

	e, _, logger, err := newEngine()
	if err != nil {
		return err
	}
	ctx := cmd.Context()

	if len(args) > 1 && renderOutput != "" {
		if err := os.MkdirAll(renderOutput, 0o755); err != nil {
			return fmt.Errorf("failed to create output directory: %w", err)
		}
	}

	collector := berrors.NewErrorCollector()
	for _, id := range args {
		out, err := e.Render(ctx, id, params)
		if err != nil {
			logger.Error(ctx, err, "Render failed", "template", id)
			collector.Add(id, err)
			continue
		}
		if err := writeOutput(cmd.OutOrStdout(), id, out, len(args) > 1); err != nil {
			collector.Add(id, err)
		}
	}

	stats := e.Cache().Stats()
	logger.Debug(ctx, "Render finished",
		"templates", len(args),
		"failed", len(collector.Failures()),
		"compiles", stats.Compiles,
		"cache_hit_rate", stats.HitRate())

	return collector.Err()
}

func writeOutput(stdout io.Writer, id, out string, many bool) error {
	switch {
	case renderOutput == "":
		_, err := fmt.Fprintln(stdout, out)
		return err
	case many:
		path := filepath.Join(renderOutput, id+".html")
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return err
		}
		return os.WriteFile(path, []byte(out+"\n"), 0o644)
	default:
		return os.WriteFile(renderOutput, []byte(out+"\n"), 0o644)
	}
}
