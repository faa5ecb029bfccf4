package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	berrors "github.com/conneroisu/breve/pkg/errors"
)

var checkCmd = &cobra.Command{
	Use:   "check <template>...",
	Short: "Compile templates without rendering them",
	Long: `Compile each template and report syntax errors. Names the template
refers to are not resolved, so a template that compiles can still fail to
render.

Examples:
  breve check index layout
  breve check --root ./views page`,
	Args: cobra.MinimumNArgs(1),
	RunE: runCheck,
}

func init() {
	rootCmd.AddCommand(checkCmd)
}

func runCheck(cmd *cobra.Command, args []string) error {
	e, cfg, logger, err := newEngine()
	if err != nil {
		return err
	}
	ctx := cmd.Context()
	l := cfg.Loader()

	collector := berrors.NewErrorCollector()
	for _, id := range args {
		name := id
		if ext := trimDot(cfg.Templates.Extension); ext != "" {
			name = fmt.Sprintf("%s.%s", id, ext)
		}
		unit, err := e.Cache().Compile(ctx, name, e.Root(), l)
		if err != nil {
			collector.Add(id, err)
			continue
		}
		logger.Debug(ctx, "Template compiled", "template", unit.ID)
		fmt.Fprintf(cmd.OutOrStdout(), "ok   %s\n", id)
	}

	for _, f := range collector.Failures() {
		fmt.Fprintf(cmd.OutOrStdout(), "FAIL %s\n", f.Error())
	}
	return collector.Err()
}

func trimDot(ext string) string {
	if len(ext) > 0 && ext[0] == '.' {
		return ext[1:]
	}
	return ext
}
