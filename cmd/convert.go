package cmd

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/conneroisu/breve/pkg/convert"
)

var (
	convertFragment bool
	convertOutput   string
)

var convertCmd = &cobra.Command{
	Use:   "convert <file.html|->",
	Short: "Convert HTML into template source",
	Long: `Read HTML and write equivalent template source. Elements outside the
HTML vocabulary, and elements whose names are taken by directives, are
written as tag("name", ...).

Examples:
  breve convert page.html > page.b
  curl -s https://example.com | breve convert - --fragment`,
	Args: cobra.ExactArgs(1),
	RunE: runConvert,
}

func init() {
	rootCmd.AddCommand(convertCmd)

	convertCmd.Flags().BoolVar(&convertFragment, "fragment", false, "parse the input as body content")
	convertCmd.Flags().StringVarP(&convertOutput, "output", "o", "", "output file (default stdout)")
}

func runConvert(cmd *cobra.Command, args []string) error {
	var in io.Reader = cmd.InOrStdin()
	if args[0] != "-" {
		f, err := os.Open(args[0])
		if err != nil {
			return fmt.Errorf("failed to open %s: %w", args[0], err)
		}
		defer f.Close()
		in = f
	}

	src, err := convert.Convert(in, convert.Options{Fragment: convertFragment})
	if err != nil {
		return err
	}

	if convertOutput == "" {
		_, err = io.WriteString(cmd.OutOrStdout(), src)
		return err
	}
	return os.WriteFile(convertOutput, []byte(src), 0o644)
}
