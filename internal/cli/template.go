package cli

import (
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/BartekS5/importer/internal/registry"
	"github.com/BartekS5/importer/internal/template"
)

func newTemplateCmd(opts *GlobalOptions) *cobra.Command {
	var format, outPath string

	cmd := &cobra.Command{
		Use:   "template",
		Short: "Write an empty import file for an entity type",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := entityOf(opts, "")
			if err != nil {
				return err
			}
			spec, err := registry.Lookup(e)
			if err != nil {
				return err
			}
			f, err := template.ParseFormat(format)
			if err != nil {
				return err
			}

			var w io.Writer = cmd.OutOrStdout()
			if outPath != "" {
				file, err := os.Create(outPath)
				if err != nil {
					return err
				}
				defer file.Close()
				w = file
			}
			return template.Write(w, spec, f)
		},
	}
	cmd.Flags().StringVar(&format, "format", "csv", "Template format (csv, xlsx)")
	cmd.Flags().StringVarP(&outPath, "out", "o", "", "Output file (default: stdout)")
	return cmd
}
