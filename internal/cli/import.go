package cli

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/BartekS5/importer/internal/config"
	"github.com/BartekS5/importer/internal/etl"
	"github.com/BartekS5/importer/internal/source"
	"github.com/BartekS5/importer/pkg/models"
)

type fileOptions struct {
	MappingFile string
	Overrides   []string
	Sheet       string
}

func (f *fileOptions) bind(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&f.MappingFile, "mapping", "m", "", "Finalized mapping file (default: infer from headers)")
	cmd.Flags().StringArrayVar(&f.Overrides, "map", nil, `Override one column, "Column=field" (empty field unmaps)`)
	cmd.Flags().StringVar(&f.Sheet, "sheet", "", "Worksheet to read from .xlsx files (default: first)")
}

func (f *fileOptions) read(path string) (*source.Table, error) {
	if f.Sheet == "" {
		return source.ReadFile(path)
	}
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()
	return source.ReadXLSX(file, f.Sheet)
}

func newMapCmd(opts *GlobalOptions) *cobra.Command {
	files := &fileOptions{}
	var save string

	cmd := &cobra.Command{
		Use:   "map <file>",
		Short: "Propose a column mapping for a file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			table, err := files.read(args[0])
			if err != nil {
				return err
			}
			e, mappings, err := mappingFor(opts, table, files.MappingFile, files.Overrides)
			if err != nil {
				return err
			}
			if save != "" {
				if err := config.SaveMapping(save, &models.MappingFile{Entity: e, Mappings: mappings}); err != nil {
					return err
				}
			}

			out := cmd.OutOrStdout()
			if opts.JSON {
				return printJSON(out, models.MappingFile{Entity: e, Mappings: mappings})
			}
			tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "COLUMN\tFIELD\tCONFIDENCE\tREQUIRED\tSUGGESTED")
			for _, m := range mappings {
				field := m.TargetField
				if field == "" {
					field = "-"
				}
				fmt.Fprintf(tw, "%s\t%s\t%d\t%t\t%s\n", m.SourceColumn, field, m.Confidence, m.Required, m.Suggested)
			}
			if err := tw.Flush(); err != nil {
				return err
			}
			if save != "" {
				fmt.Fprintf(out, "Mapping saved to %s\n", save)
			}
			return nil
		},
	}
	files.bind(cmd)
	cmd.Flags().StringVar(&save, "save", "", "Write the mapping to this file")
	return cmd
}

func newValidateCmd(opts *GlobalOptions) *cobra.Command {
	files := &fileOptions{}

	cmd := &cobra.Command{
		Use:   "validate <file>",
		Short: "Validate a file and check it for conflicts without importing",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := requireTenant(opts); err != nil {
				return err
			}
			table, err := files.read(args[0])
			if err != nil {
				return err
			}
			e, mappings, err := mappingFor(opts, table, files.MappingFile, files.Overrides)
			if err != nil {
				return err
			}
			return withService(cmd.Context(), opts, func(svc *etl.Service) error {
				report, err := svc.Preflight(cmd.Context(), table.Rows, mappings, e, opts.Tenant)
				if err != nil {
					return err
				}
				if err := printPreflight(cmd, opts, report); err != nil {
					return err
				}
				if !report.CanCommit() {
					return fmt.Errorf("%s: not ready to import", args[0])
				}
				return nil
			})
		},
	}
	files.bind(cmd)
	return cmd
}

func printPreflight(cmd *cobra.Command, opts *GlobalOptions, report models.PreflightReport) error {
	out := cmd.OutOrStdout()
	if opts.JSON {
		return printJSON(out, report)
	}
	printList(out, "Errors", report.Validation.Errors)
	printList(out, "Warnings", report.Validation.Warnings)
	printList(out, "Duplicates in file", report.Conflicts.Duplicates)
	printList(out, "Conflicts with stored records", report.Conflicts.Conflicts)
	if report.CanCommit() {
		fmt.Fprintln(out, "File is ready to import.")
	}
	return nil
}

func newImportCmd(opts *GlobalOptions) *cobra.Command {
	files := &fileOptions{}
	var force, skipChecks bool

	cmd := &cobra.Command{
		Use:   "import <file>",
		Short: "Import a file",
		Long: `Import maps, validates and commits a file in batches. Rows that fail are
reported and skipped; the rest are committed. The run is recorded in the
import ledger under the printed import id.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := requireTenant(opts); err != nil {
				return err
			}
			table, err := files.read(args[0])
			if err != nil {
				return err
			}
			e, mappings, err := mappingFor(opts, table, files.MappingFile, files.Overrides)
			if err != nil {
				return err
			}

			return withService(cmd.Context(), opts, func(svc *etl.Service) error {
				ctx := cmd.Context()
				if !skipChecks {
					report, err := svc.Preflight(ctx, table.Rows, mappings, e, opts.Tenant)
					if err != nil {
						return err
					}
					if !report.CanCommit() && !force {
						if err := printPreflight(cmd, opts, report); err != nil {
							return err
						}
						return fmt.Errorf("%s: validation failed; fix the file or use --force", args[0])
					}
				}

				result, err := svc.Execute(ctx, e, mappings, table.Rows, opts.User, opts.Tenant)
				if perr := printImport(cmd, opts, result); perr != nil {
					return perr
				}
				return err
			})
		},
	}
	files.bind(cmd)
	cmd.Flags().BoolVar(&force, "force", false, "Import even when validation reports errors or conflicts")
	cmd.Flags().BoolVar(&skipChecks, "skip-checks", false, "Skip validation and conflict checks")
	return cmd
}

func printImport(cmd *cobra.Command, opts *GlobalOptions, r models.ImportResult) error {
	out := cmd.OutOrStdout()
	if opts.JSON {
		return printJSON(out, r)
	}
	if r.ImportID == "" {
		return nil
	}
	fmt.Fprintf(out, "Import %s: imported %d, skipped %d\n", r.ImportID, r.ImportedCount, r.SkippedCount)
	printList(out, "Errors", r.Errors)
	printList(out, "Duplicates", r.Duplicates)
	printList(out, "Warnings", r.Warnings)
	return nil
}

