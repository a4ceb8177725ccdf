package cli

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/BartekS5/importer/internal/etl"
	"github.com/BartekS5/importer/pkg/models"
)

func newHistoryCmd(opts *GlobalOptions) *cobra.Command {
	var limit, offset int

	cmd := &cobra.Command{
		Use:   "history",
		Short: "List past imports of a tenant, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := requireTenant(opts); err != nil {
				return err
			}
			return withService(cmd.Context(), opts, func(svc *etl.Service) error {
				entries, err := svc.GetHistory(cmd.Context(), opts.Tenant, limit, offset)
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				if opts.JSON {
					if entries == nil {
						entries = []models.LedgerEntry{}
					}
					return printJSON(out, entries)
				}
				tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
				fmt.Fprintln(tw, "IMPORT ID\tENTITY\tSTATUS\tROWS\tIMPORTED\tSKIPPED\tSTARTED\tROLLBACK")
				for _, e := range entries {
					rollback := "no"
					switch {
					case e.RolledBack:
						rollback = fmt.Sprintf("done (%d deleted)", e.DeletedCount)
					case e.CanRollback:
						rollback = "yes"
					}
					fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%d\t%d\t%s\t%s\n", e.ImportID, e.EntityType, e.Status,
						e.TotalRows, e.ImportedCount, e.SkippedCount, e.StartedAt.Local().Format("2006-01-02 15:04:05"), rollback)
				}
				return tw.Flush()
			})
		},
	}
	cmd.Flags().IntVar(&limit, "limit", etl.DefaultHistoryLimit, fmt.Sprintf("Maximum entries (at most %d)", etl.MaxHistoryLimit))
	cmd.Flags().IntVar(&offset, "offset", 0, "Entries to skip")
	return cmd
}

func newRollbackCmd(opts *GlobalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "rollback <importId>",
		Short: "Delete the records created by an import",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := requireTenant(opts); err != nil {
				return err
			}
			return withService(cmd.Context(), opts, func(svc *etl.Service) error {
				res, err := svc.Rollback(cmd.Context(), args[0], opts.User, opts.Tenant)
				if err != nil {
					return err
				}
				if opts.JSON {
					if err := printJSON(cmd.OutOrStdout(), res); err != nil {
						return err
					}
				} else {
					fmt.Fprintln(cmd.OutOrStdout(), res.Message)
				}
				if !res.Success {
					return fmt.Errorf("rollback of %s refused", args[0])
				}
				return nil
			})
		},
	}
}
