package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/BartekS5/importer/internal/store/mongostore"
	"github.com/BartekS5/importer/internal/store/sqlstore"
	"github.com/BartekS5/importer/pkg/logger"
)

// NewMigrateCmd prepares the selected store: tables and indexes on SQL
// Server, indexes on MongoDB.
func NewMigrateCmd(opts *GlobalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create the tables and indexes the importer writes to",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := openStore(opts.cfg)
			if err != nil {
				return err
			}
			defer st.Close(cmd.Context())

			switch s := st.(type) {
			case *sqlstore.Store:
				err = s.Migrate(cmd.Context())
			case *mongostore.Store:
				err = s.EnsureIndexes(cmd.Context())
			default:
				logger.Info("Store %q needs no migration.", opts.cfg.Store)
				return nil
			}
			if err != nil {
				return fmt.Errorf("migrate %s: %w", opts.cfg.Store, err)
			}
			logger.Info("Store %q is up to date.", opts.cfg.Store)
			return nil
		},
	}
}

