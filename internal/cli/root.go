package cli

import (
	"github.com/spf13/cobra"

	"github.com/BartekS5/importer/internal/config"
	"github.com/BartekS5/importer/pkg/logger"
)

// GlobalOptions are the persistent flags shared by every sub-command.
type GlobalOptions struct {
	Tenant int64
	User   int64
	Entity string
	Store  string
	JSON   bool

	cfg *config.Config
}

func NewRootCmd() *cobra.Command {
	opts := &GlobalOptions{}

	rootCmd := &cobra.Command{
		Use:   "importer",
		Short: "importer - bulk data import for maintenance records",
		Long: `importer maps spreadsheet columns onto entity schemas, validates and
normalizes the rows, resolves references and commits them in batches.
Every run is recorded in an import ledger and can be rolled back.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadConfig()
			if err != nil {
				return err
			}
			if opts.Store != "" {
				cfg.Store = opts.Store
				if err := cfg.Validate(); err != nil {
					return err
				}
			}
			level := logger.INFO
			if cfg.Debug() {
				level = logger.DEBUG
			}
			if err := logger.InitLogger(cfg.LogFile, level); err != nil {
				return err
			}
			if opts.JSON {
				logger.SetOutput(cmd.ErrOrStderr())
			}
			opts.cfg = cfg
			return nil
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			logger.Close()
		},
		Run: func(cmd *cobra.Command, args []string) {
			cmd.Help()
		},
	}

	flags := rootCmd.PersistentFlags()
	flags.Int64VarP(&opts.Tenant, "tenant", "t", 0, "Tenant (organization) id")
	flags.Int64VarP(&opts.User, "user", "u", 0, "Acting user id")
	flags.StringVarP(&opts.Entity, "entity", "e", "", "Entity type (users, locations, suppliers, parts, assets, workorders, maintenancetasks, maintenanceschedules)")
	flags.StringVar(&opts.Store, "store", "", "Store backend, overrides IMPORT_STORE (memory, mongo, sqlserver)")
	flags.BoolVar(&opts.JSON, "json", false, "Print results as JSON")

	rootCmd.AddCommand(
		newMapCmd(opts),
		newValidateCmd(opts),
		newImportCmd(opts),
		newHistoryCmd(opts),
		newRollbackCmd(opts),
		newTemplateCmd(opts),
		NewMigrateCmd(opts),
	)

	return rootCmd
}
