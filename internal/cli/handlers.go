package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/BartekS5/importer/internal/config"
	"github.com/BartekS5/importer/internal/etl"
	"github.com/BartekS5/importer/internal/registry"
	"github.com/BartekS5/importer/internal/source"
	"github.com/BartekS5/importer/internal/store"
	"github.com/BartekS5/importer/internal/store/memstore"
	"github.com/BartekS5/importer/internal/store/mongostore"
	"github.com/BartekS5/importer/internal/store/sqlstore"
	"github.com/BartekS5/importer/pkg/database"
	"github.com/BartekS5/importer/pkg/logger"
	"github.com/BartekS5/importer/pkg/models"
)

// openStore connects the backend selected by the configuration.
func openStore(cfg *config.Config) (store.Store, error) {
	switch cfg.Store {
	case config.StoreMongo:
		client, err := database.ConnectMongo(cfg.MongoConnString)
		if err != nil {
			return nil, err
		}
		return mongostore.New(client, cfg.MongoDatabase), nil
	case config.StoreSQLServer:
		db, err := database.ConnectSQL(cfg.SQLConnString)
		if err != nil {
			return nil, err
		}
		return sqlstore.New(db), nil
	default:
		logger.Warn("Using the in-memory store; nothing is persisted after this command exits.")
		return memstore.New(), nil
	}
}

// withService opens the store, runs fn with a Service over it and closes the store.
func withService(ctx context.Context, opts *GlobalOptions, fn func(svc *etl.Service) error) error {
	st, err := openStore(opts.cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := st.Close(context.WithoutCancel(ctx)); err != nil {
			logger.Warnf("Closing store: %v", err)
		}
	}()

	svc := etl.NewService(st, etl.Options{
		BatchSize:     opts.cfg.BatchSize,
		BatchTimeout:  opts.cfg.BatchTimeout,
		LookupTimeout: opts.cfg.LookupTimeout,
		RollbackMode:  opts.cfg.RollbackMode,
	})
	return fn(svc)
}

func requireTenant(opts *GlobalOptions) error {
	if opts.Tenant <= 0 {
		return fmt.Errorf("--tenant is required")
	}
	return nil
}

func entityOf(opts *GlobalOptions, fallback models.EntityType) (models.EntityType, error) {
	if opts.Entity == "" {
		if fallback != "" {
			return fallback, nil
		}
		return "", fmt.Errorf("--entity is required")
	}
	e, err := models.ParseEntityType(opts.Entity)
	if err != nil {
		return "", &etl.ConfigurationError{Err: err}
	}
	return e, nil
}

// mappingFor loads the mapping file when given, otherwise infers one, and
// applies "Column=field" overrides on top.
func mappingFor(opts *GlobalOptions, table *source.Table, mappingFile string, overrides []string) (models.EntityType, []models.ColumnMapping, error) {
	var (
		e        models.EntityType
		mappings []models.ColumnMapping
	)
	if mappingFile != "" {
		m, err := config.LoadMapping(mappingFile)
		if err != nil {
			return "", nil, err
		}
		if e, err = entityOf(opts, m.Entity); err != nil {
			return "", nil, err
		}
		if e != m.Entity {
			return "", nil, fmt.Errorf("mapping file is for %s, not %s", m.Entity, e)
		}
		mappings = m.Mappings
	} else {
		var err error
		if e, err = entityOf(opts, ""); err != nil {
			return "", nil, err
		}
		if mappings, err = etl.InferMapping(table.Headers, e); err != nil {
			return "", nil, err
		}
	}

	mappings, err := applyOverrides(e, mappings, overrides)
	if err != nil {
		return "", nil, err
	}
	return e, mappings, nil
}

func applyOverrides(e models.EntityType, mappings []models.ColumnMapping, overrides []string) ([]models.ColumnMapping, error) {
	spec, err := registry.Lookup(e)
	if err != nil {
		return nil, &etl.ConfigurationError{Err: err}
	}
	for _, o := range overrides {
		column, field, ok := strings.Cut(o, "=")
		if !ok {
			return nil, fmt.Errorf("invalid --map %q, want Column=field", o)
		}
		column, field = strings.TrimSpace(column), strings.TrimSpace(field)
		idx := -1
		for i, m := range mappings {
			if strings.EqualFold(m.SourceColumn, column) {
				idx = i
				break
			}
		}
		if idx < 0 {
			return nil, fmt.Errorf("--map: the file has no column %q", column)
		}
		f, known := spec.Field(field)
		if field != "" && !known {
			return nil, fmt.Errorf("--map: %s has no field %q", e, field)
		}
		mappings[idx].TargetField = field
		mappings[idx].Required = known && f.Required
		mappings[idx].Suggested = ""
		if field != "" {
			mappings[idx].Confidence = 100
		}
	}
	return mappings, nil
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func printList(w io.Writer, title string, items []string) {
	if len(items) == 0 {
		return
	}
	fmt.Fprintf(w, "%s (%d):\n", title, len(items))
	for _, it := range items {
		fmt.Fprintf(w, "  - %s\n", it)
	}
}
