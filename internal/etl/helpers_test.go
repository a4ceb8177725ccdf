package etl

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/BartekS5/importer/internal/registry"
	"github.com/BartekS5/importer/internal/store"
	"github.com/BartekS5/importer/internal/store/memstore"
	"github.com/BartekS5/importer/pkg/models"
)

// identity maps every field key to a column of the same name.
func identity(e models.EntityType, keys ...string) []models.ColumnMapping {
	spec := registry.MustLookup(e)
	out := make([]models.ColumnMapping, 0, len(keys))
	for _, k := range keys {
		f, _ := spec.Field(k)
		out = append(out, models.ColumnMapping{SourceColumn: k, TargetField: k, Confidence: 100, Required: f.Required})
	}
	return out
}

func rowsOf(header []string, cells ...[]string) []models.RawRow {
	out := make([]models.RawRow, 0, len(cells))
	for _, c := range cells {
		row := models.RawRow{}
		for i, h := range header {
			if i < len(c) {
				row[h] = c[i]
			}
		}
		out = append(out, row)
	}
	return out
}

type plainHasher struct{}

func (plainHasher) Hash(plain string) (string, error) { return "hashed:" + plain, nil }

// seed inserts one record of entity e for a tenant and returns its id.
func seed(t *testing.T, st store.Store, e models.EntityType, tenantID int64, fields map[string]any) int64 {
	t.Helper()
	var id int64
	err := st.InTx(context.Background(), func(ctx context.Context, tx store.Tx) error {
		repo, err := tx.Repository(e)
		if err != nil {
			return err
		}
		rec := map[string]any{registry.FieldTenantID: tenantID}
		for k, v := range fields {
			rec[k] = v
		}
		id, err = repo.Create(ctx, rec)
		return err
	})
	require.NoError(t, err)
	return id
}

// all returns every stored record of e for a tenant.
func all(t *testing.T, st store.Store, e models.EntityType, tenantID int64) []store.Stored {
	t.Helper()
	repo, err := st.Repository(e)
	require.NoError(t, err)
	found, err := repo.FindMany(context.Background(), store.Filter{TenantID: tenantID})
	require.NoError(t, err)
	return found
}

// noSavepointStore behaves like a document store whose transactions cannot
// roll back to a savepoint.
type noSavepointStore struct {
	*memstore.Store
}

func (s noSavepointStore) InTx(ctx context.Context, fn func(ctx context.Context, tx store.Tx) error) error {
	return s.Store.InTx(ctx, func(ctx context.Context, tx store.Tx) error {
		return fn(ctx, noSavepointTx{tx})
	})
}

type noSavepointTx struct {
	store.Tx
}

func (noSavepointTx) RollbackTo(context.Context, string) error { return store.ErrTxAborted }
