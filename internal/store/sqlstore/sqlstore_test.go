package sqlstore

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	mssql "github.com/microsoft/go-mssqldb"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BartekS5/importer/internal/registry"
	"github.com/BartekS5/importer/internal/store"
	"github.com/BartekS5/importer/pkg/models"
)

var fixedNow = time.Date(2024, time.June, 1, 8, 0, 0, 0, time.UTC)

func newMock(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	st := New(db)
	st.now = func() time.Time { return fixedNow }
	return st, mock
}

func TestCreateInsertsSortedColumns(t *testing.T) {
	st, mock := newMock(t)
	mock.ExpectQuery(regexp.QuoteMeta(
		"INSERT INTO [users] ([email], [name], [tenantId], [createdAt]) OUTPUT INSERTED.[id] VALUES (@p1, @p2, @p3, @p4)")).
		WithArgs("ann@example.com", "Ann", int64(1), fixedNow).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(42)))

	repo, err := st.Repository(models.EntityUsers)
	require.NoError(t, err)
	id, err := repo.Create(context.Background(), map[string]any{"name": "Ann", "email": "ann@example.com", "tenantId": int64(1)})
	require.NoError(t, err)
	assert.Equal(t, int64(42), id)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateRejectsUnknownColumn(t *testing.T) {
	st, mock := newMock(t)
	repo, err := st.Repository(models.EntityUsers)
	require.NoError(t, err)

	_, err = repo.Create(context.Background(), map[string]any{"shoeSize": 44.0, "tenantId": int64(1)})
	assert.ErrorIs(t, err, store.ErrUnknownField)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateClassifiesServerErrors(t *testing.T) {
	cases := []struct {
		number int32
		want   error
	}{
		{2627, store.ErrUniqueViolation},
		{2601, store.ErrUniqueViolation},
		{547, store.ErrForeignKey},
		{207, store.ErrUnknownField},
		{515, store.ErrInvalidValue},
		{8114, store.ErrInvalidValue},
	}
	for _, c := range cases {
		st, mock := newMock(t)
		mock.ExpectQuery("INSERT INTO \\[parts\\]").WillReturnError(mssql.Error{Number: c.number, Message: "server says no"})

		repo, err := st.Repository(models.EntityParts)
		require.NoError(t, err)
		_, err = repo.Create(context.Background(), map[string]any{"name": "Belt", "tenantId": int64(1)})
		assert.ErrorIs(t, err, c.want, "error %d", c.number)
	}
}

func TestClassifyPassesOtherErrors(t *testing.T) {
	err := classify(sql.ErrConnDone, "insert")
	assert.ErrorIs(t, err, sql.ErrConnDone)
	assert.NotErrorIs(t, err, store.ErrInvalidValue)
	assert.NoError(t, classify(nil, "insert"))
}

func TestFindManyBuildsQuery(t *testing.T) {
	st, mock := newMock(t)
	mock.ExpectQuery(regexp.QuoteMeta(
		"SELECT TOP (1) [id], [createdAt], [email] FROM [users] WHERE [tenantId] = @p1 AND LOWER([email]) IN (LOWER(@p2), LOWER(@p3)) ORDER BY [id]")).
		WithArgs(int64(1), "ANN@example.com", "bob@example.com").
		WillReturnRows(sqlmock.NewRows([]string{"id", "createdAt", "email"}).AddRow(int64(3), fixedNow, []byte("ann@example.com")))

	repo, err := st.Repository(models.EntityUsers)
	require.NoError(t, err)
	found, err := repo.FindMany(context.Background(), store.Filter{
		TenantID:   1,
		Conditions: []store.Condition{{Field: "email", Values: []any{"ANN@example.com", "bob@example.com"}, FoldCase: true}},
		Fields:     []string{"email"},
		Limit:      1,
	})
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, int64(3), found[0].ID)
	assert.Equal(t, fixedNow, found[0].CreatedAt)
	assert.Equal(t, "ann@example.com", found[0].String("email"))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestFindManyEmptyConditionMatchesNothing(t *testing.T) {
	st, mock := newMock(t)
	mock.ExpectQuery(regexp.QuoteMeta("WHERE [tenantId] = @p1 AND 1 = 0 ORDER BY [id]")).
		WithArgs(int64(1)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "createdAt", "name"}))

	repo, err := st.Repository(models.EntityLocations)
	require.NoError(t, err)
	found, err := repo.FindMany(context.Background(), store.Filter{
		TenantID:   1,
		Conditions: []store.Condition{{Field: "name"}},
		Fields:     []string{"name"},
	})
	require.NoError(t, err)
	assert.Empty(t, found)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDeleteManyWindowAndTag(t *testing.T) {
	st, mock := newMock(t)
	from, to := fixedNow, fixedNow.Add(time.Minute)
	mock.ExpectExec(regexp.QuoteMeta(
		"DELETE FROM [work_orders] WHERE [tenantId] = @p1 AND [createdAt] >= @p2 AND [createdAt] <= @p3 AND [importId] = @p4")).
		WithArgs(int64(1), from, to, "imp-1").
		WillReturnResult(sqlmock.NewResult(0, 4))

	repo, err := st.Repository(models.EntityWorkOrders)
	require.NoError(t, err)
	n, err := repo.DeleteMany(context.Background(), store.Filter{TenantID: 1, CreatedFrom: from, CreatedTo: to, ImportID: "imp-1"})
	require.NoError(t, err)
	assert.Equal(t, int64(4), n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestInTxSavepoints(t *testing.T) {
	st, mock := newMock(t)
	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("SAVE TRANSACTION [row_1]")).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(regexp.QuoteMeta("ROLLBACK TRANSACTION [row_1]")).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectCommit()

	err := st.InTx(context.Background(), func(ctx context.Context, tx store.Tx) error {
		if err := tx.Savepoint(ctx, "row_1"); err != nil {
			return err
		}
		return tx.RollbackTo(ctx, "row_1")
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestInTxRollsBackOnError(t *testing.T) {
	st, mock := newMock(t)
	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("ROLLBACK TRANSACTION [row_2]")).WillReturnError(errors.New("no such savepoint"))
	mock.ExpectRollback()

	err := st.InTx(context.Background(), func(ctx context.Context, tx store.Tx) error {
		return tx.RollbackTo(ctx, "row_2")
	})
	assert.ErrorIs(t, err, store.ErrTxAborted)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestQuoteDropsUnsafeCharacters(t *testing.T) {
	assert.Equal(t, "[row_1]", quote("row_1"))
	assert.Equal(t, "[usersDROPTABLE]", quote("users]; DROP TABLE"))
}

func TestRepositoryUnknownEntity(t *testing.T) {
	st, _ := newMock(t)
	_, err := st.Repository("widgets")
	assert.Error(t, err)
}

func TestLedgerGetNotFound(t *testing.T) {
	st, mock := newMock(t)
	mock.ExpectQuery("FROM \\[import_ledger\\]").WithArgs("missing", int64(1)).
		WillReturnRows(sqlmock.NewRows([]string{"importId"}))

	_, err := st.Ledger().Get(context.Background(), 1, "missing")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestLedgerRoundTrip(t *testing.T) {
	st, mock := newMock(t)
	done := fixedNow.Add(3 * time.Second)
	entry := &models.LedgerEntry{
		ImportID: "imp-1", TenantID: 1, UserID: 7, EntityType: models.EntityUsers,
		Mappings:  []models.ColumnMapping{{SourceColumn: "Name", TargetField: "name", Confidence: 100, Required: true}},
		TotalRows: 2, ImportedCount: 2, Status: models.StatusCompleted,
		StartedAt: fixedNow, CompletedAt: &done, DurationMs: 3000, CanRollback: true,
	}

	args := make([]driver.Value, 21)
	for i := range args {
		args[i] = sqlmock.AnyArg()
	}
	mock.ExpectExec("UPDATE \\[import_ledger\\]").WithArgs(args...).WillReturnResult(sqlmock.NewResult(0, 1))
	require.NoError(t, st.Ledger().Update(context.Background(), entry))

	mock.ExpectExec("UPDATE \\[import_ledger\\]").WillReturnResult(sqlmock.NewResult(0, 0))
	assert.ErrorIs(t, st.Ledger().Update(context.Background(), entry), store.ErrNotFound)

	cols := []string{"importId", "tenantId", "userId", "entityType", "mappings", "totalRows", "importedCount",
		"skippedCount", "derivedCount", "status", "errors", "duplicates", "failureMessage", "startedAt",
		"completedAt", "durationMs", "canRollback", "rolledBack", "rolledBackAt", "rolledBackBy", "deletedCount"}
	mock.ExpectQuery("ORDER BY \\[startedAt\\] DESC").WithArgs(int64(1), 0, 20).
		WillReturnRows(sqlmock.NewRows(cols).AddRow(
			"imp-1", int64(1), int64(7), "users", `[{"sourceColumn":"Name","targetField":"name","confidence":100,"required":true}]`,
			int64(2), int64(2), int64(0), int64(0), "COMPLETED", "[]", "[]", "",
			fixedNow, done, int64(3000), true, false, nil, int64(0), int64(0)))

	list, err := st.Ledger().List(context.Background(), 1, 20, 0)
	require.NoError(t, err)
	require.Len(t, list, 1)
	got := list[0]
	assert.Equal(t, entry.Mappings, got.Mappings)
	assert.Equal(t, models.StatusCompleted, got.Status)
	require.NotNil(t, got.CompletedAt)
	assert.True(t, done.Equal(*got.CompletedAt))
	assert.Nil(t, got.RolledBackAt)
	assert.Equal(t, []string{}, got.Errors)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func tableDDLFor(t *testing.T, e models.EntityType) []string {
	t.Helper()
	spec, err := registry.Lookup(e)
	require.NoError(t, err)
	return tableDDL(spec)
}

func TestTableDDL(t *testing.T) {
	stmts := tableDDLFor(t, models.EntityWorkOrders)
	require.Len(t, stmts, 2)
	assert.Contains(t, stmts[0], "CREATE TABLE [work_orders]")
	assert.Contains(t, stmts[0], "[assetId] BIGINT NULL REFERENCES [assets]([id])")
	assert.Contains(t, stmts[0], "[scheduleId] BIGINT NULL REFERENCES [maintenance_schedules]([id])")
	assert.Contains(t, stmts[0], "[estimatedHours] FLOAT NULL")
	assert.Contains(t, stmts[0], "[status] NVARCHAR(50) NULL")
	assert.NotContains(t, stmts[0], "[assetName]")
	assert.Contains(t, stmts[1], "IX_work_orders_tenant_created")

	users := tableDDLFor(t, models.EntityUsers)
	require.Len(t, users, 3)
	assert.Contains(t, users[2], "CREATE UNIQUE INDEX [UX_users_tenant_email] ON [users] ([tenantId], [email]) WHERE [email] IS NOT NULL")
}

func TestMigrate(t *testing.T) {
	st, mock := newMock(t)
	for _, e := range models.EntityTypes {
		for _, stmt := range tableDDLFor(t, e) {
			mock.ExpectExec(regexp.QuoteMeta(stmt)).WillReturnResult(sqlmock.NewResult(0, 0))
		}
	}
	mock.ExpectExec(regexp.QuoteMeta(ledgerDDL)).WillReturnResult(sqlmock.NewResult(0, 0))

	require.NoError(t, st.Migrate(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())
}
