// Package mongostore implements store.Store on MongoDB: one collection per
// entity type, numeric ids from a counters collection and session
// transactions for batches.
package mongostore

import (
	"context"
	"regexp"
	"time"

	"github.com/pkg/errors"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/BartekS5/importer/internal/registry"
	"github.com/BartekS5/importer/internal/store"
	"github.com/BartekS5/importer/pkg/logger"
	"github.com/BartekS5/importer/pkg/models"
)

// collections is the compile-time table of entity type -> collection name.
var collections = map[models.EntityType]string{
	models.EntityUsers:                "users",
	models.EntityLocations:            "locations",
	models.EntitySuppliers:            "suppliers",
	models.EntityParts:                "parts",
	models.EntityAssets:               "assets",
	models.EntityWorkOrders:           "work_orders",
	models.EntityMaintenanceTasks:     "maintenance_tasks",
	models.EntityMaintenanceSchedules: "maintenance_schedules",
}

const (
	countersCollection = "counters"
	ledgerCollection   = "import_ledger"
)

type Store struct {
	client *mongo.Client
	db     *mongo.Database
	repos  map[models.EntityType]*repository
	now    func() time.Time
}

func New(client *mongo.Client, database string) *Store {
	db := client.Database(database)
	s := &Store{client: client, db: db, now: time.Now}
	s.repos = make(map[models.EntityType]*repository, len(collections))
	for e, name := range collections {
		s.repos[e] = &repository{
			entity:   e,
			coll:     db.Collection(name),
			counters: db.Collection(countersCollection),
			columns:  columnSet(e),
			now:      func() time.Time { return s.now() },
		}
	}
	return s
}

func columnSet(e models.EntityType) map[string]bool {
	out := map[string]bool{}
	for _, c := range registry.Columns(e) {
		out[c] = true
	}
	return out
}

// EnsureIndexes creates the tenant-scoped unique and lookup indexes.
func (s *Store) EnsureIndexes(ctx context.Context) error {
	unique := map[models.EntityType]string{
		models.EntityUsers: "email",
		models.EntityParts: "sku",
	}
	for e, repo := range s.repos {
		idx := []mongo.IndexModel{
			{Keys: bson.D{{Key: registry.FieldTenantID, Value: 1}, {Key: registry.FieldCreatedAt, Value: 1}}},
			{Keys: bson.D{{Key: registry.FieldImportID, Value: 1}}},
		}
		if field, ok := unique[e]; ok {
			idx = append(idx, mongo.IndexModel{
				Keys: bson.D{{Key: registry.FieldTenantID, Value: 1}, {Key: field, Value: 1}},
				Options: options.Index().SetUnique(true).
					SetPartialFilterExpression(bson.M{field: bson.M{"$type": "string"}}),
			})
		}
		if _, err := repo.coll.Indexes().CreateMany(ctx, idx); err != nil {
			return errors.Wrapf(err, "create indexes on %s", repo.coll.Name())
		}
	}
	_, err := s.db.Collection(ledgerCollection).Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "tenantId", Value: 1}, {Key: "startedAt", Value: -1}},
	})
	return errors.Wrap(err, "create ledger index")
}

func (s *Store) Repository(e models.EntityType) (store.EntityRepository, error) {
	repo, ok := s.repos[e]
	if !ok {
		return nil, &registry.UnknownEntityError{Entity: string(e)}
	}
	return repo, nil
}

func (s *Store) Ledger() store.LedgerRepository {
	return &ledger{coll: s.db.Collection(ledgerCollection)}
}

func (s *Store) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}

// InTx runs fn inside a session transaction. Repositories obtained from the
// Tx use the session context fn receives.
func (s *Store) InTx(ctx context.Context, fn func(ctx context.Context, tx store.Tx) error) error {
	sess, err := s.client.StartSession()
	if err != nil {
		return errors.Wrap(err, "start session")
	}
	defer sess.EndSession(context.Background())

	_, err = sess.WithTransaction(ctx, func(sc mongo.SessionContext) (interface{}, error) {
		return nil, fn(sc, &tx{store: s})
	})
	return err
}

type tx struct {
	store *Store
}

func (t *tx) Repository(e models.EntityType) (store.EntityRepository, error) {
	return t.store.Repository(e)
}

// Savepoint is a no-op: MongoDB transactions have no savepoints.
func (t *tx) Savepoint(context.Context, string) error { return nil }

// RollbackTo cannot undo part of a MongoDB transaction; a failed write has
// already aborted it server-side, so the caller must retry the batch.
func (t *tx) RollbackTo(context.Context, string) error {
	return store.ErrTxAborted
}

type repository struct {
	entity   models.EntityType
	coll     *mongo.Collection
	counters *mongo.Collection
	columns  map[string]bool
	now      func() time.Time
}

func (r *repository) nextID(ctx context.Context) (int64, error) {
	var doc struct {
		Seq int64 `bson:"seq"`
	}
	opts := options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After)
	err := r.counters.FindOneAndUpdate(ctx,
		bson.M{"_id": string(r.entity)},
		bson.M{"$inc": bson.M{"seq": int64(1)}},
		opts,
	).Decode(&doc)
	if err != nil {
		return 0, errors.Wrapf(err, "allocate id for %s", r.entity)
	}
	return doc.Seq, nil
}

func (r *repository) Create(ctx context.Context, rec map[string]any) (int64, error) {
	doc := bson.M{}
	for k, v := range rec {
		if !r.columns[k] {
			return 0, errors.Wrapf(store.ErrUnknownField, "%s.%s", r.entity, k)
		}
		doc[k] = v
	}
	if _, ok := rec[registry.FieldTenantID].(int64); !ok {
		return 0, errors.Wrap(store.ErrInvalidValue, "tenantId is required")
	}

	id, err := r.nextID(ctx)
	if err != nil {
		return 0, err
	}
	doc["_id"] = id
	doc[registry.FieldCreatedAt] = r.now().UTC()

	if _, err := r.coll.InsertOne(ctx, doc); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return 0, errors.Wrapf(store.ErrUniqueViolation, "%s: %v", r.entity, err)
		}
		return 0, errors.Wrapf(err, "insert into %s", r.coll.Name())
	}
	logger.Debugf("mongo: inserted %s %d", r.entity, id)
	return id, nil
}

func (r *repository) FindMany(ctx context.Context, f store.Filter) ([]store.Stored, error) {
	opts := options.Find().SetSort(bson.D{{Key: "_id", Value: 1}})
	if f.Limit > 0 {
		opts.SetLimit(int64(f.Limit))
	}
	if len(f.Fields) > 0 {
		proj := bson.M{registry.FieldCreatedAt: 1}
		for _, field := range f.Fields {
			proj[field] = 1
		}
		opts.SetProjection(proj)
	}

	cursor, err := r.coll.Find(ctx, buildFilter(f), opts)
	if err != nil {
		return nil, errors.Wrapf(err, "find in %s", r.coll.Name())
	}
	defer cursor.Close(ctx)

	var out []store.Stored
	for cursor.Next(ctx) {
		var doc bson.M
		if err := cursor.Decode(&doc); err != nil {
			return nil, errors.Wrapf(err, "decode %s document", r.entity)
		}
		out = append(out, fromDocument(doc))
	}
	return out, errors.Wrap(cursor.Err(), "iterate cursor")
}

func (r *repository) DeleteMany(ctx context.Context, f store.Filter) (int64, error) {
	res, err := r.coll.DeleteMany(ctx, buildFilter(f))
	if err != nil {
		return 0, errors.Wrapf(err, "delete from %s", r.coll.Name())
	}
	return res.DeletedCount, nil
}

func buildFilter(f store.Filter) bson.M {
	filter := bson.M{registry.FieldTenantID: f.TenantID}
	created := bson.M{}
	if !f.CreatedFrom.IsZero() {
		created["$gte"] = f.CreatedFrom.UTC()
	}
	if !f.CreatedTo.IsZero() {
		created["$lte"] = f.CreatedTo.UTC()
	}
	if len(created) > 0 {
		filter[registry.FieldCreatedAt] = created
	}
	if f.ImportID != "" {
		filter[registry.FieldImportID] = f.ImportID
	}
	for _, c := range f.Conditions {
		field := c.Field
		if field == registry.FieldID {
			field = "_id"
		}
		values := make(bson.A, 0, len(c.Values))
		for _, v := range c.Values {
			if s, ok := v.(string); ok && c.FoldCase {
				values = append(values, primitive.Regex{Pattern: "^" + regexp.QuoteMeta(s) + "$", Options: "i"})
				continue
			}
			values = append(values, v)
		}
		filter[field] = bson.M{"$in": values}
	}
	return filter
}

func fromDocument(doc bson.M) store.Stored {
	s := store.Stored{Fields: map[string]any{}}
	for k, v := range doc {
		switch k {
		case "_id":
			switch id := v.(type) {
			case int64:
				s.ID = id
			case int32:
				s.ID = int64(id)
			}
		case registry.FieldCreatedAt:
			if dt, ok := v.(primitive.DateTime); ok {
				s.CreatedAt = dt.Time().UTC()
			}
		default:
			if dt, ok := v.(primitive.DateTime); ok {
				v = dt.Time().UTC()
			}
			s.Fields[k] = v
		}
	}
	return s
}

type ledger struct {
	coll *mongo.Collection
}

func (l *ledger) Create(ctx context.Context, e *models.LedgerEntry) error {
	_, err := l.coll.InsertOne(ctx, e)
	return errors.Wrap(err, "insert ledger entry")
}

func (l *ledger) Update(ctx context.Context, e *models.LedgerEntry) error {
	res, err := l.coll.ReplaceOne(ctx, bson.M{"_id": e.ImportID, "tenantId": e.TenantID}, e)
	if err != nil {
		return errors.Wrap(err, "update ledger entry")
	}
	if res.MatchedCount == 0 {
		return errors.Wrapf(store.ErrNotFound, "ledger entry %s", e.ImportID)
	}
	return nil
}

func (l *ledger) Get(ctx context.Context, tenantID int64, importID string) (*models.LedgerEntry, error) {
	var e models.LedgerEntry
	err := l.coll.FindOne(ctx, bson.M{"_id": importID, "tenantId": tenantID}).Decode(&e)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, errors.Wrapf(store.ErrNotFound, "ledger entry %s", importID)
		}
		return nil, errors.Wrap(err, "get ledger entry")
	}
	return &e, nil
}

func (l *ledger) List(ctx context.Context, tenantID int64, limit, offset int) ([]models.LedgerEntry, error) {
	opts := options.Find().
		SetSort(bson.D{{Key: "startedAt", Value: -1}, {Key: "_id", Value: -1}}).
		SetSkip(int64(offset)).
		SetLimit(int64(limit))
	cursor, err := l.coll.Find(ctx, bson.M{"tenantId": tenantID}, opts)
	if err != nil {
		return nil, errors.Wrap(err, "list ledger entries")
	}
	defer cursor.Close(ctx)

	out := []models.LedgerEntry{}
	if err := cursor.All(ctx, &out); err != nil {
		return nil, errors.Wrap(err, "decode ledger entries")
	}
	return out, nil
}
