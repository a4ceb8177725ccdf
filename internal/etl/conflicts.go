package etl

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"

	"github.com/BartekS5/importer/internal/store"
	"github.com/BartekS5/importer/pkg/models"
)

// maxInValues bounds the values of one IN query; SQL Server accepts at
// most 2100 parameters per statement.
const maxInValues = 500

// maxParallelChunks bounds the IN queries of one key in flight at once.
const maxParallelChunks = 4

// ConflictDetector reports intra-file duplicates and values that already
// exist in the store. Both checks are read-only.
type ConflictDetector struct {
	store   store.Store
	timeout time.Duration
}

func NewConflictDetector(st store.Store, timeout time.Duration) *ConflictDetector {
	return &ConflictDetector{store: st, timeout: timeout}
}

// Check runs both checks concurrently.
func (d *ConflictDetector) Check(ctx context.Context, rows []models.RawRow, mappings []models.ColumnMapping, spec models.EntitySpec, tenantID int64) (models.ConflictReport, error) {
	report := models.ConflictReport{Duplicates: []string{}, Conflicts: []string{}}
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		report.Duplicates = FindDuplicates(rows, mappings, spec)
		return nil
	})
	g.Go(func() error {
		conflicts, err := d.existing(gctx, rows, mappings, spec, tenantID)
		if err != nil {
			return err
		}
		report.Conflicts = conflicts
		return nil
	})
	if err := g.Wait(); err != nil {
		return models.ConflictReport{}, err
	}
	return report, nil
}

// naturalKeyColumns returns natural key field -> source column for the mapped keys.
func naturalKeyColumns(mappings []models.ColumnMapping, spec models.EntitySpec) ([]string, map[string]string) {
	mapped := models.MappedFields(mappings)
	var keys []string
	cols := map[string]string{}
	for _, k := range spec.NaturalKeys {
		if col, ok := mapped[k]; ok {
			keys = append(keys, k)
			cols[k] = col
		}
	}
	return keys, cols
}

// FindDuplicates reports every pair of rows sharing a natural key value,
// compared case-insensitively.
func FindDuplicates(rows []models.RawRow, mappings []models.ColumnMapping, spec models.EntitySpec) []string {
	keys, cols := naturalKeyColumns(mappings, spec)
	out := []string{}
	for _, k := range keys {
		seen := map[string][]int{}
		var order []string
		for i, row := range rows {
			v := strings.ToLower(strings.TrimSpace(row[cols[k]]))
			if v == "" {
				continue
			}
			if _, ok := seen[v]; !ok {
				order = append(order, v)
			}
			seen[v] = append(seen[v], i+1)
		}
		for _, v := range order {
			idx := seen[v]
			for a := 0; a < len(idx); a++ {
				for b := a + 1; b < len(idx); b++ {
					out = append(out, fmt.Sprintf("Rows %d and %d share %s %q", idx[a], idx[b], k, strings.TrimSpace(rows[idx[a]-1][cols[k]])))
				}
			}
		}
	}
	return out
}

func (d *ConflictDetector) existing(ctx context.Context, rows []models.RawRow, mappings []models.ColumnMapping, spec models.EntitySpec, tenantID int64) ([]string, error) {
	keys, cols := naturalKeyColumns(mappings, spec)
	out := []string{}
	if len(keys) == 0 {
		return out, nil
	}
	repo, err := d.store.Repository(spec.Type)
	if err != nil {
		return nil, err
	}
	if d.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.timeout)
		defer cancel()
	}

	for _, k := range keys {
		k := k
		var values []any
		seen := map[string]bool{}
		for _, row := range rows {
			v := strings.TrimSpace(row[cols[k]])
			if v == "" || seen[strings.ToLower(v)] {
				continue
			}
			seen[strings.ToLower(v)] = true
			values = append(values, v)
		}

		chunks := make([][]store.Stored, (len(values)+maxInValues-1)/maxInValues)
		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(maxParallelChunks)
		for c := range chunks {
			c := c
			start := c * maxInValues
			end := min(start+maxInValues, len(values))
			g.Go(func() error {
				found, err := repo.FindMany(gctx, store.Filter{
					TenantID:   tenantID,
					Conditions: []store.Condition{{Field: k, Values: values[start:end], FoldCase: true}},
					Fields:     []string{k},
				})
				if err != nil {
					return errors.Wrapf(err, "look up existing %s values", k)
				}
				chunks[c] = found
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return nil, err
		}

		// Chunks are reported in file order whatever order they finished in.
		reported := map[string]bool{}
		for _, found := range chunks {
			for _, s := range found {
				v := s.String(k)
				if reported[strings.ToLower(v)] {
					continue
				}
				reported[strings.ToLower(v)] = true
				out = append(out, fmt.Sprintf("%s %q already exists (id %d)", k, v, s.ID))
			}
		}
	}
	return out, nil
}
