package sqlstore

import (
	"github.com/pkg/errors"

	mssql "github.com/microsoft/go-mssqldb"

	"github.com/BartekS5/importer/internal/store"
)

// SQL Server error numbers mapped onto store sentinels.
const (
	errUniqueConstraint = 2627
	errUniqueIndex      = 2601
	errConstraint       = 547
	errInvalidColumn    = 207
	errNullInsert       = 515
	errConversion       = 8114
	errConversionString = 245
)

func classify(err error, op string) error {
	var me mssql.Error
	if !errors.As(err, &me) {
		return errors.Wrap(err, op)
	}
	switch me.Number {
	case errUniqueConstraint, errUniqueIndex:
		return errors.Wrapf(store.ErrUniqueViolation, "%s: %s", op, me.Message)
	case errConstraint:
		return errors.Wrapf(store.ErrForeignKey, "%s: %s", op, me.Message)
	case errInvalidColumn:
		return errors.Wrapf(store.ErrUnknownField, "%s: %s", op, me.Message)
	case errNullInsert, errConversion, errConversionString:
		return errors.Wrapf(store.ErrInvalidValue, "%s: %s", op, me.Message)
	default:
		return errors.Wrap(err, op)
	}
}
