package repo

import (
	"errors"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
)

var (
	// ErrNotFound aliases gorm.ErrRecordNotFound so callers need not import
	// gorm to test for a missing row.
	ErrNotFound = gorm.ErrRecordNotFound
	// ErrDuplicate reports a unique key that is already taken.
	ErrDuplicate = errors.New("duplicate")
)

const (
	pgUniqueViolation      = "23505"
	sqliteConstraintUnique = 2067
	sqliteConstraintPK     = 1555
)

// isUniqueViolation recognizes unique-key failures from Postgres (SQLSTATE
// 23505) and SQLite (extended codes or, for wrapped errors, the message).
func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == pgUniqueViolation
	}
	var coded interface{ Code() int }
	if errors.As(err, &coded) {
		switch coded.Code() {
		case sqliteConstraintUnique, sqliteConstraintPK:
			return true
		}
	}
	low := strings.ToLower(err.Error())
	return strings.Contains(low, "unique constraint failed") ||
		strings.Contains(low, "duplicate key value violates unique constraint")
}
