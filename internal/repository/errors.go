// Package repository holds the MySQL and Redis persistence for users,
// appointments and sessions.  Driver errors are translated here into the
// apperr kinds the scheduler and the session service act on, so nothing
// above this package inspects MySQL error numbers.
package repository

import (
	"context"
	"database/sql/driver"
	"errors"

	"github.com/go-sql-driver/mysql"

	"github.com/iliyamo/clinic-appointment-scheduler/internal/apperr"
)

// MySQL server error numbers acted upon.
const (
	errDupEntry        = 1062
	errLockWaitTimeout = 1205
	errDeadlock        = 1213
	errNoReferencedRow = 1452
)

// mysqlNumber returns the server error number carried by err, or 0.
func mysqlNumber(err error) uint16 {
	var me *mysql.MySQLError
	if errors.As(err, &me) {
		return me.Number
	}
	return 0
}

// IsDuplicate reports whether err is a unique key violation.
func IsDuplicate(err error) bool { return mysqlNumber(err) == errDupEntry }

// IsTransient reports whether err is worth retrying: deadlocks, lock wait
// timeouts, dropped connections and storage deadlines.  database/sql retries
// driver.ErrBadConn on a fresh connection itself, so it only reaches here
// once the pool has given up; mysql.ErrInvalidConn is the usual form.
func IsTransient(err error) bool {
	switch mysqlNumber(err) {
	case errDeadlock, errLockWaitTimeout:
		return true
	}
	return errors.Is(err, driver.ErrBadConn) ||
		errors.Is(err, mysql.ErrInvalidConn) ||
		errors.Is(err, context.DeadlineExceeded)
}

// classify wraps a raw storage error into an apperr kind.  Errors that are
// already *apperr.Error pass through unchanged.
func classify(op string, err error) error {
	if err == nil {
		return nil
	}
	var ae *apperr.Error
	if errors.As(err, &ae) {
		return err
	}
	if IsTransient(err) {
		return apperr.NewTransient(op+": storage temporarily unavailable", err)
	}
	return apperr.NewInternal(op, err)
}
