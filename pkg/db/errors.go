package db

import (
	"errors"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
)

var transientPGCodes = map[string]struct{}{
	"40001": {}, // serialization_failure
	"40P01": {}, // deadlock_detected
	"55P03": {}, // lock_not_available
	"57014": {}, // query_canceled
}

// IsTransient reports whether err is a database failure worth retrying on the
// next run rather than surfacing as a hard error.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		_, ok := transientPGCodes[pgErr.Code]
		return ok
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "database is locked") || strings.Contains(msg, "deadlock")
}
