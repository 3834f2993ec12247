package db

import (
	"errors"

	"github.com/jackc/pgerrcode"
	"github.com/lib/pq"
)

func pgCode(err error) string {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return string(pqErr.Code)
	}
	return ""
}

func isUniqueViolation(err error) bool {
	return pgCode(err) == pgerrcode.UniqueViolation
}

// IsRetryable reports errors after which the whole transaction may simply be
// run again.
func IsRetryable(err error) bool {
	switch pgCode(err) {
	case pgerrcode.SerializationFailure, pgerrcode.DeadlockDetected, pgerrcode.LockNotAvailable:
		return true
	}
	return false
}
