package kvstore

import (
	"errors"
	"fmt"
	"strings"
	"syscall"

	"github.com/packrat-app/packrat/internal/domain"
)

// mapWriteErr converts backend-specific free-space failures into the
// backend-independent quota error. Detection is necessarily heuristic:
// badger and the filesystem surface ENOSPC, SQLite reports SQLITE_FULL
// by message.
func mapWriteErr(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, syscall.ENOSPC) {
		return fmt.Errorf("%v: %w", err, domain.ErrQuotaExceeded)
	}
	msg := err.Error()
	if strings.Contains(msg, "database or disk is full") ||
		strings.Contains(msg, "no space left on device") {
		return fmt.Errorf("%v: %w", err, domain.ErrQuotaExceeded)
	}
	return err
}
