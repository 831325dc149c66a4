package sqlstore

import (
	"errors"
	"fmt"
	"strings"

	"github.com/lib/pq"

	"github.com/warp/leave-engine/leave"
)

// mapError turns driver-specific constraint failures into leave error kinds.
// SQLite exposes no typed constraint errors, so it is matched by message.
func mapError(err error) error {
	if err == nil {
		return nil
	}

	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch pqErr.Code {
		case "23505": // unique_violation
			return fmt.Errorf("%w: %s", leave.ErrConflict, pqErr.Detail)
		case "23503": // foreign_key_violation
			return fmt.Errorf("%w: %s", leave.ErrNotFound, pqErr.Detail)
		}
		return err
	}

	s := err.Error()
	switch {
	case strings.Contains(s, "UNIQUE constraint failed"):
		return fmt.Errorf("%w: %s", leave.ErrConflict, s)
	case strings.Contains(s, "FOREIGN KEY constraint failed"):
		return fmt.Errorf("%w: %s", leave.ErrNotFound, s)
	case strings.Contains(s, "CHECK constraint failed"):
		return fmt.Errorf("%w: %s", leave.ErrValidation, s)
	}
	return err
}
