package db

import (
	"time"
)

// timed logs the elapsed time of a store operation at debug level.
// Use it as `defer s.timed("op", time.Now())`.
func (s *Store) timed(op string, start time.Time) {
	s.logger.Debug("🔍 Query", "op", op, "driver", s.driver, "duration", time.Since(start))
}
