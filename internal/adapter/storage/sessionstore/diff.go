package sessionstore

import (
	"github.com/ashmarin/weighttrack/internal/domain/session"
	"github.com/r3labs/diff"
)

// diffSessions lists the changes needed to turn the stored state into the
// in-memory one. Change.To therefore carries the value to write.
func diffSessions(stored, current *session.Session) (diff.Changelog, error) {
	return diff.Diff(stored, current)
}
