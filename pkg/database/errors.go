package database

import "errors"

// ErrNotReady is wrapped by Ping failures so callers can tell an
// unreachable database apart from query errors.
var ErrNotReady = errors.New("database not ready")
