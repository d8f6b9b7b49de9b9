// Package store persists kiosk state in SQLite: the append-only play event
// log that drives admission, the catalog of fully downloaded videos, and the
// runtime settings edited from the dashboard.
//
// Play events are never updated. Retention deletes only events older than the
// longest admission period, so pruning cannot change an admission decision.
// Cache entries are inserted once a download is complete and removed when the
// file is evicted; they are never modified in place.
//
// The schema version lives in PRAGMA user_version. A database at any other
// version is rejected with ErrSchemaMismatch rather than migrated.
package store
