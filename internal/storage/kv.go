package storage

import (
	"database/sql"
	"encoding/json"
	"log/slog"

	berrors "github.com/blueband-db/blueband/internal/errors"
)

// querier is satisfied by both *sql.DB and *sql.Tx so map operations can run
// standalone or inside an Update scope.
type querier interface {
	Exec(query string, args ...any) (sql.Result, error)
	Query(query string, args ...any) (*sql.Rows, error)
	QueryRow(query string, args ...any) *sql.Row
}

// Map is a typed, bounded key-value map over one storage region. Values are
// serialized as JSON; each value type declares a maximum serialized size and
// inserts beyond it fail with a Capacity error.
type Map[V any] struct {
	store        *Store
	region       RegionID
	name         string
	maxValueSize int
}

// NewMap binds a typed map to a region.
func NewMap[V any](store *Store, region RegionID, name string, maxValueSize int) *Map[V] {
	return &Map[V]{
		store:        store,
		region:       region,
		name:         name,
		maxValueSize: maxValueSize,
	}
}

// Get reads the value for key. A value that exists but fails to deserialize
// is data corruption: it is reported and the type's zero value is returned
// with ok=true.
func (m *Map[V]) Get(key string) (V, bool) {
	return m.get(m.store.db, key)
}

// GetIn is Get inside an Update scope.
func (m *Map[V]) GetIn(tx *Tx, key string) (V, bool) {
	return m.get(tx.tx, key)
}

func (m *Map[V]) get(q querier, key string) (V, bool) {
	var zero V
	var blob []byte
	err := q.QueryRow("SELECT v FROM "+m.region.table()+" WHERE k = ?", key).Scan(&blob)
	if err == sql.ErrNoRows {
		return zero, false
	}
	if err != nil {
		slog.Error("storage_read_failed",
			slog.String("region", m.name),
			slog.String("key", key),
			slog.String("error", err.Error()))
		return zero, false
	}

	var value V
	if err := json.Unmarshal(blob, &value); err != nil {
		// Corrupt payloads are reported, never silently dropped; callers get
		// the zero value so reads stay total.
		slog.Error("storage_corrupt_value",
			slog.String("region", m.name),
			slog.String("key", key),
			slog.Int("bytes", len(blob)),
			slog.String("error", err.Error()))
		return zero, true
	}
	return value, true
}

// Insert upserts the value for key, enforcing the region's size bound.
func (m *Map[V]) Insert(key string, value V) error {
	return m.insert(m.store.db, key, value)
}

// InsertIn is Insert inside an Update scope.
func (m *Map[V]) InsertIn(tx *Tx, key string, value V) error {
	return m.insert(tx.tx, key, value)
}

func (m *Map[V]) insert(q querier, key string, value V) error {
	blob, err := json.Marshal(value)
	if err != nil {
		return berrors.Wrap(berrors.ErrCodeInternal, err)
	}
	if m.maxValueSize > 0 && len(blob) > m.maxValueSize {
		return berrors.Newf(berrors.ErrCodeValueTooLarge,
			"%s value for key %q is %d bytes (max %d)", m.name, key, len(blob), m.maxValueSize)
	}

	_, err = q.Exec(
		"INSERT INTO "+m.region.table()+" (k, v) VALUES (?, ?) ON CONFLICT(k) DO UPDATE SET v = excluded.v",
		key, blob)
	if err != nil {
		return berrors.Wrap(berrors.ErrCodeStorage, err)
	}
	return nil
}

// Remove deletes the value for key. Removing a missing key is a no-op.
func (m *Map[V]) Remove(key string) error {
	return m.remove(m.store.db, key)
}

// RemoveIn is Remove inside an Update scope.
func (m *Map[V]) RemoveIn(tx *Tx, key string) error {
	return m.remove(tx.tx, key)
}

func (m *Map[V]) remove(q querier, key string) error {
	if _, err := q.Exec("DELETE FROM "+m.region.table()+" WHERE k = ?", key); err != nil {
		return berrors.Wrap(berrors.ErrCodeStorage, err)
	}
	return nil
}

// Contains reports whether key exists.
func (m *Map[V]) Contains(key string) bool {
	var one int
	err := m.store.db.QueryRow("SELECT 1 FROM "+m.region.table()+" WHERE k = ?", key).Scan(&one)
	return err == nil
}

// ContainsIn is Contains inside an Update scope.
func (m *Map[V]) ContainsIn(tx *Tx, key string) bool {
	var one int
	err := tx.tx.QueryRow("SELECT 1 FROM "+m.region.table()+" WHERE k = ?", key).Scan(&one)
	return err == nil
}

// Len returns the number of entries in the region.
func (m *Map[V]) Len() int {
	var n int
	if err := m.store.db.QueryRow("SELECT COUNT(*) FROM " + m.region.table()).Scan(&n); err != nil {
		return 0
	}
	return n
}

// Keys returns all keys in the region, ordered.
func (m *Map[V]) Keys() []string {
	rows, err := m.store.db.Query("SELECT k FROM " + m.region.table() + " ORDER BY k")
	if err != nil {
		return nil
	}
	defer func() { _ = rows.Close() }()

	var keys []string
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			continue
		}
		keys = append(keys, k)
	}
	return keys
}

// ForEach visits every entry until fn returns false. Corrupt entries are
// reported and visited with the zero value. Rows are drained before fn runs
// so callbacks are free to issue further queries on the single connection.
func (m *Map[V]) ForEach(fn func(key string, value V) bool) {
	rows, err := m.store.db.Query("SELECT k, v FROM " + m.region.table() + " ORDER BY k")
	if err != nil {
		return
	}

	type entry struct {
		key  string
		blob []byte
	}
	var entries []entry
	for rows.Next() {
		var e entry
		if err := rows.Scan(&e.key, &e.blob); err != nil {
			continue
		}
		entries = append(entries, e)
	}
	_ = rows.Close()

	for _, e := range entries {
		var value V
		if err := json.Unmarshal(e.blob, &value); err != nil {
			slog.Error("storage_corrupt_value",
				slog.String("region", m.name),
				slog.String("key", e.key),
				slog.String("error", err.Error()))
			var zero V
			value = zero
		}
		if !fn(e.key, value) {
			return
		}
	}
}
