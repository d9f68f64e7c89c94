// Package regionindex maintains a sqlite side-index of region metadata: one
// row per region ever seen, kept current by a dedicated writer goroutine
// draining a buffered channel of update requests and flushing them in
// batched transactions. It is a queryable secondary index, never the
// source of truth — a lost or corrupt index db can always be rebuilt by
// rescanning the region files under a dimension directory.
package regionindex

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	_ "modernc.org/sqlite"
)

// RegionUpdate is one region's current metadata, as observed by the
// lifecycle engine after a load, generate, save or evict transition.
type RegionUpdate struct {
	Dimension      string
	RX, RY         int
	Lifecycle      string
	Generated      bool
	LastSavedTick  uint64
	AnchoredSlices int32
	FileSizeBytes  int64
}

// Index is a buffered, asynchronous writer over a sqlite database of region
// metadata. All exported methods are safe to call from any goroutine
// (including the tick thread). Upsert never blocks on I/O; the query
// methods such as Get read the database directly and wait for its single
// connection.
type Index struct {
	db *sql.DB

	ch   chan RegionUpdate
	wg   sync.WaitGroup
	once sync.Once

	closed atomic.Bool
	// dropped counts updates discarded because the writer fell behind; the
	// region files remain authoritative so a dropped index row is not data
	// loss, only a stale query result until the next update for that region.
	dropped atomic.Uint64
}

// Open opens (creating if necessary) a sqlite database at path and starts
// its writer goroutine.
func Open(path string) (*Index, error) {
	if path == "" {
		return nil, fmt.Errorf("regionindex: empty db path")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := initPragmas(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}

	idx := &Index{
		db: db,
		ch: make(chan RegionUpdate, 65536),
	}
	idx.wg.Add(1)
	go func() {
		defer idx.wg.Done()
		idx.loop()
	}()
	return idx, nil
}

func initPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA busy_timeout=5000;",
		"PRAGMA temp_store=MEMORY;",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			return err
		}
	}
	return nil
}

func initSchema(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS meta (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS regions (
			dimension TEXT NOT NULL,
			rx INTEGER NOT NULL,
			ry INTEGER NOT NULL,
			lifecycle TEXT NOT NULL,
			generated INTEGER NOT NULL,
			last_saved_tick INTEGER NOT NULL,
			anchored_slices INTEGER NOT NULL,
			file_size_bytes INTEGER NOT NULL,
			updated_at TEXT NOT NULL,
			PRIMARY KEY (dimension, rx, ry)
		);`,
		`CREATE INDEX IF NOT EXISTS idx_regions_dimension_lifecycle ON regions(dimension, lifecycle);`,
		`CREATE INDEX IF NOT EXISTS idx_regions_updated_at ON regions(updated_at);`,
	}
	for _, s := range stmts {
		if _, err := db.Exec(s); err != nil {
			return err
		}
	}
	return nil
}

// Upsert enqueues a metadata update for one region. It never blocks; if the
// writer has fallen far behind, the update is dropped and Dropped() is
// incremented rather than exerting backpressure on the caller (typically
// the tick thread or an eviction callback).
func (idx *Index) Upsert(u RegionUpdate) {
	if idx == nil || idx.closed.Load() {
		return
	}
	select {
	case idx.ch <- u:
	default:
		idx.dropped.Add(1)
	}
}

// Dropped returns the number of updates discarded because the writer
// goroutine could not keep up, for diagnostics.
func (idx *Index) Dropped() uint64 { return idx.dropped.Load() }

// Close stops accepting updates, drains the queue, and closes the database.
func (idx *Index) Close() error {
	var err error
	idx.once.Do(func() {
		idx.closed.Store(true)
		close(idx.ch)
		idx.wg.Wait()
		err = idx.db.Close()
	})
	return err
}

func (idx *Index) loop() {
	ctx := context.Background()
	insert, err := idx.db.Prepare(`
		INSERT INTO regions(dimension, rx, ry, lifecycle, generated, last_saved_tick, anchored_slices, file_size_bytes, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(dimension, rx, ry) DO UPDATE SET
			lifecycle=excluded.lifecycle,
			generated=excluded.generated,
			last_saved_tick=excluded.last_saved_tick,
			anchored_slices=excluded.anchored_slices,
			file_size_bytes=excluded.file_size_bytes,
			updated_at=excluded.updated_at
	`)
	if err != nil {
		// Nothing sensible to do but drain the channel so senders never
		// block; every update is dropped and counted.
		for range idx.ch {
			idx.dropped.Add(1)
		}
		return
	}
	defer insert.Close()

	var (
		tx          *sql.Tx
		opCount     int
		lastCommit  = time.Now()
		commitEvery = 500
		commitMax   = 2 * time.Second
	)

	begin := func() {
		if tx != nil {
			return
		}
		txx, err := idx.db.BeginTx(ctx, nil)
		if err != nil {
			time.Sleep(50 * time.Millisecond)
			return
		}
		tx = txx
		opCount = 0
		lastCommit = time.Now()
	}
	commit := func() {
		if tx == nil {
			return
		}
		_ = tx.Commit()
		tx = nil
		opCount = 0
		lastCommit = time.Now()
	}
	flushIfNeeded := func() {
		if tx == nil {
			return
		}
		// Also commit once the queue is empty: the database has a single
		// connection, so a transaction left open while idle would hold it
		// and block every query until the next update arrived.
		if opCount >= commitEvery || time.Since(lastCommit) >= commitMax || len(idx.ch) == 0 {
			commit()
		}
	}

	for u := range idx.ch {
		begin()
		if tx == nil {
			idx.dropped.Add(1)
			continue
		}
		generated := 0
		if u.Generated {
			generated = 1
		}
		_, err := tx.Stmt(insert).Exec(
			u.Dimension, u.RX, u.RY, u.Lifecycle, generated,
			int64(u.LastSavedTick), u.AnchoredSlices, u.FileSizeBytes,
			time.Now().UTC().Format(time.RFC3339Nano),
		)
		if err != nil {
			_ = tx.Rollback()
			tx = nil
			idx.dropped.Add(1)
			continue
		}
		opCount++
		flushIfNeeded()
	}
	commit()
}

// RegionRow is one row read back from the regions table.
type RegionRow struct {
	Dimension      string
	RX, RY         int
	Lifecycle      string
	Generated      bool
	LastSavedTick  uint64
	AnchoredSlices int32
	FileSizeBytes  int64
	UpdatedAt      string
}

// Get returns the current row for one region, if the index has ever seen
// it. Blocks on the database, so it is meant for tooling and diagnostics,
// not the tick thread.
func (idx *Index) Get(dimension string, rx, ry int) (RegionRow, bool, error) {
	row := idx.db.QueryRow(
		`SELECT dimension, rx, ry, lifecycle, generated, last_saved_tick, anchored_slices, file_size_bytes, updated_at
		 FROM regions WHERE dimension = ? AND rx = ? AND ry = ?`,
		dimension, rx, ry,
	)
	var r RegionRow
	var generated int
	if err := row.Scan(&r.Dimension, &r.RX, &r.RY, &r.Lifecycle, &generated, &r.LastSavedTick, &r.AnchoredSlices, &r.FileSizeBytes, &r.UpdatedAt); err != nil {
		if err == sql.ErrNoRows {
			return RegionRow{}, false, nil
		}
		return RegionRow{}, false, err
	}
	r.Generated = generated != 0
	return r, true, nil
}

// CountByLifecycle returns how many rows are currently recorded in each
// lifecycle state for a dimension, for operator dashboards.
func (idx *Index) CountByLifecycle(dimension string) (map[string]int, error) {
	rows, err := idx.db.Query(
		`SELECT lifecycle, COUNT(*) FROM regions WHERE dimension = ? GROUP BY lifecycle`, dimension)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var lifecycle string
		var n int
		if err := rows.Scan(&lifecycle, &n); err != nil {
			return nil, err
		}
		counts[lifecycle] = n
	}
	return counts, rows.Err()
}
