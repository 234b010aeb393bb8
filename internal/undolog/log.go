package undolog

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "modernc.org/sqlite"
)

// Op is the kind of mutation a record describes.
type Op string

const (
	OpRelocate Op = "relocate"
	OpRemove   Op = "remove"
	OpRestore  Op = "restore"
)

// State is the lifecycle position of a record. A record is inserted
// in_progress before the filesystem call and finalized after it; no
// record ever goes straight to committed.
type State string

const (
	StateInProgress State = "in_progress"
	StateCommitted  State = "committed"
	StateFailed     State = "failed"
	// StateRestored marks a committed relocate/remove whose file has
	// since been moved back; it is consumed and cannot be restored again.
	StateRestored State = "restored"
)

// Record is one undo log entry.
type Record struct {
	Seq          int64
	RunID        string
	Op           Op
	OriginalPath string
	DestPath     string
	State        State
	CreatedAt    time.Time
	FinalizedAt  time.Time
}

// Log is the append-only action journal. It is the only durable artifact
// of a run; the Action Engine is its sole writer.
type Log struct {
	mu sync.Mutex
	db *sql.DB
}

// Open opens (creating if needed) the log database at path.
func Open(path string) (*Log, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("create log directory: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open undo log: %w", err)
	}
	if err := applyPragmas(db); err != nil {
		db.Close()
		return nil, err
	}
	if err := initSchema(db); err != nil {
		db.Close()
		return nil, err
	}
	return &Log{db: db}, nil
}

// Close closes the underlying database.
func (l *Log) Close() error {
	return l.db.Close()
}

// Begin appends an in_progress record and returns its sequence number.
// The caller must not touch the filesystem until Begin has returned:
// the pre-image write happens-before the mutation it describes.
func (l *Log) Begin(runID string, op Op, originalPath, destPath string) (int64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	res, err := l.db.Exec(
		`INSERT INTO actions (run_id, op, original_path, dest_path, state, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
		runID, string(op), originalPath, destPath, string(StateInProgress), time.Now().Unix(),
	)
	if err != nil {
		return 0, fmt.Errorf("append action record: %w", err)
	}
	return res.LastInsertId()
}

// Finalize marks a record committed or failed after the filesystem call.
func (l *Log) Finalize(seq int64, state State) error {
	if state != StateCommitted && state != StateFailed {
		return fmt.Errorf("invalid final state %q", state)
	}
	return l.setState(seq, state)
}

// MarkRestored consumes a committed relocate/remove record.
func (l *Log) MarkRestored(seq int64) error {
	return l.setState(seq, StateRestored)
}

func (l *Log) setState(seq int64, state State) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	res, err := l.db.Exec(
		`UPDATE actions SET state = ?, finalized_at = ? WHERE seq = ?`,
		string(state), time.Now().Unix(), seq,
	)
	if err != nil {
		return fmt.Errorf("finalize record %d: %w", seq, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("finalize record %d: no such record", seq)
	}
	return nil
}

const selectColumns = `seq, run_id, op, original_path, dest_path, state, created_at, COALESCE(finalized_at, 0)`

func scanRecord(rows *sql.Rows) (Record, error) {
	var r Record
	var op, state string
	var created, finalized int64
	if err := rows.Scan(&r.Seq, &r.RunID, &op, &r.OriginalPath, &r.DestPath, &state, &created, &finalized); err != nil {
		return Record{}, err
	}
	r.Op = Op(op)
	r.State = State(state)
	r.CreatedAt = time.Unix(created, 0)
	if finalized > 0 {
		r.FinalizedAt = time.Unix(finalized, 0)
	}
	return r, nil
}

func (l *Log) query(q string, args ...any) ([]Record, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	rows, err := l.db.Query(q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		r, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// Records returns the most recent records, newest first.
func (l *Log) Records(limit int) ([]Record, error) {
	if limit <= 0 {
		limit = 50
	}
	return l.query(fmt.Sprintf(`SELECT %s FROM actions ORDER BY seq DESC LIMIT ?`, selectColumns), limit)
}

// InProgress returns records left unresolved by a crash or abort.
func (l *Log) InProgress() ([]Record, error) {
	return l.query(fmt.Sprintf(`SELECT %s FROM actions WHERE state = ? ORDER BY seq`, selectColumns), string(StateInProgress))
}

// Restorable returns the committed, not-yet-restored relocate and remove
// records, newest first.
func (l *Log) Restorable() ([]Record, error) {
	return l.query(fmt.Sprintf(
		`SELECT %s FROM actions WHERE state = ? AND op IN (?, ?) ORDER BY seq DESC`, selectColumns),
		string(StateCommitted), string(OpRelocate), string(OpRemove))
}

// LatestForPath returns the most recent committed, non-restored
// relocate/remove record for the given original path, or nil.
func (l *Log) LatestForPath(originalPath string) (*Record, error) {
	recs, err := l.query(fmt.Sprintf(
		`SELECT %s FROM actions WHERE original_path = ? AND state = ? AND op IN (?, ?) ORDER BY seq DESC LIMIT 1`, selectColumns),
		originalPath, string(StateCommitted), string(OpRelocate), string(OpRemove))
	if err != nil {
		return nil, err
	}
	if len(recs) == 0 {
		return nil, nil
	}
	return &recs[0], nil
}

// WasRestored reports whether the path's most recent relocate/remove
// record has already been consumed by a restore.
func (l *Log) WasRestored(originalPath string) (bool, error) {
	recs, err := l.query(fmt.Sprintf(
		`SELECT %s FROM actions WHERE original_path = ? AND op IN (?, ?) ORDER BY seq DESC LIMIT 1`, selectColumns),
		originalPath, string(OpRelocate), string(OpRemove))
	if err != nil {
		return false, err
	}
	return len(recs) == 1 && recs[0].State == StateRestored, nil
}

// Recover resolves records a previous run left in_progress, using the
// resolve callback to inspect actual filesystem state. It must run
// before any new action proceeds and returns the number of records it
// settled.
func (l *Log) Recover(resolve func(Record) State) (int, error) {
	stale, err := l.InProgress()
	if err != nil {
		return 0, fmt.Errorf("load in-progress records: %w", err)
	}
	for _, rec := range stale {
		state := resolve(rec)
		if state != StateCommitted && state != StateFailed {
			return 0, fmt.Errorf("recovery of record %d produced invalid state %q", rec.Seq, state)
		}
		if err := l.setState(rec.Seq, state); err != nil {
			return 0, err
		}
	}
	return len(stale), nil
}

// ResolveByDisk is the default recovery rule: if the destination exists
// and the original is gone the move completed; otherwise it did not.
func ResolveByDisk(rec Record) State {
	if _, err := os.Stat(rec.DestPath); err == nil {
		if _, err := os.Stat(rec.OriginalPath); os.IsNotExist(err) {
			return StateCommitted
		}
	}
	return StateFailed
}
