package db

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/klauspost/compress/zstd"

	"github.com/japaniel/openings/pkg/catalog"
	"github.com/japaniel/openings/pkg/moves"
	"github.com/japaniel/openings/pkg/tree"
)

// DBExecutor is an interface that allows methods to accept either *sql.DB or *sql.Tx
type DBExecutor interface {
	Exec(query string, args ...interface{}) (sql.Result, error)
	Query(query string, args ...interface{}) (*sql.Rows, error)
	QueryRow(query string, args ...interface{}) *sql.Row
}

// isUniqueConstraintErr returns true when the error indicates a unique/constraint violation
func isUniqueConstraintErr(err error) bool {
	if err == nil {
		return false
	}
	s := strings.ToLower(err.Error())
	return strings.Contains(s, "unique") || strings.Contains(s, "constraint failed")
}

// CreateBuild inserts a new build row for the given source paths and returns its id.
func CreateBuild(db DBExecutor, sources []string) (string, error) {
	const maxRetries = 3
	joined := strings.Join(sources, "\n")
	for attempt := 0; attempt < maxRetries; attempt++ {
		id := uuid.New().String()
		_, err := db.Exec(`INSERT INTO builds (id, sources, created_at) VALUES (?, ?, ?)`, id, joined, time.Now().UTC())
		if err == nil {
			return id, nil
		}
		if isUniqueConstraintErr(err) {
			continue
		}
		return "", fmt.Errorf("insert build: %w", err)
	}
	return "", fmt.Errorf("could not create build after %d retries", maxRetries)
}

// GetBuild returns the build with the given id.
func GetBuild(db DBExecutor, id string) (Build, error) {
	var b Build
	err := db.QueryRow(`SELECT id, sources, record_count, entry_count, created_at FROM builds WHERE id = ?`, id).
		Scan(&b.ID, &b.Sources, &b.RecordCount, &b.EntryCount, &b.CreatedAt)
	return b, err
}

// LatestBuild returns the most recently created build that has a stored tree.
func LatestBuild(db DBExecutor) (Build, error) {
	var b Build
	err := db.QueryRow(`SELECT id, sources, record_count, entry_count, created_at FROM builds
		WHERE tree IS NOT NULL ORDER BY created_at DESC, rowid DESC LIMIT 1`).
		Scan(&b.ID, &b.Sources, &b.RecordCount, &b.EntryCount, &b.CreatedAt)
	return b, err
}

// UpsertOpening stores one ingested feed row, replacing a previous row with the same index.
func UpsertOpening(db DBExecutor, buildID string, o Opening) error {
	if buildID == "" {
		return fmt.Errorf("buildID must be non-empty")
	}
	if o.Index < 0 {
		return fmt.Errorf("index must be non-negative, got %d", o.Index)
	}
	_, err := db.Exec(`INSERT INTO openings (build_id, idx, eco, name, family, subfamily, pgn, half_moves, status)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(build_id, idx) DO UPDATE SET
	  eco = excluded.eco,
	  name = excluded.name,
	  family = excluded.family,
	  subfamily = excluded.subfamily,
	  pgn = excluded.pgn,
	  half_moves = excluded.half_moves,
	  status = excluded.status`,
		buildID, o.Index, o.Code, o.Name, o.Family, o.Subfamily, o.PGN, o.HalfMoves, string(o.Status))
	if err != nil {
		return fmt.Errorf("upsert opening %d: %w", o.Index, err)
	}
	return nil
}

// UpdateOpeningStatus records what the build did with a feed row.
func UpdateOpeningStatus(db DBExecutor, buildID string, index int, status catalog.Status) error {
	_, err := db.Exec(`UPDATE openings SET status = ? WHERE build_id = ? AND idx = ?`, string(status), buildID, index)
	return err
}

// CountOpeningsByStatus returns how many feed rows of a build ended in each status.
func CountOpeningsByStatus(db DBExecutor, buildID string) (map[catalog.Status]int, error) {
	rows, err := db.Query(`SELECT status, COUNT(*) FROM openings WHERE build_id = ? GROUP BY status`, buildID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make(map[catalog.Status]int)
	for rows.Next() {
		var s string
		var n int
		if err := rows.Scan(&s, &n); err != nil {
			return nil, err
		}
		out[catalog.Status(s)] = n
	}
	return out, rows.Err()
}

// SaveEntries writes the catalog entries of a build in their catalog order.
func SaveEntries(db DBExecutor, buildID string, entries []Entry) error {
	for _, e := range entries {
		_, err := db.Exec(`INSERT INTO entries
		(build_id, position, idx, eco, name, family, subfamily, moves, main_line, depth, half_moves, fen, evaluation, advantage)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			buildID, e.Position, e.Index, e.Code, e.Name, e.Family, e.Subfamily, moves.Key(e.Moves),
			e.MainLine, e.Depth, e.HalfMoves, nullableString(e.FEN), e.Evaluation, nullableString(e.Advantage))
		if err != nil {
			return fmt.Errorf("insert entry %d: %w", e.Position, err)
		}
	}
	return nil
}

// GetEntries returns the entries of a build in catalog order.
func GetEntries(db DBExecutor, buildID string) ([]Entry, error) {
	rows, err := db.Query(`SELECT position, idx, eco, name, family, subfamily, moves, main_line, depth, half_moves, fen, evaluation, advantage
		FROM entries WHERE build_id = ? ORDER BY position`, buildID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Entry
	for rows.Next() {
		var e Entry
		var key string
		var fen, adv sql.NullString
		var eval sql.NullFloat64
		if err := rows.Scan(&e.Position, &e.Index, &e.Code, &e.Name, &e.Family, &e.Subfamily, &key,
			&e.MainLine, &e.Depth, &e.HalfMoves, &fen, &eval, &adv); err != nil {
			return nil, err
		}
		e.Moves = moves.Split(key)
		if fen.Valid {
			e.FEN = fen.String
		}
		if adv.Valid {
			e.Advantage = adv.String
		}
		if eval.Valid {
			v := eval.Float64
			e.Evaluation = &v
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// SaveDiagnostics stores the per-record diagnostics of a build.
func SaveDiagnostics(db DBExecutor, buildID string, diags []catalog.Diagnostic) error {
	for _, d := range diags {
		if _, err := db.Exec(`INSERT INTO diagnostics (build_id, idx, kind, name, message) VALUES (?, ?, ?, ?, ?)`,
			buildID, d.Index, string(d.Kind), d.Name, d.Message); err != nil {
			return fmt.Errorf("insert diagnostic: %w", err)
		}
	}
	return nil
}

// GetDiagnostics returns the diagnostics of a build ordered by record index.
func GetDiagnostics(db DBExecutor, buildID string) ([]catalog.Diagnostic, error) {
	rows, err := db.Query(`SELECT idx, kind, name, message FROM diagnostics WHERE build_id = ? ORDER BY idx, id`, buildID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []catalog.Diagnostic
	for rows.Next() {
		var d catalog.Diagnostic
		var kind string
		if err := rows.Scan(&d.Index, &kind, &d.Name, &d.Message); err != nil {
			return nil, err
		}
		d.Kind = catalog.Kind(kind)
		out = append(out, d)
	}
	return out, rows.Err()
}

// SaveTree stores the prefix tree of a build as zstd-compressed JSON and
// records the final counts.
func SaveTree(db DBExecutor, buildID string, root *tree.Node, recordCount, entryCount int) error {
	data, err := json.Marshal(root)
	if err != nil {
		return fmt.Errorf("encode tree: %w", err)
	}
	enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedBestCompression))
	if err != nil {
		return fmt.Errorf("create zstd encoder: %w", err)
	}
	blob := enc.EncodeAll(data, nil)
	enc.Close()

	res, err := db.Exec(`UPDATE builds SET tree = ?, record_count = ?, entry_count = ? WHERE id = ?`,
		blob, recordCount, entryCount, buildID)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("build %s not found", buildID)
	}
	return nil
}

// LoadTree decompresses and decodes the stored prefix tree of a build.
func LoadTree(db DBExecutor, buildID string) (*tree.Node, error) {
	var blob []byte
	if err := db.QueryRow(`SELECT tree FROM builds WHERE id = ?`, buildID).Scan(&blob); err != nil {
		return nil, err
	}
	if blob == nil {
		return nil, fmt.Errorf("build %s has no stored tree", buildID)
	}
	dec, err := zstd.NewReader(nil)
	if err != nil {
		return nil, fmt.Errorf("create zstd decoder: %w", err)
	}
	defer dec.Close()
	data, err := dec.DecodeAll(blob, nil)
	if err != nil {
		return nil, fmt.Errorf("decompress tree: %w", err)
	}
	root := tree.New()
	if err := json.Unmarshal(data, root); err != nil {
		return nil, err
	}
	return root, nil
}

// LoadCatalog rebuilds the catalog of a stored build.
func LoadCatalog(db DBExecutor, buildID string) (*catalog.Catalog, []Entry, error) {
	root, err := LoadTree(db, buildID)
	if err != nil {
		return nil, nil, fmt.Errorf("load tree: %w", err)
	}
	stored, err := GetEntries(db, buildID)
	if err != nil {
		return nil, nil, fmt.Errorf("load entries: %w", err)
	}
	diags, err := GetDiagnostics(db, buildID)
	if err != nil {
		return nil, nil, fmt.Errorf("load diagnostics: %w", err)
	}
	entries := make([]catalog.Entry, len(stored))
	for i, e := range stored {
		entries[i] = e.Entry
	}
	return catalog.New(entries, root, diags), stored, nil
}

// nullableString returns nil for "" else the value.
func nullableString(v string) interface{} {
	if v == "" {
		return nil
	}
	return v
}
