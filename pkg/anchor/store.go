package anchor

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/mcp-tool-shop-org/repomesh/pkg/rmerror"
)

// ErrManifestNotFound is returned by ManifestStore.Get when no manifest is
// recorded for a partition.
var ErrManifestNotFound = errors.New("anchor: manifest not found")

// ManifestStore is the durable interface for partition manifests: one row
// per anchored partition, append-only in practice (anchoring never
// rewrites a prior manifest; it only appends the next one with Prev set).
type ManifestStore interface {
	Put(ctx context.Context, m Manifest, memo string) error
	Get(ctx context.Context, partitionID string) (Manifest, error)
	Latest(ctx context.Context) (Manifest, bool, error)
	List(ctx context.Context) ([]Manifest, error)
}

// SQLManifestStore implements ManifestStore over database/sql, compatible
// with both modernc.org/sqlite and lib/pq — the same query set runs against
// either, mirroring how the rest of this codebase keeps a single SQL
// ledger implementation portable across both drivers.
type SQLManifestStore struct {
	db *sql.DB
}

func NewSQLManifestStore(db *sql.DB) *SQLManifestStore {
	return &SQLManifestStore{db: db}
}

const manifestSchema = `
CREATE TABLE IF NOT EXISTS partition_manifests (
	partition_id TEXT PRIMARY KEY,
	seq INTEGER,
	algo TEXT,
	network TEXT,
	prev_root TEXT,
	range_first TEXT,
	range_last TEXT,
	count INTEGER,
	root TEXT,
	manifest_hash TEXT,
	memo TEXT
);
`

// Init creates the backing table if it does not already exist. Callers run
// this once at startup; it is idempotent.
func (s *SQLManifestStore) Init(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, manifestSchema)
	return err
}

func (s *SQLManifestStore) Put(ctx context.Context, m Manifest, memo string) error {
	if err := VerifySelfBinding(m); err != nil {
		return err
	}

	if existing, err := s.Get(ctx, m.PartitionID); err == nil {
		if existing.ManifestHash == m.ManifestHash {
			// Re-materializing the same partition reproduces the same
			// manifest byte-for-byte (ManifestHash binds every other
			// field) — an idempotent re-run, not a conflict.
			return nil
		}
		return rmerror.New(rmerror.KindManifestConflict, "partition %s already anchored with a different manifest (stored hash %s, new hash %s)", m.PartitionID, existing.ManifestHash, m.ManifestHash)
	} else if !errors.Is(err, ErrManifestNotFound) {
		return fmt.Errorf("anchor: checking existing manifest for partition %s: %w", m.PartitionID, err)
	}

	var prevRoot, first, last string
	if m.Prev != nil {
		prevRoot = *m.Prev
	}
	if len(m.Range) == 2 {
		first, last = m.Range[0], m.Range[1]
	}

	latest, found, err := s.Latest(ctx)
	if err != nil {
		return err
	}
	seq := 0
	if found {
		seq = 1
		row := s.db.QueryRowContext(ctx, `SELECT seq FROM partition_manifests WHERE partition_id = $1`, latest.PartitionID)
		_ = row.Scan(&seq)
		seq++
	}

	query := `
		INSERT INTO partition_manifests
			(partition_id, seq, algo, network, prev_root, range_first, range_last, count, root, manifest_hash, memo)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`
	_, err = s.db.ExecContext(ctx, query,
		m.PartitionID, seq, m.Algo, m.Network, prevRoot, first, last, m.Count, m.Root, m.ManifestHash, memo,
	)
	if err != nil {
		return rmerror.Wrap(rmerror.KindManifestConflict, err, "storing manifest for partition %s", m.PartitionID)
	}
	return nil
}

func (s *SQLManifestStore) Get(ctx context.Context, partitionID string) (Manifest, error) {
	query := `
		SELECT algo, network, prev_root, range_first, range_last, count, root, manifest_hash
		FROM partition_manifests WHERE partition_id = $1
	`
	row := s.db.QueryRowContext(ctx, query, partitionID)
	return scanManifest(row, partitionID)
}

func (s *SQLManifestStore) Latest(ctx context.Context) (Manifest, bool, error) {
	query := `
		SELECT partition_id, algo, network, prev_root, range_first, range_last, count, root, manifest_hash
		FROM partition_manifests ORDER BY seq DESC LIMIT 1
	`
	row := s.db.QueryRowContext(ctx, query)

	var m Manifest
	var prevRoot, first, last string
	err := row.Scan(&m.PartitionID, &m.Algo, &m.Network, &prevRoot, &first, &last, &m.Count, &m.Root, &m.ManifestHash)
	if errors.Is(err, sql.ErrNoRows) {
		return Manifest{}, false, nil
	}
	if err != nil {
		return Manifest{}, false, fmt.Errorf("anchor: query latest manifest: %w", err)
	}
	m.V = ManifestSchemaVersion
	if prevRoot != "" {
		m.Prev = &prevRoot
	}
	if first != "" || last != "" {
		m.Range = []string{first, last}
	}
	return m, true, nil
}

func (s *SQLManifestStore) List(ctx context.Context) ([]Manifest, error) {
	query := `
		SELECT partition_id, algo, network, prev_root, range_first, range_last, count, root, manifest_hash
		FROM partition_manifests ORDER BY seq ASC
	`
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("anchor: list manifests: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []Manifest
	for rows.Next() {
		var m Manifest
		var prevRoot, first, last string
		if err := rows.Scan(&m.PartitionID, &m.Algo, &m.Network, &prevRoot, &first, &last, &m.Count, &m.Root, &m.ManifestHash); err != nil {
			return nil, err
		}
		m.V = ManifestSchemaVersion
		if prevRoot != "" {
			m.Prev = &prevRoot
		}
		if first != "" || last != "" {
			m.Range = []string{first, last}
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanManifest(row rowScanner, partitionID string) (Manifest, error) {
	var m Manifest
	var prevRoot, first, last string
	err := row.Scan(&m.Algo, &m.Network, &prevRoot, &first, &last, &m.Count, &m.Root, &m.ManifestHash)
	if errors.Is(err, sql.ErrNoRows) {
		return Manifest{}, ErrManifestNotFound
	}
	if err != nil {
		return Manifest{}, fmt.Errorf("anchor: scan manifest %s: %w", partitionID, err)
	}
	m.V = ManifestSchemaVersion
	m.PartitionID = partitionID
	if prevRoot != "" {
		m.Prev = &prevRoot
	}
	if first != "" || last != "" {
		m.Range = []string{first, last}
	}
	return m, nil
}
