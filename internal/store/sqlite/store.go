package sqlite

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"
	_ "modernc.org/sqlite"

	"mlsgroup/internal/domain"
	"mlsgroup/internal/domain/types"
)

//go:embed schema.sql
var schemaSQL string

// DefaultTimeout bounds each storage call unless WithTimeout overrides it.
const DefaultTimeout = 5 * time.Second

// Store keeps everything in one SQLite database file.
type Store struct {
	db        *sql.DB
	path      string
	retention int
	timeout   time.Duration
	logger    *zap.Logger
}

// Option configures a Store.
type Option func(*Store)

// WithRetention keeps only the n newest epoch records per group. Zero, the
// default, keeps all of them.
func WithRetention(n int) Option {
	return func(s *Store) { s.retention = n }
}

// WithTimeout bounds every storage call by d. Non-positive values keep
// DefaultTimeout.
func WithTimeout(d time.Duration) Option {
	return func(s *Store) {
		if d > 0 {
			s.timeout = d
		}
	}
}

func WithLogger(l *zap.Logger) Option {
	return func(s *Store) {
		if l != nil {
			s.logger = l
		}
	}
}

// Open opens or creates the database at path and applies the schema.
func Open(path string, opts ...Option) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}
	db, err := sql.Open("sqlite", path+
		"?_pragma=journal_mode(WAL)"+
		"&_pragma=foreign_keys(ON)"+
		"&_pragma=busy_timeout(5000)"+
		"&_pragma=synchronous(FULL)"+
		"&_pragma=secure_delete(ON)")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetConnMaxLifetime(time.Hour)

	s := &Store{db: db, path: path, timeout: DefaultTimeout, logger: zap.NewNop()}
	for _, o := range opts {
		o(s)
	}
	ctx, cancel := s.callContext()
	defer cancel()
	if _, err := db.ExecContext(ctx, schemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("initialize schema: %w", err)
	}
	return s, nil
}

// callContext returns the deadline for one storage call. The storage contracts
// carry no context of their own.
func (s *Store) callContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), s.timeout)
}

// epochKey maps an epoch id onto SQLite's signed integers.
func epochKey(id uint64) (int64, error) {
	if id > math.MaxInt64 {
		return 0, fmt.Errorf("epoch id %d exceeds the storable range", id)
	}
	return int64(id), nil
}

func (s *Store) Close() error { return s.db.Close() }

func (s *Store) Path() string { return s.path }

// ---------- Group state ----------

func (s *Store) State(groupID []byte) ([]byte, bool, error) {
	ctx, cancel := s.callContext()
	defer cancel()
	var state []byte
	err := s.db.QueryRowContext(ctx, `SELECT state FROM groups WHERE group_id = ?`, groupID).Scan(&state)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("read group state: %w", err)
	}
	return state, true, nil
}

func (s *Store) Epoch(groupID []byte, epochID uint64) ([]byte, bool, error) {
	key, err := epochKey(epochID)
	if err != nil {
		return nil, false, nil
	}
	ctx, cancel := s.callContext()
	defer cancel()
	var data []byte
	err = s.db.QueryRowContext(ctx, `SELECT data FROM epochs WHERE group_id = ? AND epoch_id = ?`,
		groupID, key).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("read epoch %d: %w", epochID, err)
	}
	return data, true, nil
}

func (s *Store) MaxEpochID(groupID []byte) (uint64, bool, error) {
	ctx, cancel := s.callContext()
	defer cancel()
	var maxID sql.NullInt64
	err := s.db.QueryRowContext(ctx, `SELECT max_epoch_id FROM groups WHERE group_id = ?`, groupID).Scan(&maxID)
	if errors.Is(err, sql.ErrNoRows) || (err == nil && !maxID.Valid) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("read max epoch: %w", err)
	}
	return uint64(maxID.Int64), true, nil
}

// Write applies the snapshot, inserts and updates in one transaction.
// Epoch ids above math.MaxInt64 are rejected before anything is written.
func (s *Store) Write(state types.GroupState, inserts, updates []types.EpochRecord) error {
	for _, recs := range [][]types.EpochRecord{inserts, updates} {
		for _, r := range recs {
			if _, err := epochKey(r.ID); err != nil {
				return err
			}
		}
	}

	ctx, cancel := s.callContext()
	defer cancel()
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin write: %w", err)
	}
	defer tx.Rollback()

	var maxID sql.NullInt64
	err = tx.QueryRowContext(ctx, `SELECT max_epoch_id FROM groups WHERE group_id = ?`, state.ID).Scan(&maxID)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("read max epoch: %w", err)
	}
	for _, r := range inserts {
		if !maxID.Valid || int64(r.ID) > maxID.Int64 {
			maxID = sql.NullInt64{Int64: int64(r.ID), Valid: true}
		}
	}

	now := time.Now().UTC().Format(time.RFC3339)
	if _, err := tx.ExecContext(ctx, 
		`INSERT INTO groups (group_id, state, max_epoch_id, updated_at) VALUES (?, ?, ?, ?)
		 ON CONFLICT(group_id) DO UPDATE SET state = excluded.state,
		     max_epoch_id = excluded.max_epoch_id, updated_at = excluded.updated_at`,
		state.ID, state.Data, maxID, now); err != nil {
		return fmt.Errorf("write group state: %w", err)
	}

	for _, r := range inserts {
		var exists int
		err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM epochs WHERE group_id = ? AND epoch_id = ?`,
			state.ID, int64(r.ID)).Scan(&exists)
		if err != nil {
			return fmt.Errorf("insert epoch %d: %w", r.ID, err)
		}
		if exists > 0 {
			return fmt.Errorf("insert epoch %d: %w", r.ID, types.ErrAlreadyExists)
		}
		if _, err := tx.ExecContext(ctx, `INSERT INTO epochs (group_id, epoch_id, data) VALUES (?, ?, ?)`,
			state.ID, int64(r.ID), r.Data); err != nil {
			return fmt.Errorf("insert epoch %d: %w", r.ID, err)
		}
	}
	for _, r := range updates {
		res, err := tx.ExecContext(ctx, `UPDATE epochs SET data = ? WHERE group_id = ? AND epoch_id = ?`,
			r.Data, state.ID, int64(r.ID))
		if err != nil {
			return fmt.Errorf("update epoch %d: %w", r.ID, err)
		}
		if n, err := res.RowsAffected(); err != nil {
			return fmt.Errorf("update epoch %d: %w", r.ID, err)
		} else if n == 0 {
			return fmt.Errorf("update epoch %d: %w", r.ID, types.ErrNotFound)
		}
	}

	if s.retention > 0 {
		if _, err := tx.ExecContext(ctx,
			`DELETE FROM epochs WHERE group_id = ? AND epoch_id NOT IN (
			     SELECT epoch_id FROM epochs WHERE group_id = ? ORDER BY epoch_id DESC LIMIT ?)`,
			state.ID, state.ID, s.retention); err != nil {
			return fmt.Errorf("prune epochs: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit write: %w", err)
	}
	s.logger.Debug("group state written",
		zap.Binary("group_id", state.ID),
		zap.Int("inserts", len(inserts)),
		zap.Int("updates", len(updates)))
	return nil
}

// ---------- Key packages ----------

// KeyPackages returns the store's domain.KeyPackageStorage view.
func (s *Store) KeyPackages() *KeyPackages { return &KeyPackages{s: s} }

// KeyPackages is the key package view of a Store.
type KeyPackages struct{ s *Store }

func (k *KeyPackages) Insert(id []byte, pkg types.KeyPackageData) error {
	ctx, cancel := k.s.callContext()
	defer cancel()
	res, err := k.s.db.ExecContext(ctx, 
		`INSERT INTO key_packages (id, key_package, init_key_secret, leaf_node_key_secret, expiration)
		 VALUES (?, ?, ?, ?, ?) ON CONFLICT(id) DO NOTHING`,
		id, pkg.KeyPackageBytes, pkg.InitKeySecret, pkg.LeafNodeKeySecret, int64(pkg.Expiration))
	if err != nil {
		return fmt.Errorf("insert key package: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("insert key package: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("key package %x: %w", id, types.ErrAlreadyExists)
	}
	return nil
}

func (k *KeyPackages) Get(id []byte) (types.KeyPackageData, bool, error) {
	var (
		pkg types.KeyPackageData
		exp int64
	)
	ctx, cancel := k.s.callContext()
	defer cancel()
	err := k.s.db.QueryRowContext(ctx,
		`SELECT key_package, init_key_secret, leaf_node_key_secret, expiration
		 FROM key_packages WHERE id = ?`, id).
		Scan(&pkg.KeyPackageBytes, &pkg.InitKeySecret, &pkg.LeafNodeKeySecret, &exp)
	if errors.Is(err, sql.ErrNoRows) {
		return types.KeyPackageData{}, false, nil
	}
	if err != nil {
		return types.KeyPackageData{}, false, fmt.Errorf("read key package: %w", err)
	}
	pkg.Expiration = uint64(exp)
	return pkg, true, nil
}

// Delete overwrites the secrets with zeros and then removes the row.
func (k *KeyPackages) Delete(id []byte) error {
	ctx, cancel := k.s.callContext()
	defer cancel()
	tx, err := k.s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("delete key package: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, 
		`UPDATE key_packages SET init_key_secret = zeroblob(length(init_key_secret)),
		     leaf_node_key_secret = zeroblob(length(leaf_node_key_secret))
		 WHERE id = ?`, id); err != nil {
		return fmt.Errorf("erase key package: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM key_packages WHERE id = ?`, id); err != nil {
		return fmt.Errorf("delete key package: %w", err)
	}
	return tx.Commit()
}

// DeleteExpired removes key packages that expired before now and reports
// how many were removed.
func (k *KeyPackages) DeleteExpired(now time.Time) (int, error) {
	ctx, cancel := k.s.callContext()
	defer cancel()
	tx, err := k.s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("delete expired key packages: %w", err)
	}
	defer tx.Rollback()

	cutoff := now.Unix()
	if _, err := tx.ExecContext(ctx, 
		`UPDATE key_packages SET init_key_secret = zeroblob(length(init_key_secret)),
		     leaf_node_key_secret = zeroblob(length(leaf_node_key_secret))
		 WHERE expiration < ?`, cutoff); err != nil {
		return 0, fmt.Errorf("erase expired key packages: %w", err)
	}
	res, err := tx.ExecContext(ctx, `DELETE FROM key_packages WHERE expiration < ?`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("delete expired key packages: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	return int(n), tx.Commit()
}

// ---------- Pre-shared keys ----------

// PSKs returns the store's domain.PreSharedKeyStorage view.
func (s *Store) PSKs() *PSKs { return &PSKs{s: s} }

// PSKs is the pre-shared key view of a Store. Keys are indexed by
// canonical id (see types.EncodePSKID).
type PSKs struct{ s *Store }

// Insert stores psk under the canonical encoding of rawID, replacing any
// previous key with that id.
func (p *PSKs) Insert(rawID, psk []byte) error {
	ctx, cancel := p.s.callContext()
	defer cancel()
	_, err := p.s.db.ExecContext(ctx, 
		`INSERT INTO psks (id, psk) VALUES (?, ?)
		 ON CONFLICT(id) DO UPDATE SET psk = excluded.psk`,
		types.EncodePSKID(rawID), psk)
	if err != nil {
		return fmt.Errorf("insert psk: %w", err)
	}
	return nil
}

func (p *PSKs) Get(id []byte) ([]byte, bool, error) {
	ctx, cancel := p.s.callContext()
	defer cancel()
	var psk []byte
	err := p.s.db.QueryRowContext(ctx, `SELECT psk FROM psks WHERE id = ?`, id).Scan(&psk)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("read psk: %w", err)
	}
	return psk, true, nil
}

// Compile-time assertions that the views implement the storage contracts.
var (
	_ domain.GroupStateStorage   = (*Store)(nil)
	_ domain.KeyPackageStorage   = (*KeyPackages)(nil)
	_ domain.PreSharedKeyStorage = (*PSKs)(nil)
)
