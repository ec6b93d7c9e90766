// Package store keeps serialized model packages in a SQLite catalogue.
package store

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/ulikunitz/xz"
	_ "modernc.org/sqlite"

	"github.com/YuminosukeSato/scigo-workbench/core/model"
	"github.com/YuminosukeSato/scigo-workbench/pkg/errors"
	"github.com/YuminosukeSato/scigo-workbench/pkg/log"
)

const schema = `
CREATE TABLE IF NOT EXISTS models (
	name       TEXT PRIMARY KEY,
	created    INTEGER NOT NULL,
	metadata   TEXT NOT NULL,
	compressed INTEGER NOT NULL,
	size       INTEGER NOT NULL,
	package    BLOB NOT NULL
);`

// Entry describes a stored package.
type Entry struct {
	Name       string         `json:"name"`
	Created    time.Time      `json:"created"`
	Metadata   model.Metadata `json:"metadata"`
	Compressed bool           `json:"compressed"`
	// Size is the uncompressed package size in bytes.
	Size int64 `json:"size"`
}

// Store はモデルパッケージをSQLiteに保存する
//
// パッケージはzipのまま保存され、compressが有効な場合はxzで圧縮される。
type Store struct {
	db       *sql.DB
	mu       sync.Mutex
	compress bool
	logger   log.Logger
	now      func() time.Time
}

// Option configures a Store.
type Option func(*Store)

// WithCompression toggles xz compression of new packages. Reads handle both.
func WithCompression(on bool) Option {
	return func(s *Store) { s.compress = on }
}

// WithLogger sets the logger.
func WithLogger(l log.Logger) Option {
	return func(s *Store) {
		if l != nil {
			s.logger = l
		}
	}
}

// Open opens or creates the catalogue at path.
func Open(path string, opts ...Option) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, errors.Wrap(err, "failed to open SQLite")
	}
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "failed to init table")
	}

	s := &Store{
		db:       db,
		compress: true,
		logger:   log.GetLoggerWithName("store"),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}

	if _, err := db.Exec(`PRAGMA journal_mode = WAL; PRAGMA synchronous = NORMAL;`); err != nil {
		s.logger.Warn("failed to set PRAGMA", "error", err)
	}
	return s, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

func validName(name string) error {
	if strings.TrimSpace(name) == "" || strings.ContainsAny(name, `/\`) {
		return errors.NewValidationError("name", "invalid model name", name)
	}
	return nil
}

// Put stores a zip package under name, replacing any earlier one. The
// package must be readable by model.ReadPackageBytes.
func (s *Store) Put(ctx context.Context, name string, pkg []byte) (*Entry, error) {
	if err := validName(name); err != nil {
		return nil, err
	}
	sp, err := model.ReadPackageBytes(pkg)
	if err != nil {
		return nil, err
	}
	meta, err := json.Marshal(sp.Metadata)
	if err != nil {
		return nil, errors.Wrap(err, "encode metadata")
	}

	blob := pkg
	if s.compress {
		if blob, err = compress(pkg); err != nil {
			return nil, err
		}
	}

	e := &Entry{
		Name:       name,
		Created:    s.now().UTC().Truncate(time.Millisecond),
		Metadata:   sp.Metadata,
		Compressed: s.compress,
		Size:       int64(len(pkg)),
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	_, err = s.db.ExecContext(ctx,
		"INSERT OR REPLACE INTO models (name, created, metadata, compressed, size, package) VALUES (?, ?, ?, ?, ?, ?)",
		name, e.Created.UnixMilli(), string(meta), boolInt(e.Compressed), e.Size, blob)
	if err != nil {
		return nil, errors.Wrapf(err, "store model %q", name)
	}
	s.logger.Info("model stored",
		log.StoreNameKey, name,
		log.ModelNameKey, sp.Metadata.Name,
		log.DataSizeKey, len(blob),
	)
	return e, nil
}

// Get returns the zip package stored under name.
func (s *Store) Get(ctx context.Context, name string) ([]byte, *Entry, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT name, created, metadata, compressed, size, package FROM models WHERE name = ?", name)
	var blob []byte
	e, err := scanEntry(row, &blob)
	if err == sql.ErrNoRows {
		return nil, nil, errors.Wrapf(errors.ErrNotFound, "model %q", name)
	}
	if err != nil {
		return nil, nil, err
	}
	if e.Compressed {
		if blob, err = decompress(blob); err != nil {
			return nil, nil, err
		}
	}
	return blob, e, nil
}

// List returns the stored entries ordered by name.
func (s *Store) List(ctx context.Context) ([]Entry, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT name, created, metadata, compressed, size FROM models ORDER BY name ASC")
	if err != nil {
		return nil, errors.Wrap(err, "list models")
	}
	defer rows.Close()

	entries := []Entry{}
	for rows.Next() {
		e, err := scanEntry(rows, nil)
		if err != nil {
			return nil, err
		}
		entries = append(entries, *e)
	}
	return entries, errors.Wrap(rows.Err(), "list models")
}

// Delete removes name.
func (s *Store) Delete(ctx context.Context, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	res, err := s.db.ExecContext(ctx, "DELETE FROM models WHERE name = ?", name)
	if err != nil {
		return errors.Wrapf(err, "delete model %q", name)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return errors.Wrapf(errors.ErrNotFound, "model %q", name)
	}
	s.logger.Info("model deleted", log.StoreNameKey, name)
	return nil
}

// SaveModel serializes m and stores it under name.
func (s *Store) SaveModel(ctx context.Context, name string, m model.Model) (*Entry, error) {
	sp, err := m.Serialize()
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	if err := model.WritePackage(&buf, sp); err != nil {
		return nil, err
	}
	return s.Put(ctx, name, buf.Bytes())
}

// LoadModel restores the model stored under name.
func (s *Store) LoadModel(ctx context.Context, name string) (model.Model, error) {
	pkg, _, err := s.Get(ctx, name)
	if err != nil {
		return nil, err
	}
	sp, err := model.ReadPackageBytes(pkg)
	if err != nil {
		return nil, err
	}
	return model.Open(sp)
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

type scanner interface {
	Scan(dest ...interface{}) error
}

// scanEntry reads one row; blob is scanned only when non-nil.
func scanEntry(sc scanner, blob *[]byte) (*Entry, error) {
	var (
		e       Entry
		created int64
		meta    string
	)
	dest := []interface{}{&e.Name, &created, &meta, &e.Compressed, &e.Size}
	if blob != nil {
		dest = append(dest, blob)
	}
	if err := sc.Scan(dest...); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, errors.Wrap(err, "scan model row")
	}
	e.Created = time.UnixMilli(created).UTC()
	if err := json.Unmarshal([]byte(meta), &e.Metadata); err != nil {
		return nil, errors.NewParseError("metadata of "+e.Name, 0, err)
	}
	return &e, nil
}

func compress(b []byte) ([]byte, error) {
	var buf bytes.Buffer
	w, err := xz.NewWriter(&buf)
	if err != nil {
		return nil, errors.Wrap(err, "xz writer")
	}
	if _, err := w.Write(b); err != nil {
		return nil, errors.Wrap(err, "compress package")
	}
	if err := w.Close(); err != nil {
		return nil, errors.Wrap(err, "compress package")
	}
	return buf.Bytes(), nil
}

func decompress(b []byte) ([]byte, error) {
	r, err := xz.NewReader(bytes.NewReader(b))
	if err != nil {
		return nil, errors.NewParseError("stored package", 0, err)
	}
	out, err := io.ReadAll(r)
	if err != nil {
		return nil, errors.NewParseError("stored package", 0, err)
	}
	return out, nil
}
