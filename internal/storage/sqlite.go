package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	_ "github.com/mattn/go-sqlite3"

	"github.com/luxfi/fhevm"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS ciphertexts (
	handle      TEXT PRIMARY KEY,
	fhe_type    INTEGER NOT NULL,
	device_size INTEGER NOT NULL,
	payload     BLOB NOT NULL,
	created_at  TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);`

// SQLiteStorage keeps ciphertext records in a SQLite database: one row
// per handle with the type, device size and payload stored as columns.
// WAL mode allows reads while a worker writes results.
type SQLiteStorage struct {
	db     *sql.DB
	insert *sql.Stmt
	get    *sql.Stmt
	del    *sql.Stmt
	exists *sql.Stmt
}

// NewSQLiteStorage opens or creates the database at path.
func NewSQLiteStorage(path string) (*SQLiteStorage, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("connect database: %w", err)
	}

	// SQLite allows one writer at a time; a single connection avoids
	// SQLITE_BUSY under concurrent workers.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	for _, pragma := range []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("apply %q: %w", pragma, err)
		}
	}

	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}

	s := &SQLiteStorage{db: db}
	for _, p := range []struct {
		stmt **sql.Stmt
		sql  string
	}{
		{&s.insert, "INSERT OR IGNORE INTO ciphertexts (handle, fhe_type, device_size, payload) VALUES (?, ?, ?, ?)"},
		{&s.get, "SELECT fhe_type, device_size, payload FROM ciphertexts WHERE handle = ?"},
		{&s.del, "DELETE FROM ciphertexts WHERE handle = ?"},
		{&s.exists, "SELECT 1 FROM ciphertexts WHERE handle = ?"},
	} {
		*p.stmt, err = db.Prepare(p.sql)
		if err != nil {
			db.Close()
			return nil, fmt.Errorf("prepare %q: %w", p.sql, err)
		}
	}

	return s, nil
}

func (s *SQLiteStorage) Store(ctx context.Context, ct *fhevm.Ciphertext) (Handle, error) {
	data, err := ct.MarshalBinary()
	if err != nil {
		return "", fmt.Errorf("marshal ciphertext: %w", err)
	}
	handle := ComputeHandle(data)

	// INSERT OR IGNORE keeps the content-dedup semantics of the other
	// backends.
	if _, err := s.insert.ExecContext(ctx, string(handle), uint8(ct.Type()), int64(ct.SizeOnDevice()), ct.Payload()); err != nil {
		return "", fmt.Errorf("insert ciphertext: %w", err)
	}

	return handle, nil
}

func (s *SQLiteStorage) Load(ctx context.Context, handle Handle) (*fhevm.Ciphertext, error) {
	var (
		fheType    uint8
		deviceSize int64
		payload    []byte
	)
	err := s.get.QueryRowContext(ctx, string(handle)).Scan(&fheType, &deviceSize, &payload)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("select ciphertext: %w", err)
	}

	t, ok := fhevm.TypeFromTag(uint16(fheType))
	if !ok {
		return nil, fmt.Errorf("corrupt record %s: unknown type %d", handle, fheType)
	}

	return fhevm.NewCiphertext(t, payload, uint64(deviceSize)), nil
}

func (s *SQLiteStorage) Delete(ctx context.Context, handle Handle) error {
	res, err := s.del.ExecContext(ctx, string(handle))
	if err != nil {
		return fmt.Errorf("delete ciphertext: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete ciphertext: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *SQLiteStorage) Exists(ctx context.Context, handle Handle) (bool, error) {
	var one int
	err := s.exists.QueryRowContext(ctx, string(handle)).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("select ciphertext: %w", err)
	}
	return true, nil
}

// Ping verifies the database connection; the health monitor uses it as
// the storage probe.
func (s *SQLiteStorage) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *SQLiteStorage) Close() error {
	return s.db.Close()
}
