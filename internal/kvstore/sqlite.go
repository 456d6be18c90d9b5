package kvstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/packrat-app/packrat/internal/constants"
)

const schema = `
CREATE TABLE IF NOT EXISTS kv_attributes (
	store_name TEXT NOT NULL,
	key TEXT NOT NULL,
	value BLOB NOT NULL,
	updated_at DATETIME DEFAULT CURRENT_TIMESTAMP,
	PRIMARY KEY (store_name, key)
);
`

// OpenSQLite opens the relational engine with WAL mode and applies the
// adapter schema.
func OpenSQLite(dsn string) (*sqlx.DB, error) {
	db, err := sqlx.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open db: %w", err)
	}

	// Set pragmas for better concurrency
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		return nil, fmt.Errorf("failed to set WAL mode: %w", err)
	}
	if _, err := db.Exec("PRAGMA busy_timeout=30000"); err != nil {
		return nil, fmt.Errorf("failed to set busy timeout: %w", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping db: %w", err)
	}

	if _, err := db.Exec(schema); err != nil {
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}

	return db, nil
}

// SQLiteAdapter is the relational-engine backend. Metadata stores live in
// a generic (store_name, key) attribute table; blob-class stores are
// routed to a hierarchical filesystem layout under dataDir, since the
// engine's page size makes it a poor home for multi-hundred-KB payloads.
type SQLiteAdapter struct {
	db      *sqlx.DB
	dataDir string
}

// NewSQLiteAdapter wraps an open database handle. dataDir receives
// blob-class payloads as store/key files.
func NewSQLiteAdapter(db *sqlx.DB, dataDir string) (*SQLiteAdapter, error) {
	if err := os.MkdirAll(dataDir, constants.DirPermissions); err != nil {
		return nil, fmt.Errorf("failed to create data dir: %w", err)
	}
	return &SQLiteAdapter{db: db, dataDir: dataDir}, nil
}

func (a *SQLiteAdapter) Close() error {
	return a.db.Close()
}

func (a *SQLiteAdapter) blobPath(st Store, key string) string {
	return filepath.Join(a.dataDir, st.Name, url.QueryEscape(key))
}

func (a *SQLiteAdapter) Get(ctx context.Context, st Store, key string) ([]byte, error) {
	if st.Class == ClassBlob {
		data, err := os.ReadFile(a.blobPath(st, key))
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		if err != nil {
			return nil, fmt.Errorf("blob read %s/%s: %w", st.Name, key, err)
		}
		return data, nil
	}

	var value []byte
	err := a.db.GetContext(ctx, &value,
		"SELECT value FROM kv_attributes WHERE store_name = ? AND key = ?", st.Name, key)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("attribute read %s/%s: %w", st.Name, key, err)
	}
	return value, nil
}

func (a *SQLiteAdapter) Put(ctx context.Context, st Store, value []byte, key string) (string, error) {
	k, err := resolveKey(st, value, key)
	if err != nil {
		return "", err
	}

	if st.Class == ClassBlob {
		dir := filepath.Join(a.dataDir, st.Name)
		if err := os.MkdirAll(dir, constants.DirPermissions); err != nil {
			return "", fmt.Errorf("blob write %s/%s: %w", st.Name, k, mapWriteErr(err))
		}
		if err := os.WriteFile(a.blobPath(st, k), value, constants.FilePermissions); err != nil {
			return "", fmt.Errorf("blob write %s/%s: %w", st.Name, k, mapWriteErr(err))
		}
		return k, nil
	}

	_, err = a.db.ExecContext(ctx, `
		INSERT INTO kv_attributes (store_name, key, value, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(store_name, key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at
	`, st.Name, k, value, time.Now())
	if err != nil {
		return "", fmt.Errorf("attribute write %s/%s: %w", st.Name, k, mapWriteErr(err))
	}
	return k, nil
}

func (a *SQLiteAdapter) GetAll(ctx context.Context, st Store) ([][]byte, error) {
	if st.Class == ClassBlob {
		keys, err := a.GetAllKeys(ctx, st)
		if err != nil {
			return nil, err
		}
		values := make([][]byte, 0, len(keys))
		for _, k := range keys {
			v, err := a.Get(ctx, st, k)
			if err != nil {
				return nil, err
			}
			if v != nil {
				values = append(values, v)
			}
		}
		return values, nil
	}

	rows, err := a.db.QueryxContext(ctx,
		"SELECT value FROM kv_attributes WHERE store_name = ? ORDER BY key", st.Name)
	if err != nil {
		return nil, fmt.Errorf("attribute scan %s: %w", st.Name, err)
	}
	defer rows.Close()

	var values [][]byte
	for rows.Next() {
		var v []byte
		if err := rows.Scan(&v); err != nil {
			return nil, fmt.Errorf("attribute scan %s: %w", st.Name, err)
		}
		values = append(values, v)
	}
	return values, rows.Err()
}

func (a *SQLiteAdapter) GetAllKeys(ctx context.Context, st Store) ([]string, error) {
	if st.Class == ClassBlob {
		entries, err := os.ReadDir(filepath.Join(a.dataDir, st.Name))
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		if err != nil {
			return nil, fmt.Errorf("blob scan %s: %w", st.Name, err)
		}
		keys := make([]string, 0, len(entries))
		for _, e := range entries {
			if e.IsDir() {
				continue
			}
			key, err := url.QueryUnescape(e.Name())
			if err != nil {
				continue
			}
			keys = append(keys, key)
		}
		return keys, nil
	}

	var keys []string
	err := a.db.SelectContext(ctx, &keys,
		"SELECT key FROM kv_attributes WHERE store_name = ? ORDER BY key", st.Name)
	if err != nil {
		return nil, fmt.Errorf("attribute key scan %s: %w", st.Name, err)
	}
	return keys, nil
}

func (a *SQLiteAdapter) Delete(ctx context.Context, st Store, key string) error {
	if st.Class == ClassBlob {
		err := os.Remove(a.blobPath(st, key))
		if err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("blob delete %s/%s: %w", st.Name, key, err)
		}
		return nil
	}

	_, err := a.db.ExecContext(ctx,
		"DELETE FROM kv_attributes WHERE store_name = ? AND key = ?", st.Name, key)
	if err != nil {
		return fmt.Errorf("attribute delete %s/%s: %w", st.Name, key, err)
	}
	return nil
}
