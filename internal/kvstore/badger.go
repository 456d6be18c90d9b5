package kvstore

import (
	"context"
	"errors"
	"fmt"
	"strings"

	badger "github.com/dgraph-io/badger/v3"
)

// BadgerAdapter is the document-store backend. Records are keyed
// "store/key" inside a single badger tree.
type BadgerAdapter struct {
	db *badger.DB
}

// NewBadgerAdapter opens (or creates) a badger database at dir.
func NewBadgerAdapter(dir string) (*BadgerAdapter, error) {
	opts := badger.DefaultOptions(dir).WithLogger(nil)
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open badger db: %w", err)
	}
	return &BadgerAdapter{db: db}, nil
}

func (a *BadgerAdapter) Close() error {
	return a.db.Close()
}

func badgerKey(st Store, key string) []byte {
	return []byte(st.Name + "/" + key)
}

func (a *BadgerAdapter) Get(ctx context.Context, st Store, key string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var value []byte
	err := a.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(badgerKey(st, key))
		if err != nil {
			return err
		}
		value, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("badger get %s/%s: %w", st.Name, key, err)
	}
	return value, nil
}

func (a *BadgerAdapter) Put(ctx context.Context, st Store, value []byte, key string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	k, err := resolveKey(st, value, key)
	if err != nil {
		return "", err
	}
	err = a.db.Update(func(txn *badger.Txn) error {
		return txn.Set(badgerKey(st, k), value)
	})
	if err != nil {
		return "", fmt.Errorf("badger put %s/%s: %w", st.Name, k, mapWriteErr(err))
	}
	return k, nil
}

func (a *BadgerAdapter) GetAll(ctx context.Context, st Store) ([][]byte, error) {
	var values [][]byte
	err := a.iterate(ctx, st, func(_ string, item *badger.Item) error {
		v, err := item.ValueCopy(nil)
		if err != nil {
			return err
		}
		values = append(values, v)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return values, nil
}

func (a *BadgerAdapter) GetAllKeys(ctx context.Context, st Store) ([]string, error) {
	var keys []string
	err := a.iterate(ctx, st, func(key string, _ *badger.Item) error {
		keys = append(keys, key)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return keys, nil
}

func (a *BadgerAdapter) iterate(ctx context.Context, st Store, fn func(key string, item *badger.Item) error) error {
	prefix := []byte(st.Name + "/")
	err := a.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = prefix
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			item := it.Item()
			key := strings.TrimPrefix(string(item.Key()), st.Name+"/")
			if err := fn(key, item); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("badger scan %s: %w", st.Name, err)
	}
	return nil
}

func (a *BadgerAdapter) Delete(ctx context.Context, st Store, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	err := a.db.Update(func(txn *badger.Txn) error {
		return txn.Delete(badgerKey(st, key))
	})
	if err != nil {
		return fmt.Errorf("badger delete %s/%s: %w", st.Name, key, err)
	}
	return nil
}
