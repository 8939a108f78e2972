package replay

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/util"
)

const actionKeyPrefix = "action:"

// LevelDBQueue is a Queue persisted in a local leveldb directory.
// Keys are prefixed with the enqueue timestamp so iteration order is
// enqueue order.
type LevelDBQueue struct {
	db *leveldb.DB
}

// OpenLevelDBQueue opens (or creates) the queue at path.
func OpenLevelDBQueue(path string) (*LevelDBQueue, error) {
	db, err := leveldb.OpenFile(path, nil)
	if err != nil {
		return nil, fmt.Errorf("open action queue: %w", err)
	}
	return &LevelDBQueue{db: db}, nil
}

// Close releases the underlying database.
func (q *LevelDBQueue) Close() error {
	return q.db.Close()
}

func actionKey(a Action) []byte {
	return []byte(fmt.Sprintf("%s%020d:%s", actionKeyPrefix, a.EnqueuedAt.UnixNano(), a.ID))
}

// List implements Queue.
func (q *LevelDBQueue) List(_ context.Context) ([]Action, error) {
	var actions []Action
	iter := q.db.NewIterator(util.BytesPrefix([]byte(actionKeyPrefix)), nil)
	defer iter.Release()
	for iter.Next() {
		var a Action
		if err := json.Unmarshal(iter.Value(), &a); err != nil {
			return nil, fmt.Errorf("decode action %s: %w", iter.Key(), err)
		}
		actions = append(actions, a)
	}
	if err := iter.Error(); err != nil {
		return nil, fmt.Errorf("iterate action queue: %w", err)
	}
	return actions, nil
}

// Put implements Queue.
func (q *LevelDBQueue) Put(_ context.Context, action Action) error {
	data, err := json.Marshal(action)
	if err != nil {
		return fmt.Errorf("encode action %s: %w", action.ID, err)
	}
	if err := q.db.Put(actionKey(action), data, nil); err != nil {
		return fmt.Errorf("store action %s: %w", action.ID, err)
	}
	return nil
}

// Remove implements Queue. The queue is small, so a prefix scan for the
// matching ID is fine.
func (q *LevelDBQueue) Remove(_ context.Context, id string) error {
	iter := q.db.NewIterator(util.BytesPrefix([]byte(actionKeyPrefix)), nil)
	defer iter.Release()
	for iter.Next() {
		var a Action
		if err := json.Unmarshal(iter.Value(), &a); err != nil {
			continue
		}
		if a.ID == id {
			key := append([]byte(nil), iter.Key()...)
			if err := q.db.Delete(key, nil); err != nil {
				return fmt.Errorf("delete action %s: %w", id, err)
			}
			return nil
		}
	}
	if err := iter.Error(); err != nil {
		return fmt.Errorf("iterate action queue: %w", err)
	}
	return ErrNotFound
}
