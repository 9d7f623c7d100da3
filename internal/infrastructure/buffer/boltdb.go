package buffer

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	bolt "go.etcd.io/bbolt"
)

var indexBucket = []byte("index")

// ErrFull is returned when a new item would exceed the configured capacity.
var ErrFull = errors.New("buffer: capacity reached")

// Store keeps buffered writes in BoltDB while primary storage is unavailable. Items are
// ordered by priority then enqueue time; a secondary bucket maps item ids to their keys.
type Store struct {
	db     *bolt.DB
	bucket []byte
	limit  int
}

// Open initializes the BoltDB file and ensures both buckets exist.
func Open(path string, bucket string) (*Store, error) {
	if bucket == "" {
		bucket = "buffer"
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, err
	}

	if err := db.Update(func(tx *bolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists([]byte(bucket)); err != nil {
			return err
		}
		_, err := tx.CreateBucketIfNotExists(indexBucket)
		return err
	}); err != nil {
		db.Close()
		return nil, err
	}

	return &Store{
		db:     db,
		bucket: []byte(bucket),
	}, nil
}

// WithLimit caps the number of distinct pending items. Zero means unbounded.
func (s *Store) WithLimit(limit int) *Store {
	s.limit = limit
	return s
}

// Enqueue stores item, replacing any pending item with the same ID. A new ID is rejected
// with ErrFull once the store holds limit items.
func (s *Store) Enqueue(item Item) error {
	if s == nil || s.db == nil {
		return bolt.ErrDatabaseNotOpen
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		index := tx.Bucket(indexBucket)
		if s.limit > 0 && index.Get([]byte(item.ID)) == nil && countKeys(index) >= s.limit {
			return ErrFull
		}
		return s.put(tx, item)
	})
}

// Lookup returns the pending item with id.
func (s *Store) Lookup(id string) (Item, bool, error) {
	if s == nil || s.db == nil {
		return Item{}, false, bolt.ErrDatabaseNotOpen
	}
	var (
		item  Item
		found bool
	)
	err := s.db.View(func(tx *bolt.Tx) error {
		key := tx.Bucket(indexBucket).Get([]byte(id))
		if key == nil {
			return nil
		}
		var err error
		item, found, err = s.decode(tx, key)
		return err
	})
	return item, found, err
}

// Find returns the pending items whose ID starts with prefix.
func (s *Store) Find(prefix string) ([]Item, error) {
	if s == nil || s.db == nil {
		return nil, bolt.ErrDatabaseNotOpen
	}
	var items []Item
	err := s.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket(indexBucket).Cursor()
		p := []byte(prefix)
		for k, key := c.Seek(p); k != nil && bytes.HasPrefix(k, p); k, key = c.Next() {
			item, ok, err := s.decode(tx, key)
			if err != nil {
				return err
			}
			if ok {
				items = append(items, item)
			}
		}
		return nil
	})
	return items, err
}

// GetBatch returns up to limit items in replay order without removing them.
func (s *Store) GetBatch(limit int) ([]Item, error) {
	if s == nil || s.db == nil {
		return nil, bolt.ErrDatabaseNotOpen
	}
	if limit <= 0 {
		limit = 50
	}

	var items []Item
	err := s.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket(s.bucket).Cursor()
		for k, v := c.First(); k != nil && len(items) < limit; k, v = c.Next() {
			var item Item
			if err := json.Unmarshal(v, &item); err != nil {
				continue
			}
			item.bucketKey = append([]byte(nil), k...)
			items = append(items, item)
		}
		return nil
	})
	return items, err
}

// Remove deletes item. An item superseded by a newer write with the same ID leaves the
// newer one in place.
func (s *Store) Remove(item Item) error {
	if s == nil || s.db == nil {
		return bolt.ErrDatabaseNotOpen
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		index := tx.Bucket(indexBucket)
		key := item.bucketKey
		if len(key) == 0 {
			key = copyKey(index.Get([]byte(item.ID)))
			if key == nil {
				return nil
			}
		}
		if current := index.Get([]byte(item.ID)); bytes.Equal(current, key) {
			if err := index.Delete([]byte(item.ID)); err != nil {
				return err
			}
		}
		return tx.Bucket(s.bucket).Delete(key)
	})
}

// Discard drops the pending item with id, if any.
func (s *Store) Discard(id string) error {
	return s.Remove(Item{ID: id})
}

// Requeue moves a failed item to the back of its priority band. It reports false when the
// item was superseded in the meantime and has been dropped instead.
func (s *Store) Requeue(item Item) (bool, error) {
	if s == nil || s.db == nil {
		return false, bolt.ErrDatabaseNotOpen
	}
	requeued := false
	err := s.db.Update(func(tx *bolt.Tx) error {
		current := tx.Bucket(indexBucket).Get([]byte(item.ID))
		if len(item.bucketKey) > 0 && !bytes.Equal(current, item.bucketKey) {
			return tx.Bucket(s.bucket).Delete(item.bucketKey)
		}
		item.Timestamp = time.Now()
		requeued = true
		return s.put(tx, item)
	})
	return requeued, err
}

// Size returns the number of buffered items.
func (s *Store) Size() (int, error) {
	if s == nil || s.db == nil {
		return 0, bolt.ErrDatabaseNotOpen
	}
	var count int
	err := s.db.View(func(tx *bolt.Tx) error {
		count = tx.Bucket(s.bucket).Stats().KeyN
		return nil
	})
	return count, err
}

// Cleanup removes items enqueued before olderThan.
func (s *Store) Cleanup(olderThan time.Time) (int, error) {
	if s == nil || s.db == nil {
		return 0, bolt.ErrDatabaseNotOpen
	}
	removed := 0
	err := s.db.Update(func(tx *bolt.Tx) error {
		index := tx.Bucket(indexBucket)
		c := tx.Bucket(s.bucket).Cursor()
		for k, v := c.First(); k != nil; k, v = c.Next() {
			var item Item
			if err := json.Unmarshal(v, &item); err != nil {
				continue
			}
			if !item.Timestamp.Before(olderThan) {
				continue
			}
			if bytes.Equal(index.Get([]byte(item.ID)), k) {
				if err := index.Delete([]byte(item.ID)); err != nil {
					return err
				}
			}
			if err := c.Delete(); err != nil {
				return err
			}
			removed++
		}
		return nil
	})
	return removed, err
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Stats exposes Bolt statistics for monitoring endpoints.
func (s *Store) Stats() bolt.Stats {
	if s == nil || s.db == nil {
		return bolt.Stats{}
	}
	return s.db.Stats()
}

func (s *Store) put(tx *bolt.Tx, item Item) error {
	item.normalize()
	index := tx.Bucket(indexBucket)
	data := tx.Bucket(s.bucket)

	if previous := copyKey(index.Get([]byte(item.ID))); previous != nil {
		if err := data.Delete(previous); err != nil {
			return err
		}
	}

	key := []byte(buildKey(item))
	payload, err := json.Marshal(item)
	if err != nil {
		return err
	}
	if err := data.Put(key, payload); err != nil {
		return err
	}
	return index.Put([]byte(item.ID), key)
}

func (s *Store) decode(tx *bolt.Tx, key []byte) (Item, bool, error) {
	raw := tx.Bucket(s.bucket).Get(key)
	if raw == nil {
		return Item{}, false, nil
	}
	var item Item
	if err := json.Unmarshal(raw, &item); err != nil {
		return Item{}, false, err
	}
	item.bucketKey = copyKey(key)
	return item, true, nil
}

// copyKey detaches a key from Bolt's memory map so it outlives mutations in the same tx.
func copyKey(key []byte) []byte {
	if key == nil {
		return nil
	}
	return append([]byte(nil), key...)
}

func countKeys(b *bolt.Bucket) int {
	n := 0
	c := b.Cursor()
	for k, _ := c.First(); k != nil; k, _ = c.Next() {
		n++
	}
	return n
}

func buildKey(item Item) string {
	return fmt.Sprintf("%d_%020d_%s", item.Priority, item.Timestamp.UnixNano(), item.ID)
}
