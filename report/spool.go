package report

import (
	"context"
	"fmt"
	"time"

	bolt "go.etcd.io/bbolt"
)

var (
	bucketAggregate = []byte("aggregate")
	bucketForensic  = []byte("forensic")
)

func bucketFor(k Kind) ([]byte, error) {
	switch k {
	case KindAggregate:
		return bucketAggregate, nil
	case KindForensic:
		return bucketForensic, nil
	}
	return nil, fmt.Errorf("report: unknown entry kind %d", k)
}

// Spool stores entries in a bbolt database until the report generator
// drains them. Entries are MessagePack encoded and keyed by ID, so they are
// drained in submission order.
type Spool struct {
	db *bolt.DB
}

// OpenSpool opens or creates the spool database at path.
func OpenSpool(path string) (*Spool, error) {
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: 5 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("opening report spool: %w", err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		for _, name := range [][]byte{bucketAggregate, bucketForensic} {
			if _, err := tx.CreateBucketIfNotExists(name); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("initializing report spool: %w", err)
	}
	return &Spool{db: db}, nil
}

// Close closes the database.
func (s *Spool) Close() error {
	return s.db.Close()
}

// Store writes e to the spool, assigning an ID if it has none. Its
// signature matches HandlerFunc so a Spool can sit behind a Queue.
func (s *Spool) Store(_ context.Context, e *Entry) error {
	name, err := bucketFor(e.Kind)
	if err != nil {
		return err
	}
	if e.ID == "" {
		t := e.Time
		if t.IsZero() {
			t = time.Now()
		}
		e.ID = NewID(t)
	}
	buf, err := e.MarshalMsg(nil)
	if err != nil {
		return fmt.Errorf("encoding report entry: %w", err)
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(name).Put([]byte(e.ID), buf)
	})
}

// Len returns the number of stored entries of kind.
func (s *Spool) Len(kind Kind) (int, error) {
	name, err := bucketFor(kind)
	if err != nil {
		return 0, err
	}
	var n int
	err = s.db.View(func(tx *bolt.Tx) error {
		n = tx.Bucket(name).Stats().KeyN
		return nil
	})
	return n, err
}

// Drain passes up to limit entries of kind to fn, oldest first, and removes
// each entry fn accepted. It stops at the first error from fn, which is
// returned along with the number of entries removed. A limit <= 0 drains
// everything.
func (s *Spool) Drain(ctx context.Context, kind Kind, limit int, fn func(*Entry) error) (int, error) {
	name, err := bucketFor(kind)
	if err != nil {
		return 0, err
	}

	var entries []*Entry
	err = s.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket(name).Cursor()
		for k, v := c.First(); k != nil; k, v = c.Next() {
			if limit > 0 && len(entries) >= limit {
				break
			}
			e := &Entry{}
			if _, err := e.UnmarshalMsg(v); err != nil {
				return fmt.Errorf("decoding report entry %s: %w", k, err)
			}
			entries = append(entries, e)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	var done [][]byte
	var fnErr error
	for _, e := range entries {
		if err := ctx.Err(); err != nil {
			fnErr = err
			break
		}
		if err := fn(e); err != nil {
			fnErr = err
			break
		}
		done = append(done, []byte(e.ID))
	}

	if len(done) > 0 {
		err = s.db.Update(func(tx *bolt.Tx) error {
			b := tx.Bucket(name)
			for _, k := range done {
				if err := b.Delete(k); err != nil {
					return err
				}
			}
			return nil
		})
		if err != nil {
			return 0, fmt.Errorf("removing drained report entries: %w", err)
		}
	}
	return len(done), fnErr
}
