package importer

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	bolt "go.etcd.io/bbolt"
)

const bucketSeen = "seen"

// SeenIndex remembers which feed references were ingested per bank
// account, so re-dropping an exported file does not re-record it.
type SeenIndex struct {
	db  *bolt.DB
	now func() time.Time
}

// SeenEntry is what the index stores for a reference.
type SeenEntry struct {
	TransactionID string    `json:"transaction_id,omitempty"`
	SeenAt        time.Time `json:"seen_at"`
}

// OpenIndex opens or creates the index database at path.
func OpenIndex(path string) (*SeenIndex, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("creating index dir: %w", err)
	}
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("opening import index: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists([]byte(bucketSeen)); err != nil {
			return fmt.Errorf("creating bucket %s: %w", bucketSeen, err)
		}
		return nil
	})
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return &SeenIndex{db: db, now: time.Now}, nil
}

// Close closes the database.
func (s *SeenIndex) Close() error {
	return s.db.Close()
}

func seenKey(bankAccountID, ref string) []byte {
	return []byte(bankAccountID + "\x00" + ref)
}

// Seen reports whether ref was ingested for the bank account.
func (s *SeenIndex) Seen(bankAccountID, ref string) (bool, error) {
	var found bool
	err := s.db.View(func(tx *bolt.Tx) error {
		found = tx.Bucket([]byte(bucketSeen)).Get(seenKey(bankAccountID, ref)) != nil
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("reading import index: %w", err)
	}
	return found, nil
}

// Mark records ref as ingested. Marking twice keeps the first entry.
func (s *SeenIndex) Mark(bankAccountID, ref, txnID string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(bucketSeen))
		key := seenKey(bankAccountID, ref)
		if b.Get(key) != nil {
			return nil
		}
		data, err := json.Marshal(SeenEntry{TransactionID: txnID, SeenAt: s.now().UTC()})
		if err != nil {
			return fmt.Errorf("marshaling index entry: %w", err)
		}
		return b.Put(key, data)
	})
}

// Lookup returns the stored entry for ref.
func (s *SeenIndex) Lookup(bankAccountID, ref string) (SeenEntry, bool, error) {
	var (
		e     SeenEntry
		found bool
	)
	err := s.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket([]byte(bucketSeen)).Get(seenKey(bankAccountID, ref))
		if data == nil {
			return nil
		}
		found = true
		return json.Unmarshal(data, &e)
	})
	if err != nil {
		return SeenEntry{}, false, fmt.Errorf("reading import index: %w", err)
	}
	return e, found, nil
}

// Count returns how many references the index holds.
func (s *SeenIndex) Count() (int, error) {
	var n int
	err := s.db.View(func(tx *bolt.Tx) error {
		n = tx.Bucket([]byte(bucketSeen)).Stats().KeyN
		return nil
	})
	return n, err
}
