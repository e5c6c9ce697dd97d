// Package storage provides the persistent audit trail for the
// inference service. It uses BoltDB as the underlying storage engine
// to record scored inputs together with their predictions and
// per-class probabilities, so batch exports can be reconstructed and
// front-ends can replay recent activity.
//
// Writes are additive side effects of prediction calls and never block
// returning results to the caller.
package storage

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.etcd.io/bbolt"
)

const predictionsBucket = "predictions"

// AuditRecord is one scored row: the raw input, the winning class, and
// the full probability distribution keyed by class name.
type AuditRecord struct {
	Timestamp     time.Time          `json:"timestamp"`
	Source        string             `json:"source"` // "point" or "batch"
	BatchID       string             `json:"batch_id,omitempty"`
	Input         map[string]float64 `json:"input"`
	Prediction    string             `json:"prediction"`
	Probabilities map[string]float64 `json:"probabilities"`
	Confidence    float64            `json:"confidence"`
	Tier          string             `json:"tier"`
	Degraded      bool               `json:"degraded,omitempty"`
}

// Store provides persistent storage for prediction audit records.
type Store struct {
	db *bbolt.DB
}

// New opens (creating if needed) the audit database under dataPath.
func New(dataPath string) (*Store, error) {
	if err := os.MkdirAll(dataPath, 0o755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}
	dbPath := filepath.Join(dataPath, "exoclass-audit.db")

	db, err := bbolt.Open(dbPath, 0o600, &bbolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open audit database: %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists([]byte(predictionsBucket)); err != nil {
			return fmt.Errorf("create predictions bucket: %w", err)
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	return &Store{db: db}, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// StorePrediction appends one audit record. Keys are nanosecond
// timestamps plus a sequence number, so records iterate in insertion
// order and concurrent writers never collide.
func (s *Store) StorePrediction(rec AuditRecord) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket([]byte(predictionsBucket))

		data, err := json.Marshal(rec)
		if err != nil {
			return fmt.Errorf("marshal audit record: %w", err)
		}

		seq, err := b.NextSequence()
		if err != nil {
			return fmt.Errorf("audit sequence: %w", err)
		}
		key := fmt.Sprintf("%020d_%012d", rec.Timestamp.UnixNano(), seq)
		return b.Put([]byte(key), data)
	})
}

// StoreBatch appends every record of a batch in one transaction.
func (s *Store) StoreBatch(records []AuditRecord) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket([]byte(predictionsBucket))
		for i := range records {
			data, err := json.Marshal(records[i])
			if err != nil {
				return fmt.Errorf("marshal audit record %d: %w", i, err)
			}
			seq, err := b.NextSequence()
			if err != nil {
				return fmt.Errorf("audit sequence: %w", err)
			}
			key := fmt.Sprintf("%020d_%012d", records[i].Timestamp.UnixNano(), seq)
			if err := b.Put([]byte(key), data); err != nil {
				return err
			}
		}
		return nil
	})
}

// RecentPredictions returns up to limit of the newest audit records,
// newest first.
func (s *Store) RecentPredictions(limit int) ([]AuditRecord, error) {
	var records []AuditRecord
	err := s.db.View(func(tx *bbolt.Tx) error {
		c := tx.Bucket([]byte(predictionsBucket)).Cursor()
		for k, v := c.Last(); k != nil && len(records) < limit; k, v = c.Prev() {
			var rec AuditRecord
			if err := json.Unmarshal(v, &rec); err != nil {
				return fmt.Errorf("unmarshal audit record: %w", err)
			}
			records = append(records, rec)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return records, nil
}

// PredictionsSince returns records at or after the given time, oldest
// first, for export and dashboard replay.
func (s *Store) PredictionsSince(since time.Time) ([]AuditRecord, error) {
	var records []AuditRecord
	prefix := fmt.Sprintf("%020d", since.UnixNano())
	err := s.db.View(func(tx *bbolt.Tx) error {
		c := tx.Bucket([]byte(predictionsBucket)).Cursor()
		for k, v := c.Seek([]byte(prefix)); k != nil; k, v = c.Next() {
			var rec AuditRecord
			if err := json.Unmarshal(v, &rec); err != nil {
				return fmt.Errorf("unmarshal audit record: %w", err)
			}
			records = append(records, rec)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return records, nil
}
