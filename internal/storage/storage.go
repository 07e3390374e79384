// Package storage provides the persistent prediction log of the income
// prediction service. It uses BoltDB as the underlying storage engine and
// keeps every served prediction, with its per-feature attribution, so that
// it can be looked up by ID or replayed over a time range.
package storage

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"go.etcd.io/bbolt"

	"income-predictor/internal/pipeline"
)

const (
	predictionsBucket = "predictions"    // Results keyed by "<unix-nanos>_<id>"
	idsBucket         = "prediction_ids" // Prediction ID to predictions key
)

// DBFile is the database file name created inside the data directory.
const DBFile = "income-predictions.db"

// ErrNotFound is returned when no prediction has the requested ID.
var ErrNotFound = errors.New("prediction not found")

// Store provides persistent storage for predictions using BoltDB.
type Store struct {
	db *bbolt.DB
}

// New opens or creates the prediction log inside dataPath.
func New(dataPath string) (*Store, error) {
	dbPath := filepath.Join(dataPath, DBFile)

	db, err := bbolt.Open(dbPath, 0o600, &bbolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists([]byte(predictionsBucket)); err != nil {
			return fmt.Errorf("create predictions bucket: %w", err)
		}
		if _, err := tx.CreateBucketIfNotExists([]byte(idsBucket)); err != nil {
			return fmt.Errorf("create prediction ids bucket: %w", err)
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	return &Store{db: db}, nil
}

// Close closes the database connection gracefully.
func (s *Store) Close() error {
	if s.db != nil {
		err := s.db.Close()
		s.db = nil
		return err
	}
	return nil
}

func predictionKey(ts time.Time, id string) []byte {
	return []byte(fmt.Sprintf("%020d_%s", ts.UnixNano(), id))
}

// StorePrediction stores res in the predictions bucket and indexes it by ID.
func (s *Store) StorePrediction(res *pipeline.Result) error {
	if res == nil || res.ID == "" {
		return fmt.Errorf("prediction without id")
	}

	data, err := json.Marshal(res)
	if err != nil {
		return fmt.Errorf("marshal prediction: %w", err)
	}
	key := predictionKey(res.CreatedAt, res.ID)

	return s.db.Update(func(tx *bbolt.Tx) error {
		if err := tx.Bucket([]byte(predictionsBucket)).Put(key, data); err != nil {
			return err
		}
		return tx.Bucket([]byte(idsBucket)).Put([]byte(res.ID), key)
	})
}

// GetPrediction returns the prediction with the given ID.
func (s *Store) GetPrediction(id string) (*pipeline.Result, error) {
	var res pipeline.Result
	err := s.db.View(func(tx *bbolt.Tx) error {
		key := tx.Bucket([]byte(idsBucket)).Get([]byte(id))
		if key == nil {
			return ErrNotFound
		}
		data := tx.Bucket([]byte(predictionsBucket)).Get(key)
		if data == nil {
			return ErrNotFound
		}
		return json.Unmarshal(data, &res)
	})
	if err != nil {
		return nil, err
	}
	return &res, nil
}

// GetPredictionsInRange returns the predictions created within [start, end],
// oldest first. Malformed entries are skipped.
func (s *Store) GetPredictionsInRange(start, end time.Time) ([]*pipeline.Result, error) {
	var out []*pipeline.Result

	err := s.db.View(func(tx *bbolt.Tx) error {
		c := tx.Bucket([]byte(predictionsBucket)).Cursor()

		startKey := []byte(fmt.Sprintf("%020d", start.UnixNano()))
		endKey := []byte(fmt.Sprintf("%020d", end.UnixNano()+1))

		for k, v := c.Seek(startKey); k != nil && bytes.Compare(k, endKey) < 0; k, v = c.Next() {
			var res pipeline.Result
			if err := json.Unmarshal(v, &res); err != nil {
				continue
			}
			out = append(out, &res)
		}
		return nil
	})

	return out, err
}

// Count returns the number of stored predictions.
func (s *Store) Count() (int, error) {
	var n int
	err := s.db.View(func(tx *bbolt.Tx) error {
		n = tx.Bucket([]byte(predictionsBucket)).Stats().KeyN
		return nil
	})
	return n, err
}
