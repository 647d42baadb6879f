package persistence

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"hash/fnv"
	"slices"
	"time"

	"github.com/dgraph-io/badger/v3"
	"github.com/jxskiss/base62"

	"grid-optimizer/internal/models"
)

const runPrefix = "run/"

// badgerRepository is the BadgerDB implementation of the RunRepository.
type badgerRepository struct {
	db *badger.DB
}

// NewBadgerRepository opens a repository stored at dbPath.
// An empty path opens an in-memory database whose contents are lost on Close.
func NewBadgerRepository(dbPath string) (RunRepository, error) {
	opts := badger.DefaultOptions(dbPath)
	if dbPath == "" {
		opts = badger.DefaultOptions("").WithInMemory(true)
	}
	// Badger's own logging is disabled to keep our app's logs clean.
	// Errors will still be returned from DB operations.
	opts.Logger = nil

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger at %q: %w", dbPath, err)
	}
	return &badgerRepository{db: db}, nil
}

func runKey(id string) []byte {
	return []byte(runPrefix + id)
}

// SaveRun marshals the run into JSON and saves it under run/<id>.
func (r *badgerRepository) SaveRun(run *models.OptimizationRun) error {
	if run == nil || run.ID == "" {
		return errors.New("run must have an id")
	}
	data, err := json.Marshal(run)
	if err != nil {
		return err
	}

	return r.db.Update(func(txn *badger.Txn) error {
		return txn.Set(runKey(run.ID), data)
	})
}

// LoadRun loads a run by ID.
// If the key is not found, it returns (nil, nil) to indicate no run is present.
func (r *badgerRepository) LoadRun(id string) (*models.OptimizationRun, error) {
	var run models.OptimizationRun

	err := r.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(runKey(id))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			if len(val) == 0 {
				return errors.New("run value is empty in database")
			}
			return json.Unmarshal(val, &run)
		})
	})

	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &run, nil
}

// ListRuns iterates over the run/ prefix and returns runs ordered by creation time, newest first.
func (r *badgerRepository) ListRuns() ([]*models.OptimizationRun, error) {
	var runs []*models.OptimizationRun

	err := r.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(runPrefix)
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			err := it.Item().Value(func(val []byte) error {
				var run models.OptimizationRun
				if err := json.Unmarshal(val, &run); err != nil {
					return fmt.Errorf("decode %s: %w", it.Item().Key(), err)
				}
				runs = append(runs, &run)
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	slices.SortStableFunc(runs, func(a, b *models.OptimizationRun) int {
		return b.CreatedAt.Compare(a.CreatedAt)
	})
	return runs, nil
}

// Close gracefully closes the connection to the database.
func (r *badgerRepository) Close() error {
	return r.db.Close()
}

// NewRunID 生成运行编号：UTC 时间前缀加上交易代码和纳秒时间的 base62 指纹
func NewRunID(symbol string, now time.Time) string {
	h := fnv.New64a()
	h.Write([]byte(symbol))
	var nanos [8]byte
	binary.BigEndian.PutUint64(nanos[:], uint64(now.UnixNano()))
	h.Write(nanos[:])

	return now.UTC().Format("20060102T150405") + "-" + base62.EncodeToString(h.Sum(nil))
}
