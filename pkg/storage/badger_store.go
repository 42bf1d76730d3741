package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	badger "github.com/dgraph-io/badger/v4"
	"github.com/sirupsen/logrus"

	"github.com/Sriram-PR/recipe-scraper/pkg/log"
	"github.com/Sriram-PR/recipe-scraper/pkg/models"
	"github.com/Sriram-PR/recipe-scraper/pkg/utils"
)

const (
	recipeKeyPrefix = "recipe:"   // Prefix for recipe state keys in DB
	imageKeyPrefix  = "img:"      // Prefix for image attempt keys in DB
	ledgerDBDir     = "ledger_db" // Subdirectory name within stateDir for Badger DB files
)

// BadgerStore implements StateLedger using BadgerDB
type BadgerStore struct {
	db       *badger.DB
	log      *logrus.Entry
	keyCount atomic.Int64 // Cached key count for O(1) Count
	now      func() time.Time
}

// NewBadgerStore opens the ledger under stateDir. Existing state is kept so runs can resume.
func NewBadgerStore(ctx context.Context, stateDir string, logger *logrus.Entry) (*BadgerStore, error) {
	store := &BadgerStore{
		log: logger.WithField("component", "ledger"),
		now: time.Now,
	}

	dbPath := filepath.Join(stateDir, ledgerDBDir)
	if err := os.MkdirAll(dbPath, 0755); err != nil {
		return nil, fmt.Errorf("%w: cannot create state directory %s: %w", utils.ErrFilesystem, dbPath, err)
	}

	opts := badger.DefaultOptions(dbPath).
		WithLogger(log.NewBadgerAdapter(logger)).
		WithNumVersionsToKeep(1)

	var err error
	store.db, err = badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to open badger database at %s: %w", utils.ErrDatabase, dbPath, err)
	}

	count, err := store.countKeys(ctx)
	if err != nil {
		store.log.Warnf("Failed to count existing ledger keys: %v", err)
	} else {
		store.keyCount.Store(int64(count))
	}

	store.log.Infof("State ledger opened at %s (%d existing keys)", dbPath, count)
	return store, nil
}

// countKeys performs a one-time full key scan (used only during initialization).
func (s *BadgerStore) countKeys(ctx context.Context) (int, error) {
	count := 0
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			count++
		}
		return nil
	})
	return count, err
}

const maxConflictRetries = 10

// dbUpdate wraps db.Update with a retry loop for BadgerDB transaction conflicts.
// Concurrent workers touching the same slug can hit badger.ErrConflict; these resolve quickly.
func (s *BadgerStore) dbUpdate(fn func(txn *badger.Txn) error) error {
	for i := 0; i < maxConflictRetries; i++ {
		err := s.db.Update(fn)
		if !errors.Is(err, badger.ErrConflict) {
			return err
		}
		s.log.Debugf("BadgerDB transaction conflict (attempt %d/%d), retrying", i+1, maxConflictRetries)
	}
	return fmt.Errorf("%w: transaction conflict not resolved after %d retries", utils.ErrDatabase, maxConflictRetries)
}

// MarkDiscovered implements StateLedger
func (s *BadgerStore) MarkDiscovered(slug, runID string) (bool, error) {
	key := []byte(recipeKeyPrefix + slug)
	entry := models.StateEntry{State: models.StateDiscovered, RunID: runID, UpdatedAt: s.now().UTC()}
	val, err := json.Marshal(entry)
	if err != nil {
		return false, fmt.Errorf("%w: marshal state for '%s': %w", utils.ErrParsing, slug, err)
	}

	added := false
	err = s.dbUpdate(func(txn *badger.Txn) error {
		added = false
		_, errGet := txn.Get(key)
		if errors.Is(errGet, badger.ErrKeyNotFound) {
			if errSet := txn.SetEntry(badger.NewEntry(key, val)); errSet != nil {
				return errSet
			}
			added = true
			return nil
		}
		return errGet
	})
	if err != nil {
		s.log.WithField("slug", slug).Errorf("DB Update error in MarkDiscovered: %v", err)
		return false, fmt.Errorf("%w: marking '%s' discovered: %w", utils.ErrDatabase, slug, err)
	}
	if added {
		s.keyCount.Add(1)
	}
	return added, nil
}

// RecordState implements StateLedger.
// Empty fields of entry keep the previously recorded values.
func (s *BadgerStore) RecordState(slug string, entry models.StateEntry) (models.RecipeState, error) {
	if !entry.State.IsValid() {
		return models.StateUnset, fmt.Errorf("%w: invalid recipe state '%s'", utils.ErrValidation, entry.State)
	}
	key := []byte(recipeKeyPrefix + slug)

	var recorded models.RecipeState
	isNew := false
	err := s.dbUpdate(func(txn *badger.Txn) error {
		isNew = false
		current, err := readStateTxn(txn, key)
		if err != nil {
			return err
		}
		merged := entry
		if current == nil {
			isNew = true
		} else {
			merged.State = current.State.Advance(entry.State)
			if merged.Source == "" {
				merged.Source = current.Source
			}
			if merged.ContentHash == "" {
				merged.ContentHash = current.ContentHash
			}
			if merged.RunID == "" {
				merged.RunID = current.RunID
			}
		}
		if merged.UpdatedAt.IsZero() {
			merged.UpdatedAt = s.now().UTC()
		}
		recorded = merged.State

		val, err := json.Marshal(merged)
		if err != nil {
			return fmt.Errorf("%w: marshal state: %w", utils.ErrParsing, err)
		}
		return txn.SetEntry(badger.NewEntry(key, val))
	})
	if err != nil {
		s.log.WithField("slug", slug).Errorf("DB Update error in RecordState: %v", err)
		return models.StateUnset, fmt.Errorf("%w: recording state for '%s': %w", utils.ErrDatabase, slug, err)
	}
	if isNew {
		s.keyCount.Add(1)
	}
	if recorded != entry.State {
		s.log.WithField("slug", slug).Debugf("Kept state '%s' instead of '%s'", recorded, entry.State)
	}
	return recorded, nil
}

// readStateTxn returns nil when the key is absent. Undecodable values are treated as absent.
func readStateTxn(txn *badger.Txn, key []byte) (*models.StateEntry, error) {
	item, err := txn.Get(key)
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var entry models.StateEntry
	err = item.Value(func(val []byte) error {
		return json.Unmarshal(val, &entry)
	})
	if err != nil {
		return nil, nil
	}
	return &entry, nil
}

// GetState implements StateLedger
func (s *BadgerStore) GetState(slug string) (*models.StateEntry, error) {
	var entry *models.StateEntry
	err := s.db.View(func(txn *badger.Txn) error {
		var errRead error
		entry, errRead = readStateTxn(txn, []byte(recipeKeyPrefix+slug))
		return errRead
	})
	if err != nil {
		return nil, fmt.Errorf("%w: reading state for '%s': %w", utils.ErrDatabase, slug, err)
	}
	return entry, nil
}

// RecordImage implements StateLedger
func (s *BadgerStore) RecordImage(slug string, entry *models.ImageEntry) error {
	key := []byte(imageKeyPrefix + slug)
	val, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("%w: marshal image entry for '%s': %w", utils.ErrParsing, slug, err)
	}

	isNew := false
	err = s.dbUpdate(func(txn *badger.Txn) error {
		_, errGet := txn.Get(key)
		isNew = errors.Is(errGet, badger.ErrKeyNotFound)
		return txn.SetEntry(badger.NewEntry(key, val))
	})
	if err != nil {
		s.log.WithField("slug", slug).Errorf("DB Update error in RecordImage: %v", err)
		return fmt.Errorf("%w: recording image for '%s': %w", utils.ErrDatabase, slug, err)
	}
	if isNew {
		s.keyCount.Add(1)
	}
	return nil
}

// GetImage implements StateLedger
func (s *BadgerStore) GetImage(slug string) (*models.ImageEntry, error) {
	var entry *models.ImageEntry
	err := s.db.View(func(txn *badger.Txn) error {
		item, errGet := txn.Get([]byte(imageKeyPrefix + slug))
		if errors.Is(errGet, badger.ErrKeyNotFound) {
			return nil
		}
		if errGet != nil {
			return errGet
		}
		return item.Value(func(val []byte) error {
			var decoded models.ImageEntry
			if errJSON := json.Unmarshal(val, &decoded); errJSON != nil {
				s.log.Warnf("Failed to unmarshal image entry for '%s': %v. Treating as absent.", slug, errJSON)
				return nil
			}
			entry = &decoded
			return nil
		})
	})
	if err != nil {
		return nil, fmt.Errorf("%w: reading image entry for '%s': %w", utils.ErrDatabase, slug, err)
	}
	return entry, nil
}

// CountByState implements StateLedger
func (s *BadgerStore) CountByState(ctx context.Context) (map[models.RecipeState]int, error) {
	counts := make(map[models.RecipeState]int)
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(recipeKeyPrefix)
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			var entry models.StateEntry
			if err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &entry)
			}); err != nil {
				s.log.Warnf("Skipping undecodable ledger entry '%s': %v", it.Item().Key(), err)
				continue
			}
			counts[entry.State]++
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: scanning ledger: %w", utils.ErrDatabase, err)
	}
	return counts, nil
}

// Count implements StateLedger.
// Returns the cached key count maintained by atomic increments on writes.
func (s *BadgerStore) Count() int {
	return int(s.keyCount.Load())
}

// StartGC runs RunGC in the background. The returned stop function cancels it and waits
// for an in-flight value-log pass to finish, so it must be called before Close.
func (s *BadgerStore) StartGC(ctx context.Context, interval time.Duration) (stop func()) {
	gcCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	go func() {
		defer close(done)
		s.RunGC(gcCtx, interval)
	}()
	var once sync.Once
	return func() {
		once.Do(func() {
			cancel()
			<-done
		})
	}
}

// RunGC runs BadgerDB's garbage collection periodically
func (s *BadgerStore) RunGC(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = 10 * time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if s.db == nil || s.db.IsClosed() {
				continue
			}
			var err error
			for err == nil {
				err = s.db.RunValueLogGC(0.5)
			}
			if !errors.Is(err, badger.ErrNoRewrite) {
				s.log.Errorf("BadgerDB GC error: %v", err)
			}
		case <-ctx.Done():
			s.log.Debugf("Stopping ledger GC: %v", ctx.Err())
			return
		}
	}
}

// Close implements StateLedger
func (s *BadgerStore) Close() error {
	if s.db == nil || s.db.IsClosed() {
		return nil
	}
	if err := s.db.Close(); err != nil {
		s.log.Errorf("Error closing ledger: %v", err)
		return err
	}
	s.log.Debug("State ledger closed.")
	return nil
}
