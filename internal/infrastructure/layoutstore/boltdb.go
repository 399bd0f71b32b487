// Package layoutstore persists designer page layouts in a local BoltDB file, one bucket per
// guild.
package layoutstore

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/fastygo/guild-designer/domain"
	"github.com/fastygo/guild-designer/repository"
)

const rootBucket = "layouts"

// Store implements repository.LayoutRepository on top of BoltDB.
type Store struct {
	db *bolt.DB
}

var _ repository.LayoutRepository = (*Store)(nil)

// Open initializes the BoltDB file and ensures the root bucket exists.
func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, err
	}

	if err := db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(rootBucket))
		return err
	}); err != nil {
		db.Close()
		return nil, err
	}
	return &Store{db: db}, nil
}

func (s *Store) Get(_ context.Context, guildID, page string) (*domain.Layout, error) {
	if s == nil || s.db == nil {
		return nil, bolt.ErrDatabaseNotOpen
	}

	var layout *domain.Layout
	err := s.db.View(func(tx *bolt.Tx) error {
		guild := tx.Bucket([]byte(rootBucket)).Bucket([]byte(guildID))
		if guild == nil {
			return domain.ErrLayoutNotFound
		}
		raw := guild.Get([]byte(page))
		if raw == nil {
			return domain.ErrLayoutNotFound
		}
		var stored domain.Layout
		if err := json.Unmarshal(raw, &stored); err != nil {
			return err
		}
		layout = &stored
		return nil
	})
	return layout, err
}

func (s *Store) Put(_ context.Context, layout *domain.Layout) error {
	if s == nil || s.db == nil {
		return bolt.ErrDatabaseNotOpen
	}
	if layout == nil || layout.GuildID == "" || layout.Page == "" {
		return domain.ErrInvalidPayload
	}
	if layout.UpdatedAt.IsZero() {
		layout.UpdatedAt = time.Now().UTC()
	}
	payload, err := json.Marshal(layout)
	if err != nil {
		return err
	}

	return s.db.Update(func(tx *bolt.Tx) error {
		guild, err := tx.Bucket([]byte(rootBucket)).CreateBucketIfNotExists([]byte(layout.GuildID))
		if err != nil {
			return err
		}
		return guild.Put([]byte(layout.Page), payload)
	})
}

func (s *Store) Delete(_ context.Context, guildID, page string) error {
	if s == nil || s.db == nil {
		return bolt.ErrDatabaseNotOpen
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		guild := tx.Bucket([]byte(rootBucket)).Bucket([]byte(guildID))
		if guild == nil || guild.Get([]byte(page)) == nil {
			return domain.ErrLayoutNotFound
		}
		return guild.Delete([]byte(page))
	})
}

// Size returns the number of stored layouts across all guilds.
func (s *Store) Size() (int, error) {
	if s == nil || s.db == nil {
		return 0, bolt.ErrDatabaseNotOpen
	}
	var count int
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket([]byte(rootBucket)).ForEachBucket(func(k []byte) error {
			count += tx.Bucket([]byte(rootBucket)).Bucket(k).Stats().KeyN
			return nil
		})
	})
	return count, err
}

// Close closes the Bolt database.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}
