package shmem

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"time"

	"go.etcd.io/bbolt"
)

var regionsBucket = []byte("regions")

// RegionMeta is the management segment's catalog entry for one live
// unmanaged region (§4.7: "recording the live region catalog and
// refcount-segment directory").
type RegionMeta struct {
	ID        uint16    `json:"id"`
	Size      int       `json:"size"`
	QueueName string    `json:"queue_name"`
	Created   time.Time `json:"created"`
}

// ManagementDB is the bbolt-backed management segment. The owning device
// opens it read-write; the monitor opens the same file read-only, giving
// it a consistent snapshot without contending for the allocator's lock.
type ManagementDB struct {
	db *bbolt.DB
}

// OpenManagementDB opens path read-write, creating the regions bucket if
// this is the first device in the session.
func OpenManagementDB(path string) (*ManagementDB, error) {
	db, err := bbolt.Open(path, 0644, &bbolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("shmem: open management db %s: %w", path, err)
	}
	err = db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(regionsBucket)
		return err
	})
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return &ManagementDB{db: db}, nil
}

// OpenManagementDBReadOnly opens path read-only, the mode the monitor uses
// (§4.7's "observe bookkeeping without holding the allocator lock").
func OpenManagementDBReadOnly(path string) (*ManagementDB, error) {
	db, err := bbolt.Open(path, 0444, &bbolt.Options{ReadOnly: true, Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("shmem: open management db %s read-only: %w", path, err)
	}
	return &ManagementDB{db: db}, nil
}

func (m *ManagementDB) Close() error { return m.db.Close() }

// RegisterRegion records meta under its id.
func (m *ManagementDB) RegisterRegion(meta RegionMeta) error {
	buf, err := json.Marshal(meta)
	if err != nil {
		return err
	}
	return m.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(regionsBucket).Put(regionKey(meta.ID), buf)
	})
}

// RemoveRegion deletes id's catalog entry.
func (m *ManagementDB) RemoveRegion(id uint16) error {
	return m.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(regionsBucket).Delete(regionKey(id))
	})
}

// Regions lists every live region in the catalog, the input the monitor's
// cleanup pass walks on a heartbeat timeout.
func (m *ManagementDB) Regions() ([]RegionMeta, error) {
	var metas []RegionMeta
	err := m.db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket(regionsBucket)
		if b == nil {
			return nil
		}
		return b.ForEach(func(_, v []byte) error {
			var rm RegionMeta
			if err := json.Unmarshal(v, &rm); err != nil {
				return err
			}
			metas = append(metas, rm)
			return nil
		})
	})
	return metas, err
}

func regionKey(id uint16) []byte {
	buf := make([]byte, 2)
	binary.BigEndian.PutUint16(buf, id)
	return buf
}
