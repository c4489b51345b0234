package provider

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	boltdb "github.com/andrew-solarstorm/bolt-db"
	"github.com/bytedance/sonic"

	"swaprouter/internal/model"
)

// PoolListSnapshot is the last good pool list of one chain and protocol.
type PoolListSnapshot struct {
	ChainID   model.ChainID        `json:"chain_id"`
	Protocol  model.Protocol       `json:"protocol"`
	Source    string               `json:"source"`
	FetchedAt time.Time            `json:"fetched_at"`
	Pools     []model.SubgraphPool `json:"pools"`
}

// SnapshotStore persists last good pool lists across restarts.
type SnapshotStore interface {
	Save(snapshot PoolListSnapshot) error
	Load(chainID model.ChainID, protocol model.Protocol) (PoolListSnapshot, bool, error)
}

func snapshotKey(chainID model.ChainID, protocol model.Protocol) string {
	return fmt.Sprintf("%d/%s", chainID, protocol)
}

// FileSnapshotStore keeps one JSON file per chain and protocol in dir.
type FileSnapshotStore struct {
	dir string
}

func NewFileSnapshotStore(dir string) *FileSnapshotStore {
	return &FileSnapshotStore{dir: dir}
}

func (s *FileSnapshotStore) path(chainID model.ChainID, protocol model.Protocol) string {
	return filepath.Join(s.dir, fmt.Sprintf("pools-%d-%s.json", chainID, protocol))
}

func (s *FileSnapshotStore) Load(chainID model.ChainID, protocol model.Protocol) (PoolListSnapshot, bool, error) {
	path := s.path(chainID, protocol)
	stat, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return PoolListSnapshot{}, false, nil
		}
		return PoolListSnapshot{}, false, fmt.Errorf("stat snapshot: %w", err)
	}
	if stat.IsDir() {
		return PoolListSnapshot{}, false, fmt.Errorf("snapshot path is a directory")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return PoolListSnapshot{}, false, fmt.Errorf("read snapshot: %w", err)
	}
	var snapshot PoolListSnapshot
	if err := sonic.ConfigStd.Unmarshal(data, &snapshot); err != nil {
		return PoolListSnapshot{}, false, fmt.Errorf("parse snapshot: %w", err)
	}
	return snapshot, true, nil
}

func (s *FileSnapshotStore) Save(snapshot PoolListSnapshot) error {
	if s.dir != "" && s.dir != "." {
		if err := os.MkdirAll(s.dir, 0o755); err != nil {
			return fmt.Errorf("create snapshot dir: %w", err)
		}
	}

	data, err := sonic.ConfigStd.Marshal(snapshot)
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}

	path := s.path(snapshot.ChainID, snapshot.Protocol)
	tmpPath := path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0o644); err != nil {
		return fmt.Errorf("write snapshot tmp: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("rename snapshot: %w", err)
	}
	return nil
}

const snapshotBucket = "pool_snapshots"

// BoltSnapshotStore keeps snapshots in a bolt database.
type BoltSnapshotStore struct {
	db *boltdb.BoltDatabase
}

func NewBoltSnapshotStore(path string) (*BoltSnapshotStore, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create snapshot dir: %w", err)
		}
	}
	db := boltdb.NewBoltDatabase(path)
	if db == nil {
		return nil, fmt.Errorf("open snapshot database at %s", path)
	}
	return &BoltSnapshotStore{db: db}, nil
}

func (s *BoltSnapshotStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

func (s *BoltSnapshotStore) Save(snapshot PoolListSnapshot) error {
	data, err := sonic.ConfigStd.Marshal(snapshot)
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}
	return s.db.Set(snapshotBucket, []byte(snapshotKey(snapshot.ChainID, snapshot.Protocol)), data)
}

func (s *BoltSnapshotStore) Load(chainID model.ChainID, protocol model.Protocol) (PoolListSnapshot, bool, error) {
	entries, err := s.db.List(snapshotBucket)
	if err != nil {
		return PoolListSnapshot{}, false, fmt.Errorf("list snapshots: %w", err)
	}
	value, ok := entries[snapshotKey(chainID, protocol)]
	if !ok {
		return PoolListSnapshot{}, false, nil
	}
	var snapshot PoolListSnapshot
	if err := sonic.ConfigStd.Unmarshal(value, &snapshot); err != nil {
		return PoolListSnapshot{}, false, fmt.Errorf("parse snapshot: %w", err)
	}
	return snapshot, true, nil
}
