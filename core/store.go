package core

import (
	"bufio"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/sirupsen/logrus"
)

// Hex renders a Hash the way the pack hex-encodes ids for map keys and logs.
func (h Hash) Hex() string { return hex.EncodeToString(h[:]) }

func hashFromHex(s string) (Hash, error) {
	var h Hash
	b, err := hex.DecodeString(s)
	if err != nil {
		return h, err
	}
	if len(b) != 32 {
		return h, fmt.Errorf("hash: want 32 bytes, got %d", len(b))
	}
	copy(h[:], b)
	return h, nil
}

// versionEntry is one committed delta: the remove set and append map applied
// to reach Version from its parent. []byte fields are base64-encoded by
// encoding/json automatically.
type versionEntry struct {
	Version Hash
	Remove  []string
	Append  map[string][]byte
}

type versionEntryJSON struct {
	Version string            `json:"version"`
	Remove  []string          `json:"remove"`
	Append  map[string][]byte `json:"append"`
}

func (v versionEntry) MarshalJSON() ([]byte, error) {
	return json.Marshal(versionEntryJSON{Version: v.Version.Hex(), Remove: v.Remove, Append: v.Append})
}

func (v *versionEntry) UnmarshalJSON(data []byte) error {
	var j versionEntryJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return err
	}
	h, err := hashFromHex(j.Version)
	if err != nil {
		return err
	}
	v.Version = h
	v.Remove = j.Remove
	v.Append = j.Append
	return nil
}

// Store is the versioned, content-addressed box set. It is a log-structured
// store: a write-ahead log of committed version deltas plus periodic full
// snapshots.
type Store struct {
	mu sync.RWMutex

	dir              string
	walPath          string
	walFile          *os.File
	snapshotInterval int
	logger           *logrus.Logger

	boxes   map[string][]byte // hex(id) -> box bytes, current committed state
	history []versionEntry
}

// StoreConfig configures where a Store persists its WAL and snapshots, and
// how often it snapshots.
type StoreConfig struct {
	Dir              string
	SnapshotInterval int
	Logger           *logrus.Logger
}

// OpenStore opens or creates a store rooted at cfg.Dir, replaying any
// existing snapshot and WAL.
func OpenStore(cfg StoreConfig) (s *Store, err error) {
	if cfg.Logger == nil {
		cfg.Logger = logrus.New()
	}
	if err := os.MkdirAll(cfg.Dir, 0o755); err != nil {
		return nil, storeError("open store", err)
	}

	s = &Store{
		dir:              cfg.Dir,
		walPath:          filepath.Join(cfg.Dir, "boxes.wal"),
		snapshotInterval: cfg.SnapshotInterval,
		logger:           cfg.Logger,
		boxes:            make(map[string][]byte),
		history:          nil,
	}

	if err := s.loadLatestSnapshot(); err != nil {
		return nil, storeError("open store", err)
	}

	wal, err := os.OpenFile(s.walPath, os.O_CREATE|os.O_RDWR|os.O_APPEND, 0o600)
	if err != nil {
		return nil, storeError("open store", fmt.Errorf("open WAL: %w", err))
	}
	defer func() {
		if err != nil {
			_ = wal.Close()
		}
	}()
	s.walFile = wal

	scanner := bufio.NewScanner(wal)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for scanner.Scan() {
		var ve versionEntry
		if err = json.Unmarshal(scanner.Bytes(), &ve); err != nil {
			return nil, storeError("open store", fmt.Errorf("WAL unmarshal: %w", err))
		}
		s.applyEntry(ve)
		s.history = append(s.history, ve)
	}
	if err = scanner.Err(); err != nil {
		return nil, storeError("open store", fmt.Errorf("WAL scan: %w", err))
	}
	return s, nil
}

func (s *Store) applyEntry(ve versionEntry) {
	for _, id := range ve.Remove {
		delete(s.boxes, id)
	}
	for id, b := range ve.Append {
		s.boxes[id] = b
	}
}

func (s *Store) snapshotPath(version Hash) string {
	return filepath.Join(s.dir, fmt.Sprintf("snapshot-%s.json", version.Hex()))
}

func (s *Store) loadLatestSnapshot() error {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	var latest string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if filepath.Ext(e.Name()) == ".json" {
			latest = e.Name() // last by name (hex block id), not necessarily the newest; the full WAL replay in OpenStore brings the state up to date either way
		}
	}
	if latest == "" {
		return nil
	}
	f, err := os.Open(filepath.Join(s.dir, latest))
	if err != nil {
		return err
	}
	defer f.Close()
	var boxes map[string][]byte
	if err := json.NewDecoder(f).Decode(&boxes); err != nil {
		return fmt.Errorf("decode snapshot %s: %w", latest, err)
	}
	s.boxes = boxes
	return nil
}

func (s *Store) writeSnapshot(version Hash) error {
	f, err := os.Create(s.snapshotPath(version))
	if err != nil {
		return err
	}
	defer f.Close()
	return json.NewEncoder(f).Encode(s.boxes)
}

// Get returns the box bytes for id against the latest committed snapshot.
func (s *Store) Get(id Hash) ([]byte, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	b, ok := s.boxes[id.Hex()]
	return b, ok, nil
}

// LastVersionID returns the most recently committed version, if any.
func (s *Store) LastVersionID() (Hash, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if len(s.history) == 0 {
		return Hash{}, false
	}
	return s.history[len(s.history)-1].Version, true
}

// Update atomically commits a new version: remove is the set of box ids
// spent, appended is the set of box ids created (or overwritten), keyed by
// id.
func (s *Store) Update(newVersion Hash, remove []Hash, appended map[Hash][]byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	ve := versionEntry{
		Version: newVersion,
		Remove:  make([]string, len(remove)),
		Append:  make(map[string][]byte, len(appended)),
	}
	for i, id := range remove {
		ve.Remove[i] = id.Hex()
	}
	for id, b := range appended {
		ve.Append[id.Hex()] = b
	}

	data, err := json.Marshal(ve)
	if err != nil {
		return storeError("update", err)
	}
	if _, err := s.walFile.Write(append(data, '\n')); err != nil {
		return storeError("update", fmt.Errorf("write WAL: %w", err))
	}
	if err := s.walFile.Sync(); err != nil {
		return storeError("update", fmt.Errorf("sync WAL: %w", err))
	}

	s.applyEntry(ve)
	s.history = append(s.history, ve)

	if s.snapshotInterval > 0 && len(s.history)%s.snapshotInterval == 0 {
		if err := s.writeSnapshot(newVersion); err != nil {
			s.logger.Warnf("store: snapshot failed: %v", err)
		}
	}

	s.logger.Debugf("store: version %s committed; total versions %d", newVersion.Hex(), len(s.history))
	return nil
}

// Rollback discards all versions strictly after version, rebuilding the live
// box set from the truncated history and rewriting the WAL to match.
func (s *Store) Rollback(version Hash) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx := -1
	for i, ve := range s.history {
		if ve.Version == version {
			idx = i
			break
		}
	}
	if idx == -1 {
		return storeError("rollback", fmt.Errorf("unknown version %s", version.Hex()))
	}

	s.history = s.history[:idx+1]
	s.boxes = make(map[string][]byte)
	for _, ve := range s.history {
		s.applyEntry(ve)
	}

	if err := s.walFile.Truncate(0); err != nil {
		return storeError("rollback", err)
	}
	if _, err := s.walFile.Seek(0, 0); err != nil {
		return storeError("rollback", err)
	}
	for _, ve := range s.history {
		data, err := json.Marshal(ve)
		if err != nil {
			return storeError("rollback", err)
		}
		if _, err := s.walFile.Write(append(data, '\n')); err != nil {
			return storeError("rollback", err)
		}
	}
	if err := s.walFile.Sync(); err != nil {
		return storeError("rollback", err)
	}

	entries, err := os.ReadDir(s.dir)
	if err == nil {
		for _, e := range entries {
			if e.IsDir() || filepath.Ext(e.Name()) != ".json" {
				continue
			}
			if e.Name() != filepath.Base(s.snapshotPath(version)) {
				_ = os.Remove(filepath.Join(s.dir, e.Name()))
			}
		}
	}

	s.logger.Debugf("store: rolled back to version %s", version.Hex())
	return nil
}

// LastTimestamp recovers the current state timestamp from the sentinel key.
func (s *Store) LastTimestamp() (uint64, bool, error) {
	b, ok, err := s.Get(timestampSentinelID())
	if err != nil || !ok {
		return 0, ok, err
	}
	if len(b) != 8 {
		return 0, false, storeError("last timestamp", fmt.Errorf("bad sentinel length %d", len(b)))
	}
	return beToU64(b), true, nil
}

// Close releases the WAL file handle.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.walFile.Close()
}

