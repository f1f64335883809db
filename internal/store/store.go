// Package store persists session snapshots as JSON files with
// checksummed, atomic writes.
package store

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

var (
	ErrNotFound         = errors.New("snapshot not found")
	ErrChecksumMismatch = errors.New("snapshot checksum mismatch")
	ErrSnapshotStale    = errors.New("snapshot too old")
	ErrCorrupt          = errors.New("snapshot structurally invalid")
)

// PlayerSnapshot is one player's persisted state.
type PlayerSnapshot struct {
	PlayerID    string `json:"player_id"`
	Seat        int    `json:"seat"`
	Stack       int    `json:"stack"`
	BuyIn       int    `json:"buy_in"`
	Profit      int    `json:"profit"`
	HandsPlayed int    `json:"hands_played"`
	HandsWon    int    `json:"hands_won"`
	Active      bool   `json:"active"`
	SittingOut  bool   `json:"sitting_out,omitempty"`
}

// Snapshot is a session's persisted state between hands. Hands in
// flight are never persisted; recovery resumes at the next deal.
type Snapshot struct {
	SessionID  string           `json:"session_id"`
	TableID    string           `json:"table_id"`
	Status     string           `json:"status"`
	DealerSeat int              `json:"dealer_seat"`
	TotalHands int              `json:"total_hands"`
	TotalPot   int              `json:"total_pot"`
	TotalRake  int              `json:"total_rake"`
	Players    []PlayerSnapshot `json:"players"`
	SavedAt    time.Time        `json:"saved_at"`
	Checksum   string           `json:"checksum,omitempty"`
}

// validate checks structural invariants independent of the checksum.
func (s *Snapshot) validate() error {
	if s.SessionID == "" {
		return fmt.Errorf("%w: empty session id", ErrCorrupt)
	}
	seats := make(map[int]bool)
	for _, p := range s.Players {
		if p.PlayerID == "" {
			return fmt.Errorf("%w: player with empty id", ErrCorrupt)
		}
		if p.Stack < 0 {
			return fmt.Errorf("%w: player %s has negative stack", ErrCorrupt, p.PlayerID)
		}
		if p.Active {
			if seats[p.Seat] {
				return fmt.Errorf("%w: seat %d occupied twice", ErrCorrupt, p.Seat)
			}
			seats[p.Seat] = true
		}
	}
	return nil
}

// checksum hashes the snapshot's canonical JSON with the checksum
// field cleared.
func (s *Snapshot) checksum() (string, error) {
	clone := *s
	clone.Checksum = ""
	data, err := json.Marshal(&clone)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}

// Store persists and recovers session snapshots.
type Store interface {
	Save(snap *Snapshot) error
	Load(sessionID string) (*Snapshot, error)
	List() ([]string, error)
	Delete(sessionID string) error
}

// FileStore keeps one JSON file per session under a directory. Writes
// go through a temp file and rename so readers never observe a partial
// snapshot.
type FileStore struct {
	dir    string
	maxAge time.Duration // zero disables the age check
	now    func() time.Time
}

// NewFileStore creates the directory if needed. Snapshots older than
// maxAge are rejected on load; pass zero to accept any age.
func NewFileStore(dir string, maxAge time.Duration) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating store dir: %w", err)
	}
	return &FileStore{dir: dir, maxAge: maxAge, now: time.Now}, nil
}

func (fs *FileStore) path(sessionID string) string {
	return filepath.Join(fs.dir, sessionID+".json")
}

// Save writes the snapshot, stamping SavedAt and the checksum.
func (fs *FileStore) Save(snap *Snapshot) error {
	if err := snap.validate(); err != nil {
		return err
	}
	snap.SavedAt = fs.now()
	sum, err := snap.checksum()
	if err != nil {
		return fmt.Errorf("checksumming snapshot: %w", err)
	}
	snap.Checksum = sum

	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding snapshot: %w", err)
	}
	if err := writeFileAtomic(fs.path(snap.SessionID), data, 0o644); err != nil {
		return fmt.Errorf("writing snapshot %s: %w", snap.SessionID, err)
	}
	return nil
}

// Load reads and verifies a snapshot. Checksum, age, and structure are
// all checked; a failing snapshot is returned alongside the error so
// callers can inspect it.
func (fs *FileStore) Load(sessionID string) (*Snapshot, error) {
	data, err := os.ReadFile(fs.path(sessionID))
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, sessionID)
	}
	if err != nil {
		return nil, fmt.Errorf("reading snapshot %s: %w", sessionID, err)
	}

	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}

	want, err := snap.checksum()
	if err != nil {
		return &snap, fmt.Errorf("checksumming snapshot: %w", err)
	}
	if snap.Checksum != want {
		return &snap, fmt.Errorf("%w: %s", ErrChecksumMismatch, sessionID)
	}
	if err := snap.validate(); err != nil {
		return &snap, err
	}
	if fs.maxAge > 0 && fs.now().Sub(snap.SavedAt) > fs.maxAge {
		return &snap, fmt.Errorf("%w: saved %s ago", ErrSnapshotStale, fs.now().Sub(snap.SavedAt).Round(time.Second))
	}
	return &snap, nil
}

// List returns the session ids with a snapshot on disk, sorted.
func (fs *FileStore) List() ([]string, error) {
	entries, err := os.ReadDir(fs.dir)
	if err != nil {
		return nil, fmt.Errorf("listing store dir: %w", err)
	}
	var ids []string
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, ".json") {
			continue
		}
		ids = append(ids, strings.TrimSuffix(name, ".json"))
	}
	sort.Strings(ids)
	return ids, nil
}

// Delete removes a session's snapshot. Missing files are not an error.
func (fs *FileStore) Delete(sessionID string) error {
	err := os.Remove(fs.path(sessionID))
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	return err
}

// writeFileAtomic writes through a temp file in the same directory and
// renames it into place. Readers see either no file or the whole file,
// never a partial write.
func writeFileAtomic(filename string, data []byte, perm os.FileMode) error {
	dir := filepath.Dir(filename)
	base := filepath.Base(filename)

	tmp, err := os.CreateTemp(dir, base+".tmp.*")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	tmpPath := tmp.Name()
	renamed := false
	defer func() {
		if tmp != nil {
			tmp.Close()
		}
		if !renamed {
			os.Remove(tmpPath)
		}
	}()

	if _, err := tmp.Write(data); err != nil {
		return fmt.Errorf("writing temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		return fmt.Errorf("syncing temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("closing temp file: %w", err)
	}
	tmp = nil

	if err := os.Chmod(tmpPath, perm); err != nil {
		return fmt.Errorf("setting permissions: %w", err)
	}
	if err := os.Rename(tmpPath, filename); err != nil {
		return fmt.Errorf("renaming temp file: %w", err)
	}
	renamed = true
	return nil
}
