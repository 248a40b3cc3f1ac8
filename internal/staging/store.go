package staging

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

const (
	draftFile  = "draft.json"
	historyDir = "history"
)

var (
	ErrNoDraft       = errors.New("no draft session")
	ErrSchemaVersion = errors.New("unsupported draft schema version")
)

// FileStore persists the in-flight session as JSON under Dir.
// Completed sessions move to Dir/history/<id>.json.
type FileStore struct {
	Dir string
}

func NewFileStore(dir string) *FileStore {
	return &FileStore{Dir: dir}
}

func (fs *FileStore) draftPath() string {
	return filepath.Join(fs.Dir, draftFile)
}

// Save writes the session as the current draft, replacing the file atomically.
func (fs *FileStore) Save(s *Session) error {
	s.SchemaVersion = SchemaVersion
	return writeJSON(fs.draftPath(), s)
}

// Load reads the current draft. It returns ErrNoDraft when none exists.
func (fs *FileStore) Load() (*Session, error) {
	s, err := readSession(fs.draftPath())
	if errors.Is(err, os.ErrNotExist) {
		return nil, ErrNoDraft
	}
	return s, err
}

// Discard removes the current draft if present.
func (fs *FileStore) Discard() error {
	if err := os.Remove(fs.draftPath()); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("discard draft: %w", err)
	}
	return nil
}

// Archive moves a completed session into history and removes the draft.
func (fs *FileStore) Archive(s *Session) error {
	if s.Status != SessionCompleted {
		return fmt.Errorf("session %s is %s, only completed sessions can be archived", s.ID, s.Status)
	}
	s.SchemaVersion = SchemaVersion
	if err := writeJSON(filepath.Join(fs.Dir, historyDir, s.ID+".json"), s); err != nil {
		return err
	}
	return fs.Discard()
}

// History lists archived session ids, oldest first.
func (fs *FileStore) History() ([]string, error) {
	entries, err := os.ReadDir(filepath.Join(fs.Dir, historyDir))
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var ids []string
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".json") {
			continue
		}
		ids = append(ids, strings.TrimSuffix(e.Name(), ".json"))
	}
	sort.Strings(ids)
	return ids, nil
}

// LoadArchived reads one completed session from history.
func (fs *FileStore) LoadArchived(id string) (*Session, error) {
	s, err := readSession(filepath.Join(fs.Dir, historyDir, id+".json"))
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("archived session %s not found", id)
	}
	return s, err
}

func writeJSON(path string, v any) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create %s: %w", filepath.Dir(path), err)
	}
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal session: %w", err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("replace %s: %w", path, err)
	}
	return nil
}

func readSession(path string) (*Session, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return DecodeSession(data)
}

// DecodeSession parses a persisted session and upgrades older schema versions.
func DecodeSession(data []byte) (*Session, error) {
	var s Session
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("decode session: %w", err)
	}
	if s.SchemaVersion > SchemaVersion {
		return nil, fmt.Errorf("%w: %d (this build reads up to %d)", ErrSchemaVersion, s.SchemaVersion, SchemaVersion)
	}
	if s.SchemaVersion < 1 {
		upgradeV0(&s)
	}
	var bad error
	s.EachSlot(func(owner Kind, localID string, slot RefSlot) {
		if err := slot.Ref.Check(); err != nil && bad == nil {
			bad = fmt.Errorf("%s %s %s: %w", owner, localID, slot.Path, err)
		}
	})
	if bad != nil {
		return nil, fmt.Errorf("decode session: %w", bad)
	}
	s.Refresh()
	return &s, nil
}

// upgradeV0 rebuilds the id counters that unversioned drafts did not store.
func upgradeV0(s *Session) {
	s.SchemaVersion = SchemaVersion
	if s.Seq == nil {
		s.Seq = map[Kind]int{}
	}
	bump := func(k Kind, id string) {
		var n int
		if _, err := fmt.Sscanf(id, k.prefix()+"%d", &n); err == nil && n > s.Seq[k] {
			s.Seq[k] = n
		}
	}
	for _, v := range s.Values {
		bump(KindValue, v.LocalID)
	}
	for _, m := range s.Measures {
		bump(KindMeasure, m.LocalID)
	}
	for _, g := range s.Goals {
		bump(KindGoal, g.LocalID)
	}
	for _, a := range s.Actions {
		bump(KindAction, a.LocalID)
	}
	if s.Step == 0 {
		s.Step = StepValues
	}
	if s.Status == "" {
		s.Status = SessionDraft
	}
}
