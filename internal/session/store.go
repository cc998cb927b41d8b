package session

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
)

// DefaultStateDir is where sessions live unless RAVEL_STATE_DIR overrides it.
const DefaultStateDir = ".ravel/state"

// StateFileName is the snapshot file inside each session directory.
const StateFileName = "state.json"

// Store handles durable round-trips of sessions between invocations.
type Store struct {
	baseDir string
}

// NewStore creates a store rooted at baseDir. Empty baseDir selects
// RAVEL_STATE_DIR or the default state directory.
func NewStore(baseDir string) *Store {
	if baseDir == "" {
		baseDir = os.Getenv("RAVEL_STATE_DIR")
	}
	if baseDir == "" {
		baseDir = DefaultStateDir
	}
	return &Store{baseDir: baseDir}
}

var nonAlnum = regexp.MustCompile(`[^a-zA-Z0-9]+`)

// sanitizeSessionName converts a source filename into a session name stem.
func sanitizeSessionName(filename string) string {
	name := strings.TrimSuffix(filepath.Base(filename), filepath.Ext(filename))
	name = nonAlnum.ReplaceAllString(strings.ToLower(name), "-")
	name = strings.Trim(name, "-")
	if len(name) > 30 {
		name = strings.TrimRight(name[:30], "-")
	}
	if name == "" {
		name = "context"
	}
	return name
}

// NewStatePath generates a timestamped snapshot path for a source file.
func (s *Store) NewStatePath(contextPath string) string {
	name := sanitizeSessionName(contextPath)
	stamp := time.Now().Format("20060102-150405")
	return filepath.Join(s.baseDir, fmt.Sprintf("%s-%s", name, stamp), StateFileName)
}

// Create builds a fresh session from already-loaded content and persists it
// immediately. contextPath records where the content came from.
func (s *Store) Create(contextPath, content, statePath string) (*Session, string, error) {
	if statePath == "" {
		statePath = s.NewStatePath(contextPath)
	}

	now := time.Now().UTC()
	sess := &Session{
		Version:        CurrentVersion,
		ID:             uuid.NewString(),
		MaxDepth:       DefaultMaxDepth,
		RemainingDepth: DefaultMaxDepth,
		Context: Context{
			Path:     contextPath,
			LoadedAt: now,
			Content:  content,
		},
		Buffers:       []string{},
		Handles:       map[string]HandleRecord{},
		HandleCounter: 0,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	if err := Save(sess, statePath); err != nil {
		return nil, "", err
	}
	return sess, statePath, nil
}

// migrations is the linear chain; migrations[i] lifts version i+1 to i+2.
var migrations = []func(*Session){
	migrateV1toV2,
	migrateV2toV3,
}

func migrateV1toV2(s *Session) {
	if s.Handles == nil {
		s.Handles = map[string]HandleRecord{}
	}
	s.HandleCounter = 0
	s.Version = 2
}

func migrateV2toV3(s *Session) {
	s.MaxDepth = DefaultMaxDepth
	s.RemainingDepth = DefaultMaxDepth
	s.PreserveRecursiveState = false
	s.FinalAnswer = nil
	s.Version = 3
}

// Load deserializes a snapshot, migrating old versions forward in place and
// rewriting the file when a migration ran. Future versions are rejected.
func Load(path string) (*Session, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("no state found at %s (run init first): %w", path, err)
		}
		return nil, fmt.Errorf("failed to read state file: %w", err)
	}

	var sess Session
	if err := json.Unmarshal(data, &sess); err != nil {
		return nil, &CorruptStateError{Path: path, Err: err}
	}

	if sess.Version < 1 {
		sess.Version = 1
	}
	if sess.Version > CurrentVersion {
		return nil, &CorruptStateError{
			Path: path,
			Err:  fmt.Errorf("snapshot version %d is newer than supported version %d", sess.Version, CurrentVersion),
		}
	}

	migrated := false
	for sess.Version < CurrentVersion {
		migrations[sess.Version-1](&sess)
		migrated = true
	}

	if sess.Handles == nil {
		sess.Handles = map[string]HandleRecord{}
	}
	if sess.Buffers == nil {
		sess.Buffers = []string{}
	}

	if migrated {
		if err := Save(&sess, path); err != nil {
			return nil, err
		}
	}
	return &sess, nil
}

// Save overwrites the snapshot atomically (write temp, then rename) so a
// crash mid-write never leaves a truncated file behind.
func Save(sess *Session, path string) error {
	sess.UpdatedAt = time.Now().UTC()

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create session directory: %w", err)
	}

	data, err := json.MarshalIndent(sess, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal session: %w", err)
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("failed to write session file: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("failed to replace session file: %w", err)
	}
	return nil
}

// Dir returns the session directory for a snapshot path.
func Dir(statePath string) string {
	return filepath.Dir(statePath)
}

// Reset deletes the snapshot file. Missing files are not an error.
func Reset(path string) (bool, error) {
	err := os.Remove(path)
	if os.IsNotExist(err) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to delete state: %w", err)
	}
	return true, nil
}
