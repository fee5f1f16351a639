// Package userdata manages the per-user data directory (spec.md §6):
// provider credentials, app-wide settings, and general-purpose
// conversational agent sessions — distinct from the per-project feature
// records the feature package owns.
//
// Grounded on the teacher's internal/state/atomic.go
// (read-modify-write-atomic pattern) generalized from a single
// project-scoped state.json to four sibling files under one directory.
package userdata

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sort"

	"github.com/automaker/engine/internal/apperr"
	"github.com/automaker/engine/internal/fsutil"
)

// Dir resolves the per-user data directory: $AUTOMAKER_DATA_DIR if set
// (mainly for tests), otherwise os.UserConfigDir()/automaker.
func Dir() (string, error) {
	if override := os.Getenv("AUTOMAKER_DATA_DIR"); override != "" {
		return override, nil
	}
	base, err := os.UserConfigDir()
	if err != nil {
		return "", apperr.Wrap(apperr.IO, "resolving user config directory", err)
	}
	return filepath.Join(base, "automaker"), nil
}

// Settings is the contents of settings.json (spec.md §6).
type Settings struct {
	SetupComplete bool           `json:"setupComplete"`
	Extra         map[string]any `json:"-"`
}

// SessionMetadata is one entry of sessions-metadata.json.
type SessionMetadata struct {
	Name        string   `json:"name"`
	ProjectPath string   `json:"projectPath"`
	CreatedAt   string   `json:"createdAt"`
	UpdatedAt   string   `json:"updatedAt"`
	IsArchived  bool     `json:"isArchived"`
	Tags        []string `json:"tags,omitempty"`
}

// Store reads and writes the four per-user files.
type Store struct {
	dir string
}

// NewStore constructs a Store rooted at dir, creating it if absent.
func NewStore(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, apperr.Wrap(apperr.IO, "creating user data directory", err)
	}
	return &Store{dir: dir}, nil
}

func (s *Store) path(name string) string { return filepath.Join(s.dir, name) }

// Credentials reads credentials.json: a map of provider key to opaque
// token. Returns an empty map if the file is absent.
func (s *Store) Credentials() (map[string]string, error) {
	var creds map[string]string
	if err := readJSON(s.path("credentials.json"), &creds); err != nil {
		return nil, err
	}
	if creds == nil {
		creds = make(map[string]string)
	}
	return creds, nil
}

// SetCredential upserts one provider's token and persists the file with
// owner-only permissions, since it holds secrets.
func (s *Store) SetCredential(providerKey, token string) error {
	creds, err := s.Credentials()
	if err != nil {
		return err
	}
	creds[providerKey] = token
	return writeJSON(s.path("credentials.json"), creds, 0600)
}

// RemoveCredential deletes one provider's token, if present.
func (s *Store) RemoveCredential(providerKey string) error {
	creds, err := s.Credentials()
	if err != nil {
		return err
	}
	delete(creds, providerKey)
	return writeJSON(s.path("credentials.json"), creds, 0600)
}

// GetSettings reads settings.json, defaulting to zero-value Settings if
// absent.
func (s *Store) GetSettings() (Settings, error) {
	var raw map[string]any
	if err := readJSON(s.path("settings.json"), &raw); err != nil {
		return Settings{}, err
	}
	var out Settings
	if raw == nil {
		return out, nil
	}
	if v, ok := raw["setupComplete"].(bool); ok {
		out.SetupComplete = v
	}
	delete(raw, "setupComplete")
	out.Extra = raw
	return out, nil
}

// SaveSettings persists settings.json, preserving any unrecognized keys
// in Extra so a newer client's fields survive a round trip through an
// older one.
func (s *Store) SaveSettings(settings Settings) error {
	raw := make(map[string]any, len(settings.Extra)+1)
	for k, v := range settings.Extra {
		raw[k] = v
	}
	raw["setupComplete"] = settings.SetupComplete
	return writeJSON(s.path("settings.json"), raw, 0644)
}

// SessionsMetadata reads sessions-metadata.json.
func (s *Store) SessionsMetadata() (map[string]SessionMetadata, error) {
	var meta map[string]SessionMetadata
	if err := readJSON(s.path("sessions-metadata.json"), &meta); err != nil {
		return nil, err
	}
	if meta == nil {
		meta = make(map[string]SessionMetadata)
	}
	return meta, nil
}

// SaveSessionMetadata upserts one session's metadata entry.
func (s *Store) SaveSessionMetadata(id string, meta SessionMetadata) error {
	all, err := s.SessionsMetadata()
	if err != nil {
		return err
	}
	all[id] = meta
	return writeJSON(s.path("sessions-metadata.json"), all, 0644)
}

// DeleteSession removes a session's metadata entry and its transcript
// file.
func (s *Store) DeleteSession(id string) error {
	all, err := s.SessionsMetadata()
	if err != nil {
		return err
	}
	delete(all, id)
	if err := writeJSON(s.path("sessions-metadata.json"), all, 0644); err != nil {
		return err
	}
	transcriptPath := filepath.Join(s.dir, "agent-sessions", id+".json")
	if err := os.Remove(transcriptPath); err != nil && !os.IsNotExist(err) {
		return apperr.Wrap(apperr.IO, "deleting session transcript", err)
	}
	return nil
}

// ListSessions returns session ids sorted by CreatedAt ascending.
func (s *Store) ListSessions() ([]string, error) {
	all, err := s.SessionsMetadata()
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(all))
	for id := range all {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return all[ids[i]].CreatedAt < all[ids[j]].CreatedAt })
	return ids, nil
}

// SessionTranscript reads agent-sessions/<id>.json's raw contents.
func (s *Store) SessionTranscript(id string) (json.RawMessage, error) {
	data, err := os.ReadFile(filepath.Join(s.dir, "agent-sessions", id+".json"))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, apperr.Wrap(apperr.IO, "reading session transcript", err)
	}
	return data, nil
}

// SaveSessionTranscript writes agent-sessions/<id>.json atomically.
func (s *Store) SaveSessionTranscript(id string, data json.RawMessage) error {
	path := filepath.Join(s.dir, "agent-sessions", id+".json")
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return apperr.Wrap(apperr.IO, "creating agent-sessions directory", err)
	}
	return fsutil.WriteFileAtomic(path, data, 0644)
}

func readJSON(path string, out any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return apperr.Wrap(apperr.IO, "reading "+filepath.Base(path), err)
	}
	if err := json.Unmarshal(data, out); err != nil {
		return apperr.Wrap(apperr.Invalid, "parsing "+filepath.Base(path), err)
	}
	return nil
}

func writeJSON(path string, v any, perm os.FileMode) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return apperr.Wrap(apperr.Invalid, "marshaling "+filepath.Base(path), err)
	}
	if err := fsutil.WriteFileAtomic(path, data, perm); err != nil {
		return apperr.Wrap(apperr.IO, "writing "+filepath.Base(path), err)
	}
	return nil
}
