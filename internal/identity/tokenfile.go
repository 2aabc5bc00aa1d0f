package identity

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// Saved is the persisted session.
type Saved struct {
	Token     string    `json:"token"`
	Email     string    `json:"email"`
	ExpiresAt time.Time `json:"expires_at"`
}

// TokenFile keeps the access token between runs.
type TokenFile struct {
	path string
}

// NewTokenFile returns a TokenFile at path.
func NewTokenFile(path string) *TokenFile {
	return &TokenFile{path: path}
}

// Load returns the saved session, or nil if there is none or it expired.
func (f *TokenFile) Load() (*Saved, error) {
	raw, err := os.ReadFile(f.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read session file: %w", err)
	}

	var s Saved
	if err := json.Unmarshal(raw, &s); err != nil {
		return nil, fmt.Errorf("decode session file: %w", err)
	}
	if s.Token == "" || (!s.ExpiresAt.IsZero() && time.Now().After(s.ExpiresAt)) {
		return nil, nil
	}
	return &s, nil
}

// Save writes s, readable by the owner only.
func (f *TokenFile) Save(s Saved) error {
	if err := os.MkdirAll(filepath.Dir(f.path), 0o700); err != nil {
		return fmt.Errorf("create session dir: %w", err)
	}
	raw, err := json.Marshal(s)
	if err != nil {
		return err
	}
	return os.WriteFile(f.path, raw, 0o600)
}

// Clear removes the saved session.
func (f *TokenFile) Clear() error {
	if err := os.Remove(f.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove session file: %w", err)
	}
	return nil
}
