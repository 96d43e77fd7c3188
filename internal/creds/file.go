package creds

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// FileBackend stores the credential in a JSON file. This is the generic
// backend used when sqlite is unavailable. With a 32-byte at-rest key the
// API key is sealed before writing; without one it is stored plain, which
// matches what a generic key-value store offers.
type FileBackend struct {
	path      string
	atRestKey string
}

type fileRecord struct {
	APIKey       string `json:"api_key,omitempty"`
	SealedAPIKey string `json:"sealed_api_key,omitempty"`
	UserID       string `json:"user_id"`
}

// NewFileBackend creates a file backend at the given path. atRestKey may be
// empty.
func NewFileBackend(path, atRestKey string) (*FileBackend, error) {
	if path == "" {
		return nil, errors.New("credential file path is required")
	}
	if atRestKey != "" && len(atRestKey) != 32 {
		return nil, ErrInvalidKeyLength
	}

	if err := os.MkdirAll(filepath.Dir(path), 0750); err != nil {
		return nil, err
	}
	return &FileBackend{path: path, atRestKey: atRestKey}, nil
}

func (b *FileBackend) Load() (*Credential, error) {
	data, err := os.ReadFile(b.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	var rec fileRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("corrupt credential file: %w", err)
	}

	c := &Credential{APIKey: rec.APIKey, UserID: rec.UserID}
	if rec.SealedAPIKey != "" {
		if b.atRestKey == "" {
			return nil, errors.New("credential is sealed but no at-rest key is configured")
		}
		key, err := openAPIKey(rec.SealedAPIKey, b.atRestKey)
		if err != nil {
			return nil, err
		}
		c.APIKey = key
	}
	if c.APIKey == "" {
		return nil, ErrNotFound
	}
	return c, nil
}

func (b *FileBackend) Save(c *Credential) error {
	if c == nil {
		return errors.New("credential cannot be nil")
	}

	rec := fileRecord{UserID: c.UserID}
	if b.atRestKey != "" {
		sealed, err := sealAPIKey(c.APIKey, b.atRestKey)
		if err != nil {
			return err
		}
		rec.SealedAPIKey = sealed
	} else {
		rec.APIKey = c.APIKey
	}

	data, err := json.Marshal(&rec)
	if err != nil {
		return err
	}

	// Write-then-rename so a crash never leaves a half-written file.
	tmp := b.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0600); err != nil {
		return err
	}
	return os.Rename(tmp, b.path)
}

func (b *FileBackend) Clear() error {
	if err := os.Remove(b.path); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

func (b *FileBackend) Close() error {
	return nil
}

// OpenBackend selects a backend by name. "auto" prefers sqlite and falls
// back to the file store when sqlite cannot be opened.
func OpenBackend(backend, path, atRestKey string) (Backend, error) {
	switch backend {
	case "sqlite":
		return NewSQLiteBackend(path + ".db")
	case "file":
		return NewFileBackend(path+".json", atRestKey)
	case "auto", "":
		if b, err := NewSQLiteBackend(path + ".db"); err == nil {
			return b, nil
		}
		return NewFileBackend(path+".json", atRestKey)
	default:
		return nil, fmt.Errorf("unknown credential backend %q", backend)
	}
}
