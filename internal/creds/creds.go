// Package creds resolves the API key and optional album id for a run from
// the creds.secret file, with caller-supplied overrides taking precedence
// per field.
package creds

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/spf13/viper"
)

// DefaultFileName is the credentials file read by the resolver. It is a flat
// JSON key -> value document stored next to config.json.
const DefaultFileName = "creds.secret"

// ErrMissingAPIKey is returned when no API key is available after applying
// overrides. It is terminal for the whole run, not per item.
var ErrMissingAPIKey = errors.New("no api_key in credentials or overrides")

// Credentials carries the resolved API key and optional album id. Shared
// read-only across all uploads in a run.
type Credentials struct {
	APIKey  string `json:"api_key"`
	AlbumID string `json:"album_id,omitempty"`
}

// Overrides are in-memory values that take precedence over the stored ones.
// Each field is applied independently; an empty field falls back to the store.
type Overrides struct {
	APIKey  string
	AlbumID string
}

// Store reads and writes the credentials file.
type Store struct {
	path string
}

func NewStore(path string) *Store {
	return &Store{path: path}
}

// Load reads the backing file. A missing file is not an error; it resolves to
// empty stored values so that overrides alone can still authorize a run.
func (s *Store) Load() (Credentials, error) {
	v := viper.New()
	v.SetConfigFile(s.path)
	v.SetConfigType("json")
	if err := v.ReadInConfig(); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return Credentials{}, nil
		}
		return Credentials{}, fmt.Errorf("error reading credentials (%s): %w", s.path, err)
	}
	return Credentials{
		APIKey:  v.GetString("api_key"),
		AlbumID: v.GetString("album_id"),
	}, nil
}

// Resolve applies overrides on top of the stored values and validates the
// result. Album id absence is never an error; it is optional metadata for
// the remote API.
func (s *Store) Resolve(o Overrides) (Credentials, error) {
	c, err := s.Load()
	if err != nil {
		return Credentials{}, err
	}
	if o.APIKey != "" {
		c.APIKey = o.APIKey
	}
	if o.AlbumID != "" {
		c.AlbumID = o.AlbumID
	}
	if c.APIKey == "" {
		return Credentials{}, ErrMissingAPIKey
	}
	return c, nil
}

// Save writes the credentials file. Empty incoming fields preserve the stored
// values, so saving an album id alone does not wipe the key.
func (s *Store) Save(c Credentials) error {
	stored, err := s.Load()
	if err != nil {
		return err
	}
	if c.APIKey == "" {
		c.APIKey = stored.APIKey
	}
	if c.AlbumID == "" {
		c.AlbumID = stored.AlbumID
	}

	if err := os.MkdirAll(filepath.Dir(s.path), 0700); err != nil {
		return fmt.Errorf("failed to create credentials dir: %w", err)
	}
	f, err := os.OpenFile(s.path, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0600)
	if err != nil {
		return fmt.Errorf("failed to open credentials file %s for writing: %w", s.path, err)
	}
	defer f.Close()
	encoder := json.NewEncoder(f)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(c); err != nil {
		return fmt.Errorf("failed to encode credentials to %s: %w", s.path, err)
	}
	return nil
}
