// Package file persists the session in a JSON document on disk, optionally
// encrypted with a passphrase.
package file

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"github.com/jrsteele09/go-storefront-client/storage"
)

var _ storage.Store = (*Store)(nil)

const documentVersion = 1

type document struct {
	Version   int               `json:"version"`
	Encrypted bool              `json:"encrypted"`
	Salt      []byte            `json:"salt,omitempty"`
	Values    map[string]string `json:"values"`
}

// Store writes every mutation through to a single JSON file. Writes go to a
// temporary file which is then renamed over the original.
type Store struct {
	path   string
	doc    document
	sealer *sealer
	lock   sync.RWMutex
}

type Option func(*options)

type options struct {
	passphrase string
}

// WithPassphrase encrypts values at rest with a key derived from passphrase
func WithPassphrase(passphrase string) Option {
	return func(o *options) {
		o.passphrase = passphrase
	}
}

// Open loads the document at path, creating an empty one in memory when the file
// does not exist yet. The file itself is only created on the first write.
func Open(path string, opts ...Option) (*Store, error) {
	o := options{}
	for _, opt := range opts {
		opt(&o)
	}

	s := &Store{
		path: path,
		doc:  document{Version: documentVersion, Values: make(map[string]string)},
	}

	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
	case err != nil:
		return nil, fmt.Errorf("file.Open read %s: %w", path, err)
	default:
		if err := json.Unmarshal(data, &s.doc); err != nil {
			return nil, fmt.Errorf("file.Open decode %s: %w", path, err)
		}
		if s.doc.Values == nil {
			s.doc.Values = make(map[string]string)
		}
	}

	if s.doc.Encrypted && o.passphrase == "" {
		return nil, fmt.Errorf("file.Open %s: document is encrypted but no passphrase was given", path)
	}

	if o.passphrase != "" {
		if !s.doc.Encrypted && len(s.doc.Values) > 0 {
			return nil, fmt.Errorf("file.Open %s: document holds plaintext values, remove it to enable encryption", path)
		}
		if len(s.doc.Salt) == 0 {
			if s.doc.Salt, err = newSalt(); err != nil {
				return nil, fmt.Errorf("file.Open: %w", err)
			}
		}
		if s.sealer, err = newSealer(o.passphrase, s.doc.Salt); err != nil {
			return nil, fmt.Errorf("file.Open: %w", err)
		}
		s.doc.Encrypted = true
	}
	return s, nil
}

func (s *Store) Get(_ context.Context, key string) (string, bool, error) {
	s.lock.RLock()
	defer s.lock.RUnlock()

	v, ok := s.doc.Values[key]
	if !ok {
		return "", false, nil
	}
	if s.sealer == nil {
		return v, true, nil
	}
	plain, err := s.sealer.open(key, v)
	if err != nil {
		return "", false, err
	}
	return plain, true, nil
}

func (s *Store) Set(_ context.Context, key, value string) error {
	s.lock.Lock()
	defer s.lock.Unlock()

	stored := value
	if s.sealer != nil {
		var err error
		if stored, err = s.sealer.seal(key, value); err != nil {
			return err
		}
	}

	previous, existed := s.doc.Values[key]
	s.doc.Values[key] = stored
	if err := s.flush(); err != nil {
		if existed {
			s.doc.Values[key] = previous
		} else {
			delete(s.doc.Values, key)
		}
		return err
	}
	return nil
}

func (s *Store) Remove(_ context.Context, key string) error {
	s.lock.Lock()
	defer s.lock.Unlock()

	previous, existed := s.doc.Values[key]
	if !existed {
		return nil
	}
	delete(s.doc.Values, key)
	if err := s.flush(); err != nil {
		s.doc.Values[key] = previous
		return err
	}
	return nil
}

// Path returns the location of the backing file
func (s *Store) Path() string {
	return s.path
}

func (s *Store) flush() error {
	data, err := json.MarshalIndent(s.doc, "", "  ")
	if err != nil {
		return fmt.Errorf("file.flush encode: %w", err)
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("file.flush mkdir %s: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(s.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("file.flush create temp: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("file.flush write: %w", err)
	}
	if err := tmp.Chmod(0o600); err != nil {
		tmp.Close()
		return fmt.Errorf("file.flush chmod: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("file.flush close: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		return fmt.Errorf("file.flush rename: %w", err)
	}
	return nil
}
