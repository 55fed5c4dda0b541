// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package identity

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/tidwall/jsonc"
)

// File is a Store backed by a JSON object on disk, keyed by Key. The
// file may carry comments and trailing commas; they are dropped on
// the next write.
type File struct {
	path string
	mu   sync.Mutex
}

// NewFile returns a Store persisted at path. The file and its parent
// directory are created on the first Save.
func NewFile(path string) *File {
	return &File{path: path}
}

// Path returns the backing file.
func (f *File) Path() string { return f.path }

func (f *File) Load(roomID string) (string, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	players, err := f.read()
	if err != nil {
		return "", false, err
	}
	playerID, ok := players[Key(roomID)]
	return playerID, ok && playerID != "", nil
}

func (f *File) Save(roomID, playerID string) error {
	if playerID == "" {
		return errors.New("identity: player id is required")
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	players, err := f.read()
	if err != nil {
		return err
	}
	players[Key(roomID)] = playerID
	return f.write(players)
}

func (f *File) Forget(roomID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	players, err := f.read()
	if err != nil {
		return err
	}
	if _, ok := players[Key(roomID)]; !ok {
		return nil
	}
	delete(players, Key(roomID))
	return f.write(players)
}

func (f *File) read() (map[string]string, error) {
	data, err := os.ReadFile(f.path)
	if errors.Is(err, os.ErrNotExist) {
		return make(map[string]string), nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading identity file %s: %w", f.path, err)
	}
	players := make(map[string]string)
	if len(data) == 0 {
		return players, nil
	}
	if err := json.Unmarshal(jsonc.ToJSON(data), &players); err != nil {
		return nil, fmt.Errorf("parsing identity file %s: %w", f.path, err)
	}
	return players, nil
}

// write replaces the file atomically: temp file, sync, rename.
func (f *File) write(players map[string]string) error {
	data, err := json.MarshalIndent(players, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling identities: %w", err)
	}
	data = append(data, '\n')

	if err := os.MkdirAll(filepath.Dir(f.path), 0o700); err != nil {
		return fmt.Errorf("creating identity directory: %w", err)
	}
	temporaryPath := f.path + ".tmp"
	file, err := os.OpenFile(temporaryPath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o600)
	if err != nil {
		return fmt.Errorf("creating temporary identity file: %w", err)
	}
	if _, err := file.Write(data); err != nil {
		file.Close()
		os.Remove(temporaryPath)
		return fmt.Errorf("writing temporary identity file: %w", err)
	}
	if err := file.Sync(); err != nil {
		file.Close()
		os.Remove(temporaryPath)
		return fmt.Errorf("syncing temporary identity file: %w", err)
	}
	if err := file.Close(); err != nil {
		os.Remove(temporaryPath)
		return fmt.Errorf("closing temporary identity file: %w", err)
	}
	if err := os.Rename(temporaryPath, f.path); err != nil {
		os.Remove(temporaryPath)
		return fmt.Errorf("renaming identity file into place: %w", err)
	}
	return nil
}
