package statestore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/AltairaLabs/DealFlow/workflow"
)

// FileStore persists each conversation state as one JSON file named
// <channelID>_<threadID>.json under a threads directory. Suitable for
// single-host deployments where state must survive restarts.
type FileStore struct {
	dir string
}

// NewFileStore creates a file-backed state store rooted at dataDir,
// creating the threads directory if needed.
func NewFileStore(dataDir string) (*FileStore, error) {
	dir := filepath.Join(dataDir, "threads")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create threads directory: %w", err)
	}
	return &FileStore{dir: dir}, nil
}

func (s *FileStore) path(threadID, channelID string) string {
	return filepath.Join(s.dir, storeKey(threadID, channelID)+".json")
}

// Load reads a conversation state from disk, returning workflow.ErrNotFound
// when no file exists for the key.
func (s *FileStore) Load(_ context.Context, threadID, channelID string) (*workflow.ConversationState, error) {
	data, err := os.ReadFile(s.path(threadID, channelID))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, workflow.ErrNotFound
		}
		return nil, fmt.Errorf("read conversation state: %w", err)
	}

	var cs workflow.ConversationState
	if err := json.Unmarshal(data, &cs); err != nil {
		return nil, fmt.Errorf("decode conversation state: %w", err)
	}
	return &cs, nil
}

// Save writes the conversation state to its JSON file. The write goes
// through a temporary file and rename so a crash cannot leave a truncated
// record behind.
func (s *FileStore) Save(_ context.Context, cs *workflow.ConversationState) error {
	if cs == nil {
		return fmt.Errorf("nil conversation state")
	}

	data, err := json.MarshalIndent(cs, "", "  ")
	if err != nil {
		return fmt.Errorf("encode conversation state: %w", err)
	}

	path := s.path(cs.ThreadID, cs.ChannelID)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write conversation state: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("rename conversation state: %w", err)
	}
	return nil
}

// Delete removes the stored record for the key. Returns workflow.ErrNotFound
// if no record exists. Deletion is a storage-admin concern; the workflow
// machine itself never deletes records.
func (s *FileStore) Delete(threadID, channelID string) error {
	err := os.Remove(s.path(threadID, channelID))
	if errors.Is(err, fs.ErrNotExist) {
		return workflow.ErrNotFound
	}
	return err
}
