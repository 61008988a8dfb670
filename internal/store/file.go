package store

import (
	"errors"
	"fmt"
	"maps"
	"os"
	"path/filepath"
	"slices"

	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"
)

type fileContents struct {
	Broadcasts []Broadcast `yaml:"broadcasts"`
	Tokens     []Token     `yaml:"tokens"`
}

// FileStore is a MemoryStore loaded from a YAML file and written back to it
// whenever the current channel of a broadcast changes.
type FileStore struct {
	*MemoryStore
	path string
}

func NewFileStore(path string) (*FileStore, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read store file: %w", err)
	}

	contents := fileContents{}
	if err = yaml.Unmarshal(data, &contents); err != nil {
		return nil, fmt.Errorf("parse store file %s: %w", path, err)
	}

	store := &FileStore{MemoryStore: NewMemoryStore(), path: path}
	for _, broadcast := range contents.Broadcasts {
		if broadcast.ID == "" {
			return nil, errors.New("store file has a broadcast without id")
		}
		store.AddBroadcast(broadcast)
	}
	for _, token := range contents.Tokens {
		if _, ok := store.broadcasts[token.BroadcastID]; !ok {
			log.Warn().Str("broadcastId", token.BroadcastID).Msg("Store.Token.UnknownBroadcast")
		}
		record := token
		store.tokens[token.Token] = &record
	}
	store.onChange = store.save

	log.Info().
		Str("path", path).
		Int("broadcasts", len(contents.Broadcasts)).
		Int("tokens", len(contents.Tokens)).
		Msg("Store.Loaded")

	return store, nil
}

// Caller holds the write lock of the embedded store
func (s *FileStore) save() error {
	contents := fileContents{
		Broadcasts: make([]Broadcast, 0, len(s.broadcasts)),
		Tokens:     make([]Token, 0, len(s.tokens)),
	}
	for _, id := range slices.Sorted(maps.Keys(s.broadcasts)) {
		contents.Broadcasts = append(contents.Broadcasts, *s.broadcasts[id])
	}
	for _, token := range slices.Sorted(maps.Keys(s.tokens)) {
		contents.Tokens = append(contents.Tokens, *s.tokens[token])
	}

	data, err := yaml.Marshal(contents)
	if err != nil {
		return fmt.Errorf("encode store file: %w", err)
	}

	temporary, err := os.CreateTemp(filepath.Dir(s.path), filepath.Base(s.path)+".*")
	if err != nil {
		return fmt.Errorf("write store file: %w", err)
	}
	defer os.Remove(temporary.Name())

	if _, err = temporary.Write(data); err != nil {
		temporary.Close()
		return fmt.Errorf("write store file: %w", err)
	}
	if err = temporary.Close(); err != nil {
		return fmt.Errorf("write store file: %w", err)
	}

	if err = os.Rename(temporary.Name(), s.path); err != nil {
		return fmt.Errorf("replace store file: %w", err)
	}

	return nil
}
