package store

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// DefaultKey is the slot the whole conversation collection is saved under.
const DefaultKey = "chats"

const (
	DriverSQLite = "sqlite"
	DriverPebble = "pebble"
	DriverMemory = "memory"
)

// ErrStorageCorruption marks a saved value that could not be turned back into
// a conversation collection. Stores log it and load an empty collection.
var ErrStorageCorruption = errors.New("stored conversations are corrupt")

// Store persists the full conversation collection under a single key.
type Store interface {
	// Load returns the saved collection, or an empty one when nothing usable
	// is stored. Only I/O failures are returned as errors.
	Load(ctx context.Context) ([]Conversation, error)
	// Save overwrites the slot with the given collection.
	Save(ctx context.Context, conversations []Conversation) error
	Close() error
}

type Options struct {
	Driver string
	// DSN is a file path for sqlite and a directory for pebble.
	DSN string
	Key string
}

func Open(opts Options) (Store, error) {
	key := opts.Key
	if key == "" {
		key = DefaultKey
	}
	switch strings.ToLower(opts.Driver) {
	case DriverSQLite, "":
		return NewSQLiteStore(opts.DSN, key)
	case DriverPebble:
		return NewPebbleStore(opts.DSN, key)
	case DriverMemory:
		return NewMemoryStore(), nil
	default:
		return nil, errors.Errorf("unknown store driver %q", opts.Driver)
	}
}

// Encode serializes a collection. A nil collection encodes as an empty array.
func Encode(conversations []Conversation) ([]byte, error) {
	if conversations == nil {
		conversations = []Conversation{}
	}
	data, err := json.Marshal(conversations)
	if err != nil {
		return nil, errors.Wrap(err, "failed to marshal conversations")
	}
	return data, nil
}

// Decode parses a saved collection and checks the identifiers are usable.
// Any failure is reported as ErrStorageCorruption.
func Decode(data []byte) ([]Conversation, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return []Conversation{}, nil
	}
	var conversations []Conversation
	if err := json.Unmarshal(data, &conversations); err != nil {
		return nil, errors.Wrapf(ErrStorageCorruption, "decode: %v", err)
	}
	if conversations == nil {
		return []Conversation{}, nil
	}

	seen := make(map[string]struct{}, len(conversations))
	for i := range conversations {
		c := &conversations[i]
		if c.ID == "" {
			return nil, errors.Wrapf(ErrStorageCorruption, "conversation %d has no id", i)
		}
		if _, dup := seen[c.ID]; dup {
			return nil, errors.Wrapf(ErrStorageCorruption, "duplicate conversation id %s", c.ID)
		}
		seen[c.ID] = struct{}{}
		for _, m := range c.Messages {
			if !m.Role.Valid() {
				return nil, errors.Wrapf(ErrStorageCorruption, "conversation %s: message %s has role %q", c.ID, m.ID, m.Role)
			}
		}
		if c.Messages == nil {
			c.Messages = []Message{}
		}
	}
	return conversations, nil
}

// decodeOrEmpty is the load path shared by the drivers: corruption is logged
// and swallowed.
func decodeOrEmpty(driver string, data []byte) []Conversation {
	conversations, err := Decode(data)
	if err != nil {
		log.Warn().Err(err).Str("driver", driver).Msg("Discarding unreadable saved conversations")
		return []Conversation{}
	}
	return conversations
}
