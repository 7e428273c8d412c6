package store

import (
	"context"

	"github.com/cockroachdb/pebble"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// PebbleStore keeps the collection under one key of a Pebble database.
type PebbleStore struct {
	db  *pebble.DB
	key []byte
}

func NewPebbleStore(dir, key string) (*PebbleStore, error) {
	log.Debug().Str("path", dir).Msg("Opening pebble store")
	db, err := pebble.Open(dir, &pebble.Options{Logger: pebbleLogger{}})
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open pebble store at %s", dir)
	}
	return &PebbleStore{db: db, key: []byte(key)}, nil
}

func (s *PebbleStore) Close() error {
	return s.db.Close()
}

func (s *PebbleStore) Load(ctx context.Context) ([]Conversation, error) {
	value, closer, err := s.db.Get(s.key)
	if err != nil {
		if errors.Is(err, pebble.ErrNotFound) {
			return []Conversation{}, nil
		}
		return nil, errors.Wrap(err, "failed to read saved conversations")
	}
	// value is only valid until closer is closed.
	data := make([]byte, len(value))
	copy(data, value)
	if err := closer.Close(); err != nil {
		return nil, errors.Wrap(err, "failed to release pebble value")
	}
	return decodeOrEmpty(DriverPebble, data), nil
}

func (s *PebbleStore) Save(ctx context.Context, conversations []Conversation) error {
	data, err := Encode(conversations)
	if err != nil {
		return err
	}
	if err := s.db.Set(s.key, data, pebble.Sync); err != nil {
		return errors.Wrap(err, "failed to write conversations")
	}
	return nil
}

func (s *PebbleStore) putRaw(value []byte) error {
	return s.db.Set(s.key, value, pebble.Sync)
}

// pebbleLogger routes pebble's internal logging through zerolog so it does
// not write straight to stderr.
type pebbleLogger struct{}

func (pebbleLogger) Infof(format string, args ...interface{}) {
	log.Debug().Str("component", "pebble").Msgf(format, args...)
}

func (pebbleLogger) Errorf(format string, args ...interface{}) {
	log.Error().Str("component", "pebble").Msgf(format, args...)
}

func (pebbleLogger) Fatalf(format string, args ...interface{}) {
	log.Fatal().Str("component", "pebble").Msgf(format, args...)
}
