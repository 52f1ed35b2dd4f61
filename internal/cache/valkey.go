package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/UnknownOlympus/magma/internal/models"
	"github.com/valkey-io/valkey-go"
)

const valkeyKeyPrefix = "magma:geo:"

// ValkeyStore keeps entries as JSON strings without expiry.
type ValkeyStore struct {
	client valkey.Client
	now    func() time.Time
}

// NewValkeyStore connects to a Valkey (Redis-compatible) server.
func NewValkeyStore(addr string) (*ValkeyStore, error) {
	client, err := valkey.NewClient(valkey.ClientOption{
		InitAddress: []string{addr},
	})
	if err != nil {
		return nil, fmt.Errorf("valkey connect: %w", err)
	}

	return &ValkeyStore{client: client, now: time.Now}, nil
}

// Get retrieves an entry by key.
func (s *ValkeyStore) Get(ctx context.Context, key string) (*Entry, error) {
	raw, err := s.client.Do(ctx, s.client.B().Get().Key(valkeyKeyPrefix+key).Build()).AsBytes()
	if valkey.IsValkeyNil(err) {
		return nil, ErrMiss
	}
	if err != nil {
		return nil, fmt.Errorf("valkey get: %w", err)
	}

	var entry Entry
	if err = json.Unmarshal(raw, &entry); err != nil {
		return nil, ErrMiss
	}

	return &entry, nil
}

// Put overwrites the entry for key.
func (s *ValkeyStore) Put(ctx context.Context, key string, dataset models.Dataset) error {
	raw, err := json.Marshal(Entry{Timestamp: s.now(), Data: dataset})
	if err != nil {
		return fmt.Errorf("failed to encode entry: %w", err)
	}

	cmd := s.client.B().Set().Key(valkeyKeyPrefix + key).Value(string(raw)).Build()
	if err = s.client.Do(ctx, cmd).Error(); err != nil {
		return fmt.Errorf("valkey set: %w", err)
	}

	return nil
}

// Ping checks the connection to the server.
func (s *ValkeyStore) Ping(ctx context.Context) error {
	return s.client.Do(ctx, s.client.B().Ping().Build()).Error()
}

// Close releases the client.
func (s *ValkeyStore) Close() error {
	s.client.Close()
	return nil
}
