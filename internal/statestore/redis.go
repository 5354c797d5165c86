// internal/statestore/redis.go

// Package statestore caches the last recurrent state ("state_outs") each
// remote agent received, keyed by agent id, in Redis. The cache is read back
// through the GetState RPC and cleared when an agent resets; it is never fed
// into inference, whose "state_ins" input is a scalar reset flag.
package statestore

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/redis/go-redis/v9"
)

// Store wraps a Redis client for agent state storage
type Store struct {
	client *redis.Client
}

// New creates a new Store connected to the specified Redis address
// If addr is empty, defaults to localhost:6379
func New(ctx context.Context, addr string) (*Store, error) {
	if addr == "" {
		addr = "localhost:6379"
	}

	client := redis.NewClient(&redis.Options{
		Addr: addr,
		DB:   0,
	})

	// Test connection
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to Redis at %s: %w", addr, err)
	}

	return &Store{client: client}, nil
}

func stateKey(agentID string) string {
	return fmt.Sprintf("agent:%s:state", agentID)
}

// Set stores an agent's recurrent state with the specified TTL. A zero TTL
// keeps the key until it is cleared.
func (s *Store) Set(ctx context.Context, agentID string, state []float32, ttl time.Duration) error {
	if s.client == nil {
		return fmt.Errorf("state store client is nil")
	}

	err := s.client.Set(ctx, stateKey(agentID), encodeState(state), ttl).Err()
	if err != nil {
		return fmt.Errorf("failed to set state for agent %s: %w", agentID, err)
	}

	return nil
}

// Get retrieves an agent's recurrent state. The boolean is false when no
// state is stored.
func (s *Store) Get(ctx context.Context, agentID string) ([]float32, bool, error) {
	if s.client == nil {
		return nil, false, fmt.Errorf("state store client is nil")
	}

	data, err := s.client.Get(ctx, stateKey(agentID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to get state for agent %s: %w", agentID, err)
	}

	state, err := decodeState(data)
	if err != nil {
		return nil, false, fmt.Errorf("corrupt state for agent %s: %w", agentID, err)
	}
	return state, true, nil
}

// Clear removes an agent's recurrent state.
func (s *Store) Clear(ctx context.Context, agentID string) error {
	if s.client == nil {
		return fmt.Errorf("state store client is nil")
	}

	if err := s.client.Del(ctx, stateKey(agentID)).Err(); err != nil {
		return fmt.Errorf("failed to clear state for agent %s: %w", agentID, err)
	}
	return nil
}

// Close closes the Redis connection
func (s *Store) Close() error {
	if s.client != nil {
		return s.client.Close()
	}
	return nil
}

// encodeState packs values as little-endian float32.
func encodeState(state []float32) []byte {
	buf := make([]byte, 4*len(state))
	for i, v := range state {
		binary.LittleEndian.PutUint32(buf[4*i:], math.Float32bits(v))
	}
	return buf
}

func decodeState(data []byte) ([]float32, error) {
	if len(data)%4 != 0 {
		return nil, fmt.Errorf("length %d is not a multiple of 4", len(data))
	}
	state := make([]float32, len(data)/4)
	for i := range state {
		state[i] = math.Float32frombits(binary.LittleEndian.Uint32(data[4*i:]))
	}
	return state, nil
}
