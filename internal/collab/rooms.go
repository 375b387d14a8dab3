// Package collab implements the collaboration session gateway on top of Redis room storage.
package collab

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/starford/scenesync/internal/codec"
	"github.com/starford/scenesync/internal/gateway"
	"github.com/starford/scenesync/internal/models"
)

// RedisRooms stores sealed room content in Redis and tracks the joined room.
type RedisRooms struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
	logger *slog.Logger

	mu        sync.Mutex
	roomID    string
	activeDoc string
	session   uint64
}

var _ gateway.Collaboration = (*RedisRooms)(nil)

// NewRedisRooms connects to redisURL and verifies the connection.
func NewRedisRooms(redisURL string, ttl time.Duration, logger *slog.Logger) (*RedisRooms, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("collab: parse redis url: %w", err)
	}
	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("collab: connect to redis: %w", err)
	}
	return NewRedisRoomsWithClient(client, ttl, logger), nil
}

// NewRedisRoomsWithClient creates rooms from an existing Redis client.
func NewRedisRoomsWithClient(client *redis.Client, ttl time.Duration, logger *slog.Logger) *RedisRooms {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &RedisRooms{client: client, prefix: "room:", ttl: ttl, logger: logger}
}

func (r *RedisRooms) key(roomID string) string {
	return r.prefix + roomID
}

// IsActive reports whether a room is currently joined.
func (r *RedisRooms) IsActive() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.roomID != ""
}

// RoomID returns the joined room, or "".
func (r *RedisRooms) RoomID() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.roomID
}

// ActiveDocumentID returns the document the current room's saves belong to.
func (r *RedisRooms) ActiveDocumentID() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.activeDoc
}

// Session returns the generation of the latest successful join.
func (r *RedisRooms) Session() uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.session
}

// SetActiveDocumentID records the document subsequent room saves belong to.
func (r *RedisRooms) SetActiveDocumentID(id string) {
	r.mu.Lock()
	r.activeDoc = id
	r.mu.Unlock()
}

// Join opens the room's stored content. An empty room yields nil content.
func (r *RedisRooms) Join(ctx context.Context, req gateway.JoinRequest) (*models.Content, error) {
	if req.RoomID == "" {
		return nil, errors.New("collab: room id is required")
	}

	payload, err := r.client.Get(ctx, r.key(req.RoomID)).Bytes()
	var content *models.Content
	switch {
	case errors.Is(err, redis.Nil):
	case err != nil:
		return nil, fmt.Errorf("collab: load room %s: %w", req.RoomID, err)
	default:
		plain, err := open(req.RoomID, req.RoomKey, payload)
		if err != nil {
			return nil, err
		}
		content, err = codec.Decode(plain)
		if err != nil {
			return nil, fmt.Errorf("collab: decode room %s: %w", req.RoomID, err)
		}
	}

	r.mu.Lock()
	r.roomID = req.RoomID
	r.activeDoc = ""
	r.session++
	r.mu.Unlock()

	r.logger.Debug("collab: joined", slog.String("room", req.RoomID), slog.Bool("auto_join", req.AutoJoin))
	return content, nil
}

// Leave optionally flushes the snapshot to the room, then releases the session
// if no later join has replaced it.
func (r *RedisRooms) Leave(ctx context.Context, req gateway.LeaveRequest) error {
	defer func() {
		r.mu.Lock()
		if r.roomID == req.RoomID && r.session == req.Session {
			r.roomID = ""
			r.activeDoc = ""
		}
		r.mu.Unlock()
	}()

	if !req.FlushSave {
		return nil
	}
	return r.Save(ctx, req.RoomID, req.RoomKey, req.Snapshot)
}

// Save seals content into the room's storage and refreshes its TTL.
func (r *RedisRooms) Save(ctx context.Context, roomID, roomKey string, content models.Content) error {
	plain, err := codec.Encode(content)
	if err != nil {
		return fmt.Errorf("collab: encode snapshot: %w", err)
	}
	sealed, err := seal(roomID, roomKey, plain)
	if err != nil {
		return err
	}
	if err := r.client.Set(ctx, r.key(roomID), sealed, r.ttl).Err(); err != nil {
		return fmt.Errorf("collab: save room %s: %w", roomID, err)
	}
	return nil
}

// Close closes the Redis connection.
func (r *RedisRooms) Close() error {
	return r.client.Close()
}
