// internal/cache/redis.go
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// DefaultKeyPrefix namespaces the per-room action lists.
const DefaultKeyPrefix = "dotr:actions:"

// ActionRecord is one relayed action as kept in the room's log.
type ActionRecord struct {
	ID         uuid.UUID       `json:"id"`
	RoomID     string          `json:"roomId"`
	PlayerID   string          `json:"playerId"`
	Index      int64           `json:"index"`
	ActionType string          `json:"actionType"`
	Action     json.RawMessage `json:"action"`
	Timestamp  int64           `json:"timestamp"`
}

// Connect creates a Redis client and checks it answers a PING within five seconds.
func Connect(ctx context.Context, addr string, db int) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr: addr,
		DB:   db,
	})

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("failed to connect to Redis at %s: %w", addr, err)
	}
	return rdb, nil
}

// ActionLog keeps the actions relayed in each room in a Redis list. Every append
// pushes the list's expiry out to TTL, so a room's log lives exactly as long as
// its reconnection window after the last action.
type ActionLog struct {
	rdb    *redis.Client
	ttl    time.Duration
	prefix string
}

// NewActionLog wraps rdb. A zero ttl keeps logs until deleted.
func NewActionLog(rdb *redis.Client, ttl time.Duration) *ActionLog {
	return &ActionLog{rdb: rdb, ttl: ttl, prefix: DefaultKeyPrefix}
}

func (l *ActionLog) key(roomID string) string {
	return l.prefix + roomID
}

func (l *ActionLog) seqKey(roomID string) string {
	return l.prefix + roomID + ":seq"
}

// Append records an action relayed in roomID.
func (l *ActionLog) Append(ctx context.Context, roomID, playerID string, action json.RawMessage) (ActionRecord, error) {
	var head struct {
		Type string `json:"type"`
	}
	_ = json.Unmarshal(action, &head)

	key := l.key(roomID)
	seq, err := l.rdb.Incr(ctx, l.seqKey(roomID)).Result()
	if err != nil {
		return ActionRecord{}, fmt.Errorf("failed to allocate index in '%s': %w", key, err)
	}

	rec := ActionRecord{
		ID:         uuid.New(),
		RoomID:     roomID,
		PlayerID:   playerID,
		Index:      seq - 1,
		ActionType: head.Type,
		Action:     action,
		Timestamp:  time.Now().UnixMilli(),
	}
	data, err := json.Marshal(rec)
	if err != nil {
		return ActionRecord{}, fmt.Errorf("failed to marshal ActionRecord: %w", err)
	}

	_, err = l.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.RPush(ctx, key, data)
		if l.ttl > 0 {
			pipe.Expire(ctx, key, l.ttl)
			pipe.Expire(ctx, l.seqKey(roomID), l.ttl)
		}
		return nil
	})
	if err != nil {
		return ActionRecord{}, fmt.Errorf("failed to RPush to Redis list '%s': %w", key, err)
	}
	return rec, nil
}

// List returns roomID's log ordered by index. A missing room yields an empty list.
func (l *ActionLog) List(ctx context.Context, roomID string) ([]ActionRecord, error) {
	items, err := l.rdb.LRange(ctx, l.key(roomID), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read action log for room %s: %w", roomID, err)
	}
	out := make([]ActionRecord, 0, len(items))
	for _, item := range items {
		var rec ActionRecord
		if err := json.Unmarshal([]byte(item), &rec); err != nil {
			return nil, fmt.Errorf("corrupt action record in room %s: %w", roomID, err)
		}
		out = append(out, rec)
	}
	// Concurrent appends may push in a different order than they were indexed.
	sort.SliceStable(out, func(i, j int) bool { return out[i].Index < out[j].Index })
	return out, nil
}

// Delete drops roomID's log and its index counter.
func (l *ActionLog) Delete(ctx context.Context, roomID string) error {
	return l.rdb.Del(ctx, l.key(roomID), l.seqKey(roomID)).Err()
}
