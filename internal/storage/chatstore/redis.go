package chatstore

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/dkeye/Conference/internal/domain"
)

// Redis keeps one list per room under chat:{room}.
type Redis struct {
	rc    *redis.Client
	limit int
}

func NewRedis(addr, password string, db, limit int) *Redis {
	return &Redis{
		rc:    redis.NewClient(&redis.Options{Addr: addr, Password: password, DB: db}),
		limit: limit,
	}
}

func redisKey(room domain.RoomID) string {
	return fmt.Sprintf("chat:%s", room)
}

func (r *Redis) Ping(ctx context.Context) error {
	return r.rc.Ping(ctx).Err()
}

func (r *Redis) Append(ctx context.Context, room domain.RoomID, msg domain.ChatMessage) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	key := redisKey(room)
	_, err = r.rc.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.RPush(ctx, key, data)
		p.LTrim(ctx, key, int64(-r.limit), -1)
		return nil
	})
	return err
}

func (r *Redis) History(ctx context.Context, room domain.RoomID) ([]domain.ChatMessage, error) {
	raw, err := r.rc.LRange(ctx, redisKey(room), 0, -1).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	out := make([]domain.ChatMessage, 0, len(raw))
	for _, item := range raw {
		var msg domain.ChatMessage
		if err := json.Unmarshal([]byte(item), &msg); err != nil {
			return nil, fmt.Errorf("decode chat entry: %w", err)
		}
		out = append(out, msg)
	}
	return out, nil
}

func (r *Redis) Close() error { return r.rc.Close() }
