// Package chatstore persists room chat for the history endpoint.
package chatstore

import (
	"fmt"

	"github.com/dkeye/Conference/internal/core"
)

const DefaultHistoryLimit = 500

type Backend string

const (
	BackendMemory Backend = "memory"
	BackendRedis  Backend = "redis"
	BackendBadger Backend = "badger"
)

type Options struct {
	Backend       Backend
	HistoryLimit  int
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	BadgerPath    string
}

// Open builds the configured store.
func Open(opts Options) (core.ChatStore, error) {
	limit := opts.HistoryLimit
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}
	switch opts.Backend {
	case BackendMemory, "":
		return NewMemory(limit), nil
	case BackendRedis:
		return NewRedis(opts.RedisAddr, opts.RedisPassword, opts.RedisDB, limit), nil
	case BackendBadger:
		return OpenBadger(opts.BadgerPath, limit)
	default:
		return nil, fmt.Errorf("unknown chat store backend %q", opts.Backend)
	}
}
