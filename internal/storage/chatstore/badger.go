package chatstore

import (
	"context"
	"encoding/json"
	"fmt"
	"slices"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"

	"github.com/dkeye/Conference/internal/domain"
)

// Badger stores each message under chat:{len(room)}:{room}:{unixnano, 19 digits}:{uuid}
// so a prefix scan yields the room in time order. The length keeps a room id
// containing ':' from matching another room's prefix.
type Badger struct {
	db    *badger.DB
	limit int
}

// OpenBadger opens an on-disk store; an empty path keeps it in memory.
func OpenBadger(path string, limit int) (*Badger, error) {
	opts := badger.DefaultOptions(path).WithLoggingLevel(badger.ERROR)
	if path == "" {
		opts = opts.WithInMemory(true)
	}
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger: %w", err)
	}
	return &Badger{db: db, limit: limit}, nil
}

func badgerPrefix(room domain.RoomID) []byte {
	return []byte(fmt.Sprintf("chat:%d:%s:", len(room), room))
}

func (b *Badger) Append(_ context.Context, room domain.RoomID, msg domain.ChatMessage) error {
	key := fmt.Sprintf("%s%019d:%s", badgerPrefix(room), msg.CreatedAt.UnixNano(), uuid.NewString())
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	return b.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(key), data)
	})
}

// History returns the newest limit messages, oldest first.
func (b *Badger) History(_ context.Context, room domain.RoomID) ([]domain.ChatMessage, error) {
	var out []domain.ChatMessage
	err := b.db.View(func(txn *badger.Txn) error {
		prefix := badgerPrefix(room)
		options := badger.DefaultIteratorOptions
		options.Reverse = true
		options.Prefix = prefix
		it := txn.NewIterator(options)
		defer it.Close()

		// Seek past the largest possible timestamp, then walk back.
		for it.Seek(append(slices.Clone(prefix), 0xff)); it.ValidForPrefix(prefix); it.Next() {
			if len(out) == b.limit {
				break
			}
			err := it.Item().Value(func(value []byte) error {
				var msg domain.ChatMessage
				if err := json.Unmarshal(value, &msg); err != nil {
					return err
				}
				out = append(out, msg)
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	slices.Reverse(out)
	return out, nil
}

func (b *Badger) Close() error { return b.db.Close() }
