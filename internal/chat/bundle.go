// Package chat orders room chat and groups it for display.
package chat

import (
	"slices"

	"github.com/dkeye/Conference/internal/domain"
)

// Bundle is a contiguous run of messages from one sender.
type Bundle struct {
	Sender   domain.Peer
	Messages []domain.ChatMessage
}

// Sorted returns a copy of msgs stable-sorted by CreatedAt ascending.
func Sorted(msgs []domain.ChatMessage) []domain.ChatMessage {
	out := slices.Clone(msgs)
	slices.SortStableFunc(out, func(a, b domain.ChatMessage) int {
		return a.CreatedAt.Compare(b.CreatedAt)
	})
	return out
}

// Bundles sorts msgs and groups runs that share a sender id.
func Bundles(msgs []domain.ChatMessage) []Bundle {
	sorted := Sorted(msgs)
	var out []Bundle
	for _, m := range sorted {
		if n := len(out); n > 0 && out[n-1].Sender.ID == m.Sender.ID {
			out[n-1].Messages = append(out[n-1].Messages, m)
			continue
		}
		out = append(out, Bundle{Sender: m.Sender, Messages: []domain.ChatMessage{m}})
	}
	return out
}
