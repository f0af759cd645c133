package main

import (
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/samber/lo"

	"github.com/dkeye/Conference/internal/chat"
	"github.com/dkeye/Conference/internal/view"
)

// renderer prints the room to a terminal. It implements session.Observer.
type renderer struct {
	mu      sync.Mutex
	w       io.Writer
	printed int
}

func newRenderer(w io.Writer) *renderer {
	return &renderer{w: w}
}

func (r *renderer) OnView(participants []view.Participant) {
	t := table.NewWriter()
	t.SetStyle(table.StyleLight)
	t.AppendHeader(table.Row{"", "Name", "Tile", "Media"})
	for _, p := range participants {
		marker := ""
		if p.Self {
			marker = "*"
		}
		kinds := lo.Map(p.Producers, func(pr view.Producer, _ int) string { return string(pr.Kind) })
		t.AppendRow(table.Row{marker, p.Name, p.Mode(), strings.Join(kinds, ",")})
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	fmt.Fprintln(r.w, t.Render())
}

// OnChat prints only messages past the ones already shown, with the sender
// repeated at the start of each bundle.
func (r *renderer) OnChat(bundles []chat.Bundle) {
	r.mu.Lock()
	defer r.mu.Unlock()
	idx := 0
	for _, b := range bundles {
		header := false
		for _, m := range b.Messages {
			idx++
			if idx <= r.printed {
				continue
			}
			if !header {
				fmt.Fprintf(r.w, "%s:\n", b.Sender.Name)
				header = true
			}
			fmt.Fprintf(r.w, "  [%s] %s\n", m.CreatedAt.Local().Format("15:04"), m.Text)
		}
	}
	r.printed = max(r.printed, idx)
}

func (r *renderer) OnNotice(message string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	fmt.Fprintf(r.w, "* %s\n", message)
}
