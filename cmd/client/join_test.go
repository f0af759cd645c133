package main

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/dkeye/Conference/internal/chat"
	"github.com/dkeye/Conference/internal/domain"
	"github.com/dkeye/Conference/internal/view"
)

func TestSignalURL(t *testing.T) {
	req := require.New(t)

	cases := map[string]string{
		"http://localhost:8080":       "ws://localhost:8080/api/ws/signal",
		"https://meet.example.com/":   "wss://meet.example.com/api/ws/signal",
		"http://host/conference?x=1":  "ws://host/conference/api/ws/signal",
		"ws://already.example.com:90": "ws://already.example.com:90/api/ws/signal",
	}
	for in, want := range cases {
		got, err := signalURL(in)
		req.NoError(err, in)
		req.Equal(want, got, in)
	}

	_, err := signalURL("ftp://host")
	req.Error(err)
}

func TestRenderer_ChatPrintsOnlyNewMessages(t *testing.T) {
	req := require.New(t)

	// Given
	var buf bytes.Buffer
	r := newRenderer(&buf)
	alice := domain.Peer{ID: "u1", Name: "Alice"}
	at := time.Date(2026, 10, 19, 9, 0, 0, 0, time.UTC)
	first := domain.ChatMessage{Sender: alice, Text: "hello", CreatedAt: at}
	second := domain.ChatMessage{Sender: alice, Text: "anyone?", CreatedAt: at.Add(time.Minute)}
	r.OnChat(chat.Bundles([]domain.ChatMessage{first}))
	buf.Reset()

	// When
	r.OnChat(chat.Bundles([]domain.ChatMessage{first, second}))

	// Then
	req.Contains(buf.String(), "Alice:")
	req.Contains(buf.String(), "anyone?")
	req.NotContains(buf.String(), "hello")
}

func TestRenderer_ViewMarksSelf(t *testing.T) {
	req := require.New(t)

	// Given
	var buf bytes.Buffer
	r := newRenderer(&buf)

	// When
	r.OnView([]view.Participant{
		{UserID: "u1", Name: "Alice", Self: true, Producers: []view.Producer{{Kind: domain.KindAudio}}},
		{UserID: "u2", Name: "Bob"},
	})

	// Then
	out := buf.String()
	req.Contains(out, "Alice")
	req.Contains(out, "Bob")
	req.Contains(out, "*")
	req.Contains(out, "audio")
}
