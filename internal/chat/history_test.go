package chat

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/dkeye/Conference/internal/domain"
	"github.com/dkeye/Conference/internal/protocol"
)

func TestHTTPHistory_AppendThenFetch(t *testing.T) {
	req := require.New(t)

	// Given a server keeping chats per room path
	var (
		mu    sync.Mutex
		store = map[string][]domain.ChatMessage{}
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		defer mu.Unlock()
		switch r.Method {
		case http.MethodPost:
			var m domain.ChatMessage
			if err := json.NewDecoder(r.Body).Decode(&m); err != nil {
				w.WriteHeader(http.StatusBadRequest)
				return
			}
			store[r.URL.Path] = append(store[r.URL.Path], m)
			w.WriteHeader(http.StatusCreated)
		default:
			_ = json.NewEncoder(w).Encode(protocol.ChatHistory{Chats: store[r.URL.Path]})
		}
	}))
	defer srv.Close()
	h := NewHTTPHistory(srv.URL+"/", srv.Client())
	ctx := context.Background()

	// When
	req.NoError(h.Append(ctx, "room-1", msg(alice, "hello", 0)))
	got, err := h.Fetch(ctx, "room-1")

	// Then
	req.NoError(err)
	req.Len(got, 1)
	req.Equal("hello", got[0].Text)

	other, err := h.Fetch(ctx, "room-2")
	req.NoError(err)
	req.Empty(other)
}

func TestHTTPHistory_StatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	_, err := NewHTTPHistory(srv.URL, nil).Fetch(context.Background(), "r")
	require.ErrorContains(t, err, "status 500")
}
