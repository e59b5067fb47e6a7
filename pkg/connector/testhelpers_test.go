// Copyright 2024-2026 Remi Philippe
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package connector

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/mattermost/mattermost/server/public/model"
	"github.com/rs/zerolog"

	"github.com/aiku/replybot/pkg/credstore"
)

// pngBytes is a 1x1 transparent PNG.
var pngBytes = []byte{
	0x89, 0x50, 0x4e, 0x47, 0x0d, 0x0a, 0x1a, 0x0a, 0x00, 0x00, 0x00, 0x0d,
	0x49, 0x48, 0x44, 0x52, 0x00, 0x00, 0x00, 0x01, 0x00, 0x00, 0x00, 0x01,
	0x08, 0x06, 0x00, 0x00, 0x00, 0x1f, 0x15, 0xc4, 0x89, 0x00, 0x00, 0x00,
	0x0a, 0x49, 0x44, 0x41, 0x54, 0x78, 0x9c, 0x63, 0x00, 0x01, 0x00, 0x00,
	0x05, 0x00, 0x01, 0x0d, 0x0a, 0x2d, 0xb4, 0x00, 0x00, 0x00, 0x00, 0x49,
	0x45, 0x4e, 0x44, 0xae, 0x42, 0x60, 0x82,
}

// memStore is an in-memory CredentialStore.
type memStore struct {
	mu    sync.Mutex
	creds credstore.Credentials
	ok    bool
	saves int
}

func (s *memStore) Load() (credstore.Credentials, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.creds, s.ok, nil
}

func (s *memStore) Save(creds credstore.Credentials) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.creds, s.ok = creds, true
	s.saves++
	return nil
}

func (s *memStore) Saved() (credstore.Credentials, int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.creds, s.saves
}

// endpointCall records which API endpoints were hit during a test.
type endpointCall struct {
	Method string
	Path   string
	Body   string
}

// fakeMM is a test helper that wraps an httptest.Server simulating the
// Mattermost API and WebSocket. It records calls and provides canned
// responses.
type fakeMM struct {
	Server *httptest.Server

	mu    sync.Mutex
	calls []endpointCall
	conns []*websocket.Conn

	// Users maps user ID to model.User for GetMe responses.
	Users map[string]*model.User
	// TokenToUser maps bearer tokens to user IDs for GetMe auth.
	TokenToUser map[string]string
	// Passwords maps login IDs to "password:token" pairs for Login.
	Passwords map[string]string
	// Teams maps user ID to team list.
	Teams map[string][]*model.Team
	// FailEndpoints causes specific path prefixes to return 500.
	FailEndpoints map[string]bool
}

func newFakeMM() *fakeMM {
	f := &fakeMM{
		Users:         make(map[string]*model.User),
		TokenToUser:   make(map[string]string),
		Passwords:     make(map[string]string),
		Teams:         make(map[string][]*model.Team),
		FailEndpoints: make(map[string]bool),
	}
	f.Server = httptest.NewServer(http.HandlerFunc(f.handler))
	return f
}

// newFakeMMWithBot returns a fake server knowing a single account "bot-id"
// with token "test-token" in team "team-1".
func newFakeMMWithBot() *fakeMM {
	f := newFakeMM()
	f.Users["bot-id"] = &model.User{Id: "bot-id", Username: "replybot"}
	f.TokenToUser["test-token"] = "bot-id"
	f.Teams["bot-id"] = []*model.Team{{Id: "team-1", Name: "main"}}
	return f
}

func (f *fakeMM) Close() {
	f.DropConnections()
	f.Server.Close()
}

func (f *fakeMM) record(method, path, body string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, endpointCall{Method: method, Path: path, Body: body})
}

func (f *fakeMM) Calls() []endpointCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := make([]endpointCall, len(f.calls))
	copy(cp, f.calls)
	return cp
}

func (f *fakeMM) CalledPath(path string) bool {
	for _, c := range f.Calls() {
		if strings.Contains(c.Path, path) {
			return true
		}
	}
	return false
}

// Posts returns the posts created through the API.
func (f *fakeMM) Posts() []*model.Post {
	var posts []*model.Post
	for _, c := range f.Calls() {
		if c.Method == http.MethodPost && c.Path == "/api/v4/posts" {
			p := &model.Post{}
			_ = json.Unmarshal([]byte(c.Body), p)
			posts = append(posts, p)
		}
	}
	return posts
}

func (f *fakeMM) resolveToken(r *http.Request) string {
	auth := r.Header.Get("Authorization")
	for tok, uid := range f.TokenToUser {
		if auth == "BEARER "+tok || auth == "Bearer "+tok {
			return uid
		}
	}
	return ""
}

func writeAppError(w http.ResponseWriter, status int, msg string) {
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]any{"message": msg, "status_code": status})
}

var upgrader = websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }}

func (f *fakeMM) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	f.mu.Lock()
	f.conns = append(f.conns, conn)
	f.mu.Unlock()
	// Drain client frames (authentication challenge, pings) until closed.
	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
}

// WaitConnections blocks until n WebSocket clients are connected.
func (f *fakeMM) WaitConnections(t *testing.T, n int) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		f.mu.Lock()
		got := len(f.conns)
		f.mu.Unlock()
		if got >= n {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %d websocket connections", n)
}

// PushPosted sends a posted event to every connected WebSocket client.
func (f *fakeMM) PushPosted(t *testing.T, post *model.Post, senderName string) {
	t.Helper()
	postJSON, err := json.Marshal(post)
	if err != nil {
		t.Fatal(err)
	}
	evt := model.NewWebSocketEvent(model.WebsocketEventPosted, "", post.ChannelId, "", nil, "")
	evt = evt.SetData(map[string]any{
		"post":        string(postJSON),
		"sender_name": senderName,
	})
	data, err := evt.ToJSON()
	if err != nil {
		t.Fatal(err)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, conn := range f.conns {
		if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
			t.Fatalf("failed to push event: %v", err)
		}
	}
}

// DropConnections closes every WebSocket connection.
func (f *fakeMM) DropConnections() {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, conn := range f.conns {
		_ = conn.Close()
	}
	f.conns = nil
}

func (f *fakeMM) handler(w http.ResponseWriter, r *http.Request) {
	path := r.URL.Path
	if path == "/api/v4/websocket" {
		f.record(r.Method, path, "")
		f.handleWebSocket(w, r)
		return
	}

	body, _ := io.ReadAll(r.Body)
	f.record(r.Method, path, string(body))

	// Check if this endpoint should fail.
	for prefix := range f.FailEndpoints {
		if strings.Contains(path, prefix) {
			writeAppError(w, http.StatusInternalServerError, "fake error")
			return
		}
	}

	switch {
	// GET /api/v4/users/me
	case r.Method == http.MethodGet && path == "/api/v4/users/me":
		uid := f.resolveToken(r)
		if uid == "" {
			writeAppError(w, http.StatusUnauthorized, "invalid or expired session")
			return
		}
		if u, ok := f.Users[uid]; ok {
			_ = json.NewEncoder(w).Encode(u)
			return
		}
		w.WriteHeader(http.StatusNotFound)

	// POST /api/v4/users/login
	case r.Method == http.MethodPost && path == "/api/v4/users/login":
		var req map[string]string
		_ = json.Unmarshal(body, &req)
		entry, ok := f.Passwords[req["login_id"]]
		password, token, _ := strings.Cut(entry, ":")
		if !ok || password != req["password"] {
			writeAppError(w, http.StatusUnauthorized, "invalid login")
			return
		}
		uid := f.TokenToUser[token]
		w.Header().Set("Token", token)
		_ = json.NewEncoder(w).Encode(f.Users[uid])

	// GET /api/v4/users/{user_id}/teams
	case r.Method == http.MethodGet && strings.HasPrefix(path, "/api/v4/users/") && strings.HasSuffix(path, "/teams"):
		parts := strings.Split(path, "/")
		// /api/v4/users/{uid}/teams
		if len(parts) >= 5 {
			if teams, ok := f.Teams[parts[4]]; ok {
				_ = json.NewEncoder(w).Encode(teams)
				return
			}
		}
		_ = json.NewEncoder(w).Encode([]*model.Team{})

	// POST /api/v4/posts
	case r.Method == http.MethodPost && path == "/api/v4/posts":
		if f.resolveToken(r) == "" {
			writeAppError(w, http.StatusUnauthorized, "invalid or expired session")
			return
		}
		var post model.Post
		_ = json.Unmarshal(body, &post)
		post.Id = "created-post-id"
		w.WriteHeader(http.StatusCreated)
		_ = json.NewEncoder(w).Encode(&post)

	// POST /api/v4/files (upload)
	case r.Method == http.MethodPost && path == "/api/v4/files":
		w.WriteHeader(http.StatusCreated)
		_ = json.NewEncoder(w).Encode(&model.FileUploadResponse{
			FileInfos: []*model.FileInfo{{Id: "uploaded-file-id", Name: "upload"}},
		})

	// GET /images/{name}: remote images referenced by image replies.
	case r.Method == http.MethodGet && strings.HasPrefix(path, "/images/"):
		w.Header().Set("Content-Type", "image/png")
		_, _ = w.Write(pngBytes)

	default:
		writeAppError(w, http.StatusNotFound, "not found: "+path)
	}
}

// newTestTransport creates a MattermostTransport pointed at a fake server.
func newTestTransport(serverURL string, store CredentialStore) *MattermostTransport {
	return NewMattermostTransport(MattermostConfig{
		ServerURL: serverURL,
		Token:     "test-token",
		BotPrefix: "bot_",
	}, store, nil, 0, zerolog.Nop())
}

// nextEvent waits for the next event of type T, skipping others.
func nextEvent[T Event](t *testing.T, tr Transport) T {
	t.Helper()
	timeout := time.After(5 * time.Second)
	for {
		select {
		case evt := <-tr.Events():
			if typed, ok := evt.(T); ok {
				return typed
			}
		case <-timeout:
			var zero T
			t.Fatalf("timed out waiting for %T", zero)
			return zero
		}
	}
}
