// Copyright 2024-2026 Remi Philippe
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package connector

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"

	"github.com/mattermost/mattermost/server/public/model"
	"github.com/rs/zerolog"

	"github.com/aiku/replybot/pkg/credstore"
	"github.com/aiku/replybot/pkg/lifecycle"
)

// MattermostTransport is a single authenticated Mattermost session.
type MattermostTransport struct {
	session

	cfg          MattermostConfig
	store        CredentialStore
	http         *http.Client
	maxImageSize int64

	mu       sync.Mutex
	client   *model.Client4
	wsClient *model.WebSocketClient
	userID   string
	teamID   string

	closeOnce sync.Once
	log       zerolog.Logger
}

var _ Transport = (*MattermostTransport)(nil)

// NewMattermostTransport creates an unconnected Mattermost transport.
func NewMattermostTransport(cfg MattermostConfig, store CredentialStore, hc *http.Client, maxImageSize int64, log zerolog.Logger) *MattermostTransport {
	if hc == nil {
		hc = http.DefaultClient
	}
	if maxImageSize <= 0 {
		maxImageSize = DefaultMaxImageSize
	}
	return &MattermostTransport{
		session:      newSession(),
		cfg:          cfg,
		store:        store,
		http:         hc,
		maxImageSize: maxImageSize,
		log:          log.With().Str("component", "mm_client").Logger(),
	}
}

// Connect logs in, verifies the session and opens the WebSocket.
func (m *MattermostTransport) Connect(ctx context.Context) error {
	if err := m.live(ctx); err != nil {
		return err
	}
	m.setState(lifecycle.Connecting, 0, nil)
	m.log.Info().Str("server_url", m.cfg.ServerURL).Msg("Connecting to Mattermost")

	ctx, cancel := m.opContext(ctx)
	defer cancel()

	result, restored, err := m.login(ctx)
	if err != nil {
		return err
	}
	m.mu.Lock()
	m.client = result.Client
	m.userID = result.User.Id
	m.teamID = result.TeamID
	m.mu.Unlock()
	m.log.Info().
		Str("user_id", result.User.Id).
		Str("username", result.User.Username).
		Str("team_id", result.TeamID).
		Bool("restored", restored).
		Msg("Authenticated")

	if !restored {
		creds := credstore.Credentials{
			Network:   NetworkMattermost,
			ServerURL: m.cfg.ServerURL,
			Token:     result.Client.AuthToken,
			UserID:    result.User.Id,
			TeamID:    result.TeamID,
		}
		if err = m.store.Save(creds); err != nil {
			return fmt.Errorf("failed to save credentials: %w", err)
		}
		m.emit(CredentialsUpdated{Credentials: creds})
	}

	if err = m.connectWebSocket(); err != nil {
		m.log.Error().Err(err).Msg("WebSocket connection failed")
		return &lifecycle.StatusError{
			StatusCode: appErrorStatus(err, nil),
			Err:        fmt.Errorf("%w: %w", lifecycle.ErrHandshake, err),
		}
	}
	m.setState(lifecycle.Open, 0, nil)
	return nil
}

func (m *MattermostTransport) connectWebSocket() error {
	wsURL := httpToWS(m.cfg.ServerURL)
	ws, err := model.NewWebSocketClient4(wsURL, m.client.AuthToken)
	if err != nil {
		return fmt.Errorf("failed to create websocket client: %w", err)
	}
	m.mu.Lock()
	if m.ctx.Err() != nil {
		m.mu.Unlock()
		ws.Close()
		return lifecycle.ErrStaleSession
	}
	m.wsClient = ws
	m.mu.Unlock()
	ws.Listen()

	go m.listenWebSocket(ws)

	m.log.Info().Str("ws_url", wsURL).Msg("WebSocket connected")
	return nil
}

// httpToWS converts an HTTP(S) URL to a WS(S) URL.
func httpToWS(url string) string {
	if strings.HasPrefix(url, "https://") {
		return "wss://" + strings.TrimPrefix(url, "https://")
	}
	if strings.HasPrefix(url, "http://") {
		return "ws://" + strings.TrimPrefix(url, "http://")
	}
	return url
}

func (m *MattermostTransport) listenWebSocket(ws *model.WebSocketClient) {
	for {
		select {
		case <-m.ctx.Done():
			return
		case evt, ok := <-ws.EventChannel:
			if !ok {
				m.handleWebSocketDisconnect(ws)
				return
			}
			if evt == nil {
				continue
			}
			m.handleEvent(evt)
		}
	}
}

// handleWebSocketDisconnect reports the end of the session. Reconnecting is
// the lifecycle controller's decision, not the transport's.
func (m *MattermostTransport) handleWebSocketDisconnect(ws *model.WebSocketClient) {
	if m.ctx.Err() != nil {
		return
	}
	var status int
	var err error = errors.New("websocket closed")
	if ws.ListenError != nil {
		status = ws.ListenError.StatusCode
		err = ws.ListenError
	}
	m.log.Warn().Err(err).Int("status_code", status).Msg("WebSocket event channel closed")
	m.setState(lifecycle.Closed, status, err)
}

// SendText posts text into a channel.
func (m *MattermostTransport) SendText(ctx context.Context, channelID, text string) error {
	return m.createPost(ctx, &model.Post{ChannelId: channelID, Message: text})
}

// SendImage downloads the image at url and posts it as an attachment.
func (m *MattermostTransport) SendImage(ctx context.Context, channelID, url string) error {
	if err := m.live(ctx); err != nil {
		return err
	}
	ctx, cancel := m.opContext(ctx)
	defer cancel()

	client, err := m.apiClient()
	if err != nil {
		return err
	}
	img, err := fetchImage(ctx, m.http, url, m.maxImageSize)
	if err != nil {
		return fmt.Errorf("%w: %w", lifecycle.ErrSendFailure, err)
	}
	resp, _, err := client.UploadFile(ctx, img.Data, channelID, img.FileName)
	if err != nil {
		return m.sendError(ctx, fmt.Errorf("failed to upload to Mattermost: %w", err))
	}
	if len(resp.FileInfos) == 0 {
		return fmt.Errorf("%w: no file info returned from upload", lifecycle.ErrSendFailure)
	}
	return m.createPost(ctx, &model.Post{ChannelId: channelID, FileIds: []string{resp.FileInfos[0].Id}})
}

func (m *MattermostTransport) createPost(ctx context.Context, post *model.Post) error {
	if err := m.live(ctx); err != nil {
		return err
	}
	ctx, cancel := m.opContext(ctx)
	defer cancel()

	client, err := m.apiClient()
	if err != nil {
		return err
	}
	created, _, err := client.CreatePost(ctx, post)
	if err != nil {
		return m.sendError(ctx, fmt.Errorf("failed to create post: %w", err))
	}
	m.log.Debug().Str("post_id", created.Id).Str("channel_id", post.ChannelId).Msg("Sent post")
	return nil
}

func (m *MattermostTransport) apiClient() (*model.Client4, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.client == nil {
		return nil, fmt.Errorf("%w: not connected", lifecycle.ErrSendFailure)
	}
	return m.client, nil
}

// sendError maps a failed API call to ErrStaleSession when the session was
// closed mid-request, ErrSendFailure otherwise.
func (m *MattermostTransport) sendError(ctx context.Context, err error) error {
	if m.ctx.Err() != nil {
		return lifecycle.ErrStaleSession
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}
	return fmt.Errorf("%w: %w", lifecycle.ErrSendFailure, err)
}

// Close closes the WebSocket connection and stops the event loop.
func (m *MattermostTransport) Close() {
	m.closeOnce.Do(func() {
		m.cancel()
		m.mu.Lock()
		ws := m.wsClient
		m.wsClient = nil
		m.mu.Unlock()
		if ws != nil {
			ws.Close()
		}
	})
}

// UserID returns the ID of the logged-in account, empty before Connect.
func (m *MattermostTransport) UserID() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.userID
}

// TeamID returns the team the account was found in, if any.
func (m *MattermostTransport) TeamID() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.teamID
}
