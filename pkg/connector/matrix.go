// Copyright 2024-2026 Aiku AI

package connector

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"maunium.net/go/mautrix"
	"maunium.net/go/mautrix/event"
	"maunium.net/go/mautrix/id"

	"github.com/aiku/replybot/pkg/connector/mattermostfmt"
	"github.com/aiku/replybot/pkg/credstore"
	"github.com/aiku/replybot/pkg/lifecycle"
)

// MatrixTransport is a single Matrix client session.
type MatrixTransport struct {
	session

	cfg          MatrixConfig
	store        CredentialStore
	http         *http.Client
	maxImageSize int64

	mu  sync.Mutex
	cli *mautrix.Client

	closeOnce sync.Once
	log       zerolog.Logger
}

var _ Transport = (*MatrixTransport)(nil)

// NewMatrixTransport creates an unconnected Matrix transport.
func NewMatrixTransport(cfg MatrixConfig, store CredentialStore, hc *http.Client, maxImageSize int64, log zerolog.Logger) *MatrixTransport {
	if hc == nil {
		hc = http.DefaultClient
	}
	if maxImageSize <= 0 {
		maxImageSize = DefaultMaxImageSize
	}
	return &MatrixTransport{
		session:      newSession(),
		cfg:          cfg,
		store:        store,
		http:         hc,
		maxImageSize: maxImageSize,
		log:          log.With().Str("component", "matrix_client").Logger(),
	}
}

// Connect logs in, verifies the access token and starts the sync loop.
func (t *MatrixTransport) Connect(ctx context.Context) error {
	if err := t.live(ctx); err != nil {
		return err
	}
	t.setState(lifecycle.Connecting, 0, nil)
	t.log.Info().Str("homeserver_url", t.cfg.HomeserverURL).Msg("Connecting to Matrix")

	ctx, cancel := t.opContext(ctx)
	defer cancel()

	cli, restored, err := t.login(ctx)
	if err != nil {
		return err
	}
	t.log.Info().
		Stringer("user_id", cli.UserID).
		Stringer("device_id", cli.DeviceID).
		Bool("restored", restored).
		Msg("Authenticated")

	if !restored {
		creds := credstore.Credentials{
			Network:   NetworkMatrix,
			ServerURL: t.cfg.HomeserverURL,
			Token:     cli.AccessToken,
			UserID:    cli.UserID.String(),
			DeviceID:  cli.DeviceID.String(),
		}
		if err = t.store.Save(creds); err != nil {
			return fmt.Errorf("failed to save credentials: %w", err)
		}
		t.emit(CredentialsUpdated{Credentials: creds})
	}

	syncer := &closingSyncer{mautrix.NewDefaultSyncer()}
	cli.Syncer = syncer
	// Only answer messages that arrive after startup.
	syncer.OnSync(cli.DontProcessOldEvents)
	syncer.OnEventType(event.EventMessage, t.handleMessage)

	t.mu.Lock()
	if t.ctx.Err() != nil {
		t.mu.Unlock()
		return lifecycle.ErrStaleSession
	}
	t.cli = cli
	t.mu.Unlock()

	go t.syncLoop(cli)
	t.setState(lifecycle.Open, 0, nil)
	return nil
}

func (t *MatrixTransport) login(ctx context.Context) (*mautrix.Client, bool, error) {
	creds, ok, err := t.store.Load()
	if err != nil {
		t.log.Warn().Err(err).Msg("Failed to load stored credentials, logging in again")
		ok = false
	}
	restored := ok && creds.Valid() && creds.Network == NetworkMatrix && creds.ServerURL == t.cfg.HomeserverURL

	var cli *mautrix.Client
	switch {
	case restored:
		cli, err = mautrix.NewClient(t.cfg.HomeserverURL, id.UserID(creds.UserID), creds.Token)
		if err == nil {
			cli.DeviceID = id.DeviceID(creds.DeviceID)
		}
	case t.cfg.AccessToken != "":
		cli, err = mautrix.NewClient(t.cfg.HomeserverURL, id.UserID(t.cfg.UserID), t.cfg.AccessToken)
	default:
		cli, err = mautrix.NewClient(t.cfg.HomeserverURL, "", "")
	}
	if err != nil {
		return nil, false, fmt.Errorf("%w: failed to create client: %w", lifecycle.ErrHandshake, err)
	}
	cli.Client = t.http
	cli.Log = t.log

	if !restored && t.cfg.AccessToken == "" {
		_, err = cli.Login(ctx, &mautrix.ReqLogin{
			Type: mautrix.AuthTypePassword,
			Identifier: mautrix.UserIdentifier{
				Type: mautrix.IdentifierTypeUser,
				User: t.cfg.UserID,
			},
			Password:                 t.cfg.Password,
			InitialDeviceDisplayName: t.cfg.DeviceName,
			StoreCredentials:         true,
		})
		if err != nil {
			return nil, false, matrixHandshakeError(fmt.Errorf("login failed: %w", err))
		}
	}

	whoami, err := cli.Whoami(ctx)
	if err != nil {
		return nil, false, matrixHandshakeError(fmt.Errorf("authentication failed: %w", err))
	}
	cli.UserID = whoami.UserID
	if whoami.DeviceID != "" {
		cli.DeviceID = whoami.DeviceID
	}
	return cli, restored, nil
}

// closingSyncer ends the sync loop on the first failed /sync so the session
// closes with the failure's status code instead of retrying in place.
type closingSyncer struct {
	*mautrix.DefaultSyncer
}

func (s *closingSyncer) OnFailedSync(_ *mautrix.RespSync, err error) (time.Duration, error) {
	return 0, err
}

func (t *MatrixTransport) syncLoop(cli *mautrix.Client) {
	err := cli.SyncWithContext(t.ctx)
	if t.ctx.Err() != nil {
		return
	}
	if err == nil {
		err = errors.New("sync stopped")
	}
	status := matrixStatus(err)
	t.log.Warn().Err(err).Int("status_code", status).Msg("Sync loop ended")
	t.setState(lifecycle.Closed, status, err)
}

// SendText sends text as an m.text message, rendering markdown to HTML.
func (t *MatrixTransport) SendText(ctx context.Context, roomID, text string) error {
	return t.send(ctx, roomID, mattermostfmt.Render(text))
}

// SendImage downloads the image at url, uploads it to the media repository
// and sends it as an m.image message.
func (t *MatrixTransport) SendImage(ctx context.Context, roomID, url string) error {
	if err := t.live(ctx); err != nil {
		return err
	}
	ctx, cancel := t.opContext(ctx)
	defer cancel()

	cli, err := t.client()
	if err != nil {
		return err
	}
	img, err := fetchImage(ctx, t.http, url, t.maxImageSize)
	if err != nil {
		return fmt.Errorf("%w: %w", lifecycle.ErrSendFailure, err)
	}
	resp, err := cli.UploadBytesWithName(ctx, img.Data, img.ContentType, img.FileName)
	if err != nil {
		return t.sendError(ctx, fmt.Errorf("failed to upload media: %w", err))
	}
	return t.send(ctx, roomID, &event.MessageEventContent{
		MsgType: event.MsgImage,
		Body:    img.FileName,
		URL:     resp.ContentURI.CUString(),
		Info: &event.FileInfo{
			MimeType: img.ContentType,
			Size:     len(img.Data),
		},
	})
}

func (t *MatrixTransport) send(ctx context.Context, roomID string, content *event.MessageEventContent) error {
	if err := t.live(ctx); err != nil {
		return err
	}
	ctx, cancel := t.opContext(ctx)
	defer cancel()

	cli, err := t.client()
	if err != nil {
		return err
	}
	resp, err := cli.SendMessageEvent(ctx, id.RoomID(roomID), event.EventMessage, content)
	if err != nil {
		return t.sendError(ctx, fmt.Errorf("failed to send message: %w", err))
	}
	t.log.Debug().Stringer("event_id", resp.EventID).Str("room_id", roomID).Msg("Sent message")
	return nil
}

func (t *MatrixTransport) client() (*mautrix.Client, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.cli == nil {
		return nil, fmt.Errorf("%w: not connected", lifecycle.ErrSendFailure)
	}
	return t.cli, nil
}

func (t *MatrixTransport) sendError(ctx context.Context, err error) error {
	if t.ctx.Err() != nil {
		return lifecycle.ErrStaleSession
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}
	return fmt.Errorf("%w: %w", lifecycle.ErrSendFailure, err)
}

// Close stops the sync loop.
func (t *MatrixTransport) Close() {
	t.closeOnce.Do(func() {
		t.cancel()
		t.mu.Lock()
		cli := t.cli
		t.mu.Unlock()
		if cli != nil {
			cli.StopSync()
		}
	})
}
