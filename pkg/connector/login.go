// Copyright 2024-2026 Aiku AI

package connector

import (
	"context"
	"errors"
	"fmt"

	"github.com/mattermost/mattermost/server/public/model"

	"github.com/aiku/replybot/pkg/lifecycle"
)

// loginResult holds the validated result of a login attempt.
type loginResult struct {
	User   *model.User
	TeamID string
	Client *model.Client4
}

// login restores the stored session if it belongs to the configured server,
// otherwise logs in with the configured token or password. The boolean
// reports whether stored credentials were used.
func (m *MattermostTransport) login(ctx context.Context) (*loginResult, bool, error) {
	creds, ok, err := m.store.Load()
	if err != nil {
		m.log.Warn().Err(err).Msg("Failed to load stored credentials, logging in again")
		ok = false
	}
	if ok && creds.Valid() && creds.Network == NetworkMattermost && creds.ServerURL == m.cfg.ServerURL {
		m.log.Debug().Str("user_id", creds.UserID).Msg("Restoring stored session")
		result, err := validateTokenLogin(ctx, m.cfg.ServerURL, creds.Token, creds.TeamID)
		return result, true, err
	}

	if m.cfg.Token != "" {
		result, err := validateTokenLogin(ctx, m.cfg.ServerURL, m.cfg.Token, "")
		return result, false, err
	}

	client := model.NewAPIv4Client(m.cfg.ServerURL)
	user, resp, err := client.Login(ctx, m.cfg.Username, m.cfg.Password)
	if err != nil {
		return nil, false, handshakeError(fmt.Errorf("login failed: %w", err), resp)
	}
	teamID, err := fetchFirstTeamID(ctx, client, user.Id)
	if err != nil {
		return nil, false, err
	}
	return &loginResult{User: user, TeamID: teamID, Client: client}, false, nil
}

// validateTokenLogin authenticates with the given serverURL and token and
// retrieves the user profile. The first team is looked up unless teamID is
// already known.
func validateTokenLogin(ctx context.Context, serverURL, token, teamID string) (*loginResult, error) {
	client := model.NewAPIv4Client(serverURL)
	client.SetToken(token)

	me, resp, err := client.GetMe(ctx, "")
	if err != nil {
		return nil, handshakeError(fmt.Errorf("authentication failed: %w", err), resp)
	}

	if teamID == "" {
		if teamID, err = fetchFirstTeamID(ctx, client, me.Id); err != nil {
			return nil, err
		}
	}

	return &loginResult{
		User:   me,
		TeamID: teamID,
		Client: client,
	}, nil
}

// fetchFirstTeamID fetches teams for a user and returns the first team's ID,
// or empty string if the user has no teams.
func fetchFirstTeamID(ctx context.Context, client *model.Client4, userID string) (string, error) {
	teams, resp, err := client.GetTeamsForUser(ctx, userID, "")
	if err != nil {
		return "", handshakeError(fmt.Errorf("failed to get teams: %w", err), resp)
	}
	if len(teams) > 0 {
		return teams[0].Id, nil
	}
	return "", nil
}

func handshakeError(err error, resp *model.Response) error {
	return &lifecycle.StatusError{
		StatusCode: appErrorStatus(err, resp),
		Err:        fmt.Errorf("%w: %w", lifecycle.ErrHandshake, err),
	}
}

// appErrorStatus returns the HTTP status behind a failed API call.
func appErrorStatus(err error, resp *model.Response) int {
	if resp != nil && resp.StatusCode != 0 {
		return resp.StatusCode
	}
	var appErr *model.AppError
	if errors.As(err, &appErr) {
		return appErr.StatusCode
	}
	return 0
}
