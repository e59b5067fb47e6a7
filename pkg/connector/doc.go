// Copyright 2024-2026 Remi Philippe
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

// Package connector connects the responder to a chat network.
//
// Every network is exposed as a [Transport]: a single session that logs in,
// reports what happens on a buffered event channel and sends text or image
// replies into a conversation. A Transport is used once. When the session
// ends the caller closes it and asks the [Connector] for a fresh one.
//
// # Networks
//
// [MattermostTransport] talks to the Mattermost REST API v4 and listens on
// its WebSocket for posted events.
//
// [MatrixTransport] talks to a Matrix homeserver and receives room messages
// through the /sync loop.
//
// # Echo Prevention
//
// Posts written by the logged-in account are delivered with FromSelf set so
// the responder never answers itself. The Mattermost transport additionally
// drops system messages and posts from usernames carrying the configured bot
// prefix, which keeps two responders in one channel from talking to each
// other forever.
//
// # Sub-packages
//
//   - matrixfmt reduces inbound Matrix HTML to the plain text that rules match.
//   - mattermostfmt renders outbound markdown replies as Matrix HTML.
package connector
