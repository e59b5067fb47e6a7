// Copyright 2024-2026 Remi Philippe
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

// Package trigger holds the rule registry that decides which replies an
// inbound message earns.
//
// A [Registry] is built in two phases. During startup rules are declared,
// either in code through the builder API or from the YAML config via [Load]:
//
//	reg := trigger.NewRegistry()
//	reg.Receive("hi").Reply("hello")
//	reg.Similar("good morning", 0.8).ReplyImage("https://example.com/sun.png")
//	reg.Default().Reply("sorry, I don't understand")
//	reg.Seal()
//
// After [Registry.Seal] the registry is read-only and [Registry.Match] may be
// called from any goroutine.
//
// # Matching
//
// Every rule is evaluated on its own; a single message may match several
// rules and all of them are returned in registration order. Exact rules
// compare byte for byte. Fuzzy rules accept the input when the similarity
// oracle scores it at or above the rule's threshold. The default oracle is
// [Levenshtein].
package trigger
