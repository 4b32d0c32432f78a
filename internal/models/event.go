// Skywatch - AT Protocol Profile Change Monitoring
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/skywatch

package models

import (
	"github.com/goccy/go-json"
)

// Jetstream event kinds.
const (
	EventKindIdentity = "identity"
	EventKindCommit   = "commit"
	EventKindAccount  = "account"
)

// Commit operations.
const (
	CommitOperationCreate = "create"
	CommitOperationUpdate = "update"
	CommitOperationDelete = "delete"
)

// Collections Skywatch subscribes to.
const (
	CollectionProfile = "app.bsky.actor.profile"
	CollectionFollow  = "app.bsky.graph.follow"
)

// JetstreamEvent is a single frame from the Jetstream firehose.
// Exactly one of Identity or Commit is populated depending on Kind.
type JetstreamEvent struct {
	DID      string         `json:"did"`
	TimeUS   int64          `json:"time_us"`
	Kind     string         `json:"kind"`
	Identity *IdentityEvent `json:"identity,omitempty"`
	Commit   *CommitEvent   `json:"commit,omitempty"`
}

// IdentityEvent carries a handle change (or identity refresh) for a DID.
// Handle may be empty when the upstream could not resolve it.
type IdentityEvent struct {
	DID    string `json:"did"`
	Handle string `json:"handle,omitempty"`
	Seq    int64  `json:"seq"`
	Time   string `json:"time"`
}

// CommitEvent carries a repository record mutation.
// Record is left raw; the dispatcher decodes it per collection.
type CommitEvent struct {
	Rev        string          `json:"rev,omitempty"`
	Operation  string          `json:"operation"`
	Collection string          `json:"collection"`
	RKey       string          `json:"rkey,omitempty"`
	Record     json.RawMessage `json:"record,omitempty"`
	CID        string          `json:"cid,omitempty"`
}

// ProfileRecord is the decoded app.bsky.actor.profile record.
type ProfileRecord struct {
	Type        string   `json:"$type,omitempty"`
	DisplayName string   `json:"displayName,omitempty"`
	Avatar      *BlobRef `json:"avatar,omitempty"`
}

// AvatarRef returns the avatar CID link, or "" when no avatar is set.
func (r *ProfileRecord) AvatarRef() string {
	if r.Avatar == nil {
		return ""
	}
	return r.Avatar.Ref.Link
}

// BlobRef is an AT Protocol blob reference.
type BlobRef struct {
	Type     string  `json:"$type,omitempty"`
	Ref      CIDLink `json:"ref"`
	MimeType string  `json:"mimeType,omitempty"`
	Size     int64   `json:"size,omitempty"`
}

// CIDLink is the DAG-JSON encoding of a CID.
type CIDLink struct {
	Link string `json:"$link"`
}

// FollowRecord is the decoded app.bsky.graph.follow record.
type FollowRecord struct {
	Type      string `json:"$type,omitempty"`
	Subject   string `json:"subject"`
	CreatedAt string `json:"createdAt,omitempty"`
}

// OptionsUpdateMessage is the subscriber-sourced options payload sent to
// Jetstream as the first frame after connect (requireHello=true) and re-sent
// whenever the wanted DID set changes.
type OptionsUpdateMessage struct {
	Type    string         `json:"type"`
	Payload OptionsPayload `json:"payload"`
}

// OptionsPayload lists the collections and DIDs the subscriber wants.
// MaxMessageSizeBytes of 0 means no cap.
type OptionsPayload struct {
	WantedCollections   []string `json:"wantedCollections"`
	WantedDIDs          []string `json:"wantedDids"`
	MaxMessageSizeBytes int      `json:"maxMessageSizeBytes"`
}
