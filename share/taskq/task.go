// Package taskq provides the asynchronous task queue that decouples the
// share controller from the sharing engine. Approving a share enqueues a
// task; a worker picks it up and drives the engine. Delivery is at least
// once: a task is acknowledged only after the handler returns, so a crash
// mid-task redelivers it and the engine's transitions absorb the replay.
package taskq

import (
	"encoding/json"

	"github.com/gofrs/uuid"

	"github.com/datafoundry/shareflow/share"
)

// Kind names the engine entry point a task targets.
type Kind string

const (
	KindShare   Kind = "share"
	KindRevoke  Kind = "revoke"
	KindVerify  Kind = "verify"
	KindReapply Kind = "reapply"
)

// Task is one unit of asynchronous work against a single share object.
type Task struct {
	ID       uuid.UUID      `json:"id"`
	Kind     Kind           `json:"kind"`
	ShareURI share.ShareURI `json:"shareUri"`

	// ItemURIs restricts verify and reapply tasks to a subset of the
	// share's items. Empty means all items.
	ItemURIs []share.ShareItemURI `json:"itemUris,omitempty"`
}

// NewTask builds a task with a fresh ID.
func NewTask(kind Kind, shareURI share.ShareURI, itemURIs ...share.ShareItemURI) Task {
	id, _ := uuid.NewV4()
	return Task{
		ID:       id,
		Kind:     kind,
		ShareURI: shareURI,
		ItemURIs: itemURIs,
	}
}

func (t Task) String() string {
	j, _ := json.Marshal(t) //nolint:errchkjson
	return string(j)
}
