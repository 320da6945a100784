// Package sharing contains the engine that turns approved and revoked share
// requests into actual grants: it walks a share's items, hands each one to
// the processor registered for its shareable type, and records the outcome
// per item so that one failing item never blocks its siblings.
package sharing

import (
	"context"
	"fmt"
	"sync"

	"github.com/datafoundry/shareflow/errors"
	"github.com/datafoundry/shareflow/share"
)

const (
	ErrNoProcessor errors.Code = "NoProcessor"
)

func NewErrNoProcessor(typ share.ShareableType) error {
	return errors.New(
		ErrNoProcessor,
		fmt.Sprintf("no processor registered for shareable type '%s'", typ),
	)
}

// Processor grants, revokes and verifies access for one shareable type. The
// engine calls it once per item; implementations carry the AWS clients they
// need and must be safe for concurrent use.
type Processor interface {
	// Type returns the shareable type this processor handles.
	Type() share.ShareableType

	// GrantShare makes the item's asset accessible to the share's principal.
	// Granting an already-granted item must succeed (the engine replays
	// tasks).
	GrantShare(ctx context.Context, data *share.Data, item *share.ShareItem) error

	// RevokeShare withdraws the principal's access to the item's asset.
	// Revoking an already-revoked item must succeed.
	RevokeShare(ctx context.Context, data *share.Data, item *share.ShareItem) error

	// VerifyShare checks that the grant is intact, returning false plus a
	// human-readable finding when it is not.
	VerifyShare(ctx context.Context, data *share.Data, item *share.ShareItem) (bool, string, error)
}

// Registry maps shareable types to their processor.
type Registry struct {
	mu         sync.RWMutex
	processors map[share.ShareableType]Processor
}

func NewRegistry() *Registry {
	return &Registry{
		processors: make(map[share.ShareableType]Processor),
	}
}

// Register installs a processor for its shareable type, replacing any
// previous registration.
func (r *Registry) Register(p Processor) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.processors[p.Type()] = p
}

// Processor returns the processor for a shareable type.
func (r *Registry) Processor(typ share.ShareableType) (Processor, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.processors[typ]
	if !ok {
		return nil, NewErrNoProcessor(typ)
	}
	return p, nil
}
