// Package notify delivers lifecycle notifications to the groups involved in
// a share: the dataset's admin group and stewards on one side, the requester
// group on the other.
package notify

import (
	"context"
	"fmt"
	"time"

	"github.com/gofrs/uuid"

	"github.com/datafoundry/shareflow/errors"
	"github.com/datafoundry/shareflow/share"
)

// Notifier is called by the controller and the maintenance routines at the
// lifecycle points users care about. Implementations must be safe for
// concurrent use. Notification failures never fail the triggering operation;
// callers log and continue.
type Notifier interface {
	ShareSubmitted(ctx context.Context, data *share.Data) error
	ShareApproved(ctx context.Context, data *share.Data) error
	ShareRejected(ctx context.Context, data *share.Data) error
	ShareRevoked(ctx context.Context, data *share.Data) error

	ExtensionSubmitted(ctx context.Context, data *share.Data) error
	ExtensionDecided(ctx context.Context, data *share.Data, approved bool) error

	// ShareExpirationToOwners reminds the dataset side that a share with a
	// pending extension request is about to expire.
	ShareExpirationToOwners(ctx context.Context, data *share.Data, expiry time.Time) error
	// ShareExpirationToRequesters warns the requester group that the share's
	// lease ends at expiry.
	ShareExpirationToRequesters(ctx context.Context, data *share.Data, expiry time.Time) error
}

// Ensure type implements interface.
var _ Notifier = (*NopNotifier)(nil)

// NopNotifier is a no-op implementation of the Notifier interface.
type NopNotifier struct{}

func NewNopNotifier() *NopNotifier {
	return &NopNotifier{}
}

func (n *NopNotifier) ShareSubmitted(context.Context, *share.Data) error { return nil }
func (n *NopNotifier) ShareApproved(context.Context, *share.Data) error  { return nil }
func (n *NopNotifier) ShareRejected(context.Context, *share.Data) error  { return nil }
func (n *NopNotifier) ShareRevoked(context.Context, *share.Data) error   { return nil }
func (n *NopNotifier) ExtensionSubmitted(context.Context, *share.Data) error {
	return nil
}
func (n *NopNotifier) ExtensionDecided(context.Context, *share.Data, bool) error {
	return nil
}
func (n *NopNotifier) ShareExpirationToOwners(context.Context, *share.Data, time.Time) error {
	return nil
}
func (n *NopNotifier) ShareExpirationToRequesters(context.Context, *share.Data, time.Time) error {
	return nil
}

// Store is the slice of the controller store the store-backed notifier
// needs.
type Store interface {
	CreateNotification(tx share.Transaction, n *share.Notification) error
}

// Ensure type implements interface.
var _ Notifier = (*StoreNotifier)(nil)

// StoreNotifier persists one notification row per recipient group. The rows
// are what an inbox surface reads; delivery beyond the table (email, chat) is
// out of scope here.
type StoreNotifier struct {
	trans share.Transactor
	store Store
}

func NewStoreNotifier(trans share.Transactor, store Store) *StoreNotifier {
	return &StoreNotifier{
		trans: trans,
		store: store,
	}
}

func (n *StoreNotifier) ShareSubmitted(ctx context.Context, data *share.Data) error {
	msg := fmt.Sprintf("group %s submitted share request %s for dataset %s",
		data.Share.GroupURI, data.Share.ShareURI, data.Dataset.Name)
	return n.create(ctx, data, share.NotificationShareSubmitted, msg, ownerRecipients(data))
}

func (n *StoreNotifier) ShareApproved(ctx context.Context, data *share.Data) error {
	msg := fmt.Sprintf("share request %s for dataset %s was approved",
		data.Share.ShareURI, data.Dataset.Name)
	return n.create(ctx, data, share.NotificationShareApproved, msg, requesterRecipients(data))
}

func (n *StoreNotifier) ShareRejected(ctx context.Context, data *share.Data) error {
	msg := fmt.Sprintf("share request %s for dataset %s was rejected",
		data.Share.ShareURI, data.Dataset.Name)
	return n.create(ctx, data, share.NotificationShareRejected, msg, requesterRecipients(data))
}

func (n *StoreNotifier) ShareRevoked(ctx context.Context, data *share.Data) error {
	msg := fmt.Sprintf("items of share %s for dataset %s are being revoked",
		data.Share.ShareURI, data.Dataset.Name)
	return n.create(ctx, data, share.NotificationShareRevoked, msg, requesterRecipients(data))
}

func (n *StoreNotifier) ExtensionSubmitted(ctx context.Context, data *share.Data) error {
	msg := fmt.Sprintf("group %s requested an extension of share %s for dataset %s",
		data.Share.GroupURI, data.Share.ShareURI, data.Dataset.Name)
	return n.create(ctx, data, share.NotificationShareExtensionPending, msg, ownerRecipients(data))
}

func (n *StoreNotifier) ExtensionDecided(ctx context.Context, data *share.Data, approved bool) error {
	verdict := "rejected"
	if approved {
		verdict = "approved"
	}
	msg := fmt.Sprintf("the extension of share %s for dataset %s was %s",
		data.Share.ShareURI, data.Dataset.Name, verdict)
	return n.create(ctx, data, share.NotificationShareExtensionDecided, msg, requesterRecipients(data))
}

func (n *StoreNotifier) ShareExpirationToOwners(ctx context.Context, data *share.Data, expiry time.Time) error {
	msg := fmt.Sprintf("share %s for dataset %s expires on %s and has a pending extension request",
		data.Share.ShareURI, data.Dataset.Name, expiry.Format("2006-01-02"))
	return n.create(ctx, data, share.NotificationShareExpiring, msg, ownerRecipients(data))
}

func (n *StoreNotifier) ShareExpirationToRequesters(ctx context.Context, data *share.Data, expiry time.Time) error {
	msg := fmt.Sprintf("share %s for dataset %s expires on %s",
		data.Share.ShareURI, data.Dataset.Name, expiry.Format("2006-01-02"))
	return n.create(ctx, data, share.NotificationShareExpiring, msg, requesterRecipients(data))
}

func (n *StoreNotifier) create(ctx context.Context, data *share.Data, typ share.NotificationType, msg string, recipients []string) error {
	fn := func(tx share.Transaction, writable bool) error {
		for _, recipient := range dedupe(recipients) {
			id, err := uuid.NewV4()
			if err != nil {
				return errors.Wrap(err, "generating notification uri")
			}
			notification := &share.Notification{
				NotificationURI: id.String(),
				Type:            typ,
				ShareURI:        data.Share.ShareURI,
				Recipient:       recipient,
				Message:         msg,
			}
			if err := n.store.CreateNotification(tx, notification); err != nil {
				return errors.Wrapf(err, "creating notification for '%s'", recipient)
			}
		}
		return nil
	}
	return share.RetryWithTx(ctx, n.trans, fn, true, 3)
}

// ownerRecipients is the dataset side of the request.
func ownerRecipients(data *share.Data) []string {
	out := []string{data.Dataset.AdminGroup}
	if data.Dataset.Stewards != "" {
		out = append(out, data.Dataset.Stewards)
	}
	return out
}

// requesterRecipients is the consuming side of the request.
func requesterRecipients(data *share.Data) []string {
	return []string{data.Share.GroupURI}
}

func dedupe(in []string) []string {
	seen := make(map[string]struct{}, len(in))
	out := make([]string, 0, len(in))
	for _, s := range in {
		if s == "" {
			continue
		}
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}
