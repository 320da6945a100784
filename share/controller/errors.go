package controller

import (
	"fmt"

	"github.com/datafoundry/shareflow/errors"
	"github.com/datafoundry/shareflow/share"
)

const (
	ErrShareExists         errors.Code = "ShareExists"
	ErrShareItemExists     errors.Code = "ShareItemExists"
	ErrEmptyShare          errors.Code = "EmptyShare"
	ErrSharedItemsExist    errors.Code = "SharedItemsExist"
	ErrItemsPendingReApply errors.Code = "ItemsPendingReApply"
	ErrGroupNotOnboarded   errors.Code = "GroupNotOnboarded"
	ErrInvalidPrincipal    errors.Code = "InvalidPrincipal"
	ErrInvalidExpiration   errors.Code = "InvalidExpiration"
	ErrUnknownDatasetType  errors.Code = "UnknownDatasetType"
)

// The following are helper functions for constructing coded errors containing
// relevant information about the specific error.

func NewErrShareItemExists(itemURI share.ItemURI) error {
	return errors.New(
		ErrShareItemExists,
		fmt.Sprintf("item '%s' is already part of the share request", itemURI),
	)
}

func NewErrEmptyShare(shareURI share.ShareURI) error {
	return errors.New(
		ErrEmptyShare,
		fmt.Sprintf("share '%s' has no items pending approval; add or amend items before submitting", shareURI),
	)
}

func NewErrSharedItemsExist(shareURI share.ShareURI) error {
	return errors.New(
		ErrSharedItemsExist,
		fmt.Sprintf("share '%s' has items that are shared or mid-operation; revoke access to them before deleting", shareURI),
	)
}

func NewErrItemsPendingReApply(shareURI share.ShareURI) error {
	return errors.New(
		ErrItemsPendingReApply,
		fmt.Sprintf("share '%s' has items pending re-apply; wait for the re-apply to complete before revoking", shareURI),
	)
}

func NewErrGroupNotOnboarded(group string, envURI share.EnvironmentURI) error {
	return errors.New(
		ErrGroupNotOnboarded,
		fmt.Sprintf("group '%s' is not onboarded to environment '%s'", group, envURI),
	)
}

func NewErrInvalidPrincipal(principalID string, reason string) error {
	return errors.New(
		ErrInvalidPrincipal,
		fmt.Sprintf("principal '%s' cannot receive this share: %s", principalID, reason),
	)
}

func NewErrInvalidExpiration(reason string) error {
	return errors.New(
		ErrInvalidExpiration,
		fmt.Sprintf("invalid expiration: %s", reason),
	)
}

func NewErrUnknownDatasetType(typ share.DatasetType) error {
	return errors.New(
		ErrUnknownDatasetType,
		fmt.Sprintf("no validator registered for dataset type '%s'", typ),
	)
}
