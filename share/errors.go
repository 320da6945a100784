package share

import (
	"fmt"

	"github.com/datafoundry/shareflow/errors"
)

const (
	ErrInvalidTransition errors.Code = "InvalidTransition"
	ErrUnknownAction     errors.Code = "UnknownAction"
	ErrRollupNotReady    errors.Code = "RollupNotReady"

	ErrShareNotFound       errors.Code = "ShareNotFound"
	ErrShareItemNotFound   errors.Code = "ShareItemNotFound"
	ErrDatasetNotFound     errors.Code = "DatasetNotFound"
	ErrEnvironmentNotFound errors.Code = "EnvironmentNotFound"

	ErrInvalidTransaction errors.Code = "InvalidTransaction"
)

// The following are helper functions for constructing coded errors containing
// relevant information about the specific error.

func NewErrInvalidTransition(action Action, from string) error {
	return errors.New(
		ErrInvalidTransition,
		fmt.Sprintf("action '%s' is not allowed from status '%s'; if a sharing or revoking is in progress wait until it completes and try again", action, from),
	)
}

func NewErrUnknownAction(action Action) error {
	return errors.New(
		ErrUnknownAction,
		fmt.Sprintf("unknown state machine action '%s'", action),
	)
}

func NewErrRollupNotReady(status ShareItemStatus) error {
	return errors.New(
		ErrRollupNotReady,
		fmt.Sprintf("cannot close processing cycle while an item is still '%s'", status),
	)
}

func NewErrShareNotFound(uri ShareURI) error {
	return errors.New(
		ErrShareNotFound,
		fmt.Sprintf("share '%s' does not exist", uri),
	)
}

func NewErrShareItemNotFound(uri ShareItemURI) error {
	return errors.New(
		ErrShareItemNotFound,
		fmt.Sprintf("share item '%s' does not exist", uri),
	)
}

func NewErrDatasetNotFound(uri DatasetURI) error {
	return errors.New(
		ErrDatasetNotFound,
		fmt.Sprintf("dataset '%s' does not exist", uri),
	)
}

func NewErrEnvironmentNotFound(uri EnvironmentURI) error {
	return errors.New(
		ErrEnvironmentNotFound,
		fmt.Sprintf("environment '%s' does not exist", uri),
	)
}

func NewErrInvalidTransaction(txType string) error {
	return errors.New(
		ErrInvalidTransaction,
		fmt.Sprintf("tx is not expected type: '%s'", txType),
	)
}
