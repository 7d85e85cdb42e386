// Package common defines sentinel errors shared by the chat core. Callers
// should use errors.Is to match these values.
package common

import "errors"

var (
	// Handshake and token errors.
	ErrAuthInvalid      = errors.New("invalid authentication")
	ErrAlreadyConnected = errors.New("already connected")
	ErrUnknownUser      = errors.New("unknown user")

	// Session lookups that reference nothing live.
	ErrUnknownConnection = errors.New("unknown connection")
	ErrUnknownSession    = errors.New("unknown session")

	// Repository-level errors.
	ErrNotFound         = errors.New("not found")
	ErrAlreadyExists    = errors.New("already exists")
	ErrStoreUnavailable = errors.New("store unavailable")

	// Authorization.
	ErrForbidden = errors.New("forbidden")

	// File transfer.
	ErrTransferIO = errors.New("transfer io error")

	// Wire protocol.
	ErrUnknownEvent = errors.New("unknown event")
)
