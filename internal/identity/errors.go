package identity

import "errors"

var (
	// ErrInvalidAccountID means the account identifier is not exactly 12 digits.
	ErrInvalidAccountID = errors.New("invalid account id")

	// ErrBootstrapUnavailable means the bootstrap secret store was unreachable
	// or returned empty material.
	ErrBootstrapUnavailable = errors.New("bootstrap secrets unavailable")

	// ErrAssumeRoleDenied means both credential strategies failed for the account.
	ErrAssumeRoleDenied = errors.New("assume role denied")
)
