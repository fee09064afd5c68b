// Package domain holds the campaign, backlink and website models shared by the indexer packages.
package domain

import "errors"

var (
	// ErrNotFound is returned when a row does not exist.
	ErrNotFound = errors.New("entity not found")

	// ErrInvalidStatus is returned for a status literal outside the closed enum.
	ErrInvalidStatus = errors.New("invalid status")

	// ErrNoBacklinks is returned when a campaign owns zero backlinks.
	ErrNoBacklinks = errors.New("no backlinks to process")

	// ErrLeaseHeld is returned when another invocation owns the campaign lease.
	ErrLeaseHeld = errors.New("campaign already running")
)
