package hub

import "errors"

// Sentinel errors for hub operations.
var (
	// ErrNotBootstrapped is returned before a session has been established.
	ErrNotBootstrapped = errors.New("hub: no session")

	// ErrServiceNotFound is returned when the object model lacks a service.
	ErrServiceNotFound = errors.New("hub: service not registered")

	// ErrActionRejected is returned when the hub answers success=false.
	ErrActionRejected = errors.New("hub: action rejected")

	// ErrPollIdle is returned when a long poll ends at its deadline without
	// an answer. The session is still valid.
	ErrPollIdle = errors.New("hub: long poll idle")

	// ErrBadResponse is returned for non-2xx statuses and undecodable bodies.
	ErrBadResponse = errors.New("hub: bad response")
)
