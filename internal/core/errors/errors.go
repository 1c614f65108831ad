// Package errors provides centralized error definitions for the relay.
// Errors are organized by domain to avoid duplication and provide consistent naming.
//
// Naming conventions:
//   - Exported errors (Err*): Use for errors that callers need to check with errors.Is
//   - All sentinel errors should be defined as variables, not inline errors.New calls
//   - Use fmt.Errorf with %w to wrap sentinel errors with context
package errors

import "errors"

// Media transport errors. These are transient and recovered by the delivery fallback chain.
var (
	// ErrMediaReferenceExpired indicates the server rejected a stale file reference.
	ErrMediaReferenceExpired = errors.New("media file reference expired")

	// ErrMediaEmpty indicates the server considers the referenced media empty.
	ErrMediaEmpty = errors.New("media empty")

	// ErrNoMedia indicates a message carries no media that can be sent or downloaded.
	ErrNoMedia = errors.New("no supported media")

	// ErrNoMediaDownloaded indicates none of the album items could be downloaded.
	ErrNoMediaDownloaded = errors.New("no album media downloaded")
)

// Delivery errors.
var (
	// ErrEmptyMessage indicates there is nothing to deliver (no text and no media).
	ErrEmptyMessage = errors.New("empty message")

	// ErrDeliveryFailed indicates every delivery strategy failed.
	ErrDeliveryFailed = errors.New("delivery failed")

	// ErrPeerNotFound indicates a chat id could not be resolved to an addressable peer.
	ErrPeerNotFound = errors.New("peer not found")
)

// Pipeline errors.
var (
	// ErrQueueClosed indicates the ingestion queue no longer accepts tasks.
	ErrQueueClosed = errors.New("queue closed")

	// ErrUnknownTask indicates a task carries neither a message nor an album.
	ErrUnknownTask = errors.New("unknown task kind")

	// ErrPipelineNotRunning indicates the relay workers have not started or have stopped.
	ErrPipelineNotRunning = errors.New("pipeline not running")

	// ErrTransportNotReady indicates the user session is not authenticated or not streaming updates.
	ErrTransportNotReady = errors.New("telegram session not ready")
)

// Configuration errors.
var (
	// ErrInvalidConfig indicates a process setting is out of range.
	ErrInvalidConfig = errors.New("invalid config")

	// ErrNoPairs indicates the pairs file holds no channel pairs.
	ErrNoPairs = errors.New("no channel pairs configured")

	// ErrInvalidPair indicates a channel pair is missing a required field.
	ErrInvalidPair = errors.New("invalid channel pair")

	// ErrDuplicatePair indicates two pairs share a source chat.
	ErrDuplicatePair = errors.New("duplicate source chat")
)

// Is is a convenience wrapper around errors.Is.
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// Join is a convenience wrapper around errors.Join.
func Join(errs ...error) error {
	return errors.Join(errs...)
}
