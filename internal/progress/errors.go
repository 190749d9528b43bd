package progress

import (
	"errors"
	"fmt"

	"github.com/tonimelisma/learnsync/internal/remote"
)

// Sentinel errors. Every failure leaves memory and storage unchanged.
var (
	// ErrTransport wraps a rejected or timed-out remote call.
	ErrTransport = errors.New("progress: remote call failed")

	// ErrMalformedResponse wraps a remote answer that lacks required fields.
	ErrMalformedResponse = errors.New("progress: malformed remote response")

	// ErrNotVideo is returned when a video report targets a non-video item.
	ErrNotVideo = errors.New("progress: item is not a video")

	// ErrUnknownItem is returned when the item is not in the session.
	ErrUnknownItem = errors.New("progress: unknown item")

	// ErrNegativeDelta is returned for a negative seconds-watched delta.
	ErrNegativeDelta = errors.New("progress: negative seconds watched")

	// ErrNoProfile is returned when signed in but no profile has been loaded,
	// so there is no account to attribute progress to.
	ErrNoProfile = errors.New("progress: no profile loaded")

	// ErrAccountChanged is returned when a refresh finds a different account
	// (or none) signed in by the time its fetch completes.
	ErrAccountChanged = errors.New("progress: account changed during refresh")

	// ErrMissingExternalID is returned for a video without an external id.
	ErrMissingExternalID = errors.New("progress: video has no external id")
)

// classifyRemote wraps a remote failure in the matching sentinel.
func classifyRemote(op string, err error) error {
	if errors.Is(err, remote.ErrMalformedResponse) {
		return fmt.Errorf("%w: %s: %w", ErrMalformedResponse, op, err)
	}

	return fmt.Errorf("%w: %s: %w", ErrTransport, op, err)
}
