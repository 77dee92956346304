package publish

import (
	"errors"
	"fmt"

	"eventdesk/repo"
	"eventdesk/validate"
)

type Kind string

const (
	KindAssetUploadFailed   Kind = "AssetUploadFailed"
	KindEventUpsertFailed   Kind = "EventUpsertFailed"
	KindTierDeletionBlocked Kind = "TierDeletionBlocked"
	KindTierUpsertFailed    Kind = "TierUpsertFailed"
	KindInvalidDraft        Kind = "InvalidDraft"
	KindPublishInProgress   Kind = "PublishInProgress"
	KindUnexpected          Kind = "Unexpected"
)

const (
	MsgTierDeletionBlocked = "Cannot delete ticket tiers that already have sales attached to them"
	MsgEventConflict       = "This event was changed by someone else. Reload it and try again."
	MsgAssetUploadFailed   = "Failed to upload the event image. Please try again."
	MsgInvalidDraft        = "Please fill in all required fields."
	MsgPublishInProgress   = "This event is already being saved."
	MsgGeneric             = "Failed to update event. Please verify your inputs and try again."
)

// Error is a failed publish: what went wrong, in which state, and why.
type Error struct {
	Kind   Kind
	Stage  State
	Err    error
	Fields validate.FieldErrors
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("publish %s at %s", e.Kind, e.Stage)
	}
	return fmt.Sprintf("publish %s at %s: %v", e.Kind, e.Stage, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// UserMessage is the text shown to the organizer.
func (e *Error) UserMessage() string {
	switch e.Kind {
	case KindTierDeletionBlocked:
		return MsgTierDeletionBlocked
	case KindAssetUploadFailed:
		return MsgAssetUploadFailed
	case KindInvalidDraft:
		return MsgInvalidDraft
	case KindPublishInProgress:
		return MsgPublishInProgress
	case KindEventUpsertFailed:
		if errors.Is(e.Err, repo.ErrEventConflict) {
			return MsgEventConflict
		}
	}
	return MsgGeneric
}
