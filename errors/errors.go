// Package errors defines the failure kinds surfaced by the membership
// engine and the message store. Callers discriminate with errors.Is;
// every return site wraps the sentinel with the offending identifiers.
package errors

import "fmt"

// Validation failures. Caller error, never retried.
var (
	ErrInvalidArgument = fmt.Errorf("invalid argument")
	ErrEmptyContent    = fmt.Errorf("message content is empty")
	ErrEmptyQuery      = fmt.Errorf("search query is empty")
)

// Not-found failures.
var (
	ErrGroupNotFound   = fmt.Errorf("group not found")
	ErrMessageNotFound = fmt.Errorf("message not found")
	ErrRequestNotFound = fmt.Errorf("join request not found")
)

// Authorization failures.
var (
	ErrNotOwner  = fmt.Errorf("caller is not the group owner")
	ErrNotSender = fmt.Errorf("caller is not the message sender")
	ErrNotMember = fmt.Errorf("caller is not a group member")
	ErrForbidden = fmt.Errorf("operation forbidden")
	ErrBanned    = fmt.Errorf("user is banned from the group")
	ErrSelfBan   = fmt.Errorf("owner cannot ban themselves")
)

// State conflicts. Business-rule violations, not bugs.
var (
	ErrAlreadyMember           = fmt.Errorf("user is already a member")
	ErrAlreadyDeleted          = fmt.Errorf("message is already deleted")
	ErrRequestPending          = fmt.Errorf("a join request is already pending")
	ErrRequestAlreadyProcessed = fmt.Errorf("join request was already processed")
	ErrOwnerCannotLeave        = fmt.Errorf("owner must transfer ownership before leaving")
	ErrGroupHasMembers         = fmt.Errorf("group still has other members")
)

// Capacity and time-window failures.
var (
	ErrGroupFull         = fmt.Errorf("group is at maximum capacity")
	ErrCooldownActive    = fmt.Errorf("rejoin cooldown is still active")
	ErrEditWindowExpired = fmt.Errorf("edit window has expired")
)

// Infrastructure failures from the storage collaborator. Surfaced to the
// caller as-is; the core never retries internally.
var (
	ErrConflict = fmt.Errorf("aggregate version is stale")
)
