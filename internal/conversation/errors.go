package conversation

import "errors"

var (
	// ErrNotFound indicates the conversation does not exist.
	ErrNotFound = errors.New("conversation not found")

	// ErrClosed indicates an operation on a closed conversation.
	ErrClosed = errors.New("conversation is closed")

	// ErrAwaitingHuman indicates the conversation is parked in the handoff
	// queue and the agent must not generate a response.
	ErrAwaitingHuman = errors.New("conversation awaiting human agent")

	// ErrSequenceGap indicates an appended turn whose sequence number is not
	// exactly one past the last persisted turn.
	ErrSequenceGap = errors.New("turn sequence gap")

	// ErrAlreadyExists indicates a Create for an ID already persisted.
	ErrAlreadyExists = errors.New("conversation already exists")

	// ErrInvalidStatus indicates an unknown status value.
	ErrInvalidStatus = errors.New("invalid conversation status")
)
