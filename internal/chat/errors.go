package chat

import "errors"

var (
	// Authorization failures. The two deny reasons stay distinct so the
	// transports can map them to separate HTTP statuses and close codes.
	ErrChatNotFound = errors.New("chat not found")
	ErrNotAMember   = errors.New("not a member of this chat")
	ErrForbidden    = errors.New("operation requires admin role")

	// Validation failures are recoverable: the connection stays open and the
	// error is reported to the sender only.
	ErrEmptyContent   = errors.New("message content is empty")
	ErrContentTooLong = errors.New("message content exceeds maximum size")

	ErrInvalidName = errors.New("chat name is invalid")

	ErrNotFound      = errors.New("not found")
	ErrAlreadyExists = errors.New("already exists")
)
