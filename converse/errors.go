package converse

import (
	"errors"
	"fmt"

	"github.com/arloliu/go-converse/internal/util"
)

var (
	// ErrConversationNotFound is returned when a conversation name does not resolve.
	ErrConversationNotFound = errors.New("converse: conversation not found")
	// ErrDuplicateConversation is returned when a conversation name is already in use.
	ErrDuplicateConversation = errors.New("converse: duplicate conversation")
	// ErrNoDeviceStream is returned when a conversation runs before a stream is bound.
	ErrNoDeviceStream = errors.New("converse: no device stream")
	// ErrVariableNotFound is returned when a variable reference does not resolve.
	ErrVariableNotFound = errors.New("converse: variable not found")
	// ErrDuplicateVariable is returned when a variable is declared twice in one scope.
	ErrDuplicateVariable = errors.New("converse: duplicate variable")
	// ErrSyntax is wrapped by every ParseError caused by a malformed message line.
	ErrSyntax = errors.New("converse: syntax error")
	// ErrSendFailed is returned when a message could not be written to the stream.
	ErrSendFailed = errors.New("converse: send failed")
	// ErrTimeout is returned when expected bytes did not arrive in time.
	ErrTimeout = errors.New("converse: timeout")
	// ErrMismatch is returned when received bytes do not match the message template.
	ErrMismatch = errors.New("converse: mismatch")
	// ErrChecksumMismatch is returned when a received checksum does not verify.
	ErrChecksumMismatch = errors.New("converse: checksum mismatch")
	// ErrShortSource is returned when SetBytes is given fewer bytes than requested.
	ErrShortSource = errors.New("converse: source too short")
	// ErrSizeMismatch is returned when a fixed size variable receives a different length.
	ErrSizeMismatch = errors.New("converse: size mismatch")
	// ErrPayloadTooLarge is returned when a value exceeds a variable's maximum size.
	ErrPayloadTooLarge = errors.New("converse: payload too large")
	// ErrBadEscape is returned when an escaped byte sequence ends with a lone escape byte.
	ErrBadEscape = errors.New("converse: bad escape sequence")
)

// ParseError describes a malformed message definition line.
type ParseError struct {
	Conversation string
	Line         int // 1-based message index within the conversation, 0 if unknown
	Pos          int // byte offset in the line
	Msg          string
	Err          error
}

func (e *ParseError) Error() string {
	if e.Conversation != "" {
		return fmt.Sprintf("converse: %s line %d pos %d: %s", e.Conversation, e.Line, e.Pos, e.Msg)
	}

	return fmt.Sprintf("converse: pos %d: %s", e.Pos, e.Msg)
}

func (e *ParseError) Unwrap() error {
	if e.Err == nil {
		return ErrSyntax
	}

	return e.Err
}

// ConversationError reports the message a conversation failed on.
type ConversationError struct {
	Conversation string
	Message      int // 0-based index of the failing message
	Text         string
	Timeout      bool
	Record       *MessageRecord
	Err          error
}

func (e *ConversationError) Error() string {
	msg := fmt.Sprintf("converse: conversation %q message %d %q: %v", e.Conversation, e.Message, e.Text, e.Err)
	if e.Record != nil && (len(e.Record.Expected) > 0 || len(e.Record.Actual) > 0) {
		msg += fmt.Sprintf(" (expected [%s] actual [%s])", util.HexDump(e.Record.Expected), util.HexDump(e.Record.Actual))
	}

	return msg
}

func (e *ConversationError) Unwrap() error { return e.Err }

// IsTimeout reports whether err is a transient timeout failure worth retrying.
func IsTimeout(err error) bool {
	if err == nil {
		return false
	}

	var convErr *ConversationError
	if errors.As(err, &convErr) {
		return convErr.Timeout
	}

	return errors.Is(err, ErrTimeout)
}
