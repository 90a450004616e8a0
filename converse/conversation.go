package converse

import (
	"context"
	"fmt"
	"time"

	"github.com/arloliu/go-converse/internal/util"
)

// Conversation is a named, ordered list of messages executed as one exchange.
type Conversation struct {
	converse   *Converse
	name       string
	messages   []*Message
	timeout    time.Duration
	timeoutSet bool
}

// Name returns the conversation name.
func (cv *Conversation) Name() string { return cv.name }

// Messages returns the messages in execution order.
func (cv *Conversation) Messages() []*Message { return util.CloneSlice(cv.messages, 0) }

// Timeout returns the per-message receive timeout, the session default unless
// overridden with SetTimeout.
func (cv *Conversation) Timeout() time.Duration {
	if cv.timeoutSet {
		return cv.timeout
	}

	return cv.converse.cfg.defaultTimeout
}

// SetTimeout overrides the per-message receive timeout. NoTimeout waits without
// deadline.
func (cv *Conversation) SetTimeout(d time.Duration) {
	if d < 0 {
		d = NoTimeout
	}
	cv.timeout = d
	cv.timeoutSet = true
}

// Execute runs every message in order and stops at the first failure.
//
// A failed send purges the stream. A failed receive purges it too unless
// continueOnFailure is set, in which case the buffered input is left for the
// caller to retry against. Cancellation is only checked between messages.
func (cv *Conversation) Execute(ctx context.Context, continueOnFailure bool) error {
	c := cv.converse
	ds := c.DeviceStream()
	if ds == nil {
		return ErrNoDeviceStream
	}

	timeout := cv.Timeout()
	for i, m := range cv.messages {
		if err := ctx.Err(); err != nil {
			return err
		}

		var (
			rec *MessageRecord
			err error
		)

		switch m.typ {
		case MessageSend:
			err = m.Send(ctx)
			if err != nil {
				ds.PurgeStreamBuffers()
				c.metrics.incPurgeCount()
			}
		case MessageFind:
			rec, err = m.Find(timeout, continueOnFailure)
		case MessageRead, MessageExtract, MessageExtractDynamic:
			rec, err = m.Receive(timeout, continueOnFailure)
		default:
			err = fmt.Errorf("%w: unknown message type", ErrSyntax)
		}

		if err != nil {
			convErr := &ConversationError{
				Conversation: cv.name,
				Message:      i,
				Text:         m.text,
				Timeout:      m.typ != MessageSend && IsTimeout(err),
				Record:       rec,
				Err:          err,
			}
			cv.logFailure(convErr)

			return convErr
		}
	}

	return nil
}

func (cv *Conversation) logFailure(e *ConversationError) {
	kv := []any{
		"conversation", e.Conversation,
		"message", e.Message,
		"text", e.Text,
		"timeout", e.Timeout,
		"error", e.Err,
	}
	if e.Record != nil {
		kv = append(kv,
			"expected", util.HexDump(e.Record.Expected),
			"actual", util.HexDump(e.Record.Actual),
			"status", e.Record.StatusString(),
			"bytesRead", e.Record.Match.BytesRead,
		)
	}

	if e.Timeout {
		cv.converse.logger.Debug("converse: conversation timed out", kv...)
		return
	}
	cv.converse.logger.Warn("converse: conversation failed", kv...)
}
