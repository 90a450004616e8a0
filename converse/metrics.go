package converse

import "sync/atomic"

// Metrics holds atomic counters for a session.
// The fields can back prometheus CounterFuncs.
type Metrics struct {
	// ConversationRunCount is the number of conversations started.
	ConversationRunCount atomic.Uint64
	// ConversationFailCount is the number of conversations that failed.
	ConversationFailCount atomic.Uint64
	// MessageSendCount is the number of messages written.
	MessageSendCount atomic.Uint64
	// MessageRecvCount is the number of messages received and matched.
	MessageRecvCount atomic.Uint64
	// TimeoutCount is the number of receive timeouts.
	TimeoutCount atomic.Uint64
	// MismatchCount is the number of non-conformant receives.
	MismatchCount atomic.Uint64
	// PurgeCount is the number of stream purges.
	PurgeCount atomic.Uint64
}

func (m *Metrics) incConversationRunCount()  { m.ConversationRunCount.Add(1) }
func (m *Metrics) incConversationFailCount() { m.ConversationFailCount.Add(1) }
func (m *Metrics) incMessageSendCount()      { m.MessageSendCount.Add(1) }
func (m *Metrics) incMessageRecvCount()      { m.MessageRecvCount.Add(1) }
func (m *Metrics) incTimeoutCount()          { m.TimeoutCount.Add(1) }
func (m *Metrics) incMismatchCount()         { m.MismatchCount.Add(1) }
func (m *Metrics) incPurgeCount()            { m.PurgeCount.Add(1) }
