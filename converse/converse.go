package converse

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/arloliu/go-converse/checksum"
	"github.com/arloliu/go-converse/endian"
	"github.com/arloliu/go-converse/internal/pool"
	"github.com/arloliu/go-converse/internal/util"
	"github.com/arloliu/go-converse/logger"
	"github.com/arloliu/go-converse/stream"
)

// Converse is one protocol session: its conversations, its variables and the
// stream they run against.
type Converse struct {
	cfg    *config
	logger logger.Logger

	mu            sync.RWMutex
	conversations []*Conversation
	variables     []Variable
	stream        stream.DeviceStream

	sendMu   sync.Mutex
	lastSend time.Time

	metrics Metrics
}

// New creates an empty session.
func New(opts ...Option) (*Converse, error) {
	cfg, err := newConfig(opts)
	if err != nil {
		return nil, err
	}

	return &Converse{cfg: cfg, logger: cfg.logger}, nil
}

// Checksum returns the session checksum strategy.
func (c *Converse) Checksum() checksum.Strategy { return c.cfg.checksum }

// Endian16 returns the session 16-bit converter.
func (c *Converse) Endian16() *endian.Converter { return c.cfg.endian16 }

// Endian32 returns the session 32-bit converter.
func (c *Converse) Endian32() *endian.Converter { return c.cfg.endian32 }

// Escaping reports whether elements are byte-stuffed on the wire.
func (c *Converse) Escaping() bool { return c.cfg.escape }

// MaxVariableSize returns the bound on resized and dynamic variables.
func (c *Converse) MaxVariableSize() int { return c.cfg.maxVariableSize }

// SendGap returns the minimum time between sends.
func (c *Converse) SendGap() time.Duration { return c.cfg.sendGap }

// DefaultTimeout returns the session receive timeout.
func (c *Converse) DefaultTimeout() time.Duration { return c.cfg.defaultTimeout }

// Logger returns the session logger.
func (c *Converse) Logger() logger.Logger { return c.logger }

// Metrics returns the session counters.
func (c *Converse) Metrics() *Metrics { return &c.metrics }

// AddConversation parses lines into a new conversation. Nothing is registered
// when any line fails to parse.
func (c *Converse) AddConversation(name string, lines ...string) (*Conversation, error) {
	if name == "" {
		return nil, fmt.Errorf("%w: empty conversation name", ErrSyntax)
	}
	if _, err := c.Conversation(name); err == nil {
		return nil, fmt.Errorf("%w: %q", ErrDuplicateConversation, name)
	}

	conv := &Conversation{converse: c, name: name}
	p := newParser(c, conv)
	for i, line := range lines {
		m, err := p.parseLine(line)
		if err != nil {
			var pe *ParseError
			if errors.As(err, &pe) {
				pe.Line = i + 1
			}
			return nil, err
		}
		conv.messages = append(conv.messages, m)
	}

	if err := p.commit(); err != nil {
		return nil, err
	}

	c.mu.Lock()
	c.conversations = append(c.conversations, conv)
	c.mu.Unlock()

	c.logger.Debug("converse: conversation added", "conversation", name, "messages", len(conv.messages))

	return conv, nil
}

// Conversation returns the conversation with the given name, ignoring case.
func (c *Converse) Conversation(name string) (*Conversation, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	for _, conv := range c.conversations {
		if strings.EqualFold(conv.name, name) {
			return conv, nil
		}
	}

	return nil, fmt.Errorf("%w: %q", ErrConversationNotFound, name)
}

// Conversations returns all conversations in definition order.
func (c *Converse) Conversations() []*Conversation {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return util.CloneSlice(c.conversations, 0)
}

// Variables returns all declared variables.
func (c *Converse) Variables() []Variable {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return util.CloneSlice(c.variables, 0)
}

// SessionVariable resolves a variable name, ignoring case. A conversation scoped
// variable only resolves for its own conversation; conversation may be "" when
// only global variables are wanted.
func (c *Converse) SessionVariable(name, conversation string) (Variable, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	for _, v := range c.variables {
		if v.base().matches(name, conversation) {
			return v, nil
		}
	}

	return nil, fmt.Errorf("%w: %q", ErrVariableNotFound, name)
}

// DeclareVariable registers v with the session.
func (c *Converse) DeclareVariable(v Variable) error {
	if v == nil || v.Name() == "" {
		return fmt.Errorf("%w: unnamed variable", ErrSyntax)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	b := v.base()
	for _, existing := range c.variables {
		eb := existing.base()
		if strings.EqualFold(eb.name, b.name) && eb.scope == b.scope &&
			(b.scope == ScopeGlobal || strings.EqualFold(eb.conversation, b.conversation)) {
			return fmt.Errorf("%w: %q", ErrDuplicateVariable, v.Name())
		}
	}

	if bv, ok := v.(*ByteVar); ok {
		bv.SetEndian(c.cfg.endian16, c.cfg.endian32)
		bv.SetMaxSize(c.cfg.maxVariableSize)
	}
	c.variables = append(c.variables, v)

	return nil
}

// isConversationScoped reports whether a declaration of name is conversation scoped.
func (c *Converse) isConversationScoped(name string) bool {
	for _, prefix := range c.cfg.scopePrefixes {
		if prefix != "" && len(name) >= len(prefix) && strings.EqualFold(name[:len(prefix)], prefix) {
			return true
		}
	}

	return false
}

// SetDeviceStream binds or rebinds the transport.
func (c *Converse) SetDeviceStream(ds stream.DeviceStream) {
	c.mu.Lock()
	c.stream = ds
	c.mu.Unlock()
}

// DeviceStream returns the bound transport, or nil.
func (c *Converse) DeviceStream() stream.DeviceStream {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return c.stream
}

// DoConversation runs the named conversation.
func (c *Converse) DoConversation(ctx context.Context, name string, continueOnFailure bool) error {
	conv, err := c.Conversation(name)
	if err != nil {
		return err
	}
	if c.DeviceStream() == nil {
		return fmt.Errorf("%w: conversation %q", ErrNoDeviceStream, name)
	}

	c.metrics.incConversationRunCount()
	if err := conv.Execute(ctx, continueOnFailure); err != nil {
		c.metrics.incConversationFailCount()
		return err
	}

	return nil
}

// waitSendGap sleeps until the send gap since the last send has elapsed.
func (c *Converse) waitSendGap(ctx context.Context) error {
	c.sendMu.Lock()
	last := c.lastSend
	c.sendMu.Unlock()

	if last.IsZero() || c.cfg.sendGap <= 0 {
		return nil
	}

	wait := c.cfg.sendGap - time.Since(last)
	if wait <= 0 {
		return nil
	}

	timer := pool.GetTimer(wait)
	defer pool.PutTimer(timer)

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *Converse) markSent() {
	c.sendMu.Lock()
	c.lastSend = time.Now()
	c.sendMu.Unlock()
}
