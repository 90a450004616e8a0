package device

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/arloliu/go-converse/converse"
	"github.com/arloliu/go-converse/internal/util"
	"github.com/arloliu/go-converse/logger"
	"github.com/arloliu/go-converse/register"
	"github.com/arloliu/go-converse/stream"
)

// Block is a group of registers transferred by one conversation.
type Block struct {
	Name string
	// ReadConversation fills DataVariable from the device. Empty means the
	// registers are decoded from their bound or fixed sources only.
	ReadConversation string
	// WriteConversation sends DataVariable to the device. Empty makes the block read-only.
	WriteConversation string
	// DataVariable names the session variable carrying the block bytes.
	DataVariable string
	// Size is the buffer size used by WriteBlock; 0 uses the variable's current length.
	Size      int
	Registers []register.Register
}

// Register returns the register with the given name.
func (b *Block) Register(name string) (register.Register, bool) {
	for _, r := range b.Registers {
		if strings.EqualFold(r.Name(), name) {
			return r, true
		}
	}

	return nil, false
}

func (b *Block) validate() error {
	if b == nil || b.Name == "" {
		return fmt.Errorf("%w: unnamed block", ErrInvalidBlock)
	}
	if b.Size < 0 {
		return fmt.Errorf("%w: block %q has negative size", ErrInvalidBlock, b.Name)
	}
	seen := make(map[string]struct{}, len(b.Registers))
	for _, r := range b.Registers {
		if r == nil {
			return fmt.Errorf("%w: block %q has a nil register", ErrInvalidBlock, b.Name)
		}
		key := strings.ToLower(r.Name())
		if _, ok := seen[key]; ok {
			return fmt.Errorf("%w: block %q has duplicate register %q", ErrInvalidBlock, b.Name, r.Name())
		}
		seen[key] = struct{}{}
	}

	return nil
}

// Snapshot is the outcome of one block read.
type Snapshot struct {
	CycleID uuid.UUID
	Device  string
	Block   string
	Time    time.Time
	// Values holds the decoded value of every register that could be extracted.
	Values map[string]register.Value
	// Errors holds the extraction error of every register that could not.
	Errors  map[string]error
	Retries int
}

// Algorithm runs the blocks of one device over its conversation session.
type Algorithm struct {
	name       string
	conv       *converse.Converse
	retryCount int
	logger     logger.Logger

	mu     sync.Mutex // one cycle at a time per session
	blocks []*Block
	byName map[string]*Block
}

// NewAlgorithm creates an Algorithm driving c.
func NewAlgorithm(c *converse.Converse, opts ...Option) (*Algorithm, error) {
	if c == nil {
		return nil, errors.New("device: nil converse session")
	}

	a := &Algorithm{
		name:       "device",
		conv:       c,
		retryCount: DefaultRetryCount,
		logger:     c.Logger(),
		byName:     make(map[string]*Block),
	}
	for _, opt := range opts {
		if err := opt.apply(a); err != nil {
			return nil, err
		}
	}
	a.logger = a.logger.With("device", a.name)

	return a, nil
}

// Name returns the device name.
func (a *Algorithm) Name() string { return a.name }

// Converse returns the session driven by the Algorithm.
func (a *Algorithm) Converse() *converse.Converse { return a.conv }

// RetryCount returns the number of additional attempts after a timeout.
func (a *Algorithm) RetryCount() int { return a.retryCount }

// AddBlock registers b.
func (a *Algorithm) AddBlock(b *Block) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	return a.addBlock(b)
}

func (a *Algorithm) addBlock(b *Block) error {
	if err := b.validate(); err != nil {
		return err
	}
	key := strings.ToLower(b.Name)
	if _, ok := a.byName[key]; ok {
		return fmt.Errorf("%w: %q", ErrDuplicateBlock, b.Name)
	}
	a.byName[key] = b
	a.blocks = append(a.blocks, b)

	return nil
}

// Block returns the block with the given name.
func (a *Algorithm) Block(name string) (*Block, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	return a.block(name)
}

func (a *Algorithm) block(name string) (*Block, error) {
	b, ok := a.byName[strings.ToLower(name)]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrBlockNotFound, name)
	}

	return b, nil
}

// Blocks returns the blocks in the order they were added.
func (a *Algorithm) Blocks() []*Block {
	a.mu.Lock()
	defer a.mu.Unlock()

	out := make([]*Block, len(a.blocks))
	copy(out, a.blocks)

	return out
}

// DoConversation runs the named conversation, repeating it up to the retry
// count while it fails with a timeout. Any other failure returns at once.
// retries is the number of repeated attempts.
//
// When the link itself has failed and the device stream is a stream.Reopener,
// the link is reopened once and the conversation run again; that attempt does
// not count as a retry.
func (a *Algorithm) DoConversation(ctx context.Context, name string) (retries int, err error) {
	reopened := false
	for {
		err = a.conv.DoConversation(ctx, name, false)
		if err == nil {
			return retries, nil
		}
		if ctx.Err() != nil {
			return retries, err
		}
		if stream.IsLinkError(err) && !reopened {
			reopened = true
			if rerr := a.reopen(ctx); rerr != nil {
				a.logger.Warn("reopen link failed", "conversation", name, "error", rerr)
				return retries, err
			}

			continue
		}
		if !converse.IsTimeout(err) || retries >= a.retryCount {
			return retries, err
		}

		retries++
		a.logger.Debug("conversation timed out, retrying",
			"conversation", name, "attempt", retries+1, "maxAttempts", a.retryCount+1)
	}
}

func (a *Algorithm) reopen(ctx context.Context) error {
	r, ok := a.conv.DeviceStream().(stream.Reopener)
	if !ok {
		return stream.ErrNotReopenable
	}
	a.logger.Info("device link lost, reopening")

	return r.Reopen(ctx)
}

// ReadBlock runs the block's read conversation and decodes every register
// from a fresh copy of the data variable.
//
// Register extraction failures are recorded in Snapshot.Errors; only a
// failed conversation or a missing data variable fails the read.
func (a *Algorithm) ReadBlock(ctx context.Context, name string) (*Snapshot, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	b, err := a.block(name)
	if err != nil {
		return nil, err
	}

	snap := &Snapshot{
		CycleID: uuid.New(),
		Device:  a.name,
		Block:   b.Name,
		Values:  make(map[string]register.Value, len(b.Registers)),
		Errors:  make(map[string]error),
	}

	if b.ReadConversation != "" {
		retries, err := a.DoConversation(ctx, b.ReadConversation)
		snap.Retries = retries
		if err != nil {
			return nil, fmt.Errorf("device: read block %q: %w", b.Name, err)
		}
	}
	snap.Time = time.Now()

	var buf []byte
	if b.DataVariable != "" {
		v, err := a.conv.SessionVariable(b.DataVariable, b.ReadConversation)
		if err != nil {
			return nil, fmt.Errorf("device: read block %q: %w", b.Name, err)
		}
		buf = v.Bytes()
	}

	for _, reg := range b.Registers {
		v, err := reg.GetItemValue(buf)
		if err != nil {
			snap.Errors[reg.Name()] = err
			a.logger.Warn("register extraction failed",
				"block", b.Name, "register", reg.Name(), "data", util.HexDump(buf), "error", err)

			continue
		}
		snap.Values[reg.Name()] = v
	}

	a.logger.Debug("block read",
		"block", b.Name, "cycle", snap.CycleID, "values", len(snap.Values), "retries", snap.Retries)

	return snap, nil
}

// WriteBlock encodes every register into a fresh buffer seeded with the data
// variable's current bytes, stores it into the variable and runs the block's
// write conversation.
func (a *Algorithm) WriteBlock(ctx context.Context, name string) (retries int, err error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	b, err := a.block(name)
	if err != nil {
		return 0, err
	}
	if b.WriteConversation == "" {
		return 0, fmt.Errorf("%w: %q", ErrNotWritable, b.Name)
	}

	var dv converse.Variable
	var buf []byte
	if b.DataVariable != "" {
		dv, err = a.conv.SessionVariable(b.DataVariable, b.WriteConversation)
		if err != nil {
			return 0, fmt.Errorf("device: write block %q: %w", b.Name, err)
		}
		size := b.Size
		if size == 0 {
			size = dv.Len()
		}
		buf = util.CloneSlice(dv.Bytes(), size)
	}

	for _, reg := range b.Registers {
		if err := reg.StoreItemValue(buf); err != nil {
			return 0, fmt.Errorf("device: write block %q register %q: %w", b.Name, reg.Name(), err)
		}
	}

	if dv != nil {
		if err := dv.SetBytes(buf, 0, len(buf)); err != nil {
			return 0, fmt.Errorf("device: write block %q: %w", b.Name, err)
		}
	}

	retries, err = a.DoConversation(ctx, b.WriteConversation)
	if err != nil {
		return retries, fmt.Errorf("device: write block %q: %w", b.Name, err)
	}
	a.logger.Debug("block written", "block", b.Name, "bytes", len(buf), "retries", retries)

	return retries, nil
}
