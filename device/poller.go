package device

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/puzpuzpuz/xsync/v3"

	"github.com/arloliu/go-converse/logger"
)

// Target is one device driven by a Poller.
type Target struct {
	Algorithm *Algorithm
	// Blocks lists the blocks read every cycle; empty reads all blocks.
	Blocks []string
}

// BlockState is the latest known state of one device block.
type BlockState struct {
	Device   string
	Block    string
	Snapshot *Snapshot // last successful read, nil before the first one
	Err      error     // error of the last cycle, nil when it succeeded
	Updated  time.Time
}

// Poller reads device blocks periodically, one goroutine per device.
// Blocks of one device are read sequentially.
type Poller struct {
	interval   time.Duration
	logger     logger.Logger
	onSnapshot func(*Snapshot)

	mu      sync.Mutex
	targets []Target
	tasks   *TaskManager
	running bool

	states *xsync.MapOf[string, *BlockState]
}

// NewPoller creates a Poller.
func NewPoller(opts ...PollerOption) (*Poller, error) {
	p := &Poller{
		interval: DefaultPollInterval,
		logger:   logger.GetLogger(),
		states:   xsync.NewMapOf[string, *BlockState](),
	}
	for _, opt := range opts {
		if err := opt.applyPoller(p); err != nil {
			return nil, err
		}
	}

	return p, nil
}

// Add registers a device. Devices cannot be added while the poller runs.
func (p *Poller) Add(t Target) error {
	if t.Algorithm == nil {
		return errors.New("device: target without algorithm")
	}
	for _, name := range t.Blocks {
		if _, err := t.Algorithm.Block(name); err != nil {
			return err
		}
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.running {
		return errors.New("device: poller is running")
	}
	for _, existing := range p.targets {
		if strings.EqualFold(existing.Algorithm.Name(), t.Algorithm.Name()) {
			return fmt.Errorf("device: duplicate device %q", t.Algorithm.Name())
		}
	}
	p.targets = append(p.targets, t)

	return nil
}

// Start polls every device until Stop is called or ctx is done.
func (p *Poller) Start(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.running {
		return errors.New("device: poller already running")
	}

	p.tasks = NewTaskManager(ctx, p.logger)
	for _, t := range p.targets {
		err := p.tasks.StartInterval(t.Algorithm.Name(), func(ctx context.Context) bool {
			p.PollOnce(ctx, t)
			return true
		}, p.interval, true)
		if err != nil {
			p.tasks.Stop()
			p.tasks.Wait()

			return err
		}
	}
	p.running = true
	p.logger.Info("poller started", "devices", len(p.targets), "interval", p.interval)

	return nil
}

// Stop stops polling and waits for in-flight cycles to finish.
func (p *Poller) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.running {
		return
	}
	p.tasks.Stop()
	p.tasks.Wait()
	p.running = false
	p.logger.Info("poller stopped")
}

// PollOnce reads the target's blocks once, in order, and records the results.
func (p *Poller) PollOnce(ctx context.Context, t Target) []*Snapshot {
	names := t.Blocks
	if len(names) == 0 {
		for _, b := range t.Algorithm.Blocks() {
			names = append(names, b.Name)
		}
	}

	var snaps []*Snapshot
	for _, name := range names {
		if ctx.Err() != nil {
			break
		}

		snap, err := t.Algorithm.ReadBlock(ctx, name)
		p.record(t.Algorithm.Name(), name, snap, err)
		if err != nil {
			p.logger.Warn("block read failed", "device", t.Algorithm.Name(), "block", name, "error", err)
			continue
		}

		for _, f := range t.Algorithm.Evaluate(snap) {
			if !f.OK() {
				p.logger.Debug("flagged register", "device", snap.Device, "register", f.Register, "tag", f.Tag)
			}
		}
		if p.onSnapshot != nil {
			p.onSnapshot(snap)
		}
		snaps = append(snaps, snap)
	}

	return snaps
}

func stateKey(device, block string) string {
	return strings.ToLower(device) + "/" + strings.ToLower(block)
}

func (p *Poller) record(device, block string, snap *Snapshot, err error) {
	p.states.Compute(stateKey(device, block), func(old *BlockState, loaded bool) (*BlockState, bool) {
		st := &BlockState{Device: device, Block: block, Err: err, Updated: time.Now()}
		if loaded {
			st.Snapshot = old.Snapshot
		}
		if snap != nil {
			st.Snapshot = snap
		}

		return st, false
	})
}

// Latest returns the latest successful snapshot of a device block.
func (p *Poller) Latest(device, block string) (*Snapshot, bool) {
	st, ok := p.states.Load(stateKey(device, block))
	if !ok || st.Snapshot == nil {
		return nil, false
	}

	return st.Snapshot, true
}

// States returns the state of every polled block of device, or of all
// devices when device is empty, sorted by device and block name.
func (p *Poller) States(device string) []BlockState {
	var out []BlockState
	p.states.Range(func(_ string, st *BlockState) bool {
		if device == "" || strings.EqualFold(st.Device, device) {
			out = append(out, *st)
		}

		return true
	})
	slices.SortFunc(out, func(a, b BlockState) int {
		if c := strings.Compare(a.Device, b.Device); c != 0 {
			return c
		}

		return strings.Compare(a.Block, b.Block)
	})

	return out
}

// Devices returns the names of the registered devices.
func (p *Poller) Devices() []string {
	p.mu.Lock()
	defer p.mu.Unlock()

	names := make([]string, 0, len(p.targets))
	for _, t := range p.targets {
		names = append(names, t.Algorithm.Name())
	}

	return names
}
