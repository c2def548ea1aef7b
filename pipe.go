package growpipe

import (
	"context"
	"io"
	"sync"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

var (
	_ io.ByteReader = (*Pipe)(nil)
	_ io.ByteWriter = (*Pipe)(nil)
	_ io.Closer     = (*Pipe)(nil)
)

// Pipe transfers single bytes from writers to a reader through a buffer that
// grows on demand. A read with nothing pending blocks until a byte is written.
type Pipe struct {
	id  string
	cfg config
	log logrus.FieldLogger

	mu    sync.Mutex
	store *byteStore

	avail *availability

	life     sync.Mutex
	closed   bool
	inflight sync.WaitGroup
	ctx      context.Context
	cancel   context.CancelFunc
}

// Stats is a snapshot of a pipe's buffer.
type Stats struct {
	ID       string `json:"id"`
	Capacity int    `json:"capacity"`
	Written  int    `json:"written"`
	Read     int    `json:"read"`
	Pending  int    `json:"pending"`
	Grows    int    `json:"grows"`
	Closed   bool   `json:"closed"`
}

// New creates an active pipe.
func New(opts ...Option) (*Pipe, error) {
	cfg, err := parseConfig(opts)
	if err != nil {
		return nil, err
	}
	id := uuid.NewString()
	log := cfg.logger.WithField("pipe", id)

	store, err := newByteStore(cfg.initialCapacity, cfg.maxCapacity)
	if err != nil {
		log.WithError(err).Error("initial allocation failed")
		return nil, err
	}

	p := &Pipe{
		id:    id,
		cfg:   cfg,
		log:   log,
		store: store,
		avail: newAvailability(),
	}
	p.ctx, p.cancel = context.WithCancel(context.Background())
	log.WithField("capacity", cfg.initialCapacity).Debug("pipe created")
	return p, nil
}

// ID returns the identifier used in log fields.
func (p *Pipe) ID() string {
	return p.id
}

// WriteByte appends c to the pipe and wakes a waiting reader. It never
// blocks on the reader. If the buffer cannot grow the byte is dropped and an
// error matching ErrOutOfMemory is returned.
func (p *Pipe) WriteByte(c byte) error {
	if err := p.enter(); err != nil {
		return err
	}
	defer p.inflight.Done()

	p.mu.Lock()
	grown, err := p.store.ensure()
	if err == nil {
		err = p.store.append(c)
	}
	capacity := p.store.capacity()
	p.mu.Unlock()

	if err != nil {
		p.log.WithError(err).WithField("capacity", capacity).Warn("write rejected")
		return err
	}
	if grown {
		p.log.WithField("capacity", capacity).Debug("buffer grown")
	}
	p.avail.signal()
	return nil
}

// ReadByte blocks until a byte is available and returns it.
func (p *Pipe) ReadByte() (byte, error) {
	return p.ReadByteContext(context.Background())
}

// ReadByteContext blocks until a byte is available or ctx is done. An
// interrupted read returns a *CancelledError and consumes nothing. Closing
// the pipe interrupts every waiting reader with cause ErrClosed.
func (p *Pipe) ReadByteContext(ctx context.Context) (byte, error) {
	if err := p.enter(); err != nil {
		return 0, err
	}
	defer p.inflight.Done()

	ctx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)
	stop := context.AfterFunc(p.ctx, func() {
		cancel(ErrClosed)
	})
	defer stop()

	if err := p.avail.wait(ctx); err != nil {
		return 0, &CancelledError{Cause: context.Cause(ctx)}
	}
	return p.take(), nil
}

// TryReadByte returns the next byte if one is available without blocking.
func (p *Pipe) TryReadByte() (c byte, ok bool, err error) {
	if err := p.enter(); err != nil {
		return 0, false, err
	}
	defer p.inflight.Done()

	if !p.avail.tryWait() {
		return 0, false, nil
	}
	return p.take(), true, nil
}

// take must only follow a claimed availability unit.
func (p *Pipe) take() byte {
	p.mu.Lock()
	c, err := p.store.take()
	p.mu.Unlock()
	if err != nil {
		panic(err)
	}
	return c
}

// Len returns the number of bytes written and not yet claimed by a reader.
func (p *Pipe) Len() int {
	return int(p.avail.pending())
}

// Stats returns a snapshot of the buffer state.
func (p *Pipe) Stats() Stats {
	p.life.Lock()
	closed := p.closed
	p.life.Unlock()

	p.mu.Lock()
	defer p.mu.Unlock()
	return Stats{
		ID:       p.id,
		Capacity: p.store.capacity(),
		Written:  p.store.writePos,
		Read:     p.store.readPos,
		Pending:  p.store.pending(),
		Grows:    p.store.grows,
		Closed:   closed,
	}
}

// Close tears the pipe down. Later calls fail with ErrClosed, waiting readers
// are interrupted, and the buffer is released once in-flight calls return.
// Unread bytes are discarded. Closing twice is a no-op.
func (p *Pipe) Close() error {
	p.life.Lock()
	if p.closed {
		p.life.Unlock()
		return nil
	}
	p.closed = true
	p.life.Unlock()

	p.cancel()
	p.inflight.Wait()

	p.mu.Lock()
	discarded := p.store.pending()
	p.store.release()
	p.mu.Unlock()

	p.log.WithField("discarded", discarded).Debug("pipe closed")
	return nil
}

func (p *Pipe) enter() error {
	p.life.Lock()
	defer p.life.Unlock()
	if p.closed {
		return errors.WithStack(ErrClosed)
	}
	p.inflight.Add(1)
	return nil
}
