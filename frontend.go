package growpipe

import (
	"context"
	"io"
	"sync"

	"github.com/pkg/errors"
)

var (
	_ io.Reader       = (*PipeReader)(nil)
	_ io.WriterTo     = (*PipeReader)(nil)
	_ io.Closer       = (*PipeReader)(nil)
	_ io.Writer       = (*PipeWriter)(nil)
	_ io.StringWriter = (*PipeWriter)(nil)
	_ io.ReaderFrom   = (*PipeWriter)(nil)
	_ io.Closer       = (*PipeWriter)(nil)
)

var errWriterClosed = errors.New("growpipe: writer closed")

// session links a reader and a writer opened together so that closing one
// side is observed by the other.
type session struct {
	p *Pipe

	ctx    context.Context
	cancel context.CancelCauseFunc

	mu           sync.Mutex
	readerClosed bool
	writerClosed bool
}

// Open returns a reader and a writer over p. Reads block until a byte is
// written or ctx is done. After the writer is closed the reader drains what
// is pending and then returns io.EOF. Closing either end does not close p.
func (p *Pipe) Open(ctx context.Context) (*PipeReader, *PipeWriter) {
	s := &session{p: p}
	s.ctx, s.cancel = context.WithCancelCause(ctx)
	return &PipeReader{s}, &PipeWriter{s}
}

func (s *session) closeReader() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.readerClosed = true
	s.cancel(io.ErrClosedPipe)
}

func (s *session) closeWriter() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.writerClosed = true
	s.cancel(errWriterClosed)
}

func (s *session) state() (readerClosed, writerClosed bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.readerClosed, s.writerClosed
}

// PipeReader is the read end of a pipe session.
type PipeReader struct {
	s *session
}

// Read blocks for one byte and then copies whatever else is already
// available into b without blocking again.
func (r *PipeReader) Read(b []byte) (int, error) {
	if len(b) == 0 {
		return 0, nil
	}
	readerClosed, writerClosed := r.s.state()
	if readerClosed {
		return 0, io.ErrClosedPipe
	}

	var (
		c   byte
		err error
	)
	if writerClosed {
		c, err = r.next()
	} else {
		c, err = r.s.p.ReadByteContext(r.s.ctx)
		if errors.Is(err, errWriterClosed) {
			c, err = r.next()
		} else if errors.Is(err, io.ErrClosedPipe) {
			return 0, io.ErrClosedPipe
		}
	}
	if err != nil {
		return 0, err
	}

	b[0] = c
	n := 1
	for n < len(b) {
		c, ok, err := r.s.p.TryReadByte()
		if err != nil || !ok {
			break
		}
		b[n] = c
		n++
	}
	return n, nil
}

// next returns a pending byte or io.EOF once the writer is gone.
func (r *PipeReader) next() (byte, error) {
	c, ok, err := r.s.p.TryReadByte()
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, io.EOF
	}
	return c, nil
}

// Close closes the reader. Blocked reads return io.ErrClosedPipe and so do
// later writes on the paired writer.
func (r *PipeReader) Close() error {
	r.s.closeReader()
	return nil
}

// WriteTo implements io.WriterTo by reading data from the pipe
// and writing it to w until EOF or an error occurs.
func (r *PipeReader) WriteTo(w io.Writer) (n int64, err error) {
	return copyBuffered(r.Read, w.Write)
}

// PipeWriter is the write end of a pipe session.
type PipeWriter struct {
	s *session
}

// Write transfers b one byte at a time. On error n is the number of bytes
// accepted before it.
func (w *PipeWriter) Write(b []byte) (n int, err error) {
	readerClosed, writerClosed := w.s.state()
	if readerClosed || writerClosed {
		return 0, io.ErrClosedPipe
	}

	for _, c := range b {
		if err := w.s.p.WriteByte(c); err != nil {
			return n, err
		}
		n++
	}
	return n, nil
}

// WriteString is Write for a string.
func (w *PipeWriter) WriteString(s string) (int, error) {
	return w.Write([]byte(s))
}

// ReadFrom implements io.ReaderFrom by reading data from r
// and writing it to the pipe until EOF or an error occurs.
func (w *PipeWriter) ReadFrom(r io.Reader) (n int64, err error) {
	return copyBuffered(r.Read, w.Write)
}

// Close marks the end of the stream for the paired reader.
func (w *PipeWriter) Close() error {
	w.s.closeWriter()
	return nil
}

func copyBuffered(read func([]byte) (int, error), write func([]byte) (int, error)) (int64, error) {
	buf := make([]byte, 32*1024)
	var total int64
	for {
		n, rErr := read(buf)
		if n > 0 {
			wn, wErr := write(buf[:n])
			if wn < 0 || wn > n {
				wn = 0
				if wErr == nil {
					wErr = io.ErrShortWrite
				}
			}
			total += int64(wn)
			if wErr != nil {
				return total, wErr
			}
			if wn != n {
				return total, io.ErrShortWrite
			}
		}
		if rErr != nil {
			if rErr != io.EOF {
				return total, rErr
			}
			return total, nil
		}
	}
}
