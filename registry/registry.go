// Package registry keeps named pipes alive for a process: it creates them on
// demand, hands them to front ends, and tears them down on request or at
// shutdown.
package registry

import (
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	nullLog "github.com/sirupsen/logrus/hooks/test"

	"github.com/jacoelho/growpipe"
)

var (
	// ErrExists is returned by Create when the name is already taken.
	ErrExists = errors.New("registry: pipe already exists")

	// ErrNotFound is returned by Get and Destroy for an unknown name.
	ErrNotFound = errors.New("registry: pipe not found")

	// ErrClosed is returned by Create after Close.
	ErrClosed = errors.New("registry: closed")

	// ErrInvalidName is returned for an empty name or one containing a slash
	// or whitespace.
	ErrInvalidName = errors.New("registry: invalid pipe name")
)

// Info describes a registered pipe.
type Info struct {
	Name    string         `json:"name"`
	Created time.Time      `json:"created"`
	Stats   growpipe.Stats `json:"stats"`
}

type entry struct {
	pipe    *growpipe.Pipe
	created time.Time
}

// Registry maps names to independent pipes.
type Registry struct {
	m      sync.RWMutex
	pipes  map[string]*entry
	closed bool
	opts   []growpipe.Option
	logger *logrus.Logger
}

// New returns an empty registry. Every pipe it creates is built with opts
// and logs through logger; a nil logger discards output.
func New(logger *logrus.Logger, opts ...growpipe.Option) *Registry {
	if logger == nil {
		logger, _ = nullLog.NewNullLogger()
	}
	return &Registry{
		pipes:  make(map[string]*entry),
		opts:   append([]growpipe.Option{growpipe.WithLogger(logger)}, opts...),
		logger: logger,
	}
}

// Create registers a new pipe under name.
func (r *Registry) Create(name string) (*growpipe.Pipe, error) {
	if err := validName(name); err != nil {
		return nil, err
	}

	r.m.Lock()
	defer r.m.Unlock()
	if r.closed {
		return nil, errors.WithStack(ErrClosed)
	}
	if _, ok := r.pipes[name]; ok {
		return nil, errors.Wrapf(ErrExists, "%q", name)
	}

	p, err := growpipe.New(r.opts...)
	if err != nil {
		r.logger.WithError(err).WithField("name", name).Error("could not create pipe")
		return nil, errors.Wrapf(err, "create %q", name)
	}
	r.pipes[name] = &entry{pipe: p, created: time.Now()}
	r.logger.WithFields(logrus.Fields{
		"name": name,
		"pipe": p.ID(),
	}).Info("pipe registered")
	return p, nil
}

// Get returns the pipe registered under name.
func (r *Registry) Get(name string) (*growpipe.Pipe, error) {
	r.m.RLock()
	defer r.m.RUnlock()
	e, ok := r.pipes[name]
	if !ok {
		return nil, errors.Wrapf(ErrNotFound, "%q", name)
	}
	return e.pipe, nil
}

// Destroy unregisters name and closes its pipe. Readers blocked on it are
// interrupted.
func (r *Registry) Destroy(name string) error {
	r.m.Lock()
	e, ok := r.pipes[name]
	delete(r.pipes, name)
	r.m.Unlock()
	if !ok {
		return errors.Wrapf(ErrNotFound, "%q", name)
	}

	err := e.pipe.Close()
	r.logger.WithFields(logrus.Fields{
		"name": name,
		"pipe": e.pipe.ID(),
	}).Info("pipe unregistered")
	return err
}

// List returns the registered pipes sorted by name.
func (r *Registry) List() []Info {
	r.m.RLock()
	infos := make([]Info, 0, len(r.pipes))
	for name, e := range r.pipes {
		infos = append(infos, Info{Name: name, Created: e.created, Stats: e.pipe.Stats()})
	}
	r.m.RUnlock()

	sort.Slice(infos, func(i, j int) bool {
		return infos[i].Name < infos[j].Name
	})
	return infos
}

// Close destroys every pipe and rejects further creation.
func (r *Registry) Close() error {
	r.m.Lock()
	r.closed = true
	pipes := r.pipes
	r.pipes = make(map[string]*entry)
	r.m.Unlock()

	for name, e := range pipes {
		if err := e.pipe.Close(); err != nil {
			r.logger.WithError(err).WithField("name", name).Warn("closing pipe")
		}
	}
	r.logger.WithField("count", len(pipes)).Debug("registry closed")
	return nil
}

func validName(name string) error {
	if name == "" || strings.ContainsAny(name, "/ \t\n") {
		return errors.Wrapf(ErrInvalidName, "%q", name)
	}
	return nil
}
