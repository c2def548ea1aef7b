// Package httpapi exposes a registry of pipes over HTTP and websockets.
package httpapi

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	nullLog "github.com/sirupsen/logrus/hooks/test"

	"github.com/jacoelho/growpipe"
	"github.com/jacoelho/growpipe/registry"
)

// maxReadBytes caps the n parameter of a data read.
const maxReadBytes = 1 << 20

// Config contains the run time parameters for the server.
type Config struct {
	// Registry holds the pipes served. Required.
	Registry *registry.Registry

	// Logger is used to log requests and failures.
	Logger *logrus.Logger

	// ReadTimeout is applied to data reads that do not set their own
	// timeout. Zero waits until the client goes away.
	ReadTimeout time.Duration

	// Upgrader upgrades websocket requests.
	Upgrader websocket.Upgrader
}

type server struct {
	reg         *registry.Registry
	logger      *logrus.Logger
	readTimeout time.Duration
	upgrader    websocket.Upgrader
}

// New returns the HTTP handler for conf.
func New(conf Config) http.Handler {
	s := &server{
		reg:         conf.Registry,
		logger:      conf.Logger,
		readTimeout: conf.ReadTimeout,
		upgrader:    conf.Upgrader,
	}
	if s.logger == nil {
		logger, _ := nullLog.NewNullLogger()
		s.logger = logger
	}

	r := mux.NewRouter()
	r.HandleFunc("/pipes", s.list).Methods(http.MethodGet)
	r.HandleFunc("/pipes/{name}", s.create).Methods(http.MethodPut)
	r.HandleFunc("/pipes/{name}", s.stats).Methods(http.MethodGet)
	r.HandleFunc("/pipes/{name}", s.destroy).Methods(http.MethodDelete)
	r.HandleFunc("/pipes/{name}/data", s.write).Methods(http.MethodPost)
	r.HandleFunc("/pipes/{name}/data", s.read).Methods(http.MethodGet)
	r.HandleFunc("/pipes/{name}/ws", s.websocket).Methods(http.MethodGet)
	return r
}

func (s *server) list(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.reg.List())
}

func (s *server) create(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]
	p, err := s.reg.Create(name)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, p.Stats())
}

func (s *server) stats(w http.ResponseWriter, r *http.Request) {
	p, ok := s.pipe(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, p.Stats())
}

func (s *server) destroy(w http.ResponseWriter, r *http.Request) {
	if err := s.reg.Destroy(mux.Vars(r)["name"]); err != nil {
		s.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type writeResult struct {
	Written int64 `json:"written"`
}

// write copies the request body into the pipe one byte at a time.
func (s *server) write(w http.ResponseWriter, r *http.Request) {
	p, ok := s.pipe(w, r)
	if !ok {
		return
	}
	_, pw := p.Open(r.Context())
	defer pw.Close()

	n, err := pw.ReadFrom(r.Body)
	if err != nil {
		s.log(r).WithError(err).WithField("written", n).Warn("write failed")
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, writeResult{Written: n})
}

// read blocks until n bytes (default 1) have been read from the pipe.
func (s *server) read(w http.ResponseWriter, r *http.Request) {
	p, ok := s.pipe(w, r)
	if !ok {
		return
	}
	n, timeout, err := readParams(r, s.readTimeout)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	ctx := r.Context()
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	buf := make([]byte, n)
	status := http.StatusOK
	for i := range buf {
		c, err := p.ReadByteContext(ctx)
		if err != nil {
			s.log(r).WithError(err).WithField("read", i).Debug("read interrupted")
			if i == 0 || r.Context().Err() != nil {
				s.fail(w, r, err)
				return
			}
			// bytes already taken belong to this client
			buf, status = buf[:i], http.StatusPartialContent
			break
		}
		buf[i] = c
	}
	w.Header().Set("Content-Type", "application/octet-stream")
	w.Header().Set("Content-Length", strconv.Itoa(len(buf)))
	w.WriteHeader(status)
	_, _ = w.Write(buf)
}

func readParams(r *http.Request, defaultTimeout time.Duration) (int, time.Duration, error) {
	q := r.URL.Query()
	n := 1
	if v := q.Get("n"); v != "" {
		var err error
		n, err = strconv.Atoi(v)
		if err != nil || n < 1 || n > maxReadBytes {
			return 0, 0, errors.Errorf("n must be between 1 and %d", maxReadBytes)
		}
	}
	timeout := defaultTimeout
	if v := q.Get("timeout"); v != "" {
		var err error
		timeout, err = time.ParseDuration(v)
		if err != nil || timeout < 0 {
			return 0, 0, errors.Errorf("invalid timeout %q", v)
		}
	}
	return n, timeout, nil
}

func (s *server) pipe(w http.ResponseWriter, r *http.Request) (*growpipe.Pipe, bool) {
	p, err := s.reg.Get(mux.Vars(r)["name"])
	if err != nil {
		s.fail(w, r, err)
		return nil, false
	}
	return p, true
}

func (s *server) log(r *http.Request) *logrus.Entry {
	return s.logger.WithFields(logrus.Fields{
		"name":        mux.Vars(r)["name"],
		"remote-addr": r.RemoteAddr,
	})
}

// fail maps pipe and registry errors onto HTTP status codes.
func (s *server) fail(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		s.log(r).WithError(err).Error("request failed")
	}
	writeError(w, status, err)
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, registry.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, registry.ErrExists):
		return http.StatusConflict
	case errors.Is(err, registry.ErrInvalidName), errors.Is(err, growpipe.ErrInvalidCapacity):
		return http.StatusBadRequest
	case errors.Is(err, growpipe.ErrClosed), errors.Is(err, registry.ErrClosed):
		return http.StatusGone
	case errors.Is(err, growpipe.ErrOutOfMemory):
		return http.StatusInsufficientStorage
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusRequestTimeout
	case errors.Is(err, growpipe.ErrCancelled), errors.Is(err, io.ErrClosedPipe):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

type errorBody struct {
	Error string `json:"error"`
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, errorBody{Error: err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
