package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"

	"github.com/jacoelho/growpipe"
)

const closeWait = time.Second

// websocket bridges a websocket connection to a pipe. Binary and text
// messages from the client are written into the pipe; bytes read from the
// pipe are sent back as binary messages.
func (s *server) websocket(w http.ResponseWriter, r *http.Request) {
	p, ok := s.pipe(w, r)
	if !ok {
		return
	}
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already replied to the client
		s.log(r).WithError(err).Warn("could not upgrade connection")
		return
	}
	defer conn.Close()
	log := s.log(r).WithField("pipe", p.ID())
	log.Debug("websocket session started")

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()
	pr, pw := p.Open(ctx)

	var g errgroup.Group
	g.Go(func() error {
		defer cancel()
		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				return errors.Wrap(err, "reading message")
			}
			if _, err := pw.Write(data); err != nil {
				return errors.Wrap(err, "writing to pipe")
			}
		}
	})
	g.Go(func() error {
		defer cancel()
		err := forward(pr, conn)

		code, text := websocket.CloseNormalClosure, ""
		if errors.Is(err, growpipe.ErrClosed) {
			code, text = websocket.CloseGoingAway, "pipe closed"
		}
		deadline := time.Now().Add(closeWait)
		_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(code, text), deadline)
		// let the reader collect the client's close reply, then give up
		_ = conn.SetReadDeadline(deadline)
		return err
	})
	err = g.Wait()

	if websocket.IsCloseError(errors.Cause(err), websocket.CloseNormalClosure, websocket.CloseGoingAway) {
		err = nil
	}
	log.WithError(err).Debug("websocket session ended")
}

func forward(pr *growpipe.PipeReader, conn *websocket.Conn) error {
	buf := make([]byte, 32*1024)
	for {
		n, err := pr.Read(buf)
		if err != nil {
			return errors.Wrap(err, "reading from pipe")
		}
		if err := conn.WriteMessage(websocket.BinaryMessage, buf[:n]); err != nil {
			return errors.Wrap(err, "writing message")
		}
	}
}
