package ws

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/nusantararadius/notifyhub/server/internal/registry"
)

// pollSession is a long-polling client. The embedded outbox satisfies
// registry.Conn; pending GET requests are its readers.
type pollSession struct {
	*outbox
	limiter *rate.Limiter
	reading sync.Mutex // one GET drains at a time
}

// PollOpenResponse is returned when a polling session is opened.
type PollOpenResponse struct {
	SID          string `json:"sid"`
	PollWaitMs   int64  `json:"poll_wait_ms"`
	IdleTimeout  int64  `json:"idle_timeout_ms"`
	MaxFrameSize int64  `json:"max_frame_size"`
}

type pollError struct {
	Error string `json:"error"`
}

// ServePoll serves the HTTP long-polling fallback:
//
//	POST   (no sid)  open a session, returns PollOpenResponse
//	GET    ?sid=...  wait up to PollWait, returns a JSON array of envelopes
//	POST   ?sid=...  submit one envelope
//	POST   ?sid=...&close=1  close the session
//	DELETE ?sid=...  close the session
//
// The POST form of close needs no extra CORS method and works from
// navigator.sendBeacon on page unload.
func (h *Hub) ServePoll(w http.ResponseWriter, r *http.Request) {
	sid := r.URL.Query().Get("sid")
	if sid == "" {
		if r.Method != http.MethodPost {
			writePollJSON(w, http.StatusBadRequest, pollError{Error: "sid is required"})
			return
		}
		h.openPoll(w, r)
		return
	}

	conn, ok := h.reg.Get(sid)
	sess, isPoll := conn.(*pollSession)
	if !ok || !isPoll {
		writePollJSON(w, http.StatusNotFound, pollError{Error: "unknown session"})
		return
	}

	switch {
	case r.Method == http.MethodGet:
		h.pollFrames(w, r, sid, sess)
	case r.Method == http.MethodPost && r.URL.Query().Has("close"):
		h.detach(sid, sess.outbox)
		w.WriteHeader(http.StatusNoContent)
	case r.Method == http.MethodPost:
		h.pollSubmit(w, r, sid, sess)
	case r.Method == http.MethodDelete:
		h.detach(sid, sess.outbox)
		w.WriteHeader(http.StatusNoContent)
	default:
		w.Header().Set("Allow", "GET, POST, DELETE")
		writePollJSON(w, http.StatusMethodNotAllowed, pollError{Error: "method not allowed"})
	}
}

func (h *Hub) openPoll(w http.ResponseWriter, r *http.Request) {
	if h.closing.Load() {
		writePollJSON(w, http.StatusServiceUnavailable, pollError{Error: "shutting down"})
		return
	}
	sess := &pollSession{
		outbox:  newOutbox(h.cfg.SendBuffer, h.onDrop),
		limiter: h.newLimiter(),
	}
	id, err := h.attach(sess, sess.outbox, r.RemoteAddr, registry.TransportPolling, false)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, ErrClosing) {
			status = http.StatusServiceUnavailable
		}
		writePollJSON(w, status, pollError{Error: err.Error()})
		return
	}
	writePollJSON(w, http.StatusCreated, PollOpenResponse{
		SID:          id,
		PollWaitMs:   h.cfg.PollWait.Milliseconds(),
		IdleTimeout:  h.cfg.PongWait.Milliseconds(),
		MaxFrameSize: h.cfg.MaxMessageSize,
	})
}

// pollFrames waits for at least one frame, then returns everything queued.
// An empty array means the wait elapsed; 410 means the session is closed
// and fully drained.
func (h *Hub) pollFrames(w http.ResponseWriter, r *http.Request, sid string, sess *pollSession) {
	sess.reading.Lock()
	defer sess.reading.Unlock()
	h.reg.Touch(sid)
	defer h.reg.Touch(sid)

	timer := time.NewTimer(h.cfg.PollWait)
	defer timer.Stop()
	select {
	case <-sess.ready:
	case <-sess.done:
	case <-timer.C:
	case <-r.Context().Done():
		return
	}

	frames, closed := sess.take()
	batch := make([]json.RawMessage, 0, len(frames))
	for _, f := range frames {
		batch = append(batch, f)
	}

	if closed && len(batch) == 0 {
		h.reg.Unregister(sid)
		writePollJSON(w, http.StatusGone, pollError{Error: "session closed"})
		return
	}
	writePollJSON(w, http.StatusOK, batch)
}

func (h *Hub) pollSubmit(w http.ResponseWriter, r *http.Request, sid string, sess *pollSession) {
	if sess.isClosed() {
		writePollJSON(w, http.StatusGone, pollError{Error: "session closed"})
		return
	}
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, h.cfg.MaxMessageSize))
	if err != nil {
		writePollJSON(w, http.StatusRequestEntityTooLarge, pollError{Error: "frame too large"})
		return
	}
	h.handle(r.Context(), sid, sess.limiter, body)
	w.WriteHeader(http.StatusAccepted)
}

func writePollJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Debug("hub: poll response write failed", "err", err)
	}
}
