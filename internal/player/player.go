// Package player is the playback event feed. A video player connects a
// websocket per view, streams play/pause/timeupdate events and receives the
// resume position back, followed by the item's progress each time a change
// to it is committed (by this view's reports or anything else). One
// connection is one watch session; disconnecting unmounts the view.
package player

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/tonimelisma/learnsync/internal/contentid"
	"github.com/tonimelisma/learnsync/internal/progress"
	"github.com/tonimelisma/learnsync/internal/session"
	"github.com/tonimelisma/learnsync/internal/watch"
)

// Event types sent by the player.
const (
	EventPlay       = "play"
	EventPause      = "pause"
	EventTimeUpdate = "timeupdate"
	EventEnded      = "ended"
)

// Message types sent to the player.
const (
	MessageResume   = "resume"
	MessageProgress = "progress"
	MessageError    = "error"
)

const writeTimeout = 5 * time.Second

// Event is one playback event from the player.
type Event struct {
	Type     string  `json:"type"`
	Position float64 `json:"position,omitempty"`
	Duration float64 `json:"duration,omitempty"`
}

// Message is pushed to the player.
type Message struct {
	Type              string `json:"type"`
	Position          int    `json:"position,omitempty"`
	Completed         bool   `json:"completed,omitempty"`
	Points            int    `json:"points,omitempty"`
	LastSecondWatched int    `json:"last_second_watched,omitempty"`
	Error             string `json:"error,omitempty"`
}

// Server serves the playback feed.
type Server struct {
	tracker *watch.Tracker
	session *session.Session
	logger  *slog.Logger

	// OriginPatterns is passed to websocket.Accept. Empty allows same-origin
	// only.
	OriginPatterns []string
}

// NewServer creates a playback feed server.
func NewServer(tracker *watch.Tracker, sess *session.Session, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}

	return &Server{tracker: tracker, session: sess, logger: logger}
}

// Handler returns the HTTP routes.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("GET /sessions/{id}", s.handleSession)

	return mux
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

func (s *Server) handleSession(w http.ResponseWriter, r *http.Request) {
	itemID := contentid.New(r.PathValue("id"))

	item, ok := s.session.Item(itemID)
	if !ok {
		http.Error(w, "unknown item", http.StatusNotFound)
		return
	}

	if !item.IsVideo() {
		http.Error(w, "item is not a video", http.StatusBadRequest)
		return
	}

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{OriginPatterns: s.OriginPatterns})
	if err != nil {
		s.logger.Warn("websocket accept failed", slog.String("error", err.Error()))
		return
	}
	defer conn.CloseNow()

	ctx := r.Context()

	ws := s.tracker.Open(itemID, func(_ *progress.VideoOutcome, err error) {
		if err != nil {
			s.push(ctx, conn, Message{Type: MessageError, Error: err.Error()})
		}
	})
	defer ws.Close()

	updates := make(chan session.Item, 1)

	unsubscribe := s.session.SubscribeItem(itemID, func(it session.Item) {
		// Runs under the session's write lock; keep only the latest state.
		select {
		case <-updates:
		default:
		}

		select {
		case updates <- it:
		default:
		}
	})
	defer unsubscribe()

	log := s.logger.With(
		slog.String("session_id", ws.ID()),
		slog.String("item_id", itemID.String()),
	)
	log.Info("player connected")

	if err := s.write(ctx, conn, Message{Type: MessageResume, Position: watch.ResumePosition(item)}); err != nil {
		log.Warn("sending resume position failed", slog.String("error", err.Error()))
		return
	}

	feedCtx, stopFeed := context.WithCancel(ctx)
	defer stopFeed()

	go s.forward(feedCtx, conn, updates)

	err = s.readLoop(ctx, conn, ws)

	switch status := websocket.CloseStatus(err); {
	case status == websocket.StatusNormalClosure || status == websocket.StatusGoingAway:
		log.Info("player disconnected")
		conn.Close(websocket.StatusNormalClosure, "")
	case errors.Is(err, context.Canceled):
		log.Info("player feed canceled")
	default:
		log.Warn("player feed ended", slog.String("error", err.Error()))
		conn.Close(websocket.StatusInternalError, "feed error")
	}
}

// readLoop dispatches events until the connection ends.
func (s *Server) readLoop(ctx context.Context, conn *websocket.Conn, ws *watch.Session) error {
	for {
		var ev Event
		if err := wsjson.Read(ctx, conn, &ev); err != nil {
			return err
		}

		if err := dispatch(ws, ev); err != nil {
			s.push(ctx, conn, Message{Type: MessageError, Error: err.Error()})
		}
	}
}

// dispatch applies one event to a watch session.
func dispatch(ws *watch.Session, ev Event) error {
	switch ev.Type {
	case EventPlay:
		ws.OnResumePlayback()
	case EventPause:
		ws.OnPausePlayback()
	case EventTimeUpdate:
		ws.OnTimeUpdate(ev.Position, ev.Duration)
	case EventEnded:
		ws.OnTimeUpdate(ev.Position, ev.Duration)
		ws.OnPausePlayback()
	default:
		return fmt.Errorf("player: unknown event type %q", ev.Type)
	}

	return nil
}

// forward pushes committed item changes until ctx ends.
func (s *Server) forward(ctx context.Context, conn *websocket.Conn, updates <-chan session.Item) {
	for {
		select {
		case <-ctx.Done():
			return
		case it := <-updates:
			s.push(ctx, conn, progressMessage(it))
		}
	}
}

func progressMessage(it session.Item) Message {
	return Message{
		Type:              MessageProgress,
		Completed:         it.Completed,
		Points:            it.Points,
		LastSecondWatched: it.LastSecondWatched,
	}
}

func (s *Server) push(ctx context.Context, conn *websocket.Conn, msg Message) {
	if err := s.write(ctx, conn, msg); err != nil {
		s.logger.Debug("player push dropped",
			slog.String("type", msg.Type),
			slog.String("error", err.Error()),
		)
	}
}

func (s *Server) write(ctx context.Context, conn *websocket.Conn, msg Message) error {
	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()

	return wsjson.Write(ctx, conn, msg)
}
