// Package server exposes the scalars of a running experiment over HTTP.
// A Server is a tracker.Tracker, so the trainer feeds it directly.
//
// Routes:
//
//	GET /health          liveness and the number of recorded series
//	GET /scalars         the latest point of every series
//	GET /scalars/{name}  every point of a series
//	GET /ws              a websocket stream of scalars as they are logged
package server

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/samuelfneumann/goppo/experiment/tracker"
)

const (
	// Time allowed to write a message to a websocket peer
	writeWait = 10 * time.Second

	// Scalars buffered per websocket client before new ones are dropped
	streamBuffer = 256

	shutdownTimeout = 5 * time.Second
)

// Update is a single logged scalar
type Update struct {
	Name  string  `json:"name"`
	Step  int     `json:"step"`
	Value float64 `json:"value"`
}

// Server serves the scalars logged to it
type Server struct {
	addr     string
	scalars  *tracker.Scalars
	router   *mux.Router
	upgrader websocket.Upgrader
	logger   zerolog.Logger

	mu      sync.Mutex
	streams map[chan Update]struct{}
}

// Option configures a Server
type Option func(*Server)

// WithLogger sets the logger of the Server
func WithLogger(logger zerolog.Logger) Option {
	return func(s *Server) {
		s.logger = logger.With().Str("component", "server").Logger()
	}
}

// WithScalars sets the Scalars served by the Server. By default, a
// Server records into its own Scalars.
func WithScalars(scalars *tracker.Scalars) Option {
	return func(s *Server) {
		s.scalars = scalars
	}
}

// New returns a new Server which will listen on addr
func New(addr string, opts ...Option) *Server {
	s := &Server{
		addr:    addr,
		scalars: tracker.NewScalars(),
		logger:  zerolog.Nop(),
		streams: make(map[chan Update]struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}

	r := mux.NewRouter()
	r.HandleFunc("/health", s.health).Methods(http.MethodGet)
	r.HandleFunc("/scalars", s.latest).Methods(http.MethodGet)
	r.HandleFunc("/scalars/{name}", s.series).Methods(http.MethodGet)
	r.HandleFunc("/ws", s.stream).Methods(http.MethodGet)
	s.router = r
	return s
}

// Handler returns the HTTP handler of the Server
func (s *Server) Handler() http.Handler { return s.router }

// LogScalar implements the tracker.Tracker interface. The scalar is
// recorded and pushed to every connected websocket client.
func (s *Server) LogScalar(name string, value float64, step int) error {
	if err := s.scalars.LogScalar(name, value, step); err != nil {
		return errors.Wrap(err, "logScalar")
	}

	u := Update{Name: name, Step: step, Value: value}
	s.mu.Lock()
	defer s.mu.Unlock()
	for ch := range s.streams {
		select {
		case ch <- u:
		default:
			// Slow clients miss updates rather than block training
		}
	}
	return nil
}

// ListenAndServe serves HTTP requests until ctx is done, after which
// the Server is shut down gracefully
func (s *Server) ListenAndServe(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errs := make(chan error, 1)
	go func() {
		s.logger.Info().Str("addr", s.addr).Msg("serving")
		errs <- srv.ListenAndServe()
	}()

	select {
	case err := <-errs:
		return errors.Wrap(err, "listenAndServe")
	case <-ctx.Done():
	}

	shutdown, cancel := context.WithTimeout(context.Background(),
		shutdownTimeout)
	defer cancel()
	s.closeStreams()
	if err := srv.Shutdown(shutdown); err != nil {
		return errors.Wrap(err, "listenAndServe: shutdown")
	}
	s.logger.Info().Msg("server stopped")
	return nil
}

func (s *Server) health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status": "ok",
		"series": len(s.scalars.Names()),
	})
}

func (s *Server) latest(w http.ResponseWriter, _ *http.Request) {
	latest := make(map[string]tracker.Point)
	for _, name := range s.scalars.Names() {
		if p, ok := s.scalars.Latest(name); ok {
			latest[name] = p
		}
	}
	writeJSON(w, http.StatusOK, latest)
}

func (s *Server) series(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]
	points := s.scalars.Series(name)
	if len(points) == 0 {
		writeJSON(w, http.StatusNotFound, map[string]string{
			"error": "no scalar named " + name,
		})
		return
	}
	writeJSON(w, http.StatusOK, points)
}

func (s *Server) stream(w http.ResponseWriter, r *http.Request) {
	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error().Err(err).Msg("could not upgrade connection")
		return
	}
	defer ws.Close()

	ch := s.subscribe()
	defer s.unsubscribe(ch)

	// Detect clients going away
	gone := make(chan struct{})
	go func() {
		defer close(gone)
		for {
			if _, _, err := ws.NextReader(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case u, ok := <-ch:
			if !ok {
				_ = ws.SetWriteDeadline(time.Now().Add(writeWait))
				_ = ws.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure,
						""))
				return
			}
			_ = ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := ws.WriteJSON(u); err != nil {
				s.logger.Debug().Err(err).Msg("websocket client dropped")
				return
			}
		case <-gone:
			return
		case <-r.Context().Done():
			return
		}
	}
}

func (s *Server) subscribe() chan Update {
	ch := make(chan Update, streamBuffer)
	s.mu.Lock()
	s.streams[ch] = struct{}{}
	s.mu.Unlock()
	return ch
}

func (s *Server) unsubscribe(ch chan Update) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.streams[ch]; ok {
		delete(s.streams, ch)
		close(ch)
	}
}

func (s *Server) closeStreams() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for ch := range s.streams {
		delete(s.streams, ch)
		close(ch)
	}
}

// clients returns the number of connected websocket clients
func (s *Server) clients() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.streams)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
