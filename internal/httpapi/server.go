// Package httpapi serves the overlay surface: health, info, adapter
// status, recent history and the WebSocket frame stream.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"nhooyr.io/websocket"

	"github.com/you/chatfuse/internal/core"
	"github.com/you/chatfuse/internal/hub"
	"github.com/you/chatfuse/internal/store"
	"github.com/you/chatfuse/internal/version"
)

type Server struct {
	hub     *hub.Hub
	metrics *Metrics
	limiter *ipRateLimiter
	cors    *corsPolicy
	accept  *websocket.AcceptOptions

	httpServer *http.Server
	info       func() map[string]any
	display    *store.Store
}

type Options struct {
	Addr           string
	CORSOrigins    []string
	RateLimitRPS   int
	RateLimitBurst int
	// Info supplies extra fields for the /info payload, typically the
	// redacted config summary.
	Info func() map[string]any
	// Display is the expiring overlay buffer served on /overlay.
	Display *store.Store
}

func New(h *hub.Hub, m *Metrics, opts Options) *Server {
	srv := &Server{
		hub:     h,
		metrics: m,
		limiter: newIPRateLimiter(opts.RateLimitRPS, opts.RateLimitBurst),
		cors:    newCORSPolicy(opts.CORSOrigins),
		accept:  acceptOptions(opts.CORSOrigins),
		info:    opts.Info,
		display: opts.Display,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", srv.wrap("/healthz", srv.handleHealthz))
	mux.HandleFunc("/info", srv.wrap("/info", srv.handleInfo))
	mux.HandleFunc("/status", srv.wrap("/status", srv.handleStatus))
	mux.HandleFunc("/messages", srv.wrap("/messages", srv.handleMessages))
	mux.HandleFunc("/overlay", srv.wrap("/overlay", srv.handleOverlay))
	mux.HandleFunc("/stream", srv.wrap("/stream", srv.handleStream))
	mux.Handle("/metrics", m.Handler())

	srv.httpServer = &http.Server{
		Addr:              opts.Addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	return srv
}

// acceptOptions derives the WebSocket origin policy from the CORS origin
// list. No configured origins means a local overlay setup, where origin
// checking only gets in the way.
func acceptOptions(origins []string) *websocket.AcceptOptions {
	if len(origins) == 0 {
		return &websocket.AcceptOptions{InsecureSkipVerify: true}
	}
	patterns := make([]string, 0, len(origins))
	for _, o := range origins {
		o = strings.TrimSpace(o)
		if o == "" {
			continue
		}
		if o == "*" {
			return &websocket.AcceptOptions{InsecureSkipVerify: true}
		}
		if u, err := url.Parse(o); err == nil && u.Host != "" {
			patterns = append(patterns, u.Host)
		} else {
			patterns = append(patterns, o)
		}
	}
	return &websocket.AcceptOptions{OriginPatterns: patterns}
}

// wrap applies the access middleware: preflight, rate limiting, CORS
// headers, gzip and request metrics.
func (s *Server) wrap(route string, handler http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		if handled, status := s.cors.handlePreflight(w, r); handled {
			s.metrics.ObserveRequest(route, r.Method, status, time.Since(start))
			return
		}
		if !s.limiter.Allow(remoteIP(r)) {
			s.metrics.IncRateLimited()
			http.Error(w, "rate limit exceeded", http.StatusTooManyRequests)
			s.metrics.ObserveRequest(route, r.Method, http.StatusTooManyRequests, time.Since(start))
			return
		}
		if !s.cors.applyHeaders(w, r) {
			http.Error(w, "origin not allowed", http.StatusForbidden)
			s.metrics.ObserveRequest(route, r.Method, http.StatusForbidden, time.Since(start))
			return
		}

		rec := newResponseRecorder(w)
		gz, gzipped := maybeGzip(rec, r)

		handler(rec, r)

		if gzipped {
			_ = gz.Close()
		}
		s.metrics.ObserveRequest(route, r.Method, rec.Status(), time.Since(start))
	}
}

func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, map[string]any{"ok": true})
}

func (s *Server) handleInfo(w http.ResponseWriter, _ *http.Request) {
	payload := map[string]any{
		"version": version.String(),
		"viewers": s.hub.ViewerCount(),
	}
	if s.info != nil {
		for k, v := range s.info() {
			payload[k] = v
		}
	}
	writeJSON(w, payload)
}

func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	statuses := s.hub.Statuses()
	out := make(map[string]string, len(statuses))
	for p, st := range statuses {
		out[p.Key()] = string(st)
	}
	writeJSON(w, out)
}

func (s *Server) handleMessages(w http.ResponseWriter, r *http.Request) {
	limit := 100
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 {
			limit = n
			if limit > 1000 {
				limit = 1000
			}
		}
	}

	msgs := s.hub.History(limit)
	if msgs == nil {
		msgs = []core.ChatMessage{}
	}
	writeJSON(w, msgs)
}

// handleOverlay serves the expiring display buffer: the messages still on
// screen plus the ids that are about to fade out.
func (s *Server) handleOverlay(w http.ResponseWriter, _ *http.Request) {
	msgs := []core.ChatMessage{}
	fading := []string{}
	if s.display != nil {
		if m := s.display.Messages(); m != nil {
			msgs = m
		}
		if f := s.display.Fading(); f != nil {
			fading = f
		}
	}
	writeJSON(w, map[string]any{"messages": msgs, "fading": fading})
}

func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	opts, err := parseStreamOptions(r.URL.Query())
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	conn, err := websocket.Accept(baseWriter(w), r, s.accept)
	if err != nil {
		log.Printf("httpapi: websocket accept: %v", err)
		return
	}
	conn.SetReadLimit(1 << 16)

	s.metrics.IncWSViewers(1)
	defer s.metrics.IncWSViewers(-1)

	v := s.hub.Subscribe(opts)
	defer s.hub.Unsubscribe(v)

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	// viewers never send application data; the read pump just notices
	// the client going away and answers protocol pings
	go func() {
		defer cancel()
		for {
			if _, _, err := conn.Read(ctx); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			conn.Close(websocket.StatusNormalClosure, "")
			return
		case frame, ok := <-v.Frames():
			if !ok {
				conn.Close(websocket.StatusGoingAway, "shutting down")
				return
			}
			writeCtx, writeCancel := context.WithTimeout(ctx, 10*time.Second)
			err := conn.Write(writeCtx, websocket.MessageText, frame)
			writeCancel()
			if err != nil {
				return
			}
		}
	}
}

func (s *Server) Start() error {
	log.Printf("httpapi: listening on %s", s.httpServer.Addr)
	if err := s.httpServer.ListenAndServe(); err != nil {
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	_ = json.NewEncoder(w).Encode(v)
}
