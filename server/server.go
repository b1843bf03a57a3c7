// Package server wires the channel, broadcast, task, prompt, and workflow
// subsystems into a running ailoop instance: a WebSocket listener for the
// agent protocol, an HTTP API on port+1, and the dispatch loop that turns
// queued prompts into terminal or notification-sink interactions.
package server

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/goailoop/ailoop/broadcast"
	"github.com/goailoop/ailoop/channel"
	"github.com/goailoop/ailoop/config"
	"github.com/goailoop/ailoop/prompt"
	"github.com/goailoop/ailoop/task"
	"github.com/goailoop/ailoop/workflow"
)

const dispatchTick = 100 * time.Millisecond

// version is reported by the health endpoint.
const version = "0.1.0"

// Server owns every in-memory subsystem for one running ailoop instance.
type Server struct {
	host           string
	port           int
	defaultChannel string
	startedAt      time.Time

	cfg          *config.Global
	channels     *channel.Manager
	history      *channel.History
	broadcast    *broadcast.Manager
	tasks        *task.Store
	prompts      *prompt.Registry
	orchestrator *workflow.Orchestrator
}

// New builds a Server from its already-loaded configuration. Callers that
// want workflow support must call AttachOrchestrator before Run.
func New(cfg *config.Global) *Server {
	d := cfg.Get()
	return &Server{
		host:           d.Server.Host,
		port:           d.Server.Port,
		defaultChannel: d.DefaultChannel,
		startedAt:      time.Now(),
		cfg:            cfg,
		channels:       channel.NewManager(d.DefaultChannel),
		history:        channel.NewHistory(),
		broadcast:      broadcast.NewManager(),
		tasks:          task.NewStore(),
		prompts:        prompt.NewRegistry(),
	}
}

// AttachOrchestrator wires a workflow orchestrator into the server's HTTP
// API. Optional: a server with no registered workflows works fine without
// one, in which case the workflow endpoints report 503.
func (s *Server) AttachOrchestrator(o *workflow.Orchestrator) {
	s.orchestrator = o
}

// AddSink registers a notification sink with the broadcast manager.
func (s *Server) AddSink(sink broadcast.Sink) {
	s.broadcast.AddSink(sink)
}

// Prompts returns the pending-prompt registry, for wiring an out-of-band
// reply source's poll loop into SubmitReply.
func (s *Server) Prompts() *prompt.Registry {
	return s.prompts
}

// Run binds the WebSocket listener and the HTTP API, starts the dispatch
// loop, and blocks until ctx is cancelled. On return, both listeners have
// been asked to shut down; it does not wait for in-flight connections to
// drain beyond the grace period each server.Shutdown call is given.
func (s *Server) Run(ctx context.Context) error {
	if s.orchestrator != nil {
		s.orchestrator.LogIncompleteExecutions()
	}

	wsAddr := fmt.Sprintf("%s:%d", s.host, s.port)
	httpAddr := fmt.Sprintf("%s:%d", s.host, s.port+1)

	wsMux := http.NewServeMux()
	wsMux.HandleFunc("/", s.serveWS)
	wsSrv := &http.Server{Addr: wsAddr, Handler: wsMux}

	httpSrv := &http.Server{
		Addr:         httpAddr,
		Handler:      s.httpRoutes(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 2)
	go func() {
		log.Printf("server: agent protocol listening on %s", wsAddr)
		if err := wsSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- fmt.Errorf("server: ws listener: %w", err)
		}
	}()
	go func() {
		log.Printf("server: http api listening on %s", httpAddr)
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- fmt.Errorf("server: http listener: %w", err)
		}
	}()

	dispatchCtx, cancelDispatch := context.WithCancel(ctx)
	go s.runDispatchLoop(dispatchCtx)

	cleanupStop := make(chan struct{})
	go func() {
		s.channels.RunCleanupLoop(time.Minute, cleanupStop)
	}()

	var runErr error
	select {
	case <-ctx.Done():
	case runErr = <-errCh:
	}

	log.Println("server: shutting down")
	cancelDispatch()
	close(cleanupStop)

	shutCtx, shutCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutCancel()
	if err := wsSrv.Shutdown(shutCtx); err != nil {
		log.Printf("server: ws shutdown: %v", err)
	}
	if err := httpSrv.Shutdown(shutCtx); err != nil {
		log.Printf("server: http shutdown: %v", err)
	}

	return runErr
}

// uptime reports how long the server has been running, for health output.
func (s *Server) uptime() string {
	return humanize.RelTime(s.startedAt, time.Now(), "", "")
}
