package server

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/franckalain/fooddeclare/internal/access"
	"github.com/franckalain/fooddeclare/internal/camera"
	"github.com/franckalain/fooddeclare/internal/database"
	"github.com/franckalain/fooddeclare/internal/declaration"
	"github.com/franckalain/fooddeclare/internal/export"
	"github.com/franckalain/fooddeclare/internal/ml"
	"github.com/franckalain/fooddeclare/internal/pipeline"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // the app is served from this host or a local dev server
	},
}

// Deps are the components a Server drives
type Deps struct {
	Items      *declaration.Log
	Prefs      *declaration.Preferences
	Resolver   pipeline.Resolver
	Reconciler *pipeline.Reconciler
	Scans      database.ScanHistory
	Exporter   export.Exporter
	Advisor    *ml.Advisor
	// Gate is nil when access control is disabled
	Gate *access.Gate

	Camera      camera.Constraints
	JPEGQuality int
}

// Server exposes the declaration pipeline over HTTP and websocket
type Server struct {
	deps    Deps
	clients sync.Map // client id -> *session
	grants  sync.Map // device id|code -> struct{}
	debug   bool
	router  *gin.Engine
}

// New creates a server. staticDir is served for any unmatched route when not empty.
func New(deps Deps, staticDir string, debug bool) *Server {
	if debug {
		gin.SetMode(gin.DebugMode)
		log.Debug().Msg("Debug logging enabled")
	} else {
		gin.SetMode(gin.ReleaseMode)
	}
	if deps.Reconciler == nil {
		deps.Reconciler = pipeline.NewReconciler()
	}
	if deps.Exporter == nil {
		deps.Exporter = export.NewPDFExporter()
	}

	s := &Server{deps: deps, debug: debug}
	s.router = s.routes(staticDir)
	return s
}

// Handler returns the HTTP handler with every route registered
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start serves on port until SIGINT/SIGTERM or ctx is done, then shuts down gracefully
func (s *Server) Start(ctx context.Context, port string) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	srv := &http.Server{
		Addr:              ":" + port,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("port", port).Msg("Starting server")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Info().Msg("Shutting down server...")
	s.closeSessions()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

// broadcast sends a message to every connected client
func (s *Server) broadcast(msgType string, data any) {
	s.clients.Range(func(_, v any) bool {
		v.(*session).sendMessage(msgType, data)
		return true
	})
}

func (s *Server) closeSessions() {
	s.clients.Range(func(_, v any) bool {
		v.(*session).close()
		return true
	})
}
