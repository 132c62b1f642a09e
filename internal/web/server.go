// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 BugReport Contributors

// Package web serves the bugreport JSON API over gin.
package web

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/bugreport/bugreport/internal/auth"
	"github.com/bugreport/bugreport/internal/issue"
	"github.com/bugreport/bugreport/internal/storage"
)

const tracerName = "github.com/bugreport/bugreport/internal/web"

// Authenticator is the auth surface the API exposes.
type Authenticator interface {
	Authorizer
	Register(ctx context.Context, req auth.RegistrationRequest) (*auth.Token, error)
	Login(ctx context.Context, email, password string) (*auth.TokenPair, error)
	Refresh(ctx context.Context, refreshToken string) (*auth.TokenPair, error)
	Logout(ctx context.Context, refreshToken string) error
	RequestActivation(ctx context.Context, userID ulid.ULID) error
	Activate(ctx context.Context, token string) error
	ChangePassword(ctx context.Context, userID ulid.ULID, req auth.ChangePasswordRequest) error
	RequestPasswordReset(ctx context.Context, email string) error
	ResetPassword(ctx context.Context, token, password, confirmation string) error
}

// Accounts manages user profiles.
type Accounts interface {
	Get(ctx context.Context, id ulid.ULID) (*auth.User, error)
	Update(ctx context.Context, id ulid.ULID, upd auth.ProfileUpdate) (*auth.User, error)
	SetProfilePicture(ctx context.Context, id ulid.ULID, key string) (*auth.User, error)
	Delete(ctx context.Context, id ulid.ULID) error
}

// Issues manages the issue board.
type Issues interface {
	Create(ctx context.Context, req issue.CreateRequest) (*issue.Issue, error)
	List(ctx context.Context, filter issue.Filter) ([]*issue.Issue, error)
	Get(ctx context.Context, id int64) (*issue.Issue, error)
	Update(ctx context.Context, id int64, req issue.UpdateRequest) (*issue.Issue, error)
	UpdateStatus(ctx context.Context, id int64, column string) (*issue.Issue, error)
	Delete(ctx context.Context, id int64) error
}

// Pictures presigns profile picture transfers.
type Pictures interface {
	UploadURL(ctx context.Context, userID ulid.ULID, filename string) (*storage.Upload, error)
	DownloadURL(ctx context.Context, key string) (string, error)
}

var (
	_ Authenticator = (*auth.Service)(nil)
	_ Accounts      = (*auth.AccountService)(nil)
	_ Issues        = (*issue.Service)(nil)
	_ Pictures      = (*storage.ProfilePictures)(nil)
)

// Deps holds the collaborators of the API.
type Deps struct {
	Auth     Authenticator
	Accounts Accounts
	Issues   Issues
	// Pictures may be nil, in which case picture uploads answer 503.
	Pictures Pictures
	Metrics  HTTPMetrics
	Tracer   trace.Tracer
	Logger   *slog.Logger
}

type api struct {
	Deps
}

// NewRouter builds the gin engine with middleware and every route.
func NewRouter(deps Deps) (*gin.Engine, error) {
	switch {
	case deps.Auth == nil:
		return nil, oops.Code("WEB_ROUTER_INVALID").Errorf("auth service is required")
	case deps.Accounts == nil:
		return nil, oops.Code("WEB_ROUTER_INVALID").Errorf("account service is required")
	case deps.Issues == nil:
		return nil, oops.Code("WEB_ROUTER_INVALID").Errorf("issue service is required")
	}
	if deps.Metrics == nil {
		deps.Metrics = noopMetrics{}
	}
	if deps.Tracer == nil {
		deps.Tracer = otel.Tracer(tracerName)
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	a := &api{Deps: deps}

	r := gin.New()
	r.HandleMethodNotAllowed = true
	r.Use(withRequestID(), withTracing(a.Tracer), withAccessLog(a.Logger, a.Metrics), withRecovery(a.Logger))
	r.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, APIError{Type: TypeNotFound, Message: "route not found"})
	})
	r.NoMethod(func(c *gin.Context) {
		c.JSON(http.StatusMethodNotAllowed, APIError{Type: TypeGeneral, Message: "method not allowed"})
	})

	authn := requireAuth(a.Auth, a.Logger)
	self := selfOnly(a.Logger)

	authGroup := r.Group("/api/auth")
	authGroup.POST("/register", a.register)
	authGroup.POST("/login", a.login)
	authGroup.POST("/refresh", a.refresh)
	authGroup.POST("/logout", a.logout)
	authGroup.POST("/password-reset", a.requestPasswordReset)
	authGroup.POST("/password-reset/confirm", a.resetPassword)
	authGroup.POST("/activate/:token", a.activate)

	users := r.Group("/api/users", authn)
	users.POST("/me/activation", a.requestActivation)
	users.GET("/:id", a.getUser)
	users.PUT("/:id", self, a.updateUser)
	users.DELETE("/:id", self, a.deleteUser)
	users.PUT("/:id/password", self, a.changePassword)
	users.POST("/:id/picture", self, a.uploadPicture)

	issues := r.Group("/api/issues", authn)
	issues.POST("", a.createIssue)
	issues.GET("", a.listIssues)
	issues.GET("/:id", a.getIssue)
	issues.PUT("/:id", a.updateIssue)
	issues.PUT("/:id/status", a.updateIssueStatus)
	issues.DELETE("/:id", a.deleteIssue)

	return r, nil
}

// bind decodes the JSON body into dst, aborting with 400 on failure.
func (a *api) bind(c *gin.Context, dst any) bool {
	if err := c.ShouldBindJSON(dst); err != nil {
		abortWithError(c, a.Logger, errBadBody)
		return false
	}
	return true
}

// ServerOptions tunes the HTTP listener.
type ServerOptions struct {
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	Logger       *slog.Logger
}

// Server runs the API on its own listener.
type Server struct {
	addr       string
	handler    http.Handler
	opts       ServerOptions
	listener   net.Listener
	httpServer *http.Server
	running    atomic.Bool
}

// NewServer creates a Server for handler. addr is "host:port"; port 0
// picks a free port.
func NewServer(addr string, handler http.Handler, opts ServerOptions) *Server {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Server{addr: addr, handler: handler, opts: opts}
}

// Start begins serving. The returned channel receives a serve error and is
// closed when the server stops.
func (s *Server) Start() (<-chan error, error) {
	if !s.running.CompareAndSwap(false, true) {
		return nil, oops.Code("WEB_RUNNING").Errorf("api server already running")
	}

	listener, err := net.Listen("tcp", s.addr)
	if err != nil {
		s.running.Store(false)
		return nil, oops.Code("WEB_LISTEN_FAILED").With("addr", s.addr).Wrap(err)
	}
	s.listener = listener

	httpSrv := &http.Server{
		Handler:           s.handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       s.opts.ReadTimeout,
		WriteTimeout:      s.opts.WriteTimeout,
	}
	s.httpServer = httpSrv

	errCh := make(chan error, 1)
	go func() {
		defer close(errCh)
		if serveErr := httpSrv.Serve(listener); serveErr != nil && !errors.Is(serveErr, http.ErrServerClosed) {
			s.opts.Logger.Error("api server error", "error", serveErr)
			errCh <- serveErr
		}
	}()

	s.opts.Logger.Info("api server started", "addr", listener.Addr().String())
	return errCh, nil
}

// Stop gracefully shuts down the server. Stopping a stopped server is a no-op.
func (s *Server) Stop(ctx context.Context) error {
	if !s.running.CompareAndSwap(true, false) {
		return nil
	}
	if err := s.httpServer.Shutdown(ctx); err != nil {
		s.running.Store(true)
		return oops.Code("WEB_SHUTDOWN_FAILED").With("operation", "shutdown api server").Wrap(err)
	}
	s.opts.Logger.Info("api server stopped")
	return nil
}

// Addr returns the bound address, or "" before Start.
func (s *Server) Addr() string {
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return ""
}
