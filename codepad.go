// Package codepad composes the editor core service, its collaborators,
// and the HTTP server into a runnable unit.
package codepad

import (
	"context"
	"errors"
	"sync"

	"pkt.systems/codepad/core"
	"pkt.systems/codepad/httpapi"
	"pkt.systems/codepad/internal/appconfig"
	"pkt.systems/codepad/internal/auth"
	"pkt.systems/codepad/internal/eventbus"
	"pkt.systems/codepad/schema"
	"pkt.systems/pslog"
)

// Server runs the composed codepad services.
type Server interface {
	Start(ctx context.Context) error
	Wait() error
	Stop(ctx context.Context) error
}

// ServerConfig configures the compositor.
type ServerConfig struct {
	Editor schema.EditorConfig
	HTTP   httpapi.Config
	Auth   AuthConfig
}

// AuthConfig defines authentication storage settings.
type AuthConfig struct {
	UserFile  string
	SeedUsers []SeedUser
}

// SeedUser seeds an initial user record.
type SeedUser struct {
	Username     string
	PasswordHash string
	TOTPSecret   string
}

// ServerDeps captures dependencies required to build the server. The
// repository is required; assistant and sandbox are optional.
type ServerDeps struct {
	Repository core.ProjectRepository
	Assistant  core.Assistant
	Sandbox    core.SandboxRenderer
	EventSink  core.EventSink
	Logger     pslog.Logger
}

// New constructs a codepad server.
func New(cfg ServerConfig, deps ServerDeps) (Server, error) {
	if deps.Repository == nil {
		return nil, errors.New("project repository is required")
	}
	normalized, err := schema.NormalizeEditorConfig(cfg.Editor)
	if err != nil {
		return nil, err
	}
	cfg.Editor = normalized

	bus := eventbus.New(deps.Logger)
	sink := core.EventSink(bus)
	if deps.EventSink != nil {
		sink = eventFanout{sinks: []core.EventSink{deps.EventSink, bus}}
	}

	service, err := core.NewService(cfg.Editor, core.ServiceDeps{
		Repository: deps.Repository,
		Sink:       sink,
		Assistant:  deps.Assistant,
		Sandbox:    deps.Sandbox,
		Logger:     deps.Logger,
	})
	if err != nil {
		return nil, err
	}

	authStore, err := auth.NewStoreWithLogger(cfg.Auth.UserFile, toSeedUsers(cfg.Auth.SeedUsers), deps.Logger)
	if err != nil {
		return nil, err
	}

	httpSrv := httpapi.NewServer(cfg.HTTP, service, authStore, bus)

	return &compositeServer{
		cfg:     cfg,
		httpSrv: httpSrv,
		service: service,
	}, nil
}

type compositeServer struct {
	cfg     ServerConfig
	httpSrv *httpapi.Server
	service core.Service
	logger  pslog.Logger

	mu      sync.Mutex
	ctx     context.Context
	cancel  context.CancelFunc
	errCh   chan error
	started bool
}

func (s *compositeServer) Start(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		pslog.Ctx(ctx).Warn("server start rejected", "reason", "already started")
		return errors.New("server already started")
	}
	s.ctx, s.cancel = context.WithCancel(ctx)
	s.errCh = make(chan error, 1)
	s.started = true
	s.logger = pslog.Ctx(s.ctx)
	s.mu.Unlock()

	log := s.logger
	log.Info(
		"server start",
		"http_addr", s.cfg.HTTP.Addr,
		"http_base_url", s.cfg.HTTP.BaseURL,
		"http_base_path", s.cfg.HTTP.BasePath,
	)
	go func() {
		if err := httpapi.ListenAndServe(s.ctx, s.cfg.HTTP.Addr, s.httpSrv.Handler()); err != nil {
			log.Error("http server failed", "err", err)
			s.errCh <- err
		}
	}()
	return nil
}

func (s *compositeServer) Wait() error {
	s.mu.Lock()
	ctx := s.ctx
	errCh := s.errCh
	started := s.started
	s.mu.Unlock()
	if !started {
		return errors.New("server not started")
	}

	select {
	case <-ctx.Done():
		return nil
	case err := <-errCh:
		if err != nil {
			pslog.Ctx(ctx).Error("server stopped", "err", err)
			_ = s.Stop(context.Background())
			return err
		}
		return nil
	}
}

func (s *compositeServer) Stop(ctx context.Context) error {
	s.mu.Lock()
	cancel := s.cancel
	started := s.started
	log := s.logger
	s.mu.Unlock()
	if !started {
		return nil
	}
	if log == nil {
		log = pslog.Ctx(context.Background())
	}
	log.Info("server stop requested")
	if cancel != nil {
		cancel()
	}
	if ctx == nil {
		log.Info("server stop completed")
		return nil
	}
	select {
	case <-ctx.Done():
		log.Warn("server stop timed out", "err", ctx.Err())
		return ctx.Err()
	case <-s.ctx.Done():
		log.Info("server stopped")
		return nil
	}
}

func toSeedUsers(users []SeedUser) []appconfig.SeedUser {
	if len(users) == 0 {
		return nil
	}
	out := make([]appconfig.SeedUser, 0, len(users))
	for _, user := range users {
		out = append(out, appconfig.SeedUser{
			Username:     user.Username,
			PasswordHash: user.PasswordHash,
			TOTPSecret:   user.TOTPSecret,
		})
	}
	return out
}
