package main

import (
	"context"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"pkt.systems/codepad"
	"pkt.systems/codepad/httpapi"
	"pkt.systems/codepad/internal/appconfig"
	"pkt.systems/codepad/internal/assist"
	"pkt.systems/codepad/internal/projectstore"
	"pkt.systems/codepad/internal/sandbox"
	"pkt.systems/pslog"
)

func newServeCmd() *cobra.Command {
	var cfgPath string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the codepad server",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := pslog.Ctx(cmd.Context())
			cfg, err := appconfig.Load(cfgPath)
			if err != nil {
				return err
			}

			store, err := projectstore.Open(cfg.DataDir, logger)
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			renderer, err := sandbox.New(cfg.Sandbox, logger)
			if err != nil {
				return err
			}
			defer renderer.Close()

			assistant := assist.New(cfg.Assistant, logger)

			serverCfg := codepad.ServerConfig{
				Editor: cfg.EditorConfig(),
				HTTP:   toHTTPConfig(cfg),
				Auth:   toAuthConfig(cfg.Auth),
			}
			server, err := codepad.New(serverCfg, codepad.ServerDeps{
				Repository: store,
				Assistant:  assistant,
				Sandbox:    renderer,
				Logger:     logger,
			})
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			go func() {
				<-ctx.Done()
				stopCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
				defer cancel()
				if err := server.Stop(stopCtx); err != nil {
					logger.Warn("server stop failed", "err", err)
				}
			}()
			logger.Info("http server listening", "addr", serverCfg.HTTP.Addr)
			if err := server.Start(ctx); err != nil {
				return err
			}
			return server.Wait()
		},
	}
	cmd.Flags().StringVarP(&cfgPath, "config", "c", "", "path to config file")
	return cmd
}

func toHTTPConfig(cfg appconfig.Config) httpapi.Config {
	return httpapi.Config{
		Addr:            cfg.HTTP.Addr,
		SessionCookie:   cfg.HTTP.SessionCookie,
		SessionTTLHours: cfg.HTTP.SessionTTLHours,
		BaseURL:         cfg.HTTP.BaseURL,
		BasePath:        cfg.HTTP.BasePath,
		SessionFile:     filepath.Join(cfg.DataDir, "sessions.json"),
	}
}

func toAuthConfig(cfg appconfig.AuthConfig) codepad.AuthConfig {
	seeds := make([]codepad.SeedUser, 0, len(cfg.SeedUsers))
	for _, seed := range cfg.SeedUsers {
		seeds = append(seeds, codepad.SeedUser{
			Username:     seed.Username,
			PasswordHash: seed.PasswordHash,
			TOTPSecret:   seed.TOTPSecret,
		})
	}
	return codepad.AuthConfig{
		UserFile:  cfg.UserFile,
		SeedUsers: seeds,
	}
}
