package main

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/gofrs/flock"
	"github.com/spf13/cobra"

	"github.com/HugeFrog24/gpt-video-translator/internal/deps"
	"github.com/HugeFrog24/gpt-video-translator/internal/history"
	"github.com/HugeFrog24/gpt-video-translator/internal/web"
)

const serveLockName = "serve.lock"

func newServeCommand(ctx *commandContext) *cobra.Command {
	var bind string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the web front end",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			logger, err := ctx.ensureLogger()
			if err != nil {
				return err
			}

			if missing := deps.Missing(deps.Locate(mediaTools(cfg))); len(missing) > 0 {
				return missingDependenciesError(missing)
			}

			lock := flock.New(filepath.Join(cfg.Paths.WorkDir, serveLockName))
			ok, err := lock.TryLock()
			if err != nil {
				return fmt.Errorf("acquire lock: %w", err)
			}
			if !ok {
				return errors.New("another vidtranslate server is already using " + cfg.Paths.WorkDir)
			}
			defer func() { _ = lock.Unlock() }()

			if removed := cleanupWorkDir(cfg.Paths.WorkDir, logger, serveLockName); removed > 0 {
				logger.Info("removed stale work entries", slog.Int("count", removed))
			}

			store, err := ctx.openHistory()
			if err != nil {
				return err
			}
			defer store.Close()

			runner, err := ctx.buildPipeline(history.NewRecorder(store, logger))
			if err != nil {
				return err
			}

			address := strings.TrimSpace(bind)
			if address == "" {
				address = cfg.Server.Bind
			}
			srv, err := web.New(web.Options{
				Bind:       address,
				Runner:     runner,
				Languages:  cfg.Languages.Choices,
				MaxUpload:  cfg.MaxUploadBytes(),
				Extensions: cfg.Media.AllowedExtensions,
				SessionTTL: cfg.SessionTTL(),
				Logger:     logger,
			})
			if err != nil {
				return err
			}

			runCtx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return srv.Serve(runCtx)
		},
	}

	cmd.Flags().StringVar(&bind, "bind", "", "Listen address (overrides server.bind)")
	return cmd
}
