package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/zinrai/ddi-ipam-go/internal/allocator"
	"github.com/zinrai/ddi-ipam-go/internal/interface/api"
	"github.com/zinrai/ddi-ipam-go/internal/log"
	"github.com/zinrai/ddi-ipam-go/internal/members"
	"github.com/zinrai/ddi-ipam-go/internal/metrics"
	"github.com/zinrai/ddi-ipam-go/internal/policy"
	"github.com/zinrai/ddi-ipam-go/internal/usecase"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the IPAM HTTP API",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd.Flags())
		if err != nil {
			return err
		}
		ctx := log.WithModule(context.Background(), "ddi-ipamd")

		repo, closeStore, err := openStore(cfg.Storage)
		if err != nil {
			return err
		}
		defer closeStore()

		registry, err := members.LoadFile(cfg.Policy.MembersConfig)
		if err != nil {
			return err
		}
		rules, err := policy.LoadRulesFile(cfg.Policy.ConditionalConfig)
		if err != nil {
			return err
		}

		dir := newDirectory(cfg)
		resolver := policy.NewResolver(rules, members.NewManager(registry, repo), repo)
		strategy := allocator.New(cfg.Allocation, dir)
		uc := usecase.NewIPAMUseCase(repo, resolver, strategy, dir, metrics.New(prometheus.DefaultRegisterer))

		srv := &http.Server{
			Addr:    cfg.ListenAddress,
			Handler: api.NewRouter(api.NewIPAMHandler(uc), prometheus.DefaultGatherer),
		}

		errCh := make(chan error, 1)
		go func() {
			errCh <- srv.ListenAndServe()
		}()
		log.G(ctx).WithFields(logrus.Fields{
			"address":   cfg.ListenAddress,
			"storage":   cfg.Storage.Driver,
			"directory": cfg.Directory.Driver,
			"strategy":  strategy.Name(),
			"members":   registry.Len(),
			"rules":     len(rules),
		}).Info("serving IPAM API")

		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		select {
		case err := <-errCh:
			return err
		case sig := <-sigCh:
			log.G(ctx).WithField("signal", sig.String()).Info("shutting down")
		}

		shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	},
}
