/*
 * Copyright 2025 SREDiag Authors
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package command

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel"
	"golang.org/x/sync/errgroup"

	"github.com/srediag/shmring/internal/echo"
	"github.com/srediag/shmring/internal/logging"
	"github.com/srediag/shmring/internal/shm"
	"github.com/srediag/shmring/pkg/channel"
	"github.com/srediag/shmring/pkg/config"
	"github.com/srediag/shmring/pkg/health"
	"github.com/srediag/shmring/pkg/region"
)

const (
	cliName         = "srvex"
	shutdownTimeout = 5 * time.Second
)

var logger = logging.New("srvex", nil)

type serveFlags struct {
	force bool
}

// NewServeCommand returns the cobra command for "serve".
func NewServeCommand() *cobra.Command {
	sf := &serveFlags{}
	d := config.DefaultConfig()
	cc := &cobra.Command{
		Use:   "serve",
		Short: "create the shared file and echo every inbound message outbound",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(GlobalFlagsInstance.Viper, cmd)
			if err != nil {
				return err
			}
			return serveCommandFunc(cmd, cfg, sf)
		},
	}
	cc.Flags().Int(config.KeyInboundCapacity, d.InboundCapacity, "inbound ring capacity in bytes, a power of two >= 64")
	cc.Flags().Int(config.KeyOutboundCapacity, d.OutboundCapacity, "outbound ring capacity in bytes, a power of two >= 64")
	cc.Flags().Int(config.KeyBacklog, d.Backlog, "records held while the outbound ring is full")
	cc.Flags().String(config.KeyAdminAddr, d.AdminAddr, "health and metrics listen address, empty to disable, env SRVEX_ADMIN_ADDR")
	cc.Flags().Duration(config.KeyHeartbeatTimeout, d.HeartbeatTimeout, "liveness limit for the receive loop")
	cc.Flags().BoolVar(&sf.force, "force", false, "remove a stale shared file first")
	return cc
}

func serveCommandFunc(cmd *cobra.Command, cfg *config.Config, sf *serveFlags) error {
	if err := config.VerifyConfig(cfg); err != nil {
		return err
	}
	ctx, cancel := signalCtx(cmd)
	defer cancel()

	if sf.force && shm.PathExists(cfg.Path) {
		logger.Warnf("removing %s", cfg.Path)
		if err := os.Remove(cfg.Path); err != nil {
			return err
		}
	}
	r, err := region.Create(ctx, cfg.Path, cfg.Region(), region.WithTracer(otel.Tracer(cliName)))
	if err != nil {
		return err
	}
	defer func() {
		if err := r.Destroy(); err != nil {
			logger.Errorf("destroy %s: %v", cfg.Path, err)
		}
	}()

	pollers, err := cfg.Pollers()
	if err != nil {
		return err
	}
	ch, err := channel.FromRegion(r, channel.Service,
		channel.WithPoller(pollers),
		channel.WithMeter(otel.Meter(cliName)))
	if err != nil {
		return err
	}
	srv := echo.New(ch, pollers(), cfg.Backlog, cmd.OutOrStdout())
	fmt.Fprintf(cmd.OutOrStdout(), "serving on %s\n", cfg.Path)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return srv.Run(gctx)
	})
	if cfg.AdminAddr != "" {
		server := adminServer(cfg, r, ch)
		g.Go(func() error {
			if err := server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("admin server: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			sctx, scancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer scancel()
			return server.Shutdown(sctx)
		})
	}
	err = g.Wait()
	logger.Infof("stopped: %d received, %d echoed", srv.Received(), srv.Echoed())
	return err
}

func adminServer(cfg *config.Config, r *region.Region, ch *channel.Channel) *http.Server {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		channel.NewCollector(ch),
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	checker := health.New(reg, cliName)
	checker.AddRegion("region", r.Header())
	checker.AddHeartbeat("inbound-consumer", ch.Consumer(), cfg.HeartbeatTimeout)

	mux := http.NewServeMux()
	mux.HandleFunc("/live", checker.LiveEndpoint)
	mux.HandleFunc("/ready", checker.ReadyEndpoint)
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	return &http.Server{
		Addr:              cfg.AdminAddr,
		Handler:           mux,
		ReadHeaderTimeout: shutdownTimeout,
	}
}
