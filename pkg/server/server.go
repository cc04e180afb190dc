// Copyright 2023 Ewout Prangsma
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.
//
// Author Ewout Prangsma
//

package server

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"net/http/pprof"
	"strconv"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/ssh"
	"github.com/charmbracelet/wish"
	"github.com/charmbracelet/wish/activeterm"
	"github.com/charmbracelet/wish/bubbletea"
	"github.com/charmbracelet/wish/logging"
	grpc_middleware "github.com/grpc-ecosystem/go-grpc-middleware"
	grpc_recovery "github.com/grpc-ecosystem/go-grpc-middleware/recovery"
	grpc_prometheus "github.com/grpc-ecosystem/go-grpc-prometheus"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	"github.com/printhost/VirtualPins/pkg/service"
)

// Config for the servers.
type Config struct {
	// Host interface to listen on
	Host string
	// Port to listen on for HTTP requests
	HTTPPort int
	// Port to listen on for SSH requests. 0 disables SSH.
	SSHPort int
	// Port to listen on for GRPC requests. 0 disables GRPC.
	GRPCPort int
	// Path of the SSH host key. Created when it does not exist.
	HostKeyPath string
}

// Server runs the HTTP, GRPC & SSH servers for the service.
type Server struct {
	Config
	log     zerolog.Logger
	ui      UI
	service Service
}

type UI interface {
	// Handler creates a Bubble Tea model for the given SSH session.
	Handler(s ssh.Session) (tea.Model, []tea.ProgramOption)
}

// Service is the part of the virtual pin service exposed by the server.
type Service interface {
	PinStatuses(ctx context.Context) ([]service.PinStatus, error)
	PinStatus(ctx context.Context, name string) (service.PinStatus, error)
	SetPin(ctx context.Context, name string, value bool) error
	TogglePin(ctx context.Context, name string) (bool, error)
	RunCommand(ctx context.Context, line string) ([]string, error)
	Endstops(ctx context.Context) ([]service.EndstopStatus, error)
	ButtonGroups(ctx context.Context) ([]service.ButtonGroupStatus, error)
}

const (
	defaultHostKeyPath = ".ssh/id_ed25519"
)

// New configures a new Server.
func New(cfg Config, log zerolog.Logger, ui UI, svc Service) (*Server, error) {
	if cfg.HostKeyPath == "" {
		cfg.HostKeyPath = defaultHostKeyPath
	}
	return &Server{
		Config:  cfg,
		log:     log.With().Str("component", "server").Logger(),
		ui:      ui,
		service: svc,
	}, nil
}

// Run the server until the given context is canceled.
func (s *Server) Run(ctx context.Context) error {
	// Prepare HTTP listener
	log := s.log
	httpAddr := net.JoinHostPort(s.Host, strconv.Itoa(s.HTTPPort))
	httpLis, err := net.Listen("tcp", httpAddr)
	if err != nil {
		return errors.Wrapf(err, "failed to listen on address %s", httpAddr)
	}

	// Prepare HTTP server
	httpRouter := s.newRouter()
	httpRouter.GET("/debug/pprof/*", echo.WrapHandler(http.HandlerFunc(pprof.Index)))
	httpSrv := http.Server{
		Handler: httpRouter,
	}

	// Prepare GRPC server
	var grpcSrv *grpc.Server
	var grpcLis net.Listener
	grpcAddr := net.JoinHostPort(s.Host, strconv.Itoa(s.GRPCPort))
	if s.GRPCPort != 0 {
		grpcLis, err = net.Listen("tcp", grpcAddr)
		if err != nil {
			httpLis.Close()
			return errors.Wrapf(err, "failed to listen on address %s", grpcAddr)
		}
		grpcSrv = newGRPCServer()
	}

	// Prepare SSH server
	var sshServer *ssh.Server
	sshAddr := net.JoinHostPort(s.Host, strconv.Itoa(s.SSHPort))
	if s.SSHPort != 0 && s.ui != nil {
		sshServer, err = wish.NewServer(
			wish.WithAddress(sshAddr),
			// Creates an ED25519 keypair at the given path if it doesn't exist yet.
			wish.WithHostKeyPath(s.HostKeyPath),
			// The last item in the chain is the first to be called.
			wish.WithMiddleware(
				bubbletea.Middleware(s.ui.Handler),
				activeterm.Middleware(),
				logging.Middleware(),
			),
		)
		if err != nil {
			httpLis.Close()
			if grpcLis != nil {
				grpcLis.Close()
			}
			return fmt.Errorf("could not start SSH server: %w", err)
		}
	}

	// Serve apis
	log.Debug().Str("address", httpAddr).Msg("Serving HTTP")
	go func() {
		if err := httpSrv.Serve(httpLis); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("failed to serve HTTP server")
		}
		log.Debug().Str("address", httpAddr).Msg("Done Serving HTTP")
	}()
	if grpcSrv != nil {
		log.Debug().Str("address", grpcAddr).Msg("Serving GRPC")
		go func() {
			if err := grpcSrv.Serve(grpcLis); err != nil {
				log.Fatal().Err(err).Msg("failed to serve GRPC server")
			}
			log.Debug().Str("address", grpcAddr).Msg("Done Serving GRPC")
		}()
	}
	// Serve UI
	if sshServer != nil {
		log.Debug().Str("address", sshAddr).Msg("Serving SSH")
		go func() {
			if err := sshServer.ListenAndServe(); err != nil && !errors.Is(err, ssh.ErrServerClosed) {
				log.Fatal().Err(err).Msg("failed to serve SSH server")
			}
			log.Debug().Str("address", sshAddr).Msg("Done Serving SSH")
		}()
	}

	// Wait until context closed
	<-ctx.Done()

	log.Info().Msg("Closing servers")
	httpSrv.Shutdown(context.Background())
	if grpcSrv != nil {
		grpcSrv.GracefulStop()
	}
	if sshServer != nil {
		sshServer.Shutdown(context.Background())
	}
	return nil
}

// newGRPCServer creates a GRPC server exposing health & reflection.
func newGRPCServer() *grpc.Server {
	grpcSrv := grpc.NewServer(
		grpc.StreamInterceptor(grpc_middleware.ChainStreamServer(
			grpc_prometheus.StreamServerInterceptor,
			grpc_recovery.StreamServerInterceptor(),
		)),
		grpc.UnaryInterceptor(grpc_middleware.ChainUnaryServer(
			grpc_prometheus.UnaryServerInterceptor,
			grpc_recovery.UnaryServerInterceptor(),
		)),
	)
	healthSrv := health.NewServer()
	healthSrv.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	healthpb.RegisterHealthServer(grpcSrv, healthSrv)
	// Register reflection service on gRPC server.
	reflection.Register(grpcSrv)
	grpc_prometheus.Register(grpcSrv)
	return grpcSrv
}

// newRouter creates the HTTP router with all API routes.
func (s *Server) newRouter() *echo.Echo {
	r := echo.New()
	r.HideBanner = true
	r.HidePort = true
	r.HTTPErrorHandler = s.httpErrorHandler
	r.GET("/metrics", echo.WrapHandler(promhttp.Handler()))
	r.GET("/health", healthHandler)
	api := r.Group("/api")
	api.GET("/pins", s.getPins)
	api.GET("/pins/:name", s.getPin)
	api.PUT("/pins/:name", s.putPin)
	api.POST("/pins/:name/toggle", s.togglePin)
	api.GET("/endstops", s.getEndstops)
	api.GET("/buttons", s.getButtonGroups)
	api.POST("/gcode", s.postGCode)
	return r
}

func healthHandler(c echo.Context) error {
	return c.String(http.StatusOK, "OK")
}
