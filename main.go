//    Copyright 2017 Ewout Prangsma
//
//    Licensed under the Apache License, Version 2.0 (the "License");
//    you may not use this file except in compliance with the License.
//    You may obtain a copy of the License at
//
//        http://www.apache.org/licenses/LICENSE-2.0
//
//    Unless required by applicable law or agreed to in writing, software
//    distributed under the License is distributed on an "AS IS" BASIS,
//    WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
//    See the License for the specific language governing permissions and
//    limitations under the License.

package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/pkg/errors"
	terminate "github.com/pulcy/go-terminate"
	"github.com/rs/zerolog"
	"github.com/spf13/pflag"
	"golang.org/x/sync/errgroup"

	"github.com/printhost/VirtualPins/pkg/config"
	"github.com/printhost/VirtualPins/pkg/console"
	"github.com/printhost/VirtualPins/pkg/environment"
	"github.com/printhost/VirtualPins/pkg/logging"
	"github.com/printhost/VirtualPins/pkg/server"
	"github.com/printhost/VirtualPins/pkg/service"
	"github.com/printhost/VirtualPins/pkg/service/bridge"
	"github.com/printhost/VirtualPins/pkg/ui"
)

const (
	projectName            = "Virtual Pins"
	defaultHTTPPort        = 7130
	defaultGRPCPort        = 7131
	defaultSSHPort         = 7132
	defaultVirtualPinCount = 32
)

var (
	projectVersion = "dev"
	projectBuild   = "dev"
	maskAny        = errors.WithStack
)

func main() {
	var levelFlag string
	var configPath string
	var serverHost string
	var httpPort int
	var grpcPort int
	var sshPort int
	var hostKeyPath string
	var bridgeType string
	var consoleFlag bool

	pflag.StringVarP(&levelFlag, "level", "l", "info", "Set log level")
	pflag.StringVarP(&configPath, "config", "c", "", "Path of the YAML configuration file")
	pflag.StringVarP(&bridgeType, "bridge", "b", environment.BridgeTypeAuto, "Type of bridge to use (auto|rpi|virtual)")
	pflag.StringVar(&serverHost, "host", "0.0.0.0", "Host address the servers will listen on")
	pflag.IntVar(&httpPort, "http-port", defaultHTTPPort, "Port the HTTP server will listen on")
	pflag.IntVar(&grpcPort, "grpc-port", defaultGRPCPort, "Port the GRPC server will listen on (0 to disable)")
	pflag.IntVar(&sshPort, "ssh-port", defaultSSHPort, "Port the SSH server will listen on (0 to disable)")
	pflag.StringVar(&hostKeyPath, "ssh-host-key", ".ssh/id_ed25519", "Path of the SSH host key")
	pflag.BoolVar(&consoleFlag, "console", false, "Run an interactive command console")
	pflag.Parse()

	level, err := zerolog.ParseLevel(levelFlag)
	if err != nil {
		Exitf("Invalid log level '%s': %v\n", levelFlag, err)
	}

	// Prepare to shutdown in a controlled manor
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var con *console.Console
	var consoleOut io.Writer = os.Stderr
	if consoleFlag {
		con, err = console.New()
		if err != nil {
			Exitf("Failed to initialize console: %v\n", err)
		}
		consoleOut = con.Stdout()
	}
	mqttWriter := logging.NewMQTTWriter(ctx)
	logger := zerolog.New(logging.NewMultiWriter(
		zerolog.ConsoleWriter{Out: consoleOut},
		mqttWriter,
	)).With().Timestamp().Logger().Level(level)

	cfg, err := config.Load(configPath)
	if err != nil {
		Exitf("Failed to load configuration: %v\n", err)
	}

	br, err := newBridge(bridgeType, logger)
	if err != nil {
		Exitf("Failed to initialize bridge: %v\n", err)
	}

	svc, err := service.NewService(service.Config{
		Config:         *cfg,
		ProgramVersion: projectVersion,
	}, service.Dependencies{
		Logger:     logger,
		Bridge:     br,
		MQTTWriter: mqttWriter,
	})
	if err != nil {
		Exitf("Failed to initialize Service: %v\n", err)
	}

	srv, err := server.New(server.Config{
		Host:        serverHost,
		HTTPPort:    httpPort,
		GRPCPort:    grpcPort,
		SSHPort:     sshPort,
		HostKeyPath: hostKeyPath,
	}, logger, ui.New(svc, projectVersion), svc)
	if err != nil {
		Exitf("Failed to initialize Server: %v\n", err)
	}

	t := terminate.NewTerminator(func(template string, args ...interface{}) {
		logger.Info().Msgf(template, args...)
	}, cancel)
	go t.ListenSignals()

	fmt.Fprintf(consoleOut, "Starting %s (version %s build %s)\n", projectName, projectVersion, projectBuild)
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return svc.Run(ctx) })
	g.Go(func() error { return srv.Run(ctx) })
	if con != nil {
		g.Go(func() error {
			defer cancel()
			return con.Run(ctx, svc)
		})
	}
	if err := g.Wait(); err != nil {
		Exitf("Service run failed: %v\n", err)
	}
}

// newBridge creates the bridge of the given type.
func newBridge(bridgeType string, log zerolog.Logger) (bridge.API, error) {
	if bridgeType == environment.BridgeTypeAuto {
		bridgeType = environment.AutoDetectBridgeType(log)
	}
	switch bridgeType {
	case environment.BridgeTypeRaspberryPi:
		br, err := bridge.NewRaspberryPiBridge()
		if err != nil {
			return nil, maskAny(err)
		}
		return br, nil
	case environment.BridgeTypeVirtual:
		return bridge.NewVirtualBridge(defaultVirtualPinCount), nil
	default:
		return nil, errors.Errorf("unknown bridge type '%s' (auto|rpi|virtual)", bridgeType)
	}
}

// Print the given error message and exit with code 1
func Exitf(message string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, message, args...)
	os.Exit(1)
}
