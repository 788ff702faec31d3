package main

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"strconv"

	grpcapi "tilt-relay/internal/api/grpc"
	httpapi "tilt-relay/internal/api/http"
	"tilt-relay/internal/application/connection"
	"tilt-relay/internal/application/decoder"
	"tilt-relay/internal/application/scanner"
	"tilt-relay/internal/application/slot"
	"tilt-relay/internal/application/status"
	"tilt-relay/internal/application/supervisor"
	"tilt-relay/internal/application/uploader"
	"tilt-relay/internal/config"
	"tilt-relay/internal/domain"
	"tilt-relay/internal/infrastructure/ble/goble"
	"tilt-relay/internal/infrastructure/ble/stub"
	"tilt-relay/internal/infrastructure/logging"
	"tilt-relay/internal/infrastructure/network/httpsink"
	"tilt-relay/internal/infrastructure/network/memory"
	"tilt-relay/internal/infrastructure/network/wifi"
)

func provideConfig() (*config.Config, error) { return config.Load() }

func provideLogger(cfg *config.Config) (*logging.Logger, error) {
	logger, err := logging.New(cfg.LogLevel, logging.WithService(cfg.RelayName))
	if err != nil {
		return nil, err
	}
	logger.SetDefault()
	return logger, nil
}

func provideReadingSlot() *slot.Slot {
	return slot.New()
}

func provideRadio(ctx context.Context, cfg *config.Config, logger *logging.Logger) (domain.Radio, func(), error) {
	var (
		radio domain.Radio
		err   error
	)
	switch cfg.Radio.Driver {
	case config.RadioStub:
		radio = stub.New()
	default:
		radio, err = goble.Open(ctx, goble.Config{Device: cfg.Radio.HCIDevice}, logger.Named("radio"))
		if err != nil {
			return nil, nil, fmt.Errorf("open hci%d: %w", cfg.Radio.HCIDevice, err)
		}
	}

	cleanup := func() {
		if err := radio.Close(); err != nil {
			logger.Warn("failed to close radio", "error", err.Error())
		}
	}
	return radio, cleanup, nil
}

func provideDecoder(cfg *config.Config) *decoder.Decoder {
	return decoder.New(decoder.Config{Names: cfg.TiltNames})
}

func provideScanner(radio domain.Radio, dec *decoder.Decoder, readings *slot.Slot, cfg *config.Config, logger *logging.Logger) *scanner.Scanner {
	return scanner.New(radio, dec, readings, scanner.Config{LockOnAddress: cfg.Radio.LockOnAddress}, logger.Named("scanner"))
}

func provideNetwork(ctx context.Context, cfg *config.Config, logger *logging.Logger) (domain.Network, func(), error) {
	switch cfg.Upload.Sink {
	case config.SinkPostgres:
		sink, cleanup, err := setupPostgresSink(ctx, cfg.Upload.DbDsn, cfg.RelayName, logger.Named("database"))
		if err != nil {
			return nil, nil, err
		}
		return sink, cleanup, nil
	case config.SinkMemory:
		return memory.New(), func() {}, nil
	default:
		link := wifi.New(wifi.Config{
			SSID:      cfg.WiFi.SSID,
			Password:  cfg.WiFi.Password,
			Interface: cfg.WiFi.Interface,
		})
		sink, err := httpsink.New(httpsink.Config{
			URL:      cfg.Upload.URL,
			StreamID: cfg.Upload.StreamID,
			Client:   &http.Client{Timeout: cfg.Connection.SendTimeout},
		}, link)
		if err != nil {
			return nil, nil, err
		}
		return sink, func() {}, nil
	}
}

func provideConnectionManager(network domain.Network, cfg *config.Config, logger *logging.Logger) *connection.Manager {
	return connection.New(network, connection.Config{
		ConnectTimeout:    cfg.Connection.ConnectTimeout,
		SendTimeout:       cfg.Connection.SendTimeout,
		KeepaliveInterval: cfg.Connection.KeepaliveInterval,
		FailureLimit:      cfg.Connection.FailureLimit,
		BackoffInitial:    cfg.Connection.BackoffInitial,
		BackoffCeiling:    cfg.Connection.BackoffCeiling,
	}, logger.Named("connection"))
}

func provideTracker(cfg *config.Config, readings *slot.Slot, conn *connection.Manager) *status.Tracker {
	tracker := status.New(cfg.RelayName, readings)
	conn.Observe(tracker.ObserveConnection)
	return tracker
}

func provideUploader(readings *slot.Slot, conn *connection.Manager, cfg *config.Config, logger *logging.Logger, tracker *status.Tracker) *uploader.Uploader {
	return uploader.New(readings, conn, uploader.Config{
		MaxAttempts:            cfg.Upload.MaxAttempts,
		MinInterval:            cfg.Upload.MinInterval,
		MaxConsecutiveFailures: cfg.Upload.MaxFailures,
	}, logger.Named("uploader"), tracker)
}

func provideSupervisor(cfg *config.Config, logger *logging.Logger, conn *connection.Manager, scan *scanner.Scanner, upload *uploader.Uploader) *supervisor.Supervisor {
	return supervisor.New(supervisor.Config{
		MaxRestarts:   cfg.Supervisor.MaxRestarts,
		RestartWindow: cfg.Supervisor.RestartWindow,
	}, logger.Named("supervisor"),
		supervisor.Named("connection", conn),
		supervisor.Named("scanner", scan),
		supervisor.Named("uploader", upload),
	)
}

// provideHTTPServer returns nil when HTTP_PORT is 0.
func provideHTTPServer(cfg *config.Config, tracker *status.Tracker, logger *logging.Logger) *http.Server {
	if cfg.HTTPPort == 0 {
		return nil
	}
	handler := httpapi.NewServer(tracker, logger.Named("http"))
	return httpapi.NewHTTPServer(listenAddress(cfg.HTTPPort), handler)
}

// provideGRPCServer returns nil when GRPC_PORT is 0.
func provideGRPCServer(cfg *config.Config, conn *connection.Manager, logger *logging.Logger) (*grpcapi.Server, error) {
	if cfg.GRPCPort == 0 {
		return nil, nil
	}
	server, err := grpcapi.NewServer(logger.Named("grpc"), grpcapi.Options{Address: listenAddress(cfg.GRPCPort)})
	if err != nil {
		return nil, err
	}
	conn.Observe(server.ObserveConnection)
	return server, nil
}

func listenAddress(port int) string {
	return net.JoinHostPort("", strconv.Itoa(port))
}
