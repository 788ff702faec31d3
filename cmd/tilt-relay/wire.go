//go:build wireinject
// +build wireinject

package main

import (
	"context"

	"github.com/google/wire"
)

func initApplication(ctx context.Context) (*application, func(), error) {
	panic(wire.Build(
		provideConfig,
		provideLogger,
		provideReadingSlot,
		provideRadio,
		provideDecoder,
		provideScanner,
		provideNetwork,
		provideConnectionManager,
		provideTracker,
		provideUploader,
		provideSupervisor,
		provideHTTPServer,
		provideGRPCServer,
		newApplication,
	))
}
