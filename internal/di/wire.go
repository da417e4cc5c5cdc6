//go:build wireinject
// +build wireinject

package di

import (
	"candlestick/internal/handler/cli"
	"candlestick/pkg/config"
	"candlestick/pkg/server"

	"github.com/google/wire"
)

var coreSet = wire.NewSet(
	// Infrastructure
	ProvideLogger,
	ProvideStore,
	ProvideCache,
	ProvideProvider,
	ProvidePublisher,

	// Use cases
	ProvideInstrumentsUseCase,
	ProvideBarsUseCase,
	ProvideSyncEngine,
	ProvideBatchUseCase,
)

// InitializeApp wires up all dependencies and returns the application.
// Wire will generate the implementation of this function.
func InitializeApp(cfg *config.Config) (*server.App, func(), error) {
	wire.Build(
		coreSet,
		ProvideMetrics,
		ProvideLimiter,
		ProvideHTTPHandler,
		ProvideApp,
	)
	return nil, nil, nil
}

// InitializeCLI wires the command runner.
func InitializeCLI(cfg *config.Config) (*cli.Runner, func(), error) {
	wire.Build(
		coreSet,
		ProvideNoMetrics,
		ProvideRunner,
	)
	return nil, nil, nil
}
