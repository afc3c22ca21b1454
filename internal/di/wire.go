//go:build wireinject
// +build wireinject

package di

import (
	"PolEn/pkg/config"
	"PolEn/pkg/server"

	"github.com/google/wire"
)

// InitializeApp wires up all dependencies and returns the application.
// Wire will generate the implementation of this function.
func InitializeApp(cfg *config.Config) (*server.App, func(), error) {
	wire.Build(
		// Observability
		ProvideJournal,
		ProvideLogger,
		ProvideMetrics,

		// Infrastructure clients
		ProvideCache,
		ProvideEngineService,
		ProvideHistorySource,
		ProvideStreamDialer,

		// Core pipeline
		ProvideStreamManager,
		ProvideMergeEngine,
		ProvideBoardController,

		// HTTP surface
		ProvideLimiter,
		ProvideBoardHandler,
		ProvideHTTPServer,

		// Application server
		ProvideApp,
	)
	return &server.App{}, nil, nil
}
