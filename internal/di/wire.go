//go:build wireinject
// +build wireinject

package di

import (
	domrepo "CryptoCast/internal/domain/repository"
	"CryptoCast/pkg/config"
	"CryptoCast/pkg/metrics"
	"CryptoCast/pkg/server"

	"github.com/google/wire"
)

// InitializeApp wires up all dependencies and returns the application.
func InitializeApp(cfg *config.Config) (*server.App, error) {
	wire.Build(
		// Ambient
		ProvideLogger,
		ProvideRegistry,
		ProvideMetrics,
		wire.Bind(new(domrepo.Metrics), new(*metrics.Recorder)),

		// Forecast pipeline
		ProvideSchema,
		ProvideNormalizationConfig,
		ProvideNormalizer,
		ProvideCompleter,
		ProvideModelBuilder,
		ProvideModelRegistry,
		ProvidePredictor,

		// Side channels
		ProvideCache,
		ProvideClickHouseClient,
		ProvideRecorder,
		ProvideEventPublisher,
		ProvideHub,

		// Use cases
		ProvidePredictionService,
		ProvideModelReloader,

		// Application server
		ProvideHTTPServer,
		ProvideApp,
	)
	return &server.App{}, nil
}
