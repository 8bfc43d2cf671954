//go:build wireinject
// +build wireinject

package app

import (
	"context"

	"github.com/google/wire"

	"sigtrade/internal/config"
)

func buildAppWithWire(ctx context.Context, cfg *config.Config, opts ...AppBuilderOption) (*App, error) {
	wire.Build(
		provideAppBuilder,
		wire.Bind(new(appBuilderDeps), new(*AppBuilder)),
		provideAppFromBuilder,
	)
	return nil, nil
}
