//go:build wireinject
// +build wireinject

package main

import (
	"github.com/google/wire"

	"goflare.io/voucher"
	"goflare.io/voucher/config"
	"goflare.io/voucher/directory"
	"goflare.io/voucher/driver"
	"goflare.io/voucher/exchange"
	"goflare.io/voucher/handlers"
	"goflare.io/voucher/ledger"
	"goflare.io/voucher/server"
	"goflare.io/voucher/template"
	"goflare.io/voucher/view"
)

func InitializeServer(appConfig *config.Config) (*server.Server, error) {

	wire.Build(
		config.NewLogger,
		config.ProvidePostgresConn,
		config.ProvideRedis,
		config.ProvideEmber,
		config.ProvideIgnite,
		config.ProvideClock,
		config.ProvideRewardPolicy,
		config.ProvideAuthenticator,
		config.ProvidePublisher,
		config.ProvideNotifier,
		driver.NewTransactionManager,
		wire.Bind(new(driver.Transactor), new(*driver.TransactionManager)),
		directory.NewRepository,
		directory.NewService,
		template.NewRepository,
		template.NewService,
		ledger.NewRepository,
		ledger.NewService,
		exchange.NewRepository,
		wire.Bind(new(ledger.PendingRequests), new(exchange.Repository)),
		exchange.NewService,
		view.NewRepository,
		view.NewService,
		voucher.NewVoucherEngine,
		handlers.NewVoucherHandler,
		handlers.NewExchangeHandler,
		handlers.NewViewHandler,
		server.NewServer,
	)

	return &server.Server{}, nil
}
