package server

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"go.uber.org/zap"

	"goflare.io/voucher"
	"goflare.io/voucher/auth"
	"goflare.io/voucher/handlers"
)

type Server struct {
	echo     *echo.Echo
	auth     *auth.Authenticator
	engine   voucher.Engine
	logger   *zap.Logger
	Voucher  handlers.VoucherHandler
	Exchange handlers.ExchangeHandler
	View     handlers.ViewHandler
}

func NewServer(
	Voucher handlers.VoucherHandler,
	Exchange handlers.ExchangeHandler,
	View handlers.ViewHandler,
	authenticator *auth.Authenticator,
	engine voucher.Engine,
	logger *zap.Logger,
) *Server {
	s := &Server{
		echo:     echo.New(),
		auth:     authenticator,
		engine:   engine,
		logger:   logger,
		Voucher:  Voucher,
		Exchange: Exchange,
		View:     View,
	}
	s.echo.HideBanner = true
	s.echo.HTTPErrorHandler = handlers.ErrorHandler(logger)
	s.registerMiddlewares()
	s.registerRoutes()
	return s
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.echo
}

// Start begins listening for connections on the provided address.
func (s *Server) Start(address string) error {
	return s.echo.Start(address)
}

// Run serves on address until SIGINT or SIGTERM, then shuts down gracefully within 5 seconds
// and flushes pending notifications.
func (s *Server) Run(address string) error {

	go func() {
		if err := s.Start(address); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Fatal("server stopped unexpectedly", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	err := s.echo.Shutdown(ctx)
	s.engine.Close()
	return err
}

func (s *Server) registerMiddlewares() {
	s.echo.Use(middleware.Recover())
	s.echo.Use(middleware.RequestID())
	s.echo.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogMethod:    true,
		LogURI:       true,
		LogStatus:    true,
		LogLatency:   true,
		LogRequestID: true,
		LogError:     true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			fields := []zap.Field{
				zap.String("method", v.Method),
				zap.String("uri", v.URI),
				zap.Int("status", v.Status),
				zap.Duration("latency", v.Latency),
				zap.String("request_id", v.RequestID),
			}
			if v.Error != nil {
				s.logger.Warn("request", append(fields, zap.Error(v.Error))...)
				return nil
			}
			s.logger.Info("request", fields...)
			return nil
		},
	}))
}

func (s *Server) registerRoutes() {

	s.echo.GET("/healthz", s.View.Health)

	api := s.echo.Group("", s.auth.Middleware())

	api.POST("/vouchers", s.Voucher.CreateTemplate)
	api.POST("/vouchers/:id/deactivate", s.Voucher.DeactivateTemplate)
	api.POST("/vouchers/:id/claim", s.Voucher.Claim)
	api.POST("/vouchers/use/:id", s.Voucher.Use)
	api.POST("/vouchers/:id/gift", s.Voucher.Gift)
	api.POST("/businesses/:id/post-rewards", s.Voucher.IssuePostReward)

	api.POST("/vouchers/:id/request-exchange", s.Exchange.RequestExchange)
	api.POST("/vouchers/:id/respond-exchange", s.Exchange.RespondToExchange)
	api.POST("/vouchers/:id/send-to-market", s.Exchange.SendToMarket)
	api.POST("/vouchers/market/:id/take", s.Exchange.TakeMarketListing)
	api.GET("/vouchers/exchange-requests/all", s.Exchange.PendingExchanges)

	api.GET("/users/:id/vouchers", s.View.UserVouchers)
	api.GET("/businesses/:id/voucher-stats", s.View.BusinessStats)
}
