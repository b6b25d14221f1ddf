package main

import (
	"fmt"
	"os"
	"time"

	"github.com/nurpe/finops/internal/auth"
	"github.com/nurpe/finops/internal/cache"
	"github.com/nurpe/finops/internal/config"
	"github.com/nurpe/finops/internal/db"
	"github.com/nurpe/finops/internal/excel"
	httphandler "github.com/nurpe/finops/internal/http"
	"github.com/nurpe/finops/internal/http/middleware"
	"github.com/nurpe/finops/internal/ledger"
	"github.com/nurpe/finops/internal/logger"
	"github.com/nurpe/finops/internal/repository"
	"github.com/nurpe/finops/internal/service"
	"github.com/nurpe/finops/internal/voucher"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	log := logger.New(cfg.Environment)

	if err := cache.Init(cfg.Redis.Addr); err != nil {
		log.Warn().Err(err).Msg("redis unavailable, directory cache disabled")
	}

	database, err := db.New(cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect database")
	}

	cacheTTL, err := time.ParseDuration(cfg.Redis.TTL)
	if err != nil {
		cacheTTL = 5 * time.Minute
	}

	userRepo := repository.NewUserRepository(database, cacheTTL)
	policyRepo := repository.NewPolicyRepository(database)
	approvalRepo := repository.NewApprovalRepository(database)
	paymentRepo := repository.NewPaymentRepository(database)
	requestRepo := repository.NewRequestRepository(database)

	policyService := service.NewPolicyService(policyRepo, userRepo, log)
	routeService := service.NewRouteService(userRepo, policyRepo, cfg.Approvals, log)
	approvalService := service.NewApprovalService(approvalRepo, userRepo, cfg.Approvals, log)
	paymentService := service.NewPaymentService(
		paymentRepo,
		userRepo,
		ledger.New(log),
		excel.NewGenerator(),
		voucher.NewGenerator(),
		log,
	)
	requestService := service.NewRequestService(requestRepo, policyService, routeService, approvalService, log)
	roleService := service.NewRoleService(userRepo, log)

	tokenParser := auth.NewParser(cfg.Auth.AccessSecret)
	handler := httphandler.NewHandler(requestService, approvalService, paymentService, roleService, log)
	authMiddleware := middleware.Auth(tokenParser)
	router := httphandler.NewRouter(handler, authMiddleware, cfg.Environment)

	addr := fmt.Sprintf("%s:%d", cfg.HTTP.Host, cfg.HTTP.Port)
	log.Info().Str("addr", addr).Msg("starting finops service")

	if err := router.Run(addr); err != nil {
		log.Error().Err(err).Msg("server stopped")
		os.Exit(1)
	}
}
