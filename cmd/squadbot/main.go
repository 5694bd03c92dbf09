package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/cumodsquad/squadbot/internal/announce"
	"github.com/cumodsquad/squadbot/internal/board"
	"github.com/cumodsquad/squadbot/internal/classify"
	"github.com/cumodsquad/squadbot/internal/command"
	"github.com/cumodsquad/squadbot/internal/config"
	"github.com/cumodsquad/squadbot/internal/discord"
	"github.com/cumodsquad/squadbot/internal/forge"
	"github.com/cumodsquad/squadbot/internal/gamestatus"
	"github.com/cumodsquad/squadbot/internal/members"
	"github.com/cumodsquad/squadbot/internal/poller"
	"github.com/cumodsquad/squadbot/internal/watermark"
	"github.com/cumodsquad/squadbot/pkg/types"
)

func main() {
	// Initialize logger
	logger, err := zap.NewProduction()
	if err != nil {
		panic(fmt.Sprintf("failed to create logger: %v", err))
	}
	defer logger.Sync()

	// Load configuration from environment
	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("failed to load configuration", zap.Error(err))
	}

	// Create persistent state
	store, err := watermark.NewStore(cfg.WatermarkPath, classify.Epochs(), logger)
	if err != nil {
		logger.Fatal("failed to open watermark store", zap.Error(err))
	}

	directory, err := members.NewDirectory(cfg.MemberFilePath, logger)
	if err != nil {
		logger.Fatal("failed to open member directory", zap.Error(err))
	}

	// Create API clients
	forgeClient := forge.NewClient(cfg.GithubToken, cfg.GithubOrgs, cfg.FetchTimeout, logger)
	boardClient := board.NewClient(cfg.TrelloKey, cfg.TrelloToken, logger)
	statusClient := gamestatus.NewClient(cfg.ServerListURL, cfg.FetchTimeout, logger)

	// Create Discord gateway
	gateway, err := discord.NewGateway(cfg.DiscordToken, cfg.ElevatedRole, logger)
	if err != nil {
		logger.Fatal("failed to create discord gateway", zap.Error(err))
	}

	// Create command registry
	registry := command.NewRegistry(cfg.CommandPrefix, cfg.CommandRooms, cfg.AdminUsers, command.Deps{
		Replier:      gateway,
		Members:      directory,
		OpenIssues:   forgeClient.OpenIssues,
		OpenPRs:      forgeClient.OpenPullRequests,
		Repos:        forgeClient.Repos,
		Contributors: forgeClient.Contributors,
		Assists: func(ctx context.Context) ([]command.Link, error) {
			return boardClient.ListCards(ctx, cfg.AssistListID)
		},
		GithubUser: forgeClient.User,
		TrelloUser: boardClient.Member,
		ServerUp:   statusClient.IsUp,
	}, logger)
	if err := command.RegisterAll(registry); err != nil {
		logger.Fatal("failed to register commands", zap.Error(err))
	}
	if err := registry.Validate(); err != nil {
		logger.Fatal("command registry validation failed", zap.Error(err))
	}
	gateway.AttachRegistry(registry)

	// Create announcement router
	router := announce.NewRouter(gateway, gateway, cfg.GithubRooms, cfg.TrelloRooms, logger)

	// Create pollers, one per source
	githubCollections := make([]poller.Collection, 0, len(cfg.GithubOrgs))
	for _, org := range cfg.GithubOrgs {
		org := org
		githubCollections = append(githubCollections, poller.Collection{
			Name: org,
			Fetch: func(ctx context.Context) ([]types.RawActivityRecord, error) {
				return forgeClient.OrgActivity(ctx, org)
			},
		})
	}

	trelloCollections := make([]poller.Collection, 0, len(cfg.TrelloBoards))
	for _, boardID := range cfg.TrelloBoards {
		boardID := boardID
		trelloCollections = append(trelloCollections, poller.Collection{
			Name: boardID,
			Fetch: func(ctx context.Context) ([]types.RawActivityRecord, error) {
				return boardClient.BoardActions(ctx, boardID)
			},
		})
	}

	githubPoller := poller.New("github", githubCollections, store, router,
		cfg.IgnoredActors, cfg.PollInterval, cfg.FetchTimeout, logger)
	trelloPoller := poller.New("trello", trelloCollections, store, router,
		cfg.IgnoredActors, cfg.PollInterval, cfg.FetchTimeout, logger)

	// Setup ops HTTP server
	opsRouter := chi.NewRouter()
	opsRouter.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	opsRouter.Handle("/metrics", promhttp.Handler())

	opsServer := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: opsRouter,
	}

	go func() {
		logger.Info("starting ops HTTP server", zap.String("address", cfg.HTTPAddr))
		if err := opsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("failed to start ops HTTP server", zap.Error(err))
		}
	}()

	// Connect to Discord
	if err := gateway.Open(); err != nil {
		logger.Fatal("failed to connect to discord", zap.Error(err))
	}
	logger.Info("connected to discord")

	// Start pollers
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go githubPoller.Start(ctx)
	go trelloPoller.Start(ctx)

	// Wait for interrupt signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	logger.Info("shutting down")

	// Stop pollers
	cancel()

	// Shutdown servers
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := opsServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("failed to shut down ops HTTP server", zap.Error(err))
	}
	if err := gateway.Close(); err != nil {
		logger.Error("failed to close discord session", zap.Error(err))
	}

	logger.Info("shutdown complete")
}

