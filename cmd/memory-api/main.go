// Copyright The Linux Foundation and each contributor to LFX.
// SPDX-License-Identifier: MIT

// Command memory-api runs the conversation memory service: the NATS
// request/reply front door, the background task worker and the response
// resumer registry.
package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	natsgo "github.com/nats-io/nats.go"

	"github.com/linuxfoundation/lfx-v2-memory-service/cmd/memory-api/service"
	"github.com/linuxfoundation/lfx-v2-memory-service/internal/domain/port"
	"github.com/linuxfoundation/lfx-v2-memory-service/internal/encryption"
	"github.com/linuxfoundation/lfx-v2-memory-service/internal/infrastructure/auth"
	"github.com/linuxfoundation/lfx-v2-memory-service/internal/infrastructure/mock"
	"github.com/linuxfoundation/lfx-v2-memory-service/internal/infrastructure/nats"
	"github.com/linuxfoundation/lfx-v2-memory-service/internal/infrastructure/openai"
	"github.com/linuxfoundation/lfx-v2-memory-service/internal/resumer"
	svc "github.com/linuxfoundation/lfx-v2-memory-service/internal/service"
	"github.com/linuxfoundation/lfx-v2-memory-service/internal/worker"
	"github.com/linuxfoundation/lfx-v2-memory-service/pkg/constants"
	"github.com/linuxfoundation/lfx-v2-memory-service/pkg/log"
)

func main() {
	configPath := flag.String("config", "", "path to the YAML configuration file")
	flag.Parse()

	log.InitStructureLogConfig()
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	config, err := service.LoadConfig(*configPath)
	if err != nil {
		slog.ErrorContext(ctx, "failed to load configuration", "error", err)
		os.Exit(1)
	}

	natsClient, err := nats.NewClient(ctx, nats.Config{
		URL:           config.NATS.URL,
		Timeout:       config.NATS.Timeout,
		MaxReconnect:  config.NATS.MaxReconnect,
		ReconnectWait: config.NATS.ReconnectWait,
	})
	if err != nil {
		slog.ErrorContext(ctx, "failed to create NATS client", "error", err)
		os.Exit(1)
	}
	defer func() {
		if err := natsClient.Close(); err != nil {
			slog.ErrorContext(ctx, "failed to close NATS client", "error", err)
		}
	}()

	codec, err := buildCodec(config.Encryption)
	if err != nil {
		slog.ErrorContext(ctx, "failed to build encryption codec", "error", err)
		os.Exit(1)
	}

	storage := nats.NewStorage(natsClient, codec)
	publisher := nats.NewMessagePublisher(natsClient)

	authenticator, err := buildAuthenticator(ctx, config)
	if err != nil {
		slog.ErrorContext(ctx, "failed to initialize authenticator", "error", err)
		os.Exit(1)
	}

	embeddings := openai.NewEmbeddingClient(openai.Config{
		APIKey:  config.Embeddings.APIKey,
		BaseURL: config.Embeddings.BaseURL,
		Model:   config.Embeddings.Model,
	})

	conversationReader := svc.NewConversationReaderOrchestrator(
		svc.WithConversationStorage(storage),
		svc.WithMembershipReader(storage),
		svc.WithLocatorReader(storage),
	)
	conversationWriter := svc.NewConversationWriterOrchestrator(
		svc.WithConversationWriterStorage(storage),
		svc.WithConversationWriterMemberships(storage),
		svc.WithConversationWriterEntries(storage),
		svc.WithConversationWriterTransfers(storage),
		svc.WithConversationWriterPublisher(publisher),
	)
	entryReader := svc.NewEntryReaderOrchestrator(
		svc.WithEntryStorage(storage),
		svc.WithEntryConversationReader(storage),
		svc.WithEntryMembershipReader(storage),
		svc.WithMemoryCache(storage),
	)
	entryWriter := svc.NewEntryWriterOrchestrator(
		svc.WithEntryWriterStorage(storage),
		svc.WithEntryWriterConversations(storage),
		svc.WithEntryWriterMemberships(storage),
		svc.WithEntryWriterCache(storage),
		svc.WithEntryWriterTasks(storage),
		svc.WithEntryWriterPublisher(publisher),
	)
	membershipWriter := svc.NewMembershipWriterOrchestrator(
		svc.WithMembershipStorage(storage),
		svc.WithMembershipConversations(storage),
		svc.WithMembershipTransfers(storage),
		svc.WithMembershipPublisher(publisher),
	)
	transferWriter := svc.NewTransferWriterOrchestrator(
		svc.WithTransferStorage(storage),
		svc.WithTransferConversations(storage),
		svc.WithTransferMemberships(storage),
		svc.WithTransferPublisher(publisher),
	)
	searchReader := svc.NewSearchReaderOrchestrator(
		svc.WithSearchBackend(storage),
		svc.WithSearchEmbeddings(embeddings),
		svc.WithSearchMemberships(storage),
		svc.WithSearchConversations(storage),
		svc.WithSearchEntries(storage),
	)

	registry := resumer.NewRegistry(
		resumer.WithResumerConfig(resumer.Config{
			Enabled:           config.Resumer.Enabled,
			SpoolDir:          config.Resumer.SpoolDir,
			AdvertisedAddress: config.Resumer.AdvertisedAddress,
		}),
		resumer.WithResumerLocators(storage),
		resumer.WithResumerConversations(storage),
		resumer.WithResumerMemberships(storage),
	)
	if reaped, err := registry.ReapOrphanSpools(ctx); err != nil {
		slog.WarnContext(ctx, "startup spool reap failed", "error", err)
	} else if reaped > 0 {
		slog.InfoContext(ctx, "reaped orphaned spool files at startup", "count", reaped)
	}

	taskWorker := worker.NewTaskWorker(
		worker.WithWorkerConfig(worker.Config{
			PollInterval:   config.Worker.PollInterval,
			GroupRetention: config.Worker.GroupRetention,
			Parallelism:    config.Worker.Parallelism,
		}),
		worker.WithWorkerQueue(storage),
		worker.WithWorkerEntries(storage),
		worker.WithWorkerConversations(storage),
		worker.WithWorkerSearch(storage),
		worker.WithWorkerEmbeddings(embeddings),
		worker.WithWorkerSpoolReaper(registry),
	)
	go taskWorker.Run(ctx)

	memoryService := service.NewMemoryService(
		service.WithAuthenticator(authenticator),
		service.WithConversationReader(conversationReader),
		service.WithConversationWriter(conversationWriter),
		service.WithEntryReader(entryReader),
		service.WithEntryWriter(entryWriter),
		service.WithMembershipWriter(membershipWriter),
		service.WithTransferWriter(transferWriter),
		service.WithSearchReader(searchReader),
		service.WithResumer(registry),
		service.WithReadiness(storage),
	)

	if err := subscribeAll(ctx, natsClient, memoryService); err != nil {
		slog.ErrorContext(ctx, "failed to subscribe front-door subjects", "error", err)
		os.Exit(1)
	}

	slog.InfoContext(ctx, "memory service started",
		"nats_url", config.NATS.URL,
		"resumer_enabled", config.Resumer.Enabled,
		"embeddings_enabled", embeddings.Enabled(),
		"encryption_enabled", codec.Enabled(),
	)

	<-ctx.Done()
	slog.InfoContext(context.Background(), "shutdown signal received, draining")
}

// subscribeAll binds every front-door subject to its handler under the
// shared queue group so replicas load-balance requests.
func subscribeAll(ctx context.Context, client *nats.NATSClient, memoryService *service.MemoryService) error {
	for subject, handler := range memoryService.Subjects() {
		handle := handler
		_, err := client.QueueSubscribe(subject, constants.MemoryAPIQueue, func(msg *natsgo.Msg) {
			reply := handle(ctx, msg.Data)
			if msg.Reply == "" {
				return
			}
			if err := msg.Respond(reply); err != nil {
				slog.ErrorContext(ctx, "failed to respond to request",
					"error", err,
					"subject", msg.Subject,
				)
			}
		})
		if err != nil {
			return err
		}
		slog.DebugContext(ctx, "subscribed", "subject", subject, "queue", constants.MemoryAPIQueue)
	}
	return nil
}

// buildCodec assembles the at-rest encryption codec from the configured
// primary key and rotation chain. An empty key disables encryption.
func buildCodec(config service.EncryptionConfig) (*encryption.Codec, error) {
	if config.Key == "" {
		return encryption.NewDisabledCodec(), nil
	}

	providerID := config.ProviderID
	if providerID == "" {
		providerID = "aesgcm-v1"
	}
	primary, err := encryption.NewAESGCMProvider(providerID, config.Key)
	if err != nil {
		return nil, err
	}

	chain := make([]encryption.Provider, 0, len(config.Previous))
	for _, previous := range config.Previous {
		provider, err := encryption.NewAESGCMProvider(previous.ID, previous.Key)
		if err != nil {
			return nil, err
		}
		chain = append(chain, provider)
	}
	return encryption.NewCodec(primary, chain...), nil
}

// buildAuthenticator selects the credential resolver from configuration.
func buildAuthenticator(ctx context.Context, config *service.Config) (port.Authenticator, error) {
	switch config.Auth.Source {
	case "mock":
		slog.InfoContext(ctx, "initializing mock authentication service")
		mockAuth := mock.NewMockAuthenticator()
		mockAuth.APIKeys = config.APIKeys
		return mockAuth, nil
	default:
		slog.InfoContext(ctx, "initializing JWT authentication service")
		return auth.NewJWTAuth(auth.JWTAuthConfig{
			Issuer:             config.Auth.Issuer,
			JWKSURL:            config.Auth.JWKSURL,
			Audience:           config.Auth.Audience,
			AdminUsers:         config.Auth.Admins,
			APIKeys:            config.APIKeys,
			MockLocalPrincipal: config.Auth.MockLocalPrincipal,
		})
	}
}
