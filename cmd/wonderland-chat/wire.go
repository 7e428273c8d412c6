package main

import (
	"context"
	"io"
	"net/http"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"gwi.com/wonderland-chat/internal/config"
	"gwi.com/wonderland-chat/internal/core"
	"gwi.com/wonderland-chat/internal/i18n"
	"gwi.com/wonderland-chat/internal/metrics"
	"gwi.com/wonderland-chat/internal/store"
)

// drainTimeout bounds how long Close waits for in-flight sends to resolve.
const drainTimeout = 30 * time.Second

// app holds the components both front ends share.
type app struct {
	store   store.Store
	repo    *core.Repository
	chats   *core.ChatService
	list    *core.ConversationList
	metrics *metrics.Metrics
	closers []io.Closer
}

func buildApp(ctx context.Context, cfg config.Config) (*app, error) {
	if !dotEnvLoaded {
		log.Debug().Msg("No .env file found, relying on environment variables")
	}
	general, closer, err := generalBackend(ctx, cfg)
	if err != nil {
		return nil, err
	}
	a := &app{metrics: metrics.New()}
	if closer != nil {
		a.closers = append(a.closers, closer)
	}

	st, err := store.Open(store.Options{Driver: cfg.StoreDriver, DSN: cfg.DatabaseURL, Key: cfg.StoreKey})
	if err != nil {
		a.Close()
		return nil, errors.Wrap(err, "failed to open conversation store")
	}
	a.store = st

	if !i18n.Supported(cfg.Locale) {
		log.Warn().Str("locale", cfg.Locale).Msgf("Unsupported locale, using %q", i18n.DefaultLocale)
	}
	catalog := i18n.New(cfg.Locale)
	repo, err := core.NewRepository(ctx, st,
		core.WithPlaceholderTitle(catalog.T(i18n.NewConversation)),
		core.WithObserver(a.metrics.ObserveConversations),
	)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.metrics.ObserveConversations(repo.Len())

	domain := core.NewRAGClient(cfg.RAGEndpoint, &http.Client{Timeout: cfg.RAGTimeout})
	exchange := a.metrics.Instrument(core.NewExchangeService(general, domain))

	a.repo = repo
	a.chats = core.NewChatService(repo, exchange, catalog)
	a.list = core.NewConversationList(repo, a.chats)

	log.Info().
		Str("store", cfg.StoreDriver).
		Str("provider", cfg.GeneralProvider).
		Str("rag_endpoint", cfg.RAGEndpoint).
		Str("locale", catalog.Locale()).
		Int("conversations", repo.Len()).
		Msg("Conversations loaded")
	return a, nil
}

// generalBackend builds the configured completion backend. Without a
// credential it returns nil and general mode sends fail with ErrBackend.
func generalBackend(ctx context.Context, cfg config.Config) (core.GeneralBackend, io.Closer, error) {
	if err := cfg.Validate(); err != nil {
		if errors.Is(err, config.ErrMissingCredential) {
			log.Warn().Err(err).Msg("General mode is disabled")
			return nil, nil, nil
		}
		return nil, nil, err
	}

	switch cfg.GeneralProvider {
	case config.ProviderGemini:
		b, err := core.NewGeminiBackend(ctx, cfg.GeminiAPIKey, cfg.GeminiModel)
		if err != nil {
			return nil, nil, err
		}
		return b, b, nil
	default:
		return core.NewOpenAIBackend(cfg.OpenAIAPIKey, cfg.OpenAIBaseURL, cfg.OpenAIModel), nil, nil
	}
}

// Close waits for in-flight sends to persist their outcome, then releases
// the backends and the store.
func (a *app) Close() {
	if a.chats != nil {
		ctx, cancel := context.WithTimeout(context.Background(), drainTimeout)
		if err := a.chats.Wait(ctx); err != nil {
			log.Warn().Err(err).Msg("Closing with sends still in flight")
		}
		cancel()
	}
	for _, c := range a.closers {
		if err := c.Close(); err != nil {
			log.Warn().Err(err).Msg("Failed to close backend")
		}
	}
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			log.Warn().Err(err).Msg("Failed to close conversation store")
		}
	}
}
