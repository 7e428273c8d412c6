package core

import (
	"context"

	"github.com/pkg/errors"

	"gwi.com/wonderland-chat/internal/store"
)

// ChatTurn is one role/content pair of a general completion request.
type ChatTurn struct {
	Role    store.Role
	Content string
}

// GeneralBackend answers a conversation with a completion.
type GeneralBackend interface {
	Complete(ctx context.Context, turns []ChatTurn) (string, error)
}

// DomainBackend answers a single query from the domain knowledge base.
type DomainBackend interface {
	Ask(ctx context.Context, query string) (string, error)
}

// Exchanger sends one user message and returns the reply text.
type Exchanger interface {
	Send(ctx context.Context, history []store.Message, content string, mode store.Mode) (string, error)
}

// ExchangeService routes a send to the general or the domain backend. It
// makes exactly one attempt per call.
type ExchangeService struct {
	general GeneralBackend
	domain  DomainBackend
}

func NewExchangeService(general GeneralBackend, domain DomainBackend) *ExchangeService {
	return &ExchangeService{general: general, domain: domain}
}

func (s *ExchangeService) Send(ctx context.Context, history []store.Message, content string, mode store.Mode) (string, error) {
	switch mode {
	case store.ModeDomain:
		if s.domain == nil {
			return "", &StatusError{Kind: ErrDomainBackend, Err: errors.New("domain backend not configured")}
		}
		// The domain backend only ever sees the new query.
		return s.domain.Ask(ctx, content)

	case store.ModeGeneral:
		if s.general == nil {
			return "", &StatusError{Kind: ErrBackend, Err: errors.New("general backend not configured")}
		}
		turns := make([]ChatTurn, 0, len(history)+1)
		for _, m := range history {
			turns = append(turns, ChatTurn{Role: m.Role, Content: m.Content})
		}
		turns = append(turns, ChatTurn{Role: store.RoleUser, Content: content})
		return s.general.Complete(ctx, turns)

	default:
		return "", errors.Wrapf(ErrUnknownMode, "%q", mode)
	}
}
