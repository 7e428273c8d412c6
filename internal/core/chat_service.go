package core

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"gwi.com/wonderland-chat/internal/i18n"
	"gwi.com/wonderland-chat/internal/store"
	"gwi.com/wonderland-chat/internal/utils"
)

// titleRunes is how much of the first user message becomes the title.
const titleRunes = 30

// DeriveTitle builds a conversation title from its first user message.
func DeriveTitle(content string) string {
	return utils.TruncateRunes(content, titleRunes) + "..."
}

type State int

const (
	StateIdle State = iota
	StateSending
	StateError
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateSending:
		return "sending"
	case StateError:
		return "error"
	default:
		return "unknown"
	}
}

// Status is what a view shows about a conversation's send state.
type Status struct {
	State State
	// Error is the localized text of the last failure, set in StateError.
	Error string
}

// SendResult describes how a send resolved.
type SendResult struct {
	ConversationID string
	UserMessage    store.Message
	// Reply is set when the backend answered.
	Reply *store.Message
	// Conversation is the conversation after resolution. Zero if Dropped.
	Conversation store.Conversation
	ErrorText    string
	// Dropped is set when the conversation was deleted while the send was
	// in flight.
	Dropped bool
}

// ChatService is the per-conversation send controller: it appends the user
// message optimistically, asks the exchange service for a reply, and either
// appends the reply or rolls the conversation back.
type ChatService struct {
	repo     *Repository
	exchange Exchanger
	catalog  *i18n.Catalog
	now      func() time.Time
	newID    func() string

	mu     sync.Mutex
	states map[string]Status
	// inflight counts sends between Begin and the end of Resolve. drained is
	// closed when it drops back to zero while someone waits.
	inflight int
	drained  chan struct{}
}

type ChatServiceOption func(*ChatService)

func WithChatClock(now func() time.Time) ChatServiceOption {
	return func(s *ChatService) { s.now = now }
}

func NewChatService(repo *Repository, exchange Exchanger, catalog *i18n.Catalog, opts ...ChatServiceOption) *ChatService {
	if catalog == nil {
		catalog = i18n.New(i18n.DefaultLocale)
	}
	s := &ChatService{
		repo:     repo,
		exchange: exchange,
		catalog:  catalog,
		now:      time.Now,
		newID:    uuid.NewString,
		states:   make(map[string]Status),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// PendingSend is a send whose user message has been appended and whose
// backend call has not happened yet. Resolve must be called exactly once.
type PendingSend struct {
	svc            *ChatService
	conversationID string
	content        string
	mode           store.Mode
	history        []store.Message
	userMessage    store.Message
	prevTitle      string
	newTitle       string
}

func (p *PendingSend) ConversationID() string {
	return p.conversationID
}

// Send runs a whole exchange: Begin followed by Resolve. Backend failures
// are returned as the error, with the rolled-back conversation in the result.
func (s *ChatService) Send(ctx context.Context, conversationID, content string, mode store.Mode) (SendResult, error) {
	pending, err := s.Begin(ctx, conversationID, content, mode)
	if err != nil {
		return SendResult{ConversationID: conversationID}, err
	}
	return pending.Resolve(ctx)
}

// Begin moves the conversation to StateSending and appends the user message.
// It rejects blank content, unknown modes, missing conversations and a
// second send while one is in flight.
func (s *ChatService) Begin(ctx context.Context, conversationID, content string, mode store.Mode) (*PendingSend, error) {
	if !mode.Valid() {
		return nil, errors.Wrapf(ErrUnknownMode, "%q", mode)
	}
	if strings.TrimSpace(content) == "" {
		return nil, ErrEmptyMessage
	}

	// Claim the conversation before reading it, so the snapshot below
	// already holds the reply of any send that just finished.
	s.mu.Lock()
	prevStatus, known := s.states[conversationID]
	if prevStatus.State == StateSending {
		s.mu.Unlock()
		return nil, ErrSendInFlight
	}
	s.states[conversationID] = Status{State: StateSending}
	s.inflight++
	s.mu.Unlock()

	p := &PendingSend{
		svc:            s,
		conversationID: conversationID,
		content:        content,
		mode:           mode,
	}
	_, found, err := s.repo.Modify(ctx, conversationID, func(c *store.Conversation) error {
		p.history = cloneMessages(c.Messages)
		p.prevTitle = c.Title
		p.userMessage = store.Message{
			ID:        s.newID(),
			Content:   content,
			Role:      store.RoleUser,
			Timestamp: s.stampAfter(*c),
			Mode:      mode,
		}
		if len(c.Messages) == 0 {
			p.newTitle = DeriveTitle(content)
			c.Title = p.newTitle
		}
		c.Messages = append(c.Messages, p.userMessage)
		return nil
	})
	if err == nil && !found {
		err = errors.Wrapf(ErrConversationNotFound, "send to %s", conversationID)
	}
	if err != nil {
		s.mu.Lock()
		if known {
			s.states[conversationID] = prevStatus
		} else {
			delete(s.states, conversationID)
		}
		s.mu.Unlock()
		s.release()
		return nil, err
	}

	log.Debug().
		Str("conversation", conversationID).
		Str("mode", string(mode)).
		Int("history", len(p.history)).
		Msg("Sending message")
	return p, nil
}

// Resolve calls the backend and applies the outcome to the conversation the
// send was started from, whatever is selected by then.
func (p *PendingSend) Resolve(ctx context.Context) (SendResult, error) {
	s := p.svc
	defer s.release()
	result := SendResult{ConversationID: p.conversationID, UserMessage: p.userMessage}

	reply, sendErr := s.exchange.Send(ctx, p.history, p.content, p.mode)
	if sendErr != nil {
		return p.rollback(ctx, result, sendErr)
	}

	var assistant store.Message
	conv, found, err := s.repo.Modify(ctx, p.conversationID, func(c *store.Conversation) error {
		assistant = store.Message{
			ID:        s.newID(),
			Content:   reply,
			Role:      store.RoleAssistant,
			Timestamp: s.stampAfter(*c),
			Mode:      p.mode,
		}
		c.Messages = append(c.Messages, assistant)
		return nil
	})
	switch {
	case !found:
		return p.drop(result, nil)
	case err != nil:
		return p.rollback(ctx, result, err)
	}

	s.setStatus(p.conversationID, Status{State: StateIdle})
	result.Reply = &assistant
	result.Conversation = conv
	return result, nil
}

// rollback removes the optimistic user message and restores the title it
// replaced, then records the failure. If the store refuses the rollback the
// message stays, and the error and text say so.
func (p *PendingSend) rollback(ctx context.Context, result SendResult, cause error) (SendResult, error) {
	s := p.svc

	conv, found, err := s.repo.Modify(ctx, p.conversationID, func(c *store.Conversation) error {
		kept := make([]store.Message, 0, len(c.Messages))
		for _, m := range c.Messages {
			if m.ID != p.userMessage.ID {
				kept = append(kept, m)
			}
		}
		c.Messages = kept
		if p.newTitle != "" && c.Title == p.newTitle {
			c.Title = p.prevTitle
		}
		return nil
	})
	if !found {
		return p.drop(result, cause)
	}

	result.ErrorText = Describe(s.catalog, cause)
	if err != nil {
		log.Error().Err(err).Str("conversation", p.conversationID).Msg("Failed to roll back message")
		cause = &rollbackError{cause: cause, err: err}
		result.ErrorText += " " + s.catalog.T(i18n.ErrRollback)
		conv, _ = s.repo.Get(p.conversationID)
	}
	s.setStatus(p.conversationID, Status{State: StateError, Error: result.ErrorText})
	result.Conversation = conv

	log.Warn().
		Err(cause).
		Str("conversation", p.conversationID).
		Str("kind", ErrorKind(cause)).
		Msg("Send failed, message rolled back")
	return result, cause
}

// drop discards the outcome of a send whose conversation was deleted.
func (p *PendingSend) drop(result SendResult, err error) (SendResult, error) {
	p.svc.Forget(p.conversationID)
	result.Dropped = true
	log.Debug().Str("conversation", p.conversationID).Msg("Conversation deleted while sending, dropping reply")
	return result, err
}

// Wait blocks until every begun send has been resolved or ctx is done.
func (s *ChatService) Wait(ctx context.Context) error {
	s.mu.Lock()
	if s.inflight == 0 {
		s.mu.Unlock()
		return nil
	}
	if s.drained == nil {
		s.drained = make(chan struct{})
	}
	drained := s.drained
	s.mu.Unlock()

	select {
	case <-drained:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *ChatService) release() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.inflight--
	if s.inflight == 0 && s.drained != nil {
		close(s.drained)
		s.drained = nil
	}
}

// Status returns the send state of a conversation. Conversations that never
// sent anything are idle.
func (s *ChatService) Status(conversationID string) Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.states[conversationID]
}

// Forget drops the state kept for a conversation, e.g. after deletion.
func (s *ChatService) Forget(conversationID string) {
	s.mu.Lock()
	delete(s.states, conversationID)
	s.mu.Unlock()
}

func (s *ChatService) Catalog() *i18n.Catalog {
	return s.catalog
}

func (s *ChatService) setStatus(conversationID string, st Status) {
	s.mu.Lock()
	s.states[conversationID] = st
	s.mu.Unlock()
}

// stampAfter returns now, or the last message's timestamp if the clock is
// behind it.
func (s *ChatService) stampAfter(conv store.Conversation) time.Time {
	now := s.now()
	if last, ok := conv.LastMessage(); ok && now.Before(last.Timestamp) {
		return last.Timestamp
	}
	return now
}

func cloneMessages(in []store.Message) []store.Message {
	return append(make([]store.Message, 0, len(in)+1), in...)
}
