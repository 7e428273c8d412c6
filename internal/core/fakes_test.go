package core

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"

	"gwi.com/wonderland-chat/internal/i18n"
	"gwi.com/wonderland-chat/internal/store"
)

// fakeClock hands out strictly increasing instants one second apart.
type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(time.Second)
	return c.t
}

// fakeExchange answers from a queue of scripted outcomes and records calls.
type fakeExchange struct {
	mu      sync.Mutex
	replies []fakeOutcome
	calls   []fakeCall
	// gate, when set, blocks every Send until a value is received.
	gate chan struct{}
}

type fakeOutcome struct {
	reply string
	err   error
}

type fakeCall struct {
	history []store.Message
	content string
	mode    store.Mode
}

func (f *fakeExchange) push(reply string, err error) *fakeExchange {
	f.mu.Lock()
	f.replies = append(f.replies, fakeOutcome{reply: reply, err: err})
	f.mu.Unlock()
	return f
}

func (f *fakeExchange) Send(ctx context.Context, history []store.Message, content string, mode store.Mode) (string, error) {
	if f.gate != nil {
		<-f.gate
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, fakeCall{history: history, content: content, mode: mode})
	if len(f.replies) == 0 {
		return "", fmt.Errorf("fakeExchange: no scripted reply for %q", content)
	}
	out := f.replies[0]
	f.replies = f.replies[1:]
	return out.reply, out.err
}

// failingStore fails every Save after the first `allow` successes.
type failingStore struct {
	*store.MemoryStore
	allow int
}

func (s *failingStore) Save(ctx context.Context, c []store.Conversation) error {
	if s.allow <= 0 {
		return errors.New("disk full")
	}
	s.allow--
	return s.MemoryStore.Save(ctx, c)
}

type fixture struct {
	store    *store.MemoryStore
	repo     *Repository
	exchange *fakeExchange
	chats    *ChatService
	list     *ConversationList
	clock    *fakeClock
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	f := &fixture{
		store:    store.NewMemoryStore(),
		exchange: &fakeExchange{},
		clock:    newFakeClock(),
	}
	catalog := i18n.New(i18n.English)
	repo, err := NewRepository(ctx, f.store,
		WithClock(f.clock.Now),
		WithPlaceholderTitle(catalog.T(i18n.NewConversation)),
	)
	require.NoError(t, err)
	f.repo = repo
	f.chats = NewChatService(repo, f.exchange, catalog, WithChatClock(f.clock.Now))
	f.list = NewConversationList(repo, f.chats)
	return f
}

// persisted decodes what the store currently holds.
func (f *fixture) persisted(t *testing.T) []store.Conversation {
	t.Helper()
	out, err := store.Decode(f.store.Raw())
	require.NoError(t, err)
	return out
}

func quota() error {
	return &StatusError{Kind: ErrQuotaExceeded, StatusCode: 429, Err: errors.New("rate limit reached")}
}
