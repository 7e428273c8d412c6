package core

import (
	"context"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"gwi.com/wonderland-chat/internal/i18n"
	"gwi.com/wonderland-chat/internal/store"
)

// ConversationUpdate lists the fields Update merges in. Nil fields are left
// unchanged; a non-nil empty Messages slice clears the thread.
type ConversationUpdate struct {
	Title    *string
	Messages []store.Message
}

type RepositoryOption func(*Repository)

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) RepositoryOption {
	return func(r *Repository) { r.now = now }
}

func WithPlaceholderTitle(title string) RepositoryOption {
	return func(r *Repository) { r.placeholder = title }
}

// WithObserver registers a callback run with the conversation count after
// every successful save.
func WithObserver(fn func(conversations int)) RepositoryOption {
	return func(r *Repository) { r.observer = fn }
}

// Repository owns the in-memory conversation collection and the active
// selection. Every mutation is written through to the store before it
// returns; if the write fails the mutation is undone.
type Repository struct {
	mu            sync.Mutex
	store         store.Store
	conversations []store.Conversation
	activeID      string
	lastID        int64

	now         func() time.Time
	placeholder string
	observer    func(int)
}

// NewRepository loads the saved collection once and returns the repository
// that owns it from then on.
func NewRepository(ctx context.Context, st store.Store, opts ...RepositoryOption) (*Repository, error) {
	r := &Repository{
		store:       st,
		now:         time.Now,
		placeholder: i18n.New(i18n.DefaultLocale).T(i18n.NewConversation),
	}
	for _, opt := range opts {
		opt(r)
	}

	conversations, err := st.Load(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "failed to load conversations")
	}
	for i := range conversations {
		c := &conversations[i]
		if strings.TrimSpace(c.Title) == "" {
			c.Title = r.placeholder
		}
		if c.UpdatedAt.Before(c.CreatedAt) {
			c.UpdatedAt = c.CreatedAt
		}
		if n, err := strconv.ParseInt(c.ID, 10, 64); err == nil && n > r.lastID {
			r.lastID = n
		}
	}
	r.conversations = conversations

	log.Info().Int("conversations", len(conversations)).Msg("Conversation repository loaded")
	return r, nil
}

// Create adds an empty conversation at the end of the collection and makes
// it the active one.
func (r *Repository) Create(ctx context.Context) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	conv := store.Conversation{
		ID:        r.nextID(now),
		Title:     r.placeholder,
		Messages:  []store.Message{},
		CreatedAt: now,
		UpdatedAt: now,
	}

	prev, prevActive := r.conversations, r.activeID
	r.conversations = append(cloneSlice(r.conversations), conv)
	r.activeID = conv.ID
	if err := r.persistLocked(ctx); err != nil {
		r.conversations, r.activeID = prev, prevActive
		return "", err
	}
	return conv.ID, nil
}

// Delete removes the conversation if present. Deleting the active
// conversation clears the selection.
func (r *Repository) Delete(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	idx := r.indexLocked(id)
	if idx < 0 {
		return nil
	}

	prev, prevActive := r.conversations, r.activeID
	next := make([]store.Conversation, 0, len(r.conversations)-1)
	next = append(next, r.conversations[:idx]...)
	next = append(next, r.conversations[idx+1:]...)
	r.conversations = next
	if r.activeID == id {
		r.activeID = ""
	}
	if err := r.persistLocked(ctx); err != nil {
		r.conversations, r.activeID = prev, prevActive
		return err
	}
	return nil
}

// Update merges upd into the conversation and refreshes UpdatedAt. Unknown
// ids are ignored.
func (r *Repository) Update(ctx context.Context, id string, upd ConversationUpdate) error {
	if upd.Title != nil && strings.TrimSpace(*upd.Title) == "" {
		return ErrEmptyTitle
	}
	_, _, err := r.Modify(ctx, id, func(c *store.Conversation) error {
		if upd.Title != nil {
			c.Title = *upd.Title
		}
		if upd.Messages != nil {
			c.Messages = make([]store.Message, len(upd.Messages))
			copy(c.Messages, upd.Messages)
		}
		return nil
	})
	return err
}

// Modify runs fn on a copy of the conversation while holding the repository
// lock, then stores the copy and refreshes UpdatedAt. Reading and writing
// happen in one step, so concurrent changes to the same conversation are
// never lost. found is false for unknown ids, in which case fn is not run.
// If fn fails nothing is written.
func (r *Repository) Modify(ctx context.Context, id string, fn func(*store.Conversation) error) (conv store.Conversation, found bool, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	idx := r.indexLocked(id)
	if idx < 0 {
		return store.Conversation{}, false, nil
	}

	next := r.conversations[idx].Clone()
	if err := fn(&next); err != nil {
		return store.Conversation{}, true, err
	}
	if strings.TrimSpace(next.Title) == "" {
		return store.Conversation{}, true, ErrEmptyTitle
	}
	if next.Messages == nil {
		next.Messages = []store.Message{}
	}
	next.UpdatedAt = r.now()
	if next.UpdatedAt.Before(next.CreatedAt) {
		next.UpdatedAt = next.CreatedAt
	}

	prev := r.conversations
	r.conversations = cloneSlice(r.conversations)
	r.conversations[idx] = next
	if err := r.persistLocked(ctx); err != nil {
		r.conversations = prev
		return store.Conversation{}, true, err
	}
	return next.Clone(), true, nil
}

func (r *Repository) Get(id string) (store.Conversation, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	idx := r.indexLocked(id)
	if idx < 0 {
		return store.Conversation{}, false
	}
	return r.conversations[idx].Clone(), true
}

// List returns copies of all conversations in insertion order.
func (r *Repository) List() []store.Conversation {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]store.Conversation, len(r.conversations))
	for i, c := range r.conversations {
		out[i] = c.Clone()
	}
	return out
}

func (r *Repository) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.conversations)
}

// Active returns the id of the selected conversation.
func (r *Repository) Active() (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.activeID, r.activeID != ""
}

// Select makes id the active conversation. The selection is not persisted.
func (r *Repository) Select(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.indexLocked(id) < 0 {
		return errors.Wrapf(ErrConversationNotFound, "select %s", id)
	}
	r.activeID = id
	return nil
}

func (r *Repository) indexLocked(id string) int {
	for i := range r.conversations {
		if r.conversations[i].ID == id {
			return i
		}
	}
	return -1
}

// nextID derives an id from the creation time in milliseconds, moving it
// forward when needed so ids stay unique and increasing.
func (r *Repository) nextID(now time.Time) string {
	ms := now.UnixMilli()
	if ms <= r.lastID {
		ms = r.lastID + 1
	}
	r.lastID = ms
	return strconv.FormatInt(ms, 10)
}

func (r *Repository) persistLocked(ctx context.Context) error {
	if err := r.store.Save(ctx, r.conversations); err != nil {
		log.Error().Err(err).Msg("Failed to persist conversations")
		return errors.Wrap(err, "failed to persist conversations")
	}
	if r.observer != nil {
		r.observer(len(r.conversations))
	}
	return nil
}

func cloneSlice(in []store.Conversation) []store.Conversation {
	return append(make([]store.Conversation, 0, len(in)+1), in...)
}
