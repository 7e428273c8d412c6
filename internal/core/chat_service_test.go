package core

import (
	"context"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gwi.com/wonderland-chat/internal/i18n"
	"gwi.com/wonderland-chat/internal/store"
)

func TestDeriveTitle(t *testing.T) {
	assert.Equal(t, "Hello...", DeriveTitle("Hello"))
	long := "Why is a raven like a writing-desk? Nobody knows."
	assert.Equal(t, "Why is a raven like a writing-...", DeriveTitle(long))
}

func TestSendHelloThenQuota(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	id, err := f.repo.Create(ctx)
	require.NoError(t, err)
	conv, _ := f.repo.Get(id)
	assert.Equal(t, "New conversation", conv.Title)
	assert.Empty(t, conv.Messages)

	f.exchange.push("Hi there", nil)
	res, err := f.chats.Send(ctx, id, "Hello", store.ModeGeneral)
	require.NoError(t, err)
	require.NotNil(t, res.Reply)

	conv, _ = f.repo.Get(id)
	require.Len(t, conv.Messages, 2)
	assert.Equal(t, store.RoleUser, conv.Messages[0].Role)
	assert.Equal(t, "Hello", conv.Messages[0].Content)
	assert.Equal(t, store.RoleAssistant, conv.Messages[1].Role)
	assert.Equal(t, "Hi there", conv.Messages[1].Content)
	assert.Equal(t, store.ModeGeneral, conv.Messages[1].Mode)
	assert.Equal(t, "Hello...", conv.Title)
	assert.Equal(t, StateIdle, f.chats.Status(id).State)

	f.exchange.push("", quota())
	res, err = f.chats.Send(ctx, id, "Another one", store.ModeGeneral)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrQuotaExceeded))

	conv, _ = f.repo.Get(id)
	assert.Len(t, conv.Messages, 2, "the failed message is rolled back")
	assert.Equal(t, "Hello...", conv.Title)
	st := f.chats.Status(id)
	assert.Equal(t, StateError, st.State)
	assert.Contains(t, st.Error, "quota")
	assert.Equal(t, st.Error, res.ErrorText)
	assert.Len(t, res.Conversation.Messages, 2)
	assertWriteThrough(t, f)
}

func TestSendForwardsHistoryOnlyInGeneralMode(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	id, _ := f.repo.Create(ctx)

	f.exchange.push("first", nil).push("second", nil).push("third", nil)
	_, err := f.chats.Send(ctx, id, "one", store.ModeGeneral)
	require.NoError(t, err)
	_, err = f.chats.Send(ctx, id, "two", store.ModeDomain)
	require.NoError(t, err)
	_, err = f.chats.Send(ctx, id, "three", store.ModeGeneral)
	require.NoError(t, err)

	calls := f.exchange.calls
	require.Len(t, calls, 3)
	assert.Empty(t, calls[0].history)
	assert.Equal(t, store.ModeDomain, calls[1].mode)
	require.Len(t, calls[2].history, 4, "the pre-send history excludes the new message")
	assert.Equal(t, "three", calls[2].content)

	conv, _ := f.repo.Get(id)
	require.Len(t, conv.Messages, 6)
	assert.Equal(t, store.ModeDomain, conv.Messages[2].Mode)
	assert.Equal(t, store.ModeDomain, conv.Messages[3].Mode)
	assert.Equal(t, "one...", conv.Title, "only the first message sets the title")
}

func TestSendTimestampsNeverGoBackwards(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	id, _ := f.repo.Create(ctx)

	f.exchange.push("a", nil).push("b", nil)
	_, err := f.chats.Send(ctx, id, "x", store.ModeGeneral)
	require.NoError(t, err)

	// The clock jumps backwards.
	past := time.Date(2000, 1, 1, 0, 0, 0, 0, time.UTC)
	f.chats.now = func() time.Time { return past }
	_, err = f.chats.Send(ctx, id, "y", store.ModeGeneral)
	require.NoError(t, err)

	conv, _ := f.repo.Get(id)
	require.Len(t, conv.Messages, 4)
	for i := 1; i < len(conv.Messages); i++ {
		assert.False(t, conv.Messages[i].Timestamp.Before(conv.Messages[i-1].Timestamp), "message %d", i)
	}
}

func TestFirstMessageFailureRestoresPlaceholderTitle(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	id, _ := f.repo.Create(ctx)
	before, _ := f.repo.Get(id)

	f.exchange.push("", &StatusError{Kind: ErrDomainBackend, StatusCode: 500, Err: errors.New("boom")})
	res, err := f.chats.Send(ctx, id, "Who stole the tarts?", store.ModeDomain)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrDomainBackend))
	assert.Equal(t, "There was an error querying the knowledge base. Please try again later.", res.ErrorText)

	after, _ := f.repo.Get(id)
	assert.Equal(t, before.Title, after.Title)
	assert.Empty(t, after.Messages)
}

func TestSendRejections(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	id, _ := f.repo.Create(ctx)

	_, err := f.chats.Send(ctx, id, "   \n", store.ModeGeneral)
	assert.ErrorIs(t, err, ErrEmptyMessage)

	_, err = f.chats.Send(ctx, id, "hi", store.Mode("oracle"))
	assert.True(t, errors.Is(err, ErrUnknownMode))

	_, err = f.chats.Send(ctx, "missing", "hi", store.ModeGeneral)
	assert.True(t, errors.Is(err, ErrConversationNotFound))

	assert.Empty(t, f.exchange.calls)
	assert.Equal(t, StateIdle, f.chats.Status(id).State)
}

func TestOnlyOneSendInFlight(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	id, _ := f.repo.Create(ctx)

	pending, err := f.chats.Begin(ctx, id, "first", store.ModeGeneral)
	require.NoError(t, err)
	assert.Equal(t, StateSending, f.chats.Status(id).State)

	conv, _ := f.repo.Get(id)
	require.Len(t, conv.Messages, 1, "user message is visible while sending")

	_, err = f.chats.Begin(ctx, id, "second", store.ModeGeneral)
	assert.ErrorIs(t, err, ErrSendInFlight)

	other, _ := f.repo.Create(ctx)
	f.exchange.push("reply to first", nil).push("reply to other", nil)
	_, err = f.chats.Send(ctx, other, "meanwhile", store.ModeGeneral)
	require.NoError(t, err, "other conversations are not blocked")

	_, err = pending.Resolve(ctx)
	require.NoError(t, err)
	assert.Equal(t, StateIdle, f.chats.Status(id).State)
}

func TestErrorStateClearsOnNextSend(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	id, _ := f.repo.Create(ctx)

	f.exchange.push("", quota())
	_, err := f.chats.Send(ctx, id, "one", store.ModeGeneral)
	require.Error(t, err)
	require.Equal(t, StateError, f.chats.Status(id).State)

	pending, err := f.chats.Begin(ctx, id, "two", store.ModeGeneral)
	require.NoError(t, err)
	st := f.chats.Status(id)
	assert.Equal(t, StateSending, st.State)
	assert.Empty(t, st.Error)

	f.exchange.push("ok", nil)
	_, err = pending.Resolve(ctx)
	require.NoError(t, err)
}

func TestReplyLandsInOriginatingConversation(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	a, _ := f.repo.Create(ctx)

	f.exchange.gate = make(chan struct{})
	f.exchange.push("late answer", nil)

	type outcome struct {
		res SendResult
		err error
	}
	done := make(chan outcome, 1)
	go func() {
		res, err := f.chats.Send(ctx, a, "question", store.ModeDomain)
		done <- outcome{res, err}
	}()

	// Wait for the optimistic append, then navigate away.
	require.Eventually(t, func() bool { return f.chats.Status(a).State == StateSending }, time.Second, time.Millisecond)
	b, err := f.list.New(ctx)
	require.NoError(t, err)
	active, _ := f.repo.Active()
	require.Equal(t, b, active)

	close(f.exchange.gate)
	out := <-done
	require.NoError(t, out.err)

	convA, _ := f.repo.Get(a)
	convB, _ := f.repo.Get(b)
	assert.Len(t, convA.Messages, 2)
	assert.Empty(t, convB.Messages)
}

func TestReplyForDeletedConversationIsDropped(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	a, _ := f.repo.Create(ctx)

	pending, err := f.chats.Begin(ctx, a, "question", store.ModeGeneral)
	require.NoError(t, err)
	require.NoError(t, f.list.Delete(ctx, a))

	f.exchange.push("answer", nil)
	res, err := pending.Resolve(ctx)
	require.NoError(t, err)
	assert.True(t, res.Dropped)
	assert.Equal(t, 0, f.repo.Len())
	assert.Equal(t, StateIdle, f.chats.Status(a).State)
	assertWriteThrough(t, f)
}

func TestRollbackKeepsConcurrentRename(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	id, _ := f.repo.Create(ctx)

	pending, err := f.chats.Begin(ctx, id, "hello", store.ModeGeneral)
	require.NoError(t, err)
	renamed := "Renamed meanwhile"
	require.NoError(t, f.repo.Update(ctx, id, ConversationUpdate{Title: &renamed}))

	f.exchange.push("", errors.New("connection reset"))
	res, err := pending.Resolve(ctx)
	require.Error(t, err)
	assert.Equal(t, "Error sending the message", res.ErrorText)

	conv, _ := f.repo.Get(id)
	assert.Equal(t, renamed, conv.Title)
	assert.Empty(t, conv.Messages)
}

func TestBeginRightAfterResolveKeepsTheReply(t *testing.T) {
	ctx := context.Background()
	for run := 0; run < 500; run++ {
		f := newFixture(t)
		id, err := f.repo.Create(ctx)
		require.NoError(t, err)
		f.exchange.push("reply one", nil).push("reply two", nil)

		first, err := f.chats.Begin(ctx, id, "one", store.ModeGeneral)
		require.NoError(t, err)
		done := make(chan error, 1)
		go func() {
			_, err := first.Resolve(ctx)
			done <- err
		}()

		// Retry until the first send has resolved.
		var second *PendingSend
		for {
			second, err = f.chats.Begin(ctx, id, "two", store.ModeGeneral)
			if !errors.Is(err, ErrSendInFlight) {
				break
			}
			runtime.Gosched()
		}
		require.NoError(t, err)
		_, err = second.Resolve(ctx)
		require.NoError(t, err)
		require.NoError(t, <-done)

		conv, _ := f.repo.Get(id)
		var contents []string
		for _, m := range conv.Messages {
			contents = append(contents, m.Content)
		}
		require.Equal(t, []string{"one", "reply one", "two", "reply two"}, contents, "run %d", run)
		assertWriteThrough(t, f)
	}
}

func TestFailedRollbackIsReported(t *testing.T) {
	ctx := context.Background()
	// Create and Begin save; the rollback does not.
	st := &failingStore{MemoryStore: store.NewMemoryStore(), allow: 2}
	repo, err := NewRepository(ctx, st)
	require.NoError(t, err)
	exchange := &fakeExchange{}
	chats := NewChatService(repo, exchange, i18n.New(i18n.English))

	id, err := repo.Create(ctx)
	require.NoError(t, err)
	exchange.push("", quota())
	res, err := chats.Send(ctx, id, "hello", store.ModeGeneral)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrQuotaExceeded))
	assert.True(t, errors.Is(err, ErrRollbackFailed))
	assert.Equal(t, "quota_exceeded", ErrorKind(err))
	assert.Contains(t, res.ErrorText, "could not be removed")

	status := chats.Status(id)
	assert.Equal(t, StateError, status.State)
	assert.Equal(t, res.ErrorText, status.Error)
	require.Len(t, res.Conversation.Messages, 1, "the result shows the message that stayed")
	assert.Equal(t, "hello", res.Conversation.Messages[0].Content)
}

func TestWaitForInFlightSends(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	id, _ := f.repo.Create(ctx)
	require.NoError(t, f.chats.Wait(ctx))

	_, err := f.chats.Begin(ctx, "missing", "hi", store.ModeGeneral)
	require.True(t, errors.Is(err, ErrConversationNotFound))
	require.NoError(t, f.chats.Wait(ctx), "a rejected send is not waited for")

	pending, err := f.chats.Begin(ctx, id, "question", store.ModeGeneral)
	require.NoError(t, err)

	short, cancel := context.WithTimeout(ctx, 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, f.chats.Wait(short), context.DeadlineExceeded)

	waited := make(chan error, 1)
	go func() { waited <- f.chats.Wait(ctx) }()

	f.exchange.push("answer", nil)
	_, err = pending.Resolve(ctx)
	require.NoError(t, err)
	select {
	case err := <-waited:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Wait did not return after the send resolved")
	}
}

func TestStateString(t *testing.T) {
	names := []string{StateIdle.String(), StateSending.String(), StateError.String(), State(42).String()}
	assert.Equal(t, "idle sending error unknown", strings.Join(names, " "))
}
