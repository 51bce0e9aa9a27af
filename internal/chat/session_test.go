package chat

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"

	"github.com/RichardoC/padchat/internal/kv"
	"github.com/RichardoC/padchat/internal/llm"
	"github.com/RichardoC/padchat/internal/models"
	"github.com/RichardoC/padchat/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type staticCredential string

func (c staticCredential) Credential(context.Context) string { return string(c) }

type fakeCompleter struct {
	mu      sync.Mutex
	reply   string
	err     error
	calls   int
	message string
	history []models.Message
	block   chan struct{}
	entered chan struct{}
}

func (f *fakeCompleter) Complete(_ context.Context, message string, history []models.Message, _ string) (string, error) {
	f.mu.Lock()
	f.calls++
	f.message = message
	f.history = history
	f.mu.Unlock()
	if f.entered != nil {
		close(f.entered)
	}
	if f.block != nil {
		<-f.block
	}
	return f.reply, f.err
}

func newSession(t *testing.T, c Completer, credential string) (*Session, *store.Store) {
	t.Helper()
	s := store.New(kv.NewMemory(), zap.NewNop())
	return NewSession(s, c, staticCredential(credential), zap.NewNop()), s
}

func TestSendCreatesConversationAndAppendsReply(t *testing.T) {
	completer := &fakeCompleter{reply: "Hi there"}
	sess, s := newSession(t, completer, "secret")
	ctx := context.Background()

	res, err := sess.Send(ctx, "Hello")
	require.NoError(t, err)
	assert.False(t, res.Failed)

	convs := s.Conversations()
	require.Len(t, convs, 1)
	conv := convs[0]
	assert.Equal(t, res.ConversationID, conv.ID)
	assert.Equal(t, conv.ID, s.CurrentID())
	assert.Equal(t, "Hello", conv.Title)
	require.Len(t, conv.Messages, 2)
	assert.Equal(t, models.RoleUser, conv.Messages[0].Role)
	assert.Equal(t, "Hello", conv.Messages[0].Content)
	assert.Equal(t, models.RoleAssistant, conv.Messages[1].Role)
	assert.Equal(t, "Hi there", conv.Messages[1].Content)
	assert.Empty(t, completer.history)
	assert.Equal(t, StateIdle, sess.State())
}

func TestSendPassesPriorHistory(t *testing.T) {
	completer := &fakeCompleter{reply: "first reply"}
	sess, s := newSession(t, completer, "secret")
	ctx := context.Background()

	_, err := sess.Send(ctx, "one")
	require.NoError(t, err)

	completer.reply = "second reply"
	res, err := sess.Send(ctx, "  two  ")
	require.NoError(t, err)

	assert.Equal(t, "two", completer.message)
	require.Len(t, completer.history, 2)
	assert.Equal(t, "one", completer.history[0].Content)
	assert.Equal(t, "first reply", completer.history[1].Content)

	conv, ok := s.Get(res.ConversationID)
	require.True(t, ok)
	require.Len(t, conv.Messages, 4)
	assert.Equal(t, []string{"one", "first reply", "two", "second reply"}, contents(conv.Messages))
	assert.Equal(t, "one", conv.Title)
}

func TestSendUsesSelectedConversation(t *testing.T) {
	completer := &fakeCompleter{reply: "ok"}
	sess, s := newSession(t, completer, "secret")
	ctx := context.Background()

	target := s.Create(ctx)
	s.Create(ctx)
	require.True(t, s.Select(target))

	res, err := sess.Send(ctx, "Hello")
	require.NoError(t, err)
	assert.Equal(t, target, res.ConversationID)
	assert.Len(t, s.Conversations(), 2)
}

func TestSendGatewayFailureBecomesAssistantMessage(t *testing.T) {
	completer := &fakeCompleter{err: llm.Classify(errors.New("Quota exceeded; permission check skipped"))}
	sess, s := newSession(t, completer, "secret")

	res, err := sess.Send(context.Background(), "Hello")
	require.NoError(t, err)
	assert.True(t, res.Failed)
	assert.ErrorIs(t, res.Err, llm.ErrQuotaExceeded)

	conv, _ := s.Get(res.ConversationID)
	require.Len(t, conv.Messages, 2)
	assert.Equal(t, models.RoleAssistant, conv.Messages[1].Role)
	assert.Equal(t, "API quota exceeded. Please try again later.", conv.Messages[1].Content)
	assert.Equal(t, StateIdle, sess.State())
}

func TestSendPlainErrorTextPassesThrough(t *testing.T) {
	completer := &fakeCompleter{err: errors.New("upstream hiccup")}
	sess, s := newSession(t, completer, "secret")

	res, err := sess.Send(context.Background(), "Hello")
	require.NoError(t, err)
	conv, _ := s.Get(res.ConversationID)
	assert.Equal(t, "upstream hiccup", conv.Messages[1].Content)
}

func TestSendRejectedBeforeAppend(t *testing.T) {
	ctx := context.Background()

	completer := &fakeCompleter{reply: "unused"}
	sess, s := newSession(t, completer, "")
	_, err := sess.Send(ctx, "Hello")
	assert.ErrorIs(t, err, llm.ErrMissingCredential)
	assert.Empty(t, s.Conversations())
	assert.Zero(t, completer.calls)

	sess, s = newSession(t, completer, "secret")
	_, err = sess.Send(ctx, "   ")
	assert.ErrorIs(t, err, ErrEmptyMessage)
	assert.Empty(t, s.Conversations())
	assert.Zero(t, completer.calls)
}

func TestSendWhileBusy(t *testing.T) {
	completer := &fakeCompleter{
		reply:   "slow",
		block:   make(chan struct{}),
		entered: make(chan struct{}),
	}
	sess, s := newSession(t, completer, "secret")
	ctx := context.Background()

	done := make(chan error, 1)
	go func() {
		_, err := sess.Send(ctx, "first")
		done <- err
	}()

	<-completer.entered
	assert.Equal(t, StateSending, sess.State())

	_, err := sess.Send(ctx, "second")
	assert.ErrorIs(t, err, ErrBusy)

	close(completer.block)
	require.NoError(t, <-done)
	assert.Equal(t, StateIdle, sess.State())

	conv, ok := s.Current()
	require.True(t, ok)
	assert.Equal(t, []string{"first", "slow"}, contents(conv.Messages))
}

func TestSendReplyForDeletedConversation(t *testing.T) {
	completer := &fakeCompleter{
		reply:   "late",
		block:   make(chan struct{}),
		entered: make(chan struct{}),
	}
	sess, s := newSession(t, completer, "secret")
	ctx := context.Background()

	done := make(chan error, 1)
	go func() {
		_, err := sess.Send(ctx, "Hello")
		done <- err
	}()

	<-completer.entered
	s.Delete(ctx, s.CurrentID())
	close(completer.block)

	assert.ErrorIs(t, <-done, store.ErrConversationNotFound)
	assert.Empty(t, s.Conversations())
}

// cancelAwareCompleter fails with ctx.Err() if its context is canceled
// before release is closed.
type cancelAwareCompleter struct {
	entered chan struct{}
	release chan struct{}
}

func (c *cancelAwareCompleter) Complete(ctx context.Context, _ string, _ []models.Message, _ string) (string, error) {
	close(c.entered)
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case <-c.release:
		return "Hi there", nil
	}
}

func TestSendSurvivesCallerCancellation(t *testing.T) {
	backend, err := kv.NewSQLite(filepath.Join(t.TempDir(), "padchat.db"))
	require.NoError(t, err)
	defer func() { _ = backend.Close() }()

	s := store.New(backend, zap.NewNop())
	completer := &cancelAwareCompleter{entered: make(chan struct{}), release: make(chan struct{})}
	sess := NewSession(s, completer, staticCredential("secret"), zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	type outcome struct {
		res *Result
		err error
	}
	done := make(chan outcome, 1)
	go func() {
		res, err := sess.Send(ctx, "Hello")
		done <- outcome{res, err}
	}()

	<-completer.entered
	cancel()
	close(completer.release)

	got := <-done
	require.NoError(t, got.err)
	assert.False(t, got.res.Failed)
	assert.Equal(t, "Hi there", got.res.Reply.Content)
	assert.NoError(t, s.PersistError())

	reloaded := store.New(backend, zap.NewNop())
	require.NoError(t, reloaded.Load(context.Background()))
	conv, ok := reloaded.Get(got.res.ConversationID)
	require.True(t, ok)
	assert.Equal(t, []string{"Hello", "Hi there"}, contents(conv.Messages))
}

func contents(msgs []models.Message) []string {
	out := make([]string, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, m.Content)
	}
	return out
}
