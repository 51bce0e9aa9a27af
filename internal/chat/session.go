// Package chat drives a single send: append the user's message, ask the
// gateway, append whatever came back.
package chat

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/RichardoC/padchat/internal/llm"
	"github.com/RichardoC/padchat/internal/models"
	"github.com/RichardoC/padchat/internal/store"
	"go.uber.org/zap"
)

type State int

const (
	StateIdle State = iota
	StateSending
)

func (s State) String() string {
	if s == StateSending {
		return "sending"
	}
	return "idle"
}

var (
	ErrEmptyMessage = errors.New("message is empty")
	ErrBusy         = errors.New("a message is already being sent")
)

// Completer is satisfied by *llm.Gateway.
type Completer interface {
	Complete(ctx context.Context, message string, history []models.Message, credential string) (string, error)
}

// CredentialSource yields the credential to use for the next send.
type CredentialSource interface {
	Credential(ctx context.Context) string
}

type Result struct {
	ConversationID string
	User           models.Message
	Reply          models.Message
	// Failed is set when Reply carries a gateway error text.
	Failed bool
	Err    error
}

// Session owns the application-wide loading flag. Only one send may be in
// flight at a time regardless of conversation.
type Session struct {
	store       *store.Store
	completer   Completer
	credentials CredentialSource
	logger      *zap.Logger

	mu      sync.Mutex
	sending bool
}

func NewSession(s *store.Store, completer Completer, credentials CredentialSource, logger *zap.Logger) *Session {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Session{
		store:       s,
		completer:   completer,
		credentials: credentials,
		logger:      logger,
	}
}

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sending {
		return StateSending
	}
	return StateIdle
}

// Send delivers text to the current conversation, creating one if none is
// selected. Rejections (empty text, missing credential, a send already in
// flight) happen before anything is appended. Once past them the send runs
// to completion even if ctx is canceled. Gateway failures are not
// returned as errors; they end up in the conversation as an assistant
// message and are reported through Result.Failed.
func (s *Session) Send(ctx context.Context, text string) (*Result, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, ErrEmptyMessage
	}
	credential := s.credentials.Credential(ctx)
	if strings.TrimSpace(credential) == "" {
		return nil, llm.ErrMissingCredential
	}
	if !s.begin() {
		return nil, ErrBusy
	}
	defer s.end()

	// no cancellation once issued
	ctx = context.WithoutCancel(ctx)

	convID := s.store.CurrentID()
	conv, ok := s.store.Get(convID)
	if !ok {
		conv = s.store.CreateConversation(ctx)
		convID = conv.ID
	}
	history := conv.Messages

	userMsg := models.NewMessage(models.RoleUser, text)
	if err := s.store.Append(ctx, convID, userMsg); err != nil {
		return nil, err
	}

	res := &Result{ConversationID: convID, User: userMsg}
	reply, err := s.completer.Complete(ctx, text, history, credential)
	if err != nil {
		s.logger.Warn("completion failed",
			zap.String("conversationID", convID),
			zap.Stringer("kind", llm.KindOf(err)),
			zap.Error(err))
		res.Failed = true
		res.Err = err
		res.Reply = models.NewMessage(models.RoleAssistant, llm.Classify(err).Message)
	} else {
		res.Reply = models.NewMessage(models.RoleAssistant, reply)
	}

	if err := s.store.Append(ctx, convID, res.Reply); err != nil {
		// conversation deleted while the request was in flight
		s.logger.Warn("dropping reply for vanished conversation",
			zap.String("conversationID", convID),
			zap.Error(err))
		return res, err
	}
	return res, nil
}

func (s *Session) begin() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sending {
		return false
	}
	s.sending = true
	return true
}

func (s *Session) end() {
	s.mu.Lock()
	s.sending = false
	s.mu.Unlock()
}
