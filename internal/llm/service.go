package llm

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/RichardoC/padchat/internal/models"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/googleai"
	"github.com/tmc/langchaingo/llms/openai"
	"github.com/tmc/langchaingo/schema"
	"go.uber.org/zap"
)

const (
	ProviderGoogleAI = "googleai"
	ProviderOpenAI   = "openai"

	DefaultGoogleAIModel = "gemini-1.5-pro"

	// Remote role vocabulary.
	RemoteRoleUser  = "user"
	RemoteRoleModel = "model"
)

// Client is the slice of llms.Model the gateway needs.
type Client interface {
	GenerateContent(ctx context.Context, messages []llms.MessageContent, options ...llms.CallOption) (*llms.ContentResponse, error)
}

// ClientFactory builds a client authenticated with the caller's credential.
type ClientFactory func(ctx context.Context, credential string) (Client, error)

type Config struct {
	Provider string
	Model    string
	BaseURL  string
}

// NewClientFactory returns the factory for cfg.Provider.
func NewClientFactory(cfg Config) (ClientFactory, error) {
	switch cfg.Provider {
	case ProviderGoogleAI, "":
		model := cfg.Model
		if model == "" {
			model = DefaultGoogleAIModel
		}
		return func(ctx context.Context, credential string) (Client, error) {
			return googleai.New(ctx,
				googleai.WithAPIKey(credential),
				googleai.WithDefaultModel(model),
			)
		}, nil
	case ProviderOpenAI:
		return func(_ context.Context, credential string) (Client, error) {
			opts := []openai.Option{openai.WithToken(credential)}
			if cfg.BaseURL != "" {
				opts = append(opts, openai.WithBaseURL(cfg.BaseURL))
			}
			if cfg.Model != "" {
				opts = append(opts, openai.WithModel(cfg.Model))
			}
			return openai.New(opts...)
		}, nil
	default:
		return nil, fmt.Errorf("unknown llm provider %q", cfg.Provider)
	}
}

// Gateway turns a message plus prior history into one remote completion.
// It holds no per-conversation state. The client for the most recent
// credential is reused; a different credential replaces it.
type Gateway struct {
	newClient ClientFactory
	logger    *zap.Logger

	mu         sync.Mutex
	client     Client
	credential string
}

func New(newClient ClientFactory, logger *zap.Logger) *Gateway {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Gateway{newClient: newClient, logger: logger}
}

// Complete sends history followed by message and returns the reply text as
// received. Every failure is an *Error carrying its Kind.
func (g *Gateway) Complete(ctx context.Context, message string, history []models.Message, credential string) (string, error) {
	if strings.TrimSpace(credential) == "" {
		return "", ErrMissingCredential
	}

	client, err := g.clientFor(ctx, credential)
	if err != nil {
		g.logger.Error("failed to create llm client", zap.Error(err))
		return "", Classify(err)
	}

	resp, err := client.GenerateContent(ctx, BuildContext(history, message))
	if err != nil {
		g.logger.Error("chat completion failed",
			zap.Error(err),
			zap.Int("historyLen", len(history)))
		return "", Classify(err)
	}
	if resp == nil || len(resp.Choices) == 0 {
		return "", Classify(fmt.Errorf("empty response from provider"))
	}

	return resp.Choices[0].Content, nil
}

func (g *Gateway) clientFor(ctx context.Context, credential string) (Client, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.client != nil && g.credential == credential {
		return g.client, nil
	}
	client, err := g.newClient(ctx, credential)
	if err != nil {
		return nil, err
	}
	g.closeClientLocked()
	g.client = client
	g.credential = credential
	return client, nil
}

// Close releases the cached client if it holds resources.
func (g *Gateway) Close() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.closeClientLocked()
}

func (g *Gateway) closeClientLocked() error {
	var err error
	if c, ok := g.client.(io.Closer); ok {
		err = c.Close()
	}
	g.client = nil
	g.credential = ""
	return err
}

// RemoteRole maps our role names onto the provider's.
func RemoteRole(role models.Role) string {
	if role == models.RoleAssistant {
		return RemoteRoleModel
	}
	return RemoteRoleUser
}

func chatMessageType(remoteRole string) schema.ChatMessageType {
	if remoteRole == RemoteRoleModel {
		return schema.ChatMessageTypeAI
	}
	return schema.ChatMessageTypeHuman
}

// BuildContext lays out history oldest first with message as the final user turn.
func BuildContext(history []models.Message, message string) []llms.MessageContent {
	out := make([]llms.MessageContent, 0, len(history)+1)
	for _, m := range history {
		out = append(out, llms.TextParts(chatMessageType(RemoteRole(m.Role)), m.Content))
	}
	return append(out, llms.TextParts(schema.ChatMessageTypeHuman, message))
}
