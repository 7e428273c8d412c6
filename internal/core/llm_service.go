package core

import (
	"context"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	openai "github.com/sashabaranov/go-openai"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"gwi.com/wonderland-chat/internal/store"
)

const (
	DefaultOpenAIModel = openai.GPT3Dot5Turbo
	DefaultGeminiModel = "gemini-1.5-flash-latest"
)

// OpenAIBackend is the general backend backed by the OpenAI chat completions API.
type OpenAIBackend struct {
	client *openai.Client
	model  string
}

// NewOpenAIBackend builds a backend for apiKey. baseURL may be empty to use
// the public endpoint.
func NewOpenAIBackend(apiKey, baseURL, model string) *OpenAIBackend {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	if model == "" {
		model = DefaultOpenAIModel
	}
	return &OpenAIBackend{
		client: openai.NewClientWithConfig(cfg),
		model:  model,
	}
}

func (b *OpenAIBackend) Complete(ctx context.Context, turns []ChatTurn) (string, error) {
	msgs := make([]openai.ChatCompletionMessage, 0, len(turns))
	for _, t := range turns {
		role := openai.ChatMessageRoleUser
		if t.Role == store.RoleAssistant {
			role = openai.ChatMessageRoleAssistant
		}
		msgs = append(msgs, openai.ChatCompletionMessage{Role: role, Content: t.Content})
	}

	resp, err := b.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:    b.model,
		Messages: msgs,
	})
	if err != nil {
		log.Error().Err(err).Str("model", b.model).Msg("OpenAI chat completion failed")
		return "", classifyOpenAIError(err)
	}

	if len(resp.Choices) == 0 || strings.TrimSpace(resp.Choices[0].Message.Content) == "" {
		return "", generalStatusError(0, errors.New("empty completion"))
	}
	return resp.Choices[0].Message.Content, nil
}

func classifyOpenAIError(err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return generalStatusError(apiErr.HTTPStatusCode, err)
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return generalStatusError(reqErr.HTTPStatusCode, err)
	}
	return generalStatusError(0, err)
}

// GeminiBackend is the general backend backed by a Gemini chat session.
type GeminiBackend struct {
	client *genai.Client
	model  string
}

func NewGeminiBackend(ctx context.Context, apiKey, model string) (*GeminiBackend, error) {
	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, errors.Wrap(err, "failed to create GenAI client")
	}
	if model == "" {
		model = DefaultGeminiModel
	}
	return &GeminiBackend{client: client, model: model}, nil
}

func (b *GeminiBackend) Close() error {
	if b.client == nil {
		return nil
	}
	if err := b.client.Close(); err != nil {
		return errors.Wrap(err, "failed to close GenAI client")
	}
	log.Debug().Msg("GenAI client closed.")
	return nil
}

func (b *GeminiBackend) Complete(ctx context.Context, turns []ChatTurn) (string, error) {
	if len(turns) == 0 {
		return "", generalStatusError(0, errors.New("prompt history is empty"))
	}
	last := turns[len(turns)-1]
	if last.Role != store.RoleUser {
		return "", generalStatusError(0, errors.New("last turn is not from the user"))
	}

	chatSession := b.client.GenerativeModel(b.model).StartChat()
	chatSession.History = geminiHistory(turns[:len(turns)-1])

	resp, err := chatSession.SendMessage(ctx, genai.Text(last.Content))
	if err != nil {
		log.Error().Err(err).Str("model", b.model).Msg("Gemini SendMessage failed")
		return "", classifyGeminiError(err)
	}

	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return "", generalStatusError(0, errors.New("gemini returned no candidates"))
	}
	var responseText strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if txt, ok := part.(genai.Text); ok {
			responseText.WriteString(string(txt))
		} else {
			log.Debug().Msgf("Gemini response part was not text: %T", part)
		}
	}
	if strings.TrimSpace(responseText.String()) == "" {
		return "", generalStatusError(0, errors.New("gemini returned an empty reply"))
	}
	return responseText.String(), nil
}

// geminiHistory maps chat turns onto Gemini's "user"/"model" roles.
func geminiHistory(turns []ChatTurn) []*genai.Content {
	history := make([]*genai.Content, 0, len(turns))
	for _, t := range turns {
		role := "user"
		if t.Role == store.RoleAssistant {
			role = "model"
		}
		history = append(history, &genai.Content{
			Role:  role,
			Parts: []genai.Part{genai.Text(t.Content)},
		})
	}
	return history
}

type httpCoder interface {
	HTTPCode() int
}

func classifyGeminiError(err error) error {
	var gerr *googleapi.Error
	if errors.As(err, &gerr) {
		return generalStatusError(gerr.Code, err)
	}
	var coded httpCoder
	if errors.As(err, &coded) && coded.HTTPCode() > 0 {
		return generalStatusError(coded.HTTPCode(), err)
	}
	return generalStatusError(0, err)
}
