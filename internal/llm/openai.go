package llm

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/loqalabs/loqa-converse/internal/conversation"
	"github.com/sashabaranov/go-openai"
)

type OpenAIConfig struct {
	APIKey  string
	BaseURL string
	Options Options
}

type openAIClient struct {
	client *openai.Client
	opts   Options
}

func NewOpenAIClient(cfg OpenAIConfig) (Client, error) {
	if cfg.APIKey == "" {
		return nil, ErrNoAPIKey
	}
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}
	return &openAIClient{client: openai.NewClientWithConfig(clientCfg), opts: cfg.Options}, nil
}

func (c *openAIClient) StreamChat(ctx context.Context, messages []conversation.Message, model string) (Stream, error) {
	req := openai.ChatCompletionRequest{
		Model:       model,
		Messages:    toOpenAIMessages(messages),
		MaxTokens:   c.opts.MaxTokens,
		Temperature: float32(c.opts.Temperature),
		Stream:      true,
	}
	stream, err := c.client.CreateChatCompletionStream(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("open chat stream: %w", err)
	}
	return &openAIStream{stream: stream}, nil
}

func toOpenAIMessages(messages []conversation.Message) []openai.ChatCompletionMessage {
	out := make([]openai.ChatCompletionMessage, 0, len(messages))
	for _, m := range messages {
		out = append(out, openai.ChatCompletionMessage{Role: string(m.Role), Content: m.Content})
	}
	return out
}

type openAIStream struct {
	stream *openai.ChatCompletionStream
}

func (s *openAIStream) Recv() (string, error) {
	for {
		resp, err := s.stream.Recv()
		if errors.Is(err, io.EOF) {
			return "", io.EOF
		}
		if err != nil {
			return "", fmt.Errorf("chat stream: %w", err)
		}
		if len(resp.Choices) == 0 {
			continue
		}
		return resp.Choices[0].Delta.Content, nil
	}
}

func (s *openAIStream) Close() error {
	s.stream.Close()
	return nil
}
