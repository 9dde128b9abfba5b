package openai

import (
	"context"
	"fmt"
	"strings"

	"github.com/jinford/steuer-rag/internal/core/llm"
	"github.com/jinford/steuer-rag/internal/core/resilience"
	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"github.com/openai/openai-go/v3/shared"
)

// DefaultModel はデフォルトで使用するチャットモデル
const DefaultModel = "gpt-4o-mini"

// Client は OpenAI Chat Completions を使用した Completer 実装
// リトライは呼び出し側の Retrier に任せるため SDK 側の再試行は無効にする
type Client struct {
	client openai.Client
	model  string
}

// ClientOption は Client のオプション設定
type ClientOption func(*clientOptions)

type clientOptions struct {
	model   string
	baseURL string
}

// WithModel はモデル名を上書きする
func WithModel(model string) ClientOption {
	return func(o *clientOptions) {
		if model != "" {
			o.model = model
		}
	}
}

// WithBaseURL は API のエンドポイントを上書きする
func WithBaseURL(url string) ClientOption {
	return func(o *clientOptions) {
		o.baseURL = url
	}
}

// NewClient は新しい Client を作成する
func NewClient(apiKey string, opts ...ClientOption) (*Client, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("openai: %w", llm.ErrAPIKeyNotSet)
	}

	options := clientOptions{model: DefaultModel}
	for _, opt := range opts {
		opt(&options)
	}

	return &Client{
		client: openai.NewClient(requestOptions(apiKey, options.baseURL)...),
		model:  options.model,
	}, nil
}

func requestOptions(apiKey, baseURL string) []option.RequestOption {
	opts := []option.RequestOption{
		option.WithAPIKey(apiKey),
		option.WithMaxRetries(0),
	}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	return opts
}

// Complete はチャットモデルで応答を生成する
func (c *Client) Complete(ctx context.Context, req llm.CompletionRequest) (string, error) {
	messages := make([]openai.ChatCompletionMessageParamUnion, 0, 2)
	if req.System != "" {
		messages = append(messages, openai.SystemMessage(req.System))
	}
	messages = append(messages, openai.UserMessage(req.User))

	resp, err := c.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model:       shared.ChatModel(c.model),
		Messages:    messages,
		Temperature: openai.Float(req.Temperature),
	})
	if err != nil {
		return "", classify("chat completion", err)
	}

	if len(resp.Choices) == 0 {
		return "", resilience.Wrap(resilience.KindInvalidResponse, "chat completion", llm.ErrEmptyCompletion)
	}

	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}

// ModelName はモデル名を返す
func (c *Client) ModelName() string {
	return c.model
}

var _ llm.Completer = (*Client)(nil)
