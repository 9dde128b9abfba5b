package gemini

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jinford/steuer-rag/internal/core/llm"
	"github.com/jinford/steuer-rag/internal/core/resilience"
	"google.golang.org/genai"
)

const (
	// DefaultModel はデフォルトで使用する生成モデル
	DefaultModel = "gemini-2.0-flash"
	// DefaultEmbeddingModel はデフォルトで使用する Embedding モデル
	DefaultEmbeddingModel = "gemini-embedding-001"
	// DefaultEmbeddingDimension は出力ベクトルの次元
	DefaultEmbeddingDimension = 768
	// maxBatchSize は1リクエストあたりの最大入力数
	maxBatchSize = 100
)

func newGenAIClient(ctx context.Context, apiKey string) (*genai.Client, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("gemini: %w", llm.ErrAPIKeyNotSet)
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create genai client: %w", err)
	}
	return client, nil
}

// Client は Gemini API を使用した Completer 実装
type Client struct {
	client *genai.Client
	model  string
}

// NewClient は新しい Client を作成する。model が空の場合は DefaultModel を使う
func NewClient(ctx context.Context, apiKey, model string) (*Client, error) {
	client, err := newGenAIClient(ctx, apiKey)
	if err != nil {
		return nil, err
	}
	if model == "" {
		model = DefaultModel
	}
	return &Client{client: client, model: model}, nil
}

// Complete は Gemini で応答を生成する
func (c *Client) Complete(ctx context.Context, req llm.CompletionRequest) (string, error) {
	config := &genai.GenerateContentConfig{
		Temperature: genai.Ptr(float32(req.Temperature)),
	}
	if req.System != "" {
		config.SystemInstruction = &genai.Content{
			Parts: []*genai.Part{{Text: req.System}},
		}
	}

	resp, err := c.client.Models.GenerateContent(ctx,
		c.model,
		[]*genai.Content{genai.NewContentFromText(req.User, genai.RoleUser)},
		config,
	)
	if err != nil {
		return "", classify("generate content", err)
	}

	text := strings.TrimSpace(resp.Text())
	if text == "" && len(resp.Candidates) == 0 {
		return "", resilience.Wrap(resilience.KindInvalidResponse, "generate content", llm.ErrEmptyCompletion)
	}
	return text, nil
}

// ModelName はモデル名を返す
func (c *Client) ModelName() string {
	return c.model
}

// classify は Gemini API のエラーを種類付きエラーに変換する
func classify(op string, err error) error {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		return resilience.Wrap(resilience.KindForStatus(apiErr.Code), op, err)
	}

	if kind, ok := resilience.KindForTransport(err); ok {
		return resilience.Wrap(kind, op, err)
	}

	return resilience.Wrap(resilience.KindUnknown, op, err)
}

var _ llm.Completer = (*Client)(nil)
