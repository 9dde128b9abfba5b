package openai

import (
	"errors"

	"github.com/jinford/steuer-rag/internal/core/resilience"
	"github.com/openai/openai-go/v3"
)

// classify は OpenAI API のエラーを種類付きエラーに変換する
func classify(op string, err error) error {
	if err == nil {
		return nil
	}

	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		return resilience.Wrap(resilience.KindForStatus(apiErr.StatusCode), op, err)
	}

	if kind, ok := resilience.KindForTransport(err); ok {
		return resilience.Wrap(kind, op, err)
	}

	return resilience.Wrap(resilience.KindUnknown, op, err)
}
