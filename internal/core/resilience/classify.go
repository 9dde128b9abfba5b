package resilience

import (
	"context"
	"errors"
	"net"
	"net/http"
)

// KindForStatus は HTTP ステータスコードから種類を決める
func KindForStatus(status int) Kind {
	switch {
	case status == http.StatusTooManyRequests:
		return KindRateLimit
	case status == http.StatusRequestTimeout, status == http.StatusGatewayTimeout:
		return KindTimeout
	case status >= http.StatusInternalServerError:
		return KindAPIError
	default:
		return KindUnknown
	}
}

// KindForTransport は通信層のエラーを分類する
// 通信層のエラーでない場合は false を返す
func KindForTransport(err error) (Kind, bool) {
	if errors.Is(err, context.DeadlineExceeded) {
		return KindTimeout, true
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		if netErr.Timeout() {
			return KindTimeout, true
		}
		return KindConnection, true
	}

	return "", false
}
