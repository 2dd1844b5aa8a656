package supabase

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"strings"
	"syscall"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-holocrypt"
)

const (
	msgUnreachable = "Session store unreachable, check the configured URL"
	msgUnavailable = "Session store unavailable, please try again"
	msgNotFound    = "Session store endpoint not found, check the configured URL"
)

// classifyTransport maps a failed round trip to an error kind. Endpoints
// that do not exist are configuration problems; everything else may pass.
func classifyTransport(err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return holocrypt.NewTransientError(msgUnavailable, err)
	}

	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return holocrypt.NewConfigurationError(msgUnreachable, err)
	}

	if errors.Is(err, syscall.ECONNREFUSED) {
		return holocrypt.NewConfigurationError(msgUnreachable, err)
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return holocrypt.NewTransientError(msgUnavailable, err)
	}

	return holocrypt.NewTransientError(msgUnavailable, err)
}

type apiError struct {
	Error            string `json:"error"`
	ErrorCode        string `json:"error_code"`
	ErrorDescription string `json:"error_description"`
	Msg              string `json:"msg"`
	Message          string `json:"message"`
}

func (e apiError) text() string {
	for _, s := range []string{e.ErrorDescription, e.Msg, e.Message, e.Error} {
		if s = strings.TrimSpace(s); s != "" {
			return s
		}
	}
	return ""
}

// classifyStatus maps a non 2xx response to an error kind
func classifyStatus(status int, body []byte) error {
	var payload apiError
	_ = json.Unmarshal(body, &payload)
	message := payload.text()

	var err *goerrors.Error
	switch {
	case status == http.StatusTooManyRequests || status >= 500:
		if message == "" {
			message = msgUnavailable
		}
		err = holocrypt.NewTransientError(message, nil)
	case status == http.StatusNotFound:
		err = holocrypt.NewConfigurationError(msgNotFound, nil)
	default:
		if message == "" {
			message = http.StatusText(status)
		}
		err = holocrypt.NewAuthenticationError(message, nil)
	}

	meta := map[string]any{"status": status}
	if payload.ErrorCode != "" {
		meta["error_code"] = payload.ErrorCode
	}
	return err.WithMetadata(meta)
}
