package httpmiddleware

import (
	"bytes"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

// RoundTripperFunc is a function that implements http.RoundTripper
type RoundTripperFunc func(*http.Request) (*http.Response, error)

func (f RoundTripperFunc) RoundTrip(req *http.Request) (*http.Response, error) {
	return f(req)
}

// Logger creates a logging middleware for http.RoundTripper.
// maxBodySize controls body logging:
//   - 0: no body logging
//   - -1: log entire body
//   - >0: log first N bytes of body
func Logger(logger *slog.Logger, maxBodySize int) func(http.RoundTripper) http.RoundTripper {
	return func(next http.RoundTripper) http.RoundTripper {
		return RoundTripperFunc(func(req *http.Request) (*http.Response, error) {
			logRequest(logger, req, maxBodySize)

			start := time.Now()
			resp, err := next.RoundTrip(req)
			duration := time.Since(start)

			if err != nil {
				logger.Error("HTTP request failed",
					slog.String("method", req.Method),
					slog.String("url", req.URL.String()),
					slog.Duration("duration", duration),
					slog.Any("error", err))

				return resp, err
			}

			logResponse(logger, req, resp, duration, maxBodySize)

			return resp, nil
		})
	}
}

func logRequest(logger *slog.Logger, req *http.Request, maxBodySize int) {
	attrs := []slog.Attr{
		slog.String("method", req.Method),
		slog.String("url", req.URL.String()),
		slog.String("host", req.Host),
	}

	if maxBodySize != 0 && req.Body != nil && req.Body != http.NoBody {
		body, err := readBody(req.Body, maxBodySize)
		if err == nil && len(body) > 0 {
			// Restore body for the transport
			req.Body = io.NopCloser(bytes.NewBuffer(body))

			attrs = append(attrs, slog.String("body", redactBody(string(body))))
		}
	}

	logger.LogAttrs(req.Context(), slog.LevelDebug, "📤 HTTP Request", attrs...)
}

func logResponse(logger *slog.Logger, req *http.Request, resp *http.Response, duration time.Duration, maxBodySize int) {
	attrs := []slog.Attr{
		slog.String("method", req.Method),
		slog.String("url", req.URL.String()),
		slog.Int("status", resp.StatusCode),
		slog.Duration("duration", duration),
	}

	if maxBodySize != 0 && resp.Body != nil {
		body, err := readBody(resp.Body, maxBodySize)
		if err == nil && len(body) > 0 {
			// Restore body for caller
			resp.Body = io.NopCloser(bytes.NewBuffer(body))

			attrs = append(attrs, slog.String("body", string(body)))
		}
	}

	// Determine log level based on status code
	level := slog.LevelDebug
	if resp.StatusCode >= 400 {
		level = slog.LevelWarn
	}

	if resp.StatusCode >= 500 {
		level = slog.LevelError
	}

	logger.LogAttrs(req.Context(), level, "📥 HTTP Response", attrs...)
}

// readBody reads the body up to maxBodySize bytes
func readBody(body io.ReadCloser, maxBodySize int) ([]byte, error) {
	defer body.Close()

	if maxBodySize == -1 {
		return io.ReadAll(body)
	}

	buf := make([]byte, maxBodySize)
	n, err := io.ReadFull(body, buf)
	if err != nil && err != io.EOF && err != io.ErrUnexpectedEOF {
		return nil, fmt.Errorf("failed to read body: %w", err)
	}

	return buf[:n], nil
}

// redactBody masks credential fields in login request bodies before logging.
// The SmartAPI login payload carries the account password and TOTP code.
func redactBody(body string) string {
	for _, field := range []string{"password", "totp"} {
		marker := `"` + field + `":"`
		start := strings.Index(body, marker)
		if start < 0 {
			continue
		}
		start += len(marker)

		end := strings.Index(body[start:], `"`)
		if end < 0 {
			continue
		}

		body = body[:start] + "[REDACTED]" + body[start+end:]
	}

	return body
}
