// Package proxy forwards gateway requests to the owning service.
package proxy

import (
	"bytes"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/eaglebank/ledger/shared/apperr"
	"github.com/eaglebank/ledger/shared/middleware"
	"github.com/gin-gonic/gin"
)

// Hop-by-hop headers are not forwarded in either direction.
var hopHeaders = map[string]bool{
	"Connection":        true,
	"Keep-Alive":        true,
	"Transfer-Encoding": true,
	"Upgrade":           true,
	"Te":                true,
	"Trailer":           true,
}

type Forwarder struct {
	client *http.Client
}

func NewForwarder(timeout time.Duration) *Forwarder {
	return &Forwarder{client: &http.Client{Timeout: timeout}}
}

// To returns a handler that replays the request against serviceURL with the
// same path and query string.
func (f *Forwarder) To(serviceURL string) gin.HandlerFunc {
	serviceURL = strings.TrimSuffix(serviceURL, "/")
	return func(c *gin.Context) {
		targetURL := serviceURL + c.Request.URL.Path
		if c.Request.URL.RawQuery != "" {
			targetURL += "?" + c.Request.URL.RawQuery
		}

		var body io.Reader
		if c.Request.Body != nil {
			bodyBytes, err := io.ReadAll(c.Request.Body)
			if err != nil {
				middleware.RespondWithAppError(c, apperr.New(apperr.CodeInvalidRequest, "failed to read request body"))
				return
			}
			body = bytes.NewReader(bodyBytes)
		}

		req, err := http.NewRequestWithContext(c.Request.Context(), c.Request.Method, targetURL, body)
		if err != nil {
			middleware.RespondWithAppError(c, err)
			return
		}
		copyHeaders(req.Header, c.Request.Header)
		req.Header.Set("X-Forwarded-For", c.ClientIP())

		resp, err := f.client.Do(req)
		if err != nil {
			slog.Error("proxy request failed", "component", "gateway", "target", targetURL, "err", err)
			c.JSON(http.StatusBadGateway, middleware.ErrorResponse{
				ErrorCode: "SERVICE_UNAVAILABLE",
				Message:   "Service unavailable",
			})
			return
		}
		defer resp.Body.Close()

		respBody, err := io.ReadAll(resp.Body)
		if err != nil {
			slog.Error("failed to read upstream response", "component", "gateway", "target", targetURL, "err", err)
			c.JSON(http.StatusBadGateway, middleware.ErrorResponse{
				ErrorCode: "SERVICE_UNAVAILABLE",
				Message:   "Service unavailable",
			})
			return
		}

		for key, values := range resp.Header {
			if hopHeaders[key] || key == "Content-Length" {
				continue
			}
			for _, value := range values {
				c.Writer.Header().Add(key, value)
			}
		}
		c.Data(resp.StatusCode, resp.Header.Get("Content-Type"), respBody)
	}
}

func copyHeaders(dst, src http.Header) {
	for key, values := range src {
		if hopHeaders[key] {
			continue
		}
		for _, value := range values {
			dst.Add(key, value)
		}
	}
}
