package tools

import (
	"encoding/base64"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const maxErrorBody = 512

// GeneratedImage is the full view of both generation tools: one embeddable image.
type GeneratedImage struct {
	Format string `json:"format"` // data URI
}

// ProviderError reports a non-2xx answer from an upstream tool provider.
type ProviderError struct {
	Tool       string
	StatusCode int
	Body       string
}

func (e *ProviderError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("%s: provider returned status %d", e.Tool, e.StatusCode)
	}
	return fmt.Sprintf("%s: provider returned status %d: %s", e.Tool, e.StatusCode, e.Body)
}

func newProviderError(tool string, resp *http.Response) *ProviderError {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	return &ProviderError{
		Tool:       tool,
		StatusCode: resp.StatusCode,
		Body:       strings.TrimSpace(string(body)),
	}
}

func defaultHTTPClient(client *http.Client) *http.Client {
	if client != nil {
		return client
	}
	return &http.Client{Timeout: 2 * time.Minute}
}

// EncodeDataURI wraps raw image bytes into a data URI.
func EncodeDataURI(contentType string, data []byte) string {
	if i := strings.IndexByte(contentType, ';'); i >= 0 {
		contentType = contentType[:i]
	}
	contentType = strings.TrimSpace(contentType)
	if !strings.HasPrefix(contentType, "image/") {
		contentType = "image/png"
	}
	return "data:" + contentType + ";base64," + base64.StdEncoding.EncodeToString(data)
}
