package agentapi

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/tidwall/gjson"
)

// APIError is a non-2xx response of the agent platform.
type APIError struct {
	Status  int
	Code    string
	Message string
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("agent platform error %d (%s): %s", e.Status, e.Code, e.Message)
	}
	return fmt.Sprintf("agent platform error %d: %s", e.Status, e.Message)
}

// parseAPIError reads the {"code", "message", "status"} error body. Bodies
// that are not JSON become the message verbatim.
func parseAPIError(status int, body []byte) *APIError {
	apiErr := &APIError{Status: status}

	if gjson.ValidBytes(body) {
		parsed := gjson.ParseBytes(body)
		apiErr.Code = parsed.Get("code").String()
		apiErr.Message = parsed.Get("message").String()
	}
	if apiErr.Message == "" {
		apiErr.Message = strings.TrimSpace(string(body))
	}
	if apiErr.Message == "" {
		apiErr.Message = http.StatusText(status)
	}
	return apiErr
}
