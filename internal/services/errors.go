package services

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/ollama/ollama/api"
	goopenai "github.com/sashabaranov/go-openai"
	"google.golang.org/genai"
)

// StatusError is returned by the HTTP based providers when the upstream API answers with a
// non-success status code.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status code: %d, body: %s", e.Code, e.Body)
}

// IsUnavailable reports whether err signals that the generation service is temporarily unavailable.
// Typed errors from every provider are checked for a 503 status first; as a last resort the error
// text is searched for the status code, since some transports only embed it in the message.
func IsUnavailable(err error) bool {
	if err == nil {
		return false
	}

	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		return statusErr.Code == http.StatusServiceUnavailable
	}

	var geminiErr genai.APIError
	if errors.As(err, &geminiErr) {
		return geminiErr.Code == http.StatusServiceUnavailable
	}

	var ollamaErr api.StatusError
	if errors.As(err, &ollamaErr) {
		return ollamaErr.StatusCode == http.StatusServiceUnavailable
	}

	var openAIErr *goopenai.APIError
	if errors.As(err, &openAIErr) {
		return openAIErr.HTTPStatusCode == http.StatusServiceUnavailable
	}

	var openAIReqErr *goopenai.RequestError
	if errors.As(err, &openAIReqErr) {
		return openAIReqErr.HTTPStatusCode == http.StatusServiceUnavailable
	}

	return strings.Contains(err.Error(), strconv.Itoa(http.StatusServiceUnavailable))
}
