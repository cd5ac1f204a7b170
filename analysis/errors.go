package analysis

import (
	"errors"
	"strings"
)

var (
	// ErrNoJSON means the model reply contained no JSON object
	ErrNoJSON = errors.New("could not find valid JSON structure in response")
	// ErrMalformedJSON means the extracted object did not parse
	ErrMalformedJSON = errors.New("malformed JSON in response")
	// ErrMissingFields means summary, checklist or transcription is absent
	ErrMissingFields = errors.New("missing required JSON fields")
	// ErrInvalidRequest wraps every validation failure of an analysis request
	ErrInvalidRequest = errors.New("invalid analysis request")
	// ErrMissingAPIKey is returned by generator providers when neither the
	// caller nor the configuration supplies a key
	ErrMissingAPIKey = errors.New("Please provide a valid Gemini API key either through the API key header or by setting GEMINI_API_KEY")
)

// ValidationError is a request problem reported to the user verbatim
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string { return e.Message }

func (e *ValidationError) Unwrap() error { return ErrInvalidRequest }

func invalid(msg string) error {
	return &ValidationError{Message: msg}
}

// IsParseError reports whether err came from reading the model reply
func IsParseError(err error) bool {
	return errors.Is(err, ErrNoJSON) || errors.Is(err, ErrMalformedJSON) || errors.Is(err, ErrMissingFields)
}

// User-facing messages for upstream failures
const (
	MsgKeyExpired       = "Your API key has expired. Please renew your API key from the Google AI Studio."
	MsgKeyInvalid       = "Invalid API key. Please check your API key and try again."
	MsgModelUnavailable = "The specified model is not available. Please check your API access permissions in the Google AI Studio and ensure you have access to the Gemini models."
	MsgAnalysisFailed   = "Failed to analyze class. Please check your API key and try again."
	MsgConnectionFailed = "Failed to connect to Gemini API. Please check your API key and try again."
)

// UserMessage turns an analysis error into the text shown to the user.
// Upstream errors carry no structure, so they are classified by message.
func UserMessage(err error) string {
	return userMessage(err, MsgAnalysisFailed)
}

// ConnectionMessage is UserMessage for the connection test
func ConnectionMessage(err error) string {
	return userMessage(err, MsgConnectionFailed)
}

func userMessage(err error, fallback string) string {
	if err == nil {
		return ""
	}
	var verr *ValidationError
	if errors.As(err, &verr) {
		return verr.Message
	}
	if errors.Is(err, ErrMissingAPIKey) {
		return ErrMissingAPIKey.Error()
	}
	if IsParseError(err) {
		return "Failed to parse AI analysis: " + err.Error()
	}

	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "api_key_invalid") || strings.Contains(msg, "api key expired"):
		return MsgKeyExpired
	case strings.Contains(msg, "api key"):
		return MsgKeyInvalid
	case strings.Contains(msg, "model not found") || strings.Contains(msg, "not supported"):
		return MsgModelUnavailable
	}
	return fallback
}
