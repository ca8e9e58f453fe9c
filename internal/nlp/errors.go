package nlp

import "fmt"

// ConfigError indicates missing provider credentials. It is never
// retried; fixing it requires operator action.
type ConfigError struct {
	Service string
	Detail  string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("%s configuration error: %s", e.Service, e.Detail)
}

// ExternalServiceError indicates a failed call to an AI provider:
// a non-2xx HTTP response, a network-level failure, or an error field
// in a decoded response body. StatusCode is zero when no HTTP response
// was received.
type ExternalServiceError struct {
	Service    string
	Detail     string
	StatusCode int
	Endpoint   string
}

func (e *ExternalServiceError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("%s error (HTTP %d at %s): %s", e.Service, e.StatusCode, e.Endpoint, e.Detail)
	}
	return fmt.Sprintf("%s error (%s): %s", e.Service, e.Endpoint, e.Detail)
}
