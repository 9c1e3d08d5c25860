package backend

import (
	"errors"
	"net/http"

	openai "github.com/sashabaranov/go-openai"
)

// Lookup is the outcome of retrieving a stored remote object
type Lookup int

const (
	Found Lookup = iota
	NotFound
	TransientError
)

func (l Lookup) String() string {
	switch l {
	case Found:
		return "found"
	case NotFound:
		return "not_found"
	default:
		return "transient_error"
	}
}

// Classify maps the error of a retrieve call to a Lookup.
// Only an explicit 404 from the API counts as NotFound.
func Classify(err error) Lookup {
	if err == nil {
		return Found
	}
	if StatusCode(err) == http.StatusNotFound {
		return NotFound
	}
	return TransientError
}

// StatusCode extracts the HTTP status carried by an SDK error, or 0
func StatusCode(err error) int {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return apiErr.HTTPStatusCode
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return reqErr.HTTPStatusCode
	}
	return 0
}
