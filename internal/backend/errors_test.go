package backend

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	openai "github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/assert"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Lookup
	}{
		{name: "nil", err: nil, want: Found},
		{
			name: "api 404",
			err:  &openai.APIError{HTTPStatusCode: http.StatusNotFound, Message: "No thread found"},
			want: NotFound,
		},
		{
			name: "wrapped api 404",
			err:  fmt.Errorf("retrieve: %w", &openai.APIError{HTTPStatusCode: http.StatusNotFound}),
			want: NotFound,
		},
		{
			name: "request 404 without error body",
			err:  &openai.RequestError{HTTPStatusCode: http.StatusNotFound, Err: errors.New("not found")},
			want: NotFound,
		},
		{
			name: "rate limited",
			err:  &openai.APIError{HTTPStatusCode: http.StatusTooManyRequests},
			want: TransientError,
		},
		{
			name: "network error",
			err:  errors.New("dial tcp: connection refused"),
			want: TransientError,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Classify(tt.err))
		})
	}
}

func TestLookup_String(t *testing.T) {
	assert.Equal(t, "found", Found.String())
	assert.Equal(t, "not_found", NotFound.String())
	assert.Equal(t, "transient_error", TransientError.String())
}

func TestFormatMessage(t *testing.T) {
	msg := openai.Message{
		Role: "user",
		Content: []openai.MessageContent{
			{Type: "text", Text: &openai.MessageText{Value: "first"}},
			{Type: "image_file"},
			{Type: "text", Text: &openai.MessageText{Value: "second"}},
		},
	}
	assert.Equal(t, "User: first\nsecond", FormatMessage(msg))
	assert.Equal(t, "", RoleLabel(""))
}
