package apperror

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"coi-notes-be/pkg/llm"

	"github.com/stretchr/testify/assert"
)

func TestFromUpstream(t *testing.T) {
	tests := []struct {
		name          string
		err           error
		wantCode      Code
		wantRetryable bool
		wantStatus    int
	}{
		{
			name:          "exhausted",
			err:           &llm.Error{Kind: llm.KindExhausted, Status: 503, Message: "overloaded", Attempts: 3},
			wantCode:      CodeUpstreamExhausted,
			wantRetryable: true,
			wantStatus:    http.StatusServiceUnavailable,
		},
		{
			name:       "rejected",
			err:        &llm.Error{Kind: llm.KindRejected, Status: 400, Message: "bad"},
			wantCode:   CodeUpstreamRejected,
			wantStatus: http.StatusBadGateway,
		},
		{
			name:          "interrupted mid stream",
			err:           fmt.Errorf("stream: %w", &llm.Error{Kind: llm.KindTransient, Err: llm.ErrStreamInterrupted}),
			wantCode:      CodeUpstreamTransient,
			wantRetryable: true,
			wantStatus:    http.StatusServiceUnavailable,
		},
		{
			name:       "not an upstream error",
			err:        errors.New("boom"),
			wantCode:   CodeInternal,
			wantStatus: http.StatusInternalServerError,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := FromUpstream(tt.err)

			assert.Equal(t, tt.wantCode, got.Code)
			assert.Equal(t, tt.wantRetryable, got.Retryable)
			assert.Equal(t, tt.wantStatus, HTTPStatus(got.Code))
			assert.ErrorIs(t, got, tt.err)
		})
	}
}

func TestAs(t *testing.T) {
	notFound := NotFound("project not found")
	assert.Same(t, notFound, As(fmt.Errorf("load: %w", notFound)))

	assert.Equal(t, CodeUpstreamExhausted, As(&llm.Error{Kind: llm.KindExhausted}).Code)
	assert.Equal(t, CodeInternal, As(errors.New("x")).Code)
}
