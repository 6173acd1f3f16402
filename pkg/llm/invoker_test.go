package llm

import (
	"context"
	"errors"
	"io"
	"net/http"
	"testing"
	"time"

	"coi-notes-be/internal/pkg/logger"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// scriptedProvider replays one step per call.
type scriptedProvider struct {
	steps []step
	calls int
}

type step struct {
	fragments []string
	err       error
}

func (p *scriptedProvider) next() step {
	s := p.steps[len(p.steps)-1]
	if p.calls < len(p.steps) {
		s = p.steps[p.calls]
	}
	p.calls++
	return s
}

func (p *scriptedProvider) Generate(ctx context.Context, req *Request) (*Result, error) {
	s := p.next()
	if s.err != nil {
		return nil, s.err
	}
	text := ""
	for _, f := range s.fragments {
		text += f
	}
	return &Result{Text: text}, nil
}

func (p *scriptedProvider) GenerateStream(ctx context.Context, req *Request, onFragment FragmentHandler) (*Result, error) {
	s := p.next()
	text := ""
	for _, f := range s.fragments {
		if err := onFragment(f); err != nil {
			return nil, err
		}
		text += f
	}
	if s.err != nil {
		return nil, s.err
	}
	return &Result{Text: text}, nil
}

func newTestInvoker(p Provider) (*Invoker, *[]time.Duration) {
	inv := NewInvoker(p, DefaultRetryPolicy(), logger.NewNopLogger())
	var delays []time.Duration
	inv.sleep = func(ctx context.Context, d time.Duration) error {
		delays = append(delays, d)
		return ctx.Err()
	}
	return inv, &delays
}

func unavailable() error {
	return &StatusError{Status: http.StatusServiceUnavailable, Message: "overloaded"}
}

func TestInvoke_RecoversAfterTransientFailures(t *testing.T) {
	p := &scriptedProvider{steps: []step{
		{err: unavailable()},
		{err: io.ErrUnexpectedEOF},
		{fragments: []string{"ok"}},
	}}
	inv, delays := newTestInvoker(p)

	res, err := inv.Invoke(context.Background(), &Request{Input: "hi"})

	require.NoError(t, err)
	assert.Equal(t, "ok", res.Text)
	assert.Equal(t, 3, p.calls)
	assert.Equal(t, []time.Duration{300 * time.Millisecond, 600 * time.Millisecond}, *delays)
}

func TestInvoke_ExhaustsAfterAttemptBound(t *testing.T) {
	p := &scriptedProvider{steps: []step{{err: unavailable()}}}
	inv, _ := newTestInvoker(p)

	_, err := inv.Invoke(context.Background(), &Request{Input: "hi"})

	require.Error(t, err)
	assert.Equal(t, 3, p.calls)

	var upErr *Error
	require.True(t, errors.As(err, &upErr))
	assert.Equal(t, KindExhausted, upErr.Kind)
	assert.Equal(t, http.StatusServiceUnavailable, upErr.Status)
	assert.Equal(t, "overloaded", upErr.Message)
	assert.Equal(t, 3, upErr.Attempts)
}

func TestInvoke_RejectedIsNotRetried(t *testing.T) {
	p := &scriptedProvider{steps: []step{{err: &StatusError{Status: http.StatusBadRequest, Message: "bad schema"}}}}
	inv, delays := newTestInvoker(p)

	_, err := inv.Invoke(context.Background(), &Request{Input: "hi"})

	assert.True(t, IsKind(err, KindRejected))
	assert.False(t, IsKind(err, KindExhausted))
	assert.Equal(t, 1, p.calls)
	assert.Empty(t, *delays)
}

func TestInvoke_CancelledContextStopsRetrying(t *testing.T) {
	p := &scriptedProvider{steps: []step{{err: unavailable()}}}
	inv, _ := newTestInvoker(p)

	ctx, cancel := context.WithCancel(context.Background())
	inv.sleep = func(context.Context, time.Duration) error {
		cancel()
		return context.Canceled
	}

	_, err := inv.Invoke(ctx, &Request{Input: "hi"})

	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, p.calls)
}

func TestInvokeStreaming_RetriesBeforeFirstFragment(t *testing.T) {
	p := &scriptedProvider{steps: []step{
		{err: unavailable()},
		{fragments: []string{"a", "b", "c"}},
	}}
	inv, _ := newTestInvoker(p)

	var got []string
	res, err := inv.InvokeStreaming(context.Background(), &Request{Input: "hi"}, func(f string) error {
		got = append(got, f)
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "c"}, got)
	assert.Equal(t, "abc", res.Text)
	assert.Equal(t, 2, p.calls)
}

func TestInvokeStreaming_MidStreamFailureIsTerminal(t *testing.T) {
	p := &scriptedProvider{steps: []step{
		{fragments: []string{"partial"}, err: io.ErrUnexpectedEOF},
		{fragments: []string{"never"}},
	}}
	inv, delays := newTestInvoker(p)

	var got []string
	_, err := inv.InvokeStreaming(context.Background(), &Request{Input: "hi"}, func(f string) error {
		got = append(got, f)
		return nil
	})

	require.Error(t, err)
	assert.ErrorIs(t, err, ErrStreamInterrupted)
	assert.True(t, IsKind(err, KindTransient))
	assert.Equal(t, 1, p.calls)
	assert.Equal(t, []string{"partial"}, got)
	assert.Empty(t, *delays)
}

func TestInvokeStreaming_HandlerErrorIsReturnedAsIs(t *testing.T) {
	p := &scriptedProvider{steps: []step{{fragments: []string{"a", "b"}}}}
	inv, _ := newTestInvoker(p)

	clientGone := errors.New("client disconnected")
	_, err := inv.InvokeStreaming(context.Background(), &Request{Input: "hi"}, func(string) error {
		return clientGone
	})

	assert.ErrorIs(t, err, clientGone)
	assert.Equal(t, 1, p.calls)
}

func TestRetryPolicy_Delay(t *testing.T) {
	p := RetryPolicy{MaxAttempts: 5, BaseDelay: 100 * time.Millisecond}

	assert.Equal(t, 100*time.Millisecond, p.Delay(1))
	assert.Equal(t, 200*time.Millisecond, p.Delay(2))
	assert.Equal(t, 400*time.Millisecond, p.Delay(3))
	assert.Equal(t, 800*time.Millisecond, p.Delay(4))
}

func TestRequest_MessagesSkipsEmptyTurns(t *testing.T) {
	req := &Request{
		History: []Message{
			{Role: RoleUser, Content: "first"},
			{Role: RoleModel, Content: ""},
		},
		Input:   "now",
		Context: []string{"", "EXISTING NOTES: {}"},
	}

	assert.Equal(t, []Message{
		{Role: RoleUser, Content: "first"},
		{Role: RoleUser, Content: "now"},
		{Role: RoleUser, Content: "EXISTING NOTES: {}"},
	}, req.Messages())
}
