package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"coi-notes-be/internal/constant"
	"coi-notes-be/pkg/events"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type logEntry struct {
	level   string
	message string
	details map[string]interface{}
}

type recordingLogger struct {
	mu      sync.Mutex
	entries []logEntry
}

func (l *recordingLogger) add(level, message string, details map[string]interface{}) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = append(l.entries, logEntry{level: level, message: message, details: details})
}

func (l *recordingLogger) Debug(_, m string, d map[string]interface{}) { l.add("debug", m, d) }
func (l *recordingLogger) Info(_, m string, d map[string]interface{})  { l.add("info", m, d) }
func (l *recordingLogger) Warn(_, m string, d map[string]interface{})  { l.add("warn", m, d) }
func (l *recordingLogger) Error(_, m string, d map[string]interface{}) { l.add("error", m, d) }
func (l *recordingLogger) Sync() error                                 { return nil }

func (l *recordingLogger) levels() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]string, len(l.entries))
	for i, e := range l.entries {
		out[i] = e.level
	}
	return out
}

func TestConsumerService_LogsCompletedTurns(t *testing.T) {
	pubSub := gochannel.NewGoChannel(gochannel.Config{BlockPublishUntilSubscriberAck: true}, watermill.NopLogger{})
	defer pubSub.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	log := &recordingLogger{}
	require.NoError(t, NewConsumerService(pubSub, "chat-events", log).Consume(ctx))

	pub := events.NewInProcessPublisher(pubSub, "chat-events")
	require.NoError(t, pub.Publish(ctx, events.BaseEvent{
		Type:       constant.EventTypeChatTurnCompleted,
		Data:       map[string]interface{}{"project_id": "p1", "degraded": false},
		OccurredAt: time.Now(),
	}))
	require.NoError(t, pub.Publish(ctx, events.BaseEvent{
		Type:       constant.EventTypeChatTurnCompleted,
		Data:       map[string]interface{}{"project_id": "p2", "degraded": true},
		OccurredAt: time.Now(),
	}))
	require.NoError(t, pub.Publish(ctx, events.BaseEvent{Type: "SOMETHING_ELSE", OccurredAt: time.Now()}))
	require.NoError(t, pubSub.Publish("chat-events", message.NewMessage(watermill.NewUUID(), []byte("not json"))))

	require.Eventually(t, func() bool { return len(log.levels()) == 4 }, 5*time.Second, 10*time.Millisecond)
	assert.Equal(t, []string{"info", "warn", "debug", "error"}, log.levels())
}
