package stream

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sync"
)

// Wire format: one JSON record per line. encoding/json escapes newlines
// inside strings, so '\n' only ever terminates a record.
const (
	ProtocolVersion = 1
	ProtocolName    = "coi-stream/1"
	ContentType     = "application/x-ndjson"
)

type RecordType string

const (
	RecordText  RecordType = "text"
	RecordPhase RecordType = "phase"
	RecordEvent RecordType = "event"
	RecordError RecordType = "error"
	RecordFinal RecordType = "final"
)

// Terminal reports whether no record may follow t.
func (t RecordType) Terminal() bool {
	return t == RecordFinal || t == RecordError
}

type Record struct {
	V       int             `json:"v"`
	Type    RecordType      `json:"type"`
	Text    string          `json:"text,omitempty"`
	Phase   Phase           `json:"phase,omitempty"`
	Name    string          `json:"name,omitempty"`
	Code    string          `json:"code,omitempty"`
	Message string          `json:"message,omitempty"`
	Data    json.RawMessage `json:"data,omitempty"`
}

var (
	ErrStreamClosed    = errors.New("stream already terminated")
	ErrPhaseRegression = errors.New("phase cannot move backwards")
)

type flusher interface {
	Flush() error
}

// Multiplexer serializes text, phase changes, events and exactly one
// terminal record onto a single writer. Safe for concurrent use.
type Multiplexer struct {
	mu     sync.Mutex
	w      io.Writer
	phase  Phase
	closed bool
	err    error
}

func NewMultiplexer(w io.Writer) *Multiplexer {
	return &Multiplexer{w: w}
}

// WriteText sends decoded response characters. Empty text is not sent.
func (m *Multiplexer) WriteText(text string) error {
	if text == "" {
		m.mu.Lock()
		defer m.mu.Unlock()
		return m.usable()
	}
	return m.write(Record{Type: RecordText, Text: text})
}

// SetPhase announces a phase. Repeating the current phase sends nothing.
func (m *Multiplexer) SetPhase(p Phase) error {
	if !p.Valid() {
		return fmt.Errorf("set phase: unknown phase %q", p)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.usable(); err != nil {
		return err
	}
	if p == m.phase {
		return nil
	}
	if p.Before(m.phase) {
		return fmt.Errorf("%w: %s -> %s", ErrPhaseRegression, m.phase, p)
	}
	if err := m.writeLocked(Record{Type: RecordPhase, Phase: p}); err != nil {
		return err
	}
	m.phase = p
	return nil
}

// Event sends out-of-band control data.
func (m *Multiplexer) Event(name string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal %s event: %w", name, err)
	}
	return m.write(Record{Type: RecordEvent, Name: name, Data: data})
}

// Final sends the terminal result and closes the stream.
func (m *Multiplexer) Final(payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal final result: %w", err)
	}
	return m.terminate(Record{Type: RecordFinal, Data: data})
}

// Fail sends a terminal error in place of the final result.
func (m *Multiplexer) Fail(code, message string) error {
	return m.terminate(Record{Type: RecordError, Code: code, Message: message})
}

func (m *Multiplexer) Phase() Phase {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.phase
}

func (m *Multiplexer) Closed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

func (m *Multiplexer) terminate(rec Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrStreamClosed
	}
	err := m.writeLocked(rec)
	m.closed = true
	if c, ok := m.w.(io.Closer); ok {
		if cerr := c.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}
	return err
}

func (m *Multiplexer) write(rec Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.usable(); err != nil {
		return err
	}
	return m.writeLocked(rec)
}

func (m *Multiplexer) usable() error {
	if m.closed {
		return ErrStreamClosed
	}
	return m.err
}

func (m *Multiplexer) writeLocked(rec Record) error {
	if m.err != nil {
		return m.err
	}
	rec.V = ProtocolVersion
	line, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal %s record: %w", rec.Type, err)
	}
	line = append(line, '\n')

	if _, err := m.w.Write(line); err != nil {
		m.err = fmt.Errorf("write %s record: %w", rec.Type, err)
		return m.err
	}
	if f, ok := m.w.(flusher); ok {
		if err := f.Flush(); err != nil {
			m.err = fmt.Errorf("flush %s record: %w", rec.Type, err)
			return m.err
		}
	}
	return nil
}
