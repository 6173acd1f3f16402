package stream

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
)

var (
	ErrTrailingRecord   = errors.New("record after terminal record")
	ErrNoTerminalRecord = errors.New("stream ended without a terminal record")
)

// Decoder reads records written by a Multiplexer.
type Decoder struct {
	r *bufio.Reader
}

func NewDecoder(r io.Reader) *Decoder {
	return &Decoder{r: bufio.NewReader(r)}
}

// Next returns the next record, or io.EOF when the stream is exhausted.
func (d *Decoder) Next() (*Record, error) {
	for {
		line, err := d.r.ReadBytes('\n')
		if len(line) == 0 && err != nil {
			return nil, err
		}
		line = bytes.TrimSpace(line)
		if len(line) == 0 {
			if err != nil {
				return nil, err
			}
			continue
		}

		var rec Record
		if uerr := json.Unmarshal(line, &rec); uerr != nil {
			return nil, fmt.Errorf("decode record: %w", uerr)
		}
		if rec.V != ProtocolVersion {
			return nil, fmt.Errorf("unsupported protocol version %d", rec.V)
		}
		if rec.Type == RecordPhase {
			if _, perr := parsePhase(string(rec.Phase)); perr != nil {
				return nil, perr
			}
		}
		return &rec, nil
	}
}

// Transcript is a fully demultiplexed stream.
type Transcript struct {
	Text   string
	Phases []Phase
	Events []Record
	Final  json.RawMessage
	Err    *Record
}

// ReadAll consumes r until EOF. The partial transcript is returned alongside
// any protocol error.
func ReadAll(r io.Reader) (*Transcript, error) {
	dec := NewDecoder(r)
	t := &Transcript{}

	var (
		text       strings.Builder
		terminated bool
	)
	for {
		rec, err := dec.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			t.Text = text.String()
			return t, err
		}
		if terminated {
			t.Text = text.String()
			return t, fmt.Errorf("%w: %s", ErrTrailingRecord, rec.Type)
		}

		switch rec.Type {
		case RecordText:
			text.WriteString(rec.Text)
		case RecordPhase:
			t.Phases = append(t.Phases, rec.Phase)
		case RecordEvent:
			t.Events = append(t.Events, *rec)
		case RecordFinal:
			t.Final = rec.Data
		case RecordError:
			t.Err = rec
		default:
			t.Text = text.String()
			return t, fmt.Errorf("unknown record type %q", rec.Type)
		}
		terminated = rec.Type.Terminal()
	}

	t.Text = text.String()
	if !terminated {
		return t, ErrNoTerminalRecord
	}
	return t, nil
}

// Event returns the first event with the given name.
func (t *Transcript) Event(name string) (*Record, bool) {
	for i := range t.Events {
		if t.Events[i].Name == name {
			return &t.Events[i], true
		}
	}
	return nil, false
}
