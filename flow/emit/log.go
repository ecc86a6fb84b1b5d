package emit

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sync"
)

// LogEmitter writes events as log lines.
//
// Text mode (default):
//
//	[trial_pass] runID=01J... trial=3 node=diamond meta={"keys":4}
//
// JSON mode, one object per line:
//
//	{"runID":"01J...","trial":3,"node":"diamond","msg":"trial_pass","meta":{"keys":4}}
//
// Each event is formatted first and written with a single Write, so events
// from concurrent trials never interleave within a line.
type LogEmitter struct {
	mu       sync.Mutex
	out      io.Writer
	jsonMode bool
	buf      bytes.Buffer
}

type logLine struct {
	RunID string                 `json:"runID"`
	Trial int                    `json:"trial"`
	Node  string                 `json:"node"`
	Msg   string                 `json:"msg"`
	Meta  map[string]interface{} `json:"meta"`
}

// NewLogEmitter creates a LogEmitter writing to out (os.Stdout if nil).
func NewLogEmitter(out io.Writer, jsonMode bool) *LogEmitter {
	if out == nil {
		out = os.Stdout
	}
	return &LogEmitter{out: out, jsonMode: jsonMode}
}

// Emit writes one line for event. Write errors are dropped.
func (l *LogEmitter) Emit(event Event) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.buf.Reset()
	if l.jsonMode {
		l.formatJSON(event)
	} else {
		l.formatText(event)
	}
	_, _ = l.out.Write(l.buf.Bytes())
}

func (l *LogEmitter) formatJSON(event Event) {
	line := logLine{RunID: event.RunID, Trial: event.Trial, Node: event.Node, Msg: event.Msg, Meta: event.Meta}
	if err := json.NewEncoder(&l.buf).Encode(line); err != nil {
		l.buf.Reset()
		fmt.Fprintf(&l.buf, "{\"msg\":%q,\"error\":%q}\n", event.Msg, "unencodable meta: "+err.Error())
	}
}

func (l *LogEmitter) formatText(event Event) {
	fmt.Fprintf(&l.buf, "[%s] runID=%s trial=%d node=%s", event.Msg, event.RunID, event.Trial, event.Node)
	if len(event.Meta) > 0 {
		if meta, err := json.Marshal(event.Meta); err == nil {
			fmt.Fprintf(&l.buf, " meta=%s", meta)
		} else {
			fmt.Fprintf(&l.buf, " meta=%v", event.Meta)
		}
	}
	l.buf.WriteByte('\n')
}
