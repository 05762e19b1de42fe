// Package monitor publishes interpreter session events on a zmq PUB
// socket so external tools can observe a calculation run without being
// linked into the engine. Messages are JSON, framed with a plain topic
// part for subscriber filtering.
package monitor

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/go-zeromq/zmq4"
	"github.com/sirupsen/logrus"

	"recalc/address"
	"recalc/formula"
	"recalc/model"
)

var mlog = logrus.WithField("module", "monitor")

// Topic is the subscription topic every event is published under.
const Topic = "calc"

// Event is one serialized session event.
type Event struct {
	Type   string  `json:"type"`
	Sheet  int32   `json:"sheet,omitempty"`
	Row    int32   `json:"row,omitempty"`
	Column int32   `json:"col,omitempty"`
	Name   string  `json:"name,omitempty"`
	Value  float64 `json:"value,omitempty"`
	Text   string  `json:"text,omitempty"`
}

// Publisher owns the PUB socket. One publisher serves all worker
// handlers; sends are serialized internally.
type Publisher struct {
	sock zmq4.Socket
	mu   sync.Mutex
}

// NewPublisher binds a PUB socket to endpoint, e.g.
// "tcp://127.0.0.1:5557".
func NewPublisher(ctx context.Context, endpoint string) (*Publisher, error) {
	sock := zmq4.NewPub(ctx)
	if err := sock.Listen(endpoint); err != nil {
		return nil, err
	}
	return &Publisher{sock: sock}, nil
}

func (p *Publisher) Close() error {
	return p.sock.Close()
}

func (p *Publisher) publish(ev Event) {
	body, err := json.Marshal(ev)
	if err != nil {
		mlog.Warnf("marshal event: %v", err)
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.sock.Send(zmq4.NewMsgFrom([]byte(Topic), body)); err != nil {
		mlog.Warnf("publish event: %v", err)
	}
}

// HandlerFactory returns a session-handler factory for model.Config;
// each cell interpretation gets its own handler bound to this
// publisher.
func (p *Publisher) HandlerFactory() func() model.SessionHandler {
	return func() model.SessionHandler {
		return &handler{pub: p}
	}
}

// handler adapts one interpretation to published events.
type handler struct {
	pub *Publisher
	pos address.Address
}

func (h *handler) BeginCellInterpret(pos address.Address) {
	h.pos = pos
	h.pub.publish(Event{Type: "begin_cell_interpret", Sheet: pos.Sheet, Row: pos.Row, Column: pos.Column})
}

func (h *handler) EndCellInterpret() {
	h.pub.publish(Event{Type: "end_cell_interpret", Sheet: h.pos.Sheet, Row: h.pos.Row, Column: h.pos.Column})
}

func (h *handler) PushToken(op formula.OpCode) {
	h.pub.publish(Event{Type: "push_token", Text: op.String()})
}

func (h *handler) PushValue(v float64) {
	h.pub.publish(Event{Type: "push_value", Value: v})
}

func (h *handler) PushString(id uint32) {
	h.pub.publish(Event{Type: "push_string", Value: float64(id)})
}

func (h *handler) PushSingleRef(pos address.Address, sheetName string) {
	h.pub.publish(Event{Type: "push_single_ref", Sheet: pos.Sheet, Row: pos.Row, Column: pos.Column, Name: sheetName})
}

func (h *handler) PushRangeRef(rng address.Range, sheetName string) {
	h.pub.publish(Event{
		Type: "push_range_ref", Name: sheetName,
		Sheet: rng.First.Sheet, Row: rng.First.Row, Column: rng.First.Column,
		Text: rng.String(),
	})
}

func (h *handler) PushFunction(fn formula.FunctionOp) {
	h.pub.publish(Event{Type: "push_function", Name: fn.String()})
}

func (h *handler) SetResult(res formula.Result) {
	h.pub.publish(Event{Type: "set_result", Text: res.Display()})
}

func (h *handler) SetInvalidExpression(msg string) {
	h.pub.publish(Event{Type: "set_invalid_expression", Text: msg})
}

func (h *handler) SetFormulaError(msg string) {
	h.pub.publish(Event{Type: "set_formula_error", Text: msg})
}
