// Package server exposes a workbook over a websocket so a browser grid
// can edit cells and watch recomputed values stream back. Every update
// recalculates the document and broadcasts the populated region of every
// sheet to all connected clients.
package server

import (
	"net/http"
	"strconv"
	"strings"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"recalc/address"
	"recalc/document"
	"recalc/model"
)

var slog = logrus.WithField("module", "server")

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // local tooling only
	},
}

// UpdateRequest is one client message.
type UpdateRequest struct {
	Type    string `json:"type"`
	Cell    string `json:"cell,omitempty"`
	Value   string `json:"value,omitempty"`
	Threads int    `json:"threads,omitempty"`
}

// UpdateResponse is one server message.
type UpdateResponse struct {
	Type    string `json:"type"`
	Cell    string `json:"cell,omitempty"`
	Display string `json:"display,omitempty"`
	Formula string `json:"formula,omitempty"`
	Error   string `json:"error,omitempty"`
}

// Server serves one document to any number of websocket clients.
type Server struct {
	doc     *document.Document
	threads int

	mu      sync.Mutex
	clients map[*websocket.Conn]bool
}

// New wraps doc; threads is the worker count passed to every
// recalculation.
func New(doc *document.Document, threads int) *Server {
	return &Server{
		doc:     doc,
		threads: threads,
		clients: make(map[*websocket.Conn]bool),
	}
}

// HandleWebSocket upgrades the connection, replays current sheet state
// and then applies client updates until the peer disconnects.
func (s *Server) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Warnf("upgrade failed: %v", err)
		return
	}

	s.mu.Lock()
	s.clients[conn] = true
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		delete(s.clients, conn)
		s.mu.Unlock()
		conn.Close()
	}()

	s.sendInitialState(conn)

	for {
		var req UpdateRequest
		if err := conn.ReadJSON(&req); err != nil {
			break
		}
		switch req.Type {
		case "update_cell":
			s.handleUpdate(req)
		case "calculate":
			s.doc.Calculate(req.Threads)
			s.broadcastSheet()
		default:
			slog.Warnf("unknown request type %q", req.Type)
		}
	}
}

// setCell classifies the raw value the way a grid entry box would: a
// leading "=" is a formula, then number, boolean, empty, text.
func (s *Server) setCell(pos address.Address, raw string) error {
	switch {
	case strings.HasPrefix(raw, "="):
		return s.doc.SetFormulaCell(pos, raw)
	case raw == "":
		return s.doc.EmptyCell(pos)
	case raw == "true" || raw == "false":
		return s.doc.SetBooleanCell(pos, raw == "true")
	default:
		if v, err := strconv.ParseFloat(raw, 64); err == nil {
			return s.doc.SetNumericCell(pos, v)
		}
		return s.doc.SetStringCell(pos, raw)
	}
}

func (s *Server) handleUpdate(req UpdateRequest) {
	pos, err := s.doc.ResolveCellName(req.Cell)
	if err != nil {
		slog.Warnf("update for bad cell %q: %v", req.Cell, err)
		return
	}
	if err := s.setCell(pos, req.Value); err != nil {
		slog.Warnf("set cell %s failed: %v", req.Cell, err)
		s.broadcast(UpdateResponse{Type: "cell_updated", Cell: req.Cell, Error: err.Error()})
		return
	}
	s.doc.Calculate(s.threads)
	s.broadcastSheet()
}

// responseFor renders one cell for the wire.
func (s *Server) responseFor(pos address.Address) UpdateResponse {
	acc := s.doc.GetCellAccess(pos)
	resp := UpdateResponse{
		Type:    "cell_updated",
		Cell:    s.cellName(pos),
		Display: s.doc.GetStringValue(pos),
		Formula: s.doc.PrintFormula(pos),
	}
	if kind := acc.ErrorValue(); kind != 0 {
		resp.Error = kind.String()
	}
	return resp
}

func (s *Server) cellName(pos address.Address) string {
	ref := address.NewRef(pos.Sheet, pos.Row, pos.Column)
	return s.doc.Resolver().GetName(ref, address.Address{}, pos.Sheet != 0)
}

// sheetResponses walks the populated region of every sheet.
func (s *Server) sheetResponses() []UpdateResponse {
	var out []UpdateResponse
	cxt := s.doc.Context()
	for sheet := int32(0); sheet < cxt.SheetCount(); sheet++ {
		rng, ok := cxt.GetDataRange(sheet)
		if !ok {
			continue
		}
		it := cxt.Iterate(sheet, model.IterRowMajor, rng)
		for pos, val, more := it.Next(); more; pos, val, more = it.Next() {
			if val.Type == model.CellEmpty {
				continue
			}
			out = append(out, s.responseFor(pos))
		}
	}
	return out
}

func (s *Server) sendInitialState(conn *websocket.Conn) {
	for _, resp := range s.sheetResponses() {
		if err := conn.WriteJSON(resp); err != nil {
			slog.Warnf("initial state write failed: %v", err)
			return
		}
	}
}

func (s *Server) broadcastSheet() {
	for _, resp := range s.sheetResponses() {
		s.broadcast(resp)
	}
}

func (s *Server) broadcast(resp UpdateResponse) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for client := range s.clients {
		if err := client.WriteJSON(resp); err != nil {
			slog.Warnf("broadcast write failed: %v", err)
			_ = client.Close()
			delete(s.clients, client)
		}
	}
}

// Start serves the websocket endpoint at /ws on addr.
func (s *Server) Start(addr string) error {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.HandleWebSocket)
	slog.Infof("starting document server at http://%s", addr)
	return http.ListenAndServe(addr, mux)
}
