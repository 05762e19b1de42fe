package server

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"

	"recalc/document"
)

func dialTestServer(t *testing.T) (*Server, *websocket.Conn) {
	t.Helper()
	doc := document.New(100, 30)
	_, err := doc.AppendSheet("Sheet1")
	require.NoError(t, err)

	s := New(doc, 0)
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.HandleWebSocket)
	hts := httptest.NewServer(mux)
	t.Cleanup(hts.Close)

	url := "ws" + strings.TrimPrefix(hts.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return s, conn
}

func readUntil(t *testing.T, conn *websocket.Conn, cell string) UpdateResponse {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	require.NoError(t, conn.SetReadDeadline(deadline))
	for {
		var resp UpdateResponse
		require.NoError(t, conn.ReadJSON(&resp))
		if resp.Cell == cell {
			return resp
		}
	}
}

func TestUpdateAndBroadcast(t *testing.T) {
	_, conn := dialTestServer(t)

	require.NoError(t, conn.WriteJSON(UpdateRequest{Type: "update_cell", Cell: "A1", Value: "2"}))
	resp := readUntil(t, conn, "A1")
	require.Equal(t, "2", resp.Display)
	require.Empty(t, resp.Error)

	require.NoError(t, conn.WriteJSON(UpdateRequest{Type: "update_cell", Cell: "B1", Value: "=A1*21"}))
	resp = readUntil(t, conn, "B1")
	require.Equal(t, "42", resp.Display)
	require.Equal(t, "A1*21", resp.Formula)
}

func TestFormulaErrorReachesClient(t *testing.T) {
	_, conn := dialTestServer(t)

	require.NoError(t, conn.WriteJSON(UpdateRequest{Type: "update_cell", Cell: "A1", Value: "=1/0"}))
	resp := readUntil(t, conn, "A1")
	require.Equal(t, "#DIV/0!", resp.Error)
}

func TestStringAndBooleanClassification(t *testing.T) {
	s, conn := dialTestServer(t)

	require.NoError(t, conn.WriteJSON(UpdateRequest{Type: "update_cell", Cell: "A1", Value: "note"}))
	resp := readUntil(t, conn, "A1")
	require.Equal(t, "note", resp.Display)

	require.NoError(t, conn.WriteJSON(UpdateRequest{Type: "update_cell", Cell: "B2", Value: "true"}))
	resp = readUntil(t, conn, "B2")
	require.Equal(t, "true", resp.Display)

	pos, err := s.doc.ResolveCellName("B2")
	require.NoError(t, err)
	require.True(t, s.doc.Context().GetBoolean(pos))
}
