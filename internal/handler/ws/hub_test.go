package ws

import (
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"CryptoCast/internal/domain/models"
	xlogger "CryptoCast/pkg/logger"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
)

func dial(t *testing.T, srv *httptest.Server, query string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/predictions" + query
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	return conn
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("condition not met in time")
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestHubBroadcastFiltersBySymbol(t *testing.T) {
	hub := NewHub(xlogger.Nop(), 8)
	e := echo.New()
	hub.RegisterRoutes(e)
	srv := httptest.NewServer(e)
	defer srv.Close()
	defer hub.Close()

	all := dial(t, srv, "")
	defer all.Close()
	eth := dial(t, srv, "?symbol=eth")
	defer eth.Close()
	waitFor(t, func() bool { return hub.Len() == 2 })

	hub.Broadcast(&models.PredictionEvent{ID: "1", Symbol: "BTC", PredictedPrice: 60000})
	hub.Broadcast(&models.PredictionEvent{ID: "2", Symbol: "ETH", PredictedPrice: 3000})

	read := func(conn *websocket.Conn) StreamMessage {
		t.Helper()
		_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
		_, data, err := conn.ReadMessage()
		if err != nil {
			t.Fatalf("read: %v", err)
		}
		var msg StreamMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			t.Fatalf("decode: %v", err)
		}
		return msg
	}

	if m := read(all); m.Type != "prediction" || m.Data.ID != "1" {
		t.Fatalf("unexpected first message %+v", m)
	}
	if m := read(all); m.Data.ID != "2" {
		t.Fatalf("unexpected second message %+v", m)
	}
	if m := read(eth); m.Data.ID != "2" || m.Data.Symbol != "ETH" {
		t.Fatalf("filtered subscriber got %+v", m)
	}
}

func TestHubDropsDisconnectedClients(t *testing.T) {
	hub := NewHub(xlogger.Nop(), 1)
	e := echo.New()
	hub.RegisterRoutes(e)
	srv := httptest.NewServer(e)
	defer srv.Close()

	conn := dial(t, srv, "")
	waitFor(t, func() bool { return hub.Len() == 1 })
	conn.Close()
	waitFor(t, func() bool { return hub.Len() == 0 })

	hub.Broadcast(&models.PredictionEvent{ID: "x", Symbol: "BTC"})
}
