package gateway

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"mm-agent-go/order"
)

func TestEventFeedDeliversParsedEvents(t *testing.T) {
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer c.Close()
		// 先发一条畸形消息，读循环必须跳过而不是中断
		c.WriteMessage(websocket.TextMessage, []byte(`{bad json`))
		c.WriteMessage(websocket.TextMessage, []byte(
			`{"type":"order_placed","cloid":"bid-50-1-1","orderid":7001,"side":"buy","price":"1.99","size":"10"}`))
		time.Sleep(200 * time.Millisecond)
	}))
	defer srv.Close()

	received := make(chan order.Event, 4)
	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	feed := NewEventFeed(url, func(ev order.Event) { received <- ev }, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go feed.Run(ctx)

	select {
	case ev := <-received:
		if ev.Type != order.EventPlaced || ev.Cloid != "bid-50-1-1" {
			t.Fatalf("event = %+v", ev)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("事件未送达")
	}
}
