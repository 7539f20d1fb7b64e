package gateway

import (
	"context"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"mm-agent-go/order"
)

// EventFeed 交易所订单事件流。断线后指数退避重连，
// 事件按到达顺序依次交给 handler（即 Registry.OnEvent），
// 不做并发分发——事件摄入路径必须串行。
type EventFeed struct {
	URL     string
	Dialer  *websocket.Dialer
	handler func(order.Event)
	log     *zap.Logger
}

func NewEventFeed(url string, handler func(order.Event), log *zap.Logger) *EventFeed {
	if log == nil {
		log = zap.NewNop()
	}
	return &EventFeed{
		URL:     url,
		Dialer:  websocket.DefaultDialer,
		handler: handler,
		log:     log,
	}
}

// Run 阻塞运行直到 ctx 取消。
func (f *EventFeed) Run(ctx context.Context) {
	backoff := time.Second
	const maxBackoff = 30 * time.Second

	for {
		if ctx.Err() != nil {
			return
		}

		conn, _, err := f.Dialer.DialContext(ctx, f.URL, nil)
		if err != nil {
			f.log.Warn("事件流连接失败，退避重连",
				zap.Error(err), zap.Duration("backoff", backoff))
			select {
			case <-ctx.Done():
				return
			case <-time.After(backoff):
			}
			if backoff < maxBackoff {
				backoff *= 2
			}
			continue
		}

		f.log.Info("订单事件流已连接", zap.String("url", f.URL))
		backoff = time.Second

		f.readLoop(ctx, conn)
		conn.Close()
	}
}

func (f *EventFeed) readLoop(ctx context.Context, conn *websocket.Conn) {
	// ctx 取消时强制关闭连接解除 ReadMessage 阻塞
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-done:
		}
	}()

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() == nil {
				f.log.Warn("事件流读取中断", zap.Error(err))
			}
			return
		}
		ev, err := ParseEvent(raw)
		if err != nil {
			// 畸形消息丢弃即可，绝不让它中断读循环
			f.log.Debug("丢弃无法解析的事件", zap.Error(err))
			continue
		}
		f.handler(ev)
	}
}
