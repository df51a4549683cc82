package broadcast

import (
	"context"
	"net/url"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
)

const wsWriteTimeout = 5 * time.Second

type wsSink struct {
	conn *websocket.Conn
}

func (s *wsSink) Send(ctx context.Context, msg Message) error {
	ctx, cancel := context.WithTimeout(ctx, wsWriteTimeout)
	defer cancel()
	return wsjson.Write(ctx, s.conn, msg)
}

func (s *wsSink) Close() error {
	return s.conn.Close(websocket.StatusNormalClosure, "")
}

// acceptOptions turns CORS origins into WebSocket origin patterns. A "*" entry
// disables the origin check.
func acceptOptions(origins []string) *websocket.AcceptOptions {
	opts := &websocket.AcceptOptions{}
	for _, o := range origins {
		if o == "*" {
			opts.InsecureSkipVerify = true
			return opts
		}
		if u, err := url.Parse(o); err == nil && u.Host != "" {
			opts.OriginPatterns = append(opts.OriginPatterns, u.Host)
			continue
		}
		opts.OriginPatterns = append(opts.OriginPatterns, o)
	}
	return opts
}
