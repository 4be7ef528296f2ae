package transport

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"strings"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/ytget/dlsync/internal/model"
	"github.com/ytget/dlsync/internal/normalize"
)

// ErrStreamClosed is reported when the server closes the push stream
var ErrStreamClosed = errors.New("push stream closed")

// Push reads task events from the service's websocket endpoint. A successful
// dial is reported as an empty successful result; every JSON frame after
// that becomes one result. Dial and read errors end the stream with a
// failure result; the stream then stays silent until it is stopped and
// started again.
type Push struct {
	endpoint string
	header   http.Header
	handler  Handler
	opts     Options
	dialer   *websocket.Dialer

	mu      sync.Mutex
	running bool
	gen     uint64
	seq     uint64
	conn    *websocket.Conn
	cancel  context.CancelFunc
	last    Outcome
}

// NewPush creates an idle push stream for endpoint (ws:// or wss://)
func NewPush(endpoint string, handler Handler, opts Options) *Push {
	return &Push{
		endpoint: endpoint,
		header:   http.Header{},
		handler:  handler,
		opts:     opts.withDefaults(),
		dialer:   websocket.DefaultDialer,
	}
}

// WebSocketURL derives the push endpoint from the HTTP base URL of the service
func WebSocketURL(baseURL string) (string, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return "", fmt.Errorf("parse base url: %w", err)
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	case "http", "":
		u.Scheme = "ws"
	}
	u.Path = strings.TrimSuffix(u.Path, "/") + "/ws"
	u.RawQuery = ""
	return u.String(), nil
}

// SetHeader adds a header sent with the handshake
func (p *Push) SetHeader(key, value string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.header.Set(key, value)
}

// Mode returns the transport mode reported in connection events
func (p *Push) Mode() string {
	return model.ModeWebSocket
}

// Start dials the endpoint in the background. Calling Start on a running
// stream does nothing.
func (p *Push) Start() {
	p.mu.Lock()
	if p.running {
		p.mu.Unlock()
		return
	}
	p.running = true
	p.gen++
	gen := p.gen
	p.last = Outcome{}
	ctx, cancel := context.WithCancel(context.Background())
	p.cancel = cancel
	header := p.header.Clone()
	p.mu.Unlock()

	p.opts.Spawn(func() { p.run(ctx, gen, header) })
}

// Stop closes the connection. Frames read after Stop are dropped.
func (p *Push) Stop() {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return
	}
	p.running = false
	p.gen++
	conn := p.conn
	p.conn = nil
	cancel := p.cancel
	p.cancel = nil
	p.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if conn != nil {
		_ = conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		_ = conn.Close()
	}
}

// Running reports whether the stream is active
func (p *Push) Running() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.running
}

// LastOutcome returns the last result accepted since the latest Start
func (p *Push) LastOutcome() Outcome {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.last
}

func (p *Push) run(ctx context.Context, gen uint64, header http.Header) {
	dialCtx, cancel := context.WithTimeout(ctx, p.opts.Timeout)
	conn, resp, err := p.dialer.DialContext(dialCtx, p.endpoint, header)
	cancel()
	if err != nil {
		status := 0
		if resp != nil {
			status = resp.StatusCode
		}
		p.fail(gen, fmt.Errorf("ws dial %s (status=%d): %w", p.endpoint, status, err))
		return
	}

	p.mu.Lock()
	if !p.running || p.gen != gen {
		p.mu.Unlock()
		_ = conn.Close()
		return
	}
	p.conn = conn
	p.mu.Unlock()

	log.Printf("ws connected to %s", p.endpoint)
	p.deliver(gen, nil, nil)
	p.readLoop(gen, conn)
}

func (p *Push) readLoop(gen uint64, conn *websocket.Conn) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				err = ErrStreamClosed
			}
			p.fail(gen, fmt.Errorf("ws read: %w", err))
			return
		}

		payload, err := normalize.Decode(data)
		if err != nil {
			log.Printf("ws frame dropped: %v", err)
			continue
		}
		if !p.deliver(gen, payload, nil) {
			return
		}
	}
}

// fail reports err. The stream keeps its generation until Stop, so a
// failure is delivered exactly once per dial.
func (p *Push) fail(gen uint64, err error) {
	p.deliver(gen, nil, err)

	p.mu.Lock()
	if p.gen == gen && p.conn != nil {
		_ = p.conn.Close()
		p.conn = nil
	}
	p.mu.Unlock()
}

func (p *Push) deliver(gen uint64, payload any, err error) bool {
	p.mu.Lock()
	if !p.running || p.gen != gen {
		p.mu.Unlock()
		return false
	}
	p.seq++
	res := Result{Seq: p.seq, Payload: payload, Err: err}
	p.last = Outcome{Seq: res.Seq, At: p.opts.Clock.Now(), Err: err}
	p.mu.Unlock()

	if err != nil {
		log.Printf("push stream failed: %v", err)
	}
	p.opts.Executor.Post(func() {
		if !p.live(gen) {
			return
		}
		p.handler(res)
	})
	return true
}

func (p *Push) live(gen uint64) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.running && p.gen == gen
}
