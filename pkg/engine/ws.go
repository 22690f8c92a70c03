package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

// ErrConnectionClosed is returned to calls that were in flight when the
// engine connection dropped.
var ErrConnectionClosed = errors.New("engine connection closed")

type rpcRequest struct {
	ID     string      `json:"id"`
	Method string      `json:"method"`
	Params interface{} `json:"params"`
}

type rpcResponse struct {
	ID     string          `json:"id"`
	Result json.RawMessage `json:"result,omitempty"`
	Error  *EngineError    `json:"error,omitempty"`
}

// WSClient multiplexes queries over one websocket connection. Every call
// gets a random id and a response channel; a read loop routes replies back.
// The connection is dialed lazily and redialed after it drops.
type WSClient struct {
	url     string
	timeout time.Duration
	dialer  *websocket.Dialer
	logger  zerolog.Logger

	// mu guards conn and closeCh
	mu      sync.Mutex
	conn    *websocket.Conn
	closeCh chan struct{}

	writeMu sync.Mutex

	pendingMu sync.Mutex
	pending   map[string]chan rpcResponse
}

func NewWSClient(url string, timeout time.Duration, logger zerolog.Logger) *WSClient {
	return &WSClient{
		url:     url,
		timeout: timeout,
		dialer: &websocket.Dialer{
			Proxy:            websocket.DefaultDialer.Proxy,
			HandshakeTimeout: websocket.DefaultDialer.HandshakeTimeout,
		},
		logger:  logger.With().Str("component", "engine").Str("transport", "ws").Logger(),
		pending: make(map[string]chan rpcResponse),
	}
}

// SendQuery sends the request and waits for the matching reply, the
// client timeout, or ctx cancellation, whichever comes first.
func (c *WSClient) SendQuery(ctx context.Context, req *QueryRequest) (*QueryResponse, error) {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	conn, closeCh, err := c.connect(ctx)
	if err != nil {
		return nil, err
	}

	id := uuid.NewString()
	responseChan := c.register(id)
	defer c.unregister(id)

	if err := c.write(conn, &rpcRequest{ID: id, Method: "query", Params: req}); err != nil {
		return nil, fmt.Errorf("failed to send query: %w", err)
	}

	select {
	case <-ctx.Done():
		c.logger.Debug().Str("id", id).Err(ctx.Err()).Msg("engine call abandoned")
		return nil, ctx.Err()
	case <-closeCh:
		// the reader may have delivered the reply just before the connection dropped
		select {
		case res := <-responseChan:
			return decodeResponse(res)
		default:
			return nil, ErrConnectionClosed
		}
	case res := <-responseChan:
		return decodeResponse(res)
	}
}

func decodeResponse(res rpcResponse) (*QueryResponse, error) {
	if res.Error != nil {
		return nil, res.Error
	}
	var out QueryResponse
	if err := json.Unmarshal(res.Result, &out); err != nil {
		return nil, fmt.Errorf("failed to parse engine response: %w", err)
	}
	return &out, nil
}

// Close closes the connection, failing any calls still waiting.
func (c *WSClient) Close() error {
	c.mu.Lock()
	conn := c.conn
	c.conn = nil
	c.mu.Unlock()

	if conn == nil {
		return nil
	}

	c.writeMu.Lock()
	_ = conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second))
	c.writeMu.Unlock()

	return conn.Close()
}

func (c *WSClient) connect(ctx context.Context) (*websocket.Conn, chan struct{}, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn != nil {
		return c.conn, c.closeCh, nil
	}

	conn, res, err := c.dialer.DialContext(ctx, c.url, nil)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect to engine: %w", err)
	}
	if res != nil && res.Body != nil {
		res.Body.Close()
	}

	c.conn = conn
	c.closeCh = make(chan struct{})
	go c.readLoop(conn, c.closeCh)

	c.logger.Info().Str("url", c.url).Msg("engine connection established")
	return conn, c.closeCh, nil
}

func (c *WSClient) write(conn *websocket.Conn, v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return conn.WriteMessage(websocket.TextMessage, data)
}

// readLoop owns closeCh and closes it when the connection is gone.
func (c *WSClient) readLoop(conn *websocket.Conn, closeCh chan struct{}) {
	defer close(closeCh)

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				c.logger.Warn().Err(err).Msg("engine connection lost")
			}
			c.mu.Lock()
			if c.conn == conn {
				c.conn = nil
			}
			c.mu.Unlock()
			conn.Close()
			return
		}
		c.handleResponse(data)
	}
}

func (c *WSClient) handleResponse(data []byte) {
	var res rpcResponse
	if err := json.Unmarshal(data, &res); err != nil {
		c.logger.Error().Err(err).Msg("malformed engine frame")
		return
	}
	if res.ID == "" {
		c.logger.Error().Interface("error", res.Error).Msg("engine frame without id")
		return
	}

	c.pendingMu.Lock()
	ch, ok := c.pending[res.ID]
	delete(c.pending, res.ID)
	c.pendingMu.Unlock()

	if !ok {
		// caller already gave up
		c.logger.Debug().Str("id", res.ID).Msg("unavailable response channel")
		return
	}
	ch <- res
}

func (c *WSClient) register(id string) chan rpcResponse {
	ch := make(chan rpcResponse, 1)
	c.pendingMu.Lock()
	c.pending[id] = ch
	c.pendingMu.Unlock()
	return ch
}

func (c *WSClient) unregister(id string) {
	c.pendingMu.Lock()
	delete(c.pending, id)
	c.pendingMu.Unlock()
}
