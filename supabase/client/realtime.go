package client

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/tidwall/gjson"

	"github.com/R3E-Network/storefront/pkg/logger"
)

// =============================================================================
// Realtime (Phoenix channels over websocket)
// =============================================================================

const heartbeatInterval = 30 * time.Second

// ChangeEvent is one row-level change delivered by postgres_changes.
type ChangeEvent struct {
	Type            string // INSERT, UPDATE, DELETE
	Schema          string
	Table           string
	Record          gjson.Result
	OldRecord       gjson.Result
	CommitTimestamp string
}

// ChangeHandler handles a change event. Handlers run on the reader goroutine in
// delivery order and must not block.
type ChangeHandler func(ChangeEvent)

// PostgresChangesConfig selects the rows a channel listens to.
type PostgresChangesConfig struct {
	Event  string // INSERT, UPDATE, DELETE or *
	Schema string
	Table  string
	Filter string // optional, e.g. "user_id=eq.42"
}

// RealtimeClient handles Supabase Realtime subscriptions over one websocket.
type RealtimeClient struct {
	mu       sync.Mutex
	url      string
	token    string
	conn     *websocket.Conn
	channels map[string]*Channel
	done     chan struct{}
	ref      int
	log      *logger.Logger
}

// Channel is a joined realtime topic.
type Channel struct {
	client  *RealtimeClient
	topic   string
	config  PostgresChangesConfig
	handler ChangeHandler
	joinRef string
	joined  bool
}

// Realtime returns a realtime client for this project. The websocket is opened by Connect.
func (c *Client) Realtime() *RealtimeClient {
	rc := NewRealtimeClient(c.baseURL, c.apiKey, c.log)
	if s := c.session.get(); s != nil {
		rc.SetAuth(s.AccessToken)
	}
	return rc
}

// NewRealtimeClient creates a realtime client for a project URL.
func NewRealtimeClient(projectURL, apiKey string, log *logger.Logger) *RealtimeClient {
	if log == nil {
		log = logger.NewDefault("supabase-realtime")
	}
	wsURL := projectURL
	switch {
	case strings.HasPrefix(wsURL, "https://"):
		wsURL = "wss://" + strings.TrimPrefix(wsURL, "https://")
	case strings.HasPrefix(wsURL, "http://"):
		wsURL = "ws://" + strings.TrimPrefix(wsURL, "http://")
	}
	wsURL = strings.TrimSuffix(wsURL, "/") + "/realtime/v1/websocket?" +
		url.Values{"apikey": {apiKey}, "vsn": {"1.0.0"}}.Encode()

	return &RealtimeClient{
		url:      wsURL,
		token:    apiKey,
		channels: make(map[string]*Channel),
		log:      log,
	}
}

// SetAuth sets the access token sent with channel joins so row-level security applies.
func (r *RealtimeClient) SetAuth(token string) {
	r.mu.Lock()
	r.token = token
	r.mu.Unlock()
}

// Connect establishes the websocket connection. It is a no-op when already connected.
func (r *RealtimeClient) Connect(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.conn != nil {
		return nil
	}

	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	conn, _, err := dialer.DialContext(ctx, r.url, nil)
	if err != nil {
		return fmt.Errorf("websocket dial: %w", err)
	}

	r.conn = conn
	r.done = make(chan struct{})
	go r.readLoop(conn, r.done)
	go r.heartbeat(r.done)
	return nil
}

// Connected reports whether the websocket is open.
func (r *RealtimeClient) Connected() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.conn != nil
}

// Disconnect leaves every channel and closes the websocket.
func (r *RealtimeClient) Disconnect() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.conn == nil {
		return nil
	}
	close(r.done)
	err := r.conn.WriteMessage(
		websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
	)
	r.conn.Close()
	r.conn = nil
	for topic := range r.channels {
		delete(r.channels, topic)
	}
	if err != nil {
		return fmt.Errorf("close message: %w", err)
	}
	return nil
}

// SubscribePostgresChanges joins topic "realtime:<name>" listening to the configured
// row changes and routes them to handler.
func (r *RealtimeClient) SubscribePostgresChanges(ctx context.Context, name string, cfg PostgresChangesConfig, handler ChangeHandler) (*Channel, error) {
	if cfg.Table == "" {
		return nil, errors.New("table is required")
	}
	if cfg.Schema == "" {
		cfg.Schema = "public"
	}
	if cfg.Event == "" {
		cfg.Event = "*"
	}
	if err := r.Connect(ctx); err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.conn == nil {
		return nil, errors.New("realtime connection closed")
	}
	topic := "realtime:" + name
	if _, exists := r.channels[topic]; exists {
		return nil, fmt.Errorf("channel %s already subscribed", topic)
	}

	change := map[string]any{"event": cfg.Event, "schema": cfg.Schema, "table": cfg.Table}
	if cfg.Filter != "" {
		change["filter"] = cfg.Filter
	}
	ref := r.nextRefLocked()
	msg := map[string]any{
		"topic": topic,
		"event": "phx_join",
		"payload": map[string]any{
			"config":       map[string]any{"postgres_changes": []any{change}},
			"access_token": r.token,
		},
		"ref":      ref,
		"join_ref": ref,
	}
	if err := r.conn.WriteJSON(msg); err != nil {
		return nil, fmt.Errorf("send join: %w", err)
	}

	ch := &Channel{client: r, topic: topic, config: cfg, handler: handler, joinRef: ref, joined: true}
	r.channels[topic] = ch
	return ch, nil
}

// Topic returns the channel topic.
func (c *Channel) Topic() string { return c.topic }

// Unsubscribe leaves the channel. Calling it more than once is safe.
func (c *Channel) Unsubscribe() error {
	r := c.client
	r.mu.Lock()
	defer r.mu.Unlock()

	if !c.joined {
		return nil
	}
	c.joined = false
	delete(r.channels, c.topic)

	if r.conn == nil {
		return nil
	}
	msg := map[string]any{
		"topic":    c.topic,
		"event":    "phx_leave",
		"payload":  map[string]any{},
		"ref":      r.nextRefLocked(),
		"join_ref": c.joinRef,
	}
	if err := r.conn.WriteJSON(msg); err != nil {
		return fmt.Errorf("send leave: %w", err)
	}
	return nil
}

func (r *RealtimeClient) nextRefLocked() string {
	r.ref++
	return strconv.Itoa(r.ref)
}

func (r *RealtimeClient) readLoop(conn *websocket.Conn, done chan struct{}) {
	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			select {
			case <-done:
			default:
				r.log.WithError(err).Warn("realtime connection lost")
				r.mu.Lock()
				if r.conn == conn {
					close(r.done)
					r.conn.Close()
					r.conn = nil
					for _, ch := range r.channels {
						ch.joined = false
					}
					r.channels = make(map[string]*Channel)
				}
				r.mu.Unlock()
			}
			return
		}
		r.dispatch(message)
	}
}

func (r *RealtimeClient) dispatch(message []byte) {
	if !gjson.ValidBytes(message) {
		return
	}
	msg := gjson.ParseBytes(message)
	topic := msg.Get("topic").String()
	event := msg.Get("event").String()

	var data gjson.Result
	switch event {
	case "postgres_changes":
		data = msg.Get("payload.data")
	case "INSERT", "UPDATE", "DELETE":
		data = msg.Get("payload")
	case "phx_reply":
		if status := msg.Get("payload.status").String(); status != "" && status != "ok" {
			r.log.WithField("topic", topic).WithField("response", msg.Get("payload.response").Raw).Warn("realtime join rejected")
		}
		return
	default:
		return
	}

	r.mu.Lock()
	ch := r.channels[topic]
	r.mu.Unlock()
	if ch == nil || ch.handler == nil {
		return
	}

	change := ChangeEvent{
		Type:            data.Get("type").String(),
		Schema:          data.Get("schema").String(),
		Table:           data.Get("table").String(),
		Record:          data.Get("record"),
		OldRecord:       data.Get("old_record"),
		CommitTimestamp: data.Get("commit_timestamp").String(),
	}
	if change.Type == "" {
		change.Type = event
	}
	if ch.config.Event != "*" && !strings.EqualFold(ch.config.Event, change.Type) {
		return
	}
	ch.handler(change)
}

func (r *RealtimeClient) heartbeat(done chan struct{}) {
	ticker := time.NewTicker(heartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			r.mu.Lock()
			if r.conn != nil {
				msg := map[string]any{
					"topic":   "phoenix",
					"event":   "heartbeat",
					"payload": map[string]any{},
					"ref":     r.nextRefLocked(),
				}
				if err := r.conn.WriteJSON(msg); err != nil {
					r.log.WithError(err).Debug("realtime heartbeat failed")
				}
			}
			r.mu.Unlock()
		}
	}
}
