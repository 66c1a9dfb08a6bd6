package channel

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/erauner12/propsync/internal/metrics"
)

// TokenSource supplies the bearer credential for the handshake
type TokenSource interface {
	BearerToken() (string, error)
}

// Settings tunes timeouts and reconnect pacing
type Settings struct {
	HandshakeTimeout time.Duration
	PingInterval     time.Duration
	ReadTimeout      time.Duration
	WriteTimeout     time.Duration
	InitialBackoff   time.Duration
	MaxBackoff       time.Duration
	// MaxElapsed bounds one run of failed reconnects; zero retries forever
	MaxElapsed time.Duration
}

// DefaultSettings returns the settings used by the CLI
func DefaultSettings() *Settings {
	return &Settings{
		HandshakeTimeout: 5 * time.Second,
		PingInterval:     20 * time.Second,
		ReadTimeout:      60 * time.Second,
		WriteTimeout:     5 * time.Second,
		InitialBackoff:   time.Second,
		MaxBackoff:       30 * time.Second,
	}
}

// Client owns one physical websocket and reconnects it until closed.
// Handlers registered with On survive reconnects.
type Client struct {
	url      string
	tokens   TokenSource
	settings *Settings
	dialer   *websocket.Dialer

	mu       sync.RWMutex
	state    State
	handlers map[string]map[uint64]Handler
	watchers map[uint64]func(State)
	nextID   uint64

	// serialises watcher callbacks so each watcher sees transitions in order
	notifyMu sync.Mutex

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
}

// Dial starts a client that connects to url in the background
func Dial(ctx context.Context, url string, tokens TokenSource, settings *Settings) *Client {
	if settings == nil {
		settings = DefaultSettings()
	}
	cancelCtx, cancel := context.WithCancel(ctx)
	c := &Client{
		url:      url,
		tokens:   tokens,
		settings: settings,
		dialer:   &websocket.Dialer{HandshakeTimeout: settings.HandshakeTimeout},
		handlers: make(map[string]map[uint64]Handler),
		watchers: make(map[uint64]func(State)),
		ctx:      cancelCtx,
		cancel:   cancel,
		done:     make(chan struct{}),
	}
	go c.run()
	return c
}

// State returns the current connection state
func (c *Client) State() State {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

// On registers a handler for one event name and returns its deregistration
func (c *Client) On(event string, h Handler) func() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.nextID++
	id := c.nextID
	if c.handlers[event] == nil {
		c.handlers[event] = make(map[uint64]Handler)
	}
	c.handlers[event][id] = h

	return func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		delete(c.handlers[event], id)
		if len(c.handlers[event]) == 0 {
			delete(c.handlers, event)
		}
	}
}

// WatchState calls fn with the current state and then with every transition
func (c *Client) WatchState(fn func(State)) func() {
	c.notifyMu.Lock()
	defer c.notifyMu.Unlock()

	c.mu.Lock()
	c.nextID++
	id := c.nextID
	c.watchers[id] = fn
	current := c.state
	c.mu.Unlock()

	fn(current)

	return func() {
		c.mu.Lock()
		delete(c.watchers, id)
		c.mu.Unlock()
	}
}

// Close stops reconnecting, closes the socket and waits for the loop to exit
func (c *Client) Close() {
	c.cancel()
	<-c.done
}

func (c *Client) setState(s State) {
	c.notifyMu.Lock()
	defer c.notifyMu.Unlock()

	c.mu.Lock()
	if c.state == s {
		c.mu.Unlock()
		return
	}
	c.state = s
	watchers := make([]func(State), 0, len(c.watchers))
	for _, fn := range c.watchers {
		watchers = append(watchers, fn)
	}
	c.mu.Unlock()

	metrics.ChannelConnected(s == Connected)
	log.Debug().Str("url", c.url).Str("state", s.String()).Msg("Push channel state changed")
	for _, fn := range watchers {
		fn(s)
	}
}

func (c *Client) run() {
	defer close(c.done)
	defer c.setState(Disconnected)

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = c.settings.InitialBackoff
	b.MaxInterval = c.settings.MaxBackoff
	b.MaxElapsedTime = c.settings.MaxElapsed
	b.Reset()

	everConnected := false
	for {
		if everConnected {
			c.setState(Reconnecting)
		} else {
			c.setState(Connecting)
		}

		ws, err := c.connect()
		if err != nil {
			if c.ctx.Err() != nil {
				return
			}
			wait := b.NextBackOff()
			if wait == backoff.Stop {
				log.Error().Err(err).Str("url", c.url).Msg("Push channel gave up reconnecting")
				return
			}
			log.Warn().Err(err).Str("url", c.url).Dur("retryIn", wait).Msg("Push channel connect failed")
			metrics.ChannelReconnect()
			select {
			case <-c.ctx.Done():
				return
			case <-time.After(wait):
				continue
			}
		}

		b.Reset()
		everConnected = true
		c.setState(Connected)
		log.Info().Str("url", c.url).Msg("Push channel connected")

		err = c.serve(ws)
		if c.ctx.Err() != nil {
			return
		}
		log.Warn().Err(err).Str("url", c.url).Msg("Push channel dropped")
		c.setState(Disconnected)
	}
}

// ErrRejected is returned when the server refuses the handshake credential
var ErrRejected = errors.New("push channel rejected credential")

func (c *Client) connect() (*websocket.Conn, error) {
	header := http.Header{}
	if c.tokens != nil {
		token, err := c.tokens.BearerToken()
		if err != nil {
			return nil, err
		}
		header.Set("Authorization", "Bearer "+token)
	}

	ws, resp, err := c.dialer.DialContext(c.ctx, c.url, header)
	if err != nil {
		if resp != nil && (resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden) {
			return nil, ErrRejected
		}
		return nil, err
	}
	return ws, nil
}

// serve pumps one connection until it fails or the client closes
func (c *Client) serve(ws *websocket.Conn) error {
	defer ws.Close()

	connCtx, connCancel := context.WithCancel(c.ctx)
	defer connCancel()

	// Unblock the reader when the client closes
	go func() {
		<-connCtx.Done()
		_ = ws.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(c.settings.WriteTimeout))
		ws.Close()
	}()

	go func() {
		ticker := time.NewTicker(c.settings.PingInterval)
		defer ticker.Stop()
		for {
			select {
			case <-connCtx.Done():
				return
			case <-ticker.C:
				if err := ws.WriteControl(websocket.PingMessage, nil, time.Now().Add(c.settings.WriteTimeout)); err != nil {
					connCancel()
					return
				}
			}
		}
	}()

	_ = ws.SetReadDeadline(time.Now().Add(c.settings.ReadTimeout))
	ws.SetPongHandler(func(string) error {
		return ws.SetReadDeadline(time.Now().Add(c.settings.ReadTimeout))
	})

	for {
		messageType, message, err := ws.ReadMessage()
		if err != nil {
			return err
		}
		_ = ws.SetReadDeadline(time.Now().Add(c.settings.ReadTimeout))
		if messageType != websocket.TextMessage {
			continue
		}

		var f Frame
		if err := json.Unmarshal(message, &f); err != nil || f.Event == "" {
			log.Warn().Err(err).Int("bytes", len(message)).Msg("Dropping undecodable push frame")
			continue
		}
		f.ReceivedAt = time.Now()
		c.dispatch(f)
	}
}

func (c *Client) dispatch(f Frame) {
	c.mu.RLock()
	hs := make([]Handler, 0, len(c.handlers[f.Event]))
	for _, h := range c.handlers[f.Event] {
		hs = append(hs, h)
	}
	c.mu.RUnlock()

	for _, h := range hs {
		h(f)
	}
}
