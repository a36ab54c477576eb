package server

import (
	"bytes"
	"context"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/panjf2000/gnet/v2"
	"github.com/panjf2000/gnet/v2/pkg/logging"
	"go.uber.org/zap"

	"github.com/affective-thought-kernel/internal/jsonx"
	"github.com/affective-thought-kernel/internal/thought"
)

// EventSource hands out event subscriptions.
type EventSource interface {
	Subscribe() (<-chan thought.Event, func())
}

// FeedConfig configures the raw TCP feed.
type FeedConfig struct {
	Addr         string `yaml:"addr"`
	Multicore    bool   `yaml:"multicore"`
	IncludeChars bool   `yaml:"include_chars"`
}

// Feed serves scheduler events to plain TCP clients as newline-delimited
// JSON on gnet's event loops. Clients may send the lines "activity", which
// marks the user present, and "ping", answered with a pong line.
type Feed struct {
	gnet.BuiltinEventEngine

	config   FeedConfig
	source   EventSource
	activity func()
	logger   *zap.Logger

	mu     sync.RWMutex
	conns  map[gnet.Conn]struct{}
	eng    gnet.Engine
	booted chan struct{}

	active atomic.Int64
}

// NewFeed creates a feed. activity is called for every "activity" line.
func NewFeed(cfg FeedConfig, source EventSource, activity func(), logger *zap.Logger) *Feed {
	if logger == nil {
		logger = zap.NewNop()
	}
	if activity == nil {
		activity = func() {}
	}
	return &Feed{
		config:   cfg,
		source:   source,
		activity: activity,
		logger:   logger.Named("feed"),
		conns:    make(map[gnet.Conn]struct{}),
		booted:   make(chan struct{}),
	}
}

// Run serves until ctx is cancelled.
func (f *Feed) Run(ctx context.Context) error {
	events, release := f.source.Subscribe()
	defer release()

	stopped := make(chan struct{})
	defer close(stopped)

	go f.pump(events, stopped)
	go func() {
		select {
		case <-ctx.Done():
		case <-stopped:
			return
		}
		select {
		case <-f.booted:
			if err := f.eng.Stop(context.Background()); err != nil {
				f.logger.Warn("Failed to stop feed engine", zap.Error(err))
			}
		case <-stopped:
		}
	}()

	return gnet.Run(f, "tcp://"+f.config.Addr,
		gnet.WithMulticore(f.config.Multicore),
		gnet.WithLogger(f.logger.Sugar()),
		gnet.WithLogLevel(logging.ErrorLevel),
	)
}

// Ready is closed once the feed accepts connections.
func (f *Feed) Ready() <-chan struct{} {
	return f.booted
}

// Connections is the number of connected clients.
func (f *Feed) Connections() int64 {
	return f.active.Load()
}

func (f *Feed) OnBoot(eng gnet.Engine) gnet.Action {
	f.eng = eng
	close(f.booted)
	f.logger.Info("Thought feed listening", zap.String("addr", f.config.Addr))
	return gnet.None
}

func (f *Feed) OnOpen(c gnet.Conn) ([]byte, gnet.Action) {
	f.mu.Lock()
	f.conns[c] = struct{}{}
	f.mu.Unlock()
	f.active.Add(1)
	f.logger.Debug("Feed client connected", zap.String("remote", c.RemoteAddr().String()))
	return nil, gnet.None
}

func (f *Feed) OnClose(c gnet.Conn, err error) gnet.Action {
	f.mu.Lock()
	delete(f.conns, c)
	f.mu.Unlock()
	f.active.Add(-1)
	f.logger.Debug("Feed client disconnected", zap.Error(err))
	return gnet.None
}

func (f *Feed) OnTraffic(c gnet.Conn) gnet.Action {
	data, err := c.Next(-1)
	if err != nil {
		return gnet.Close
	}
	pending, _ := c.Context().([]byte)
	pending = append(pending, data...)

	for {
		i := bytes.IndexByte(pending, '\n')
		if i < 0 {
			break
		}
		line := strings.TrimSpace(string(pending[:i]))
		pending = pending[i+1:]

		switch line {
		case "activity":
			f.activity()
		case "ping":
			if _, err := c.Write([]byte("{\"type\":\"pong\"}\n")); err != nil {
				return gnet.Close
			}
		}
	}
	if len(pending) > maxClientMessage {
		f.logger.Debug("Feed client line too long, closing")
		return gnet.Close
	}
	c.SetContext(pending)
	return gnet.None
}

// pump fans events out to every connection until the source closes or Run
// returns.
func (f *Feed) pump(events <-chan thought.Event, stopped <-chan struct{}) {
	for {
		select {
		case <-stopped:
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			if ev.Type == thought.EventChar && !f.config.IncludeChars {
				continue
			}
			if ev.Error != "" {
				ev.Error = SanitizeString(ev.Error)
			}
			data, err := jsonx.Marshal(ev)
			if err != nil {
				f.logger.Warn("Failed to encode event", zap.Error(err))
				continue
			}
			f.broadcast(append(data, '\n'))
		}
	}
}

func (f *Feed) broadcast(line []byte) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	for c := range f.conns {
		if err := c.AsyncWrite(line, nil); err != nil {
			f.logger.Debug("Feed write failed", zap.Error(err))
		}
	}
}
