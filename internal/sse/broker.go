// Package sse streams board changes to browsers as Server-Sent Events.
//
// Every message carries an increasing id. A reconnecting client that sends
// Last-Event-ID is first replayed whatever it missed from a bounded history.
package sse

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"sync/atomic"
	"time"
)

// Card event kinds accepted by PublishCardEvent. Cards are never deleted,
// only archived.
const (
	CardCreated  = "created"
	CardUpdated  = "updated"
	CardMoved    = "moved"
	CardArchived = "archived"
)

// BoardUpdated is sent after board changes, at most once per throttle window.
const BoardUpdated = "board.updated"

var cardEventTypes = map[string]string{
	CardCreated:  "card.created",
	CardUpdated:  "card.updated",
	CardMoved:    "card.moved",
	CardArchived: "card.archived",
}

// Event is one message to broadcast.
type Event struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

type message struct {
	id  uint64
	raw []byte
}

type publishReq struct {
	event  Event
	change bool
}

type subscribeReq struct {
	ch     chan []byte
	after  uint64
	replay bool
}

// Option configures a Broker.
type Option func(*Broker)

// WithHistory keeps the last n messages for Last-Event-ID replay. Zero
// disables replay.
func WithHistory(n int) Option {
	return func(b *Broker) { b.history = max(n, 0) }
}

// WithKeepAlive makes ServeHTTP write a comment line every d so idle
// connections survive proxies. Zero disables it.
func WithKeepAlive(d time.Duration) Option {
	return func(b *Broker) { b.keepAlive = d }
}

// Broker fans events out to connected clients.
//
// A single goroutine owns the client set, the message sequence, the replay
// history and the board throttle. Public methods talk to it over channels.
type Broker struct {
	boardMin  time.Duration
	history   int
	keepAlive time.Duration

	subscribeCh   chan subscribeReq
	unsubscribeCh chan chan []byte
	publishCh     chan publishReq
	countReqCh    chan chan int

	stopCh  chan struct{}
	stopped chan struct{}
	closed  atomic.Bool
}

// NewBroker starts a broker. board.updated is sent at most once per
// boardThrottle.
func NewBroker(boardThrottle time.Duration, opts ...Option) *Broker {
	if boardThrottle <= 0 {
		boardThrottle = 2 * time.Second
	}
	b := &Broker{
		boardMin:      boardThrottle,
		history:       128,
		keepAlive:     30 * time.Second,
		subscribeCh:   make(chan subscribeReq),
		unsubscribeCh: make(chan chan []byte),
		publishCh:     make(chan publishReq, 256),
		countReqCh:    make(chan chan int),
		stopCh:        make(chan struct{}),
		stopped:       make(chan struct{}),
	}
	for _, opt := range opts {
		opt(b)
	}
	go b.run()
	return b
}

func (b *Broker) run() {
	defer close(b.stopped)

	clients := make(map[chan []byte]struct{})
	var (
		seq       uint64
		recent    []message
		lastBoard time.Time
	)

	deliver := func(ch chan []byte, raw []byte) {
		select {
		case ch <- raw:
		default:
			// Slow client; drop rather than stall everyone.
		}
	}
	send := func(ev Event) {
		payload, err := json.Marshal(ev.Data)
		if err != nil {
			return
		}
		seq++
		m := message{id: seq, raw: fmt.Appendf(nil, "id: %d\nevent: %s\ndata: %s\n\n", seq, ev.Type, payload)}
		if b.history > 0 {
			recent = append(recent, m)
			if len(recent) > b.history {
				recent = append([]message(nil), recent[len(recent)-b.history:]...)
			}
		}
		for ch := range clients {
			deliver(ch, m.raw)
		}
	}

	for {
		select {
		case <-b.stopCh:
			for ch := range clients {
				close(ch)
			}
			return

		case req := <-b.subscribeCh:
			clients[req.ch] = struct{}{}
			if req.replay {
				for _, m := range recent {
					if m.id > req.after {
						deliver(req.ch, m.raw)
					}
				}
			}

		case ch := <-b.unsubscribeCh:
			if _, ok := clients[ch]; ok {
				delete(clients, ch)
				close(ch)
			}

		case req := <-b.publishCh:
			send(req.event)
			if !req.change {
				continue
			}
			if now := time.Now(); now.Sub(lastBoard) >= b.boardMin {
				lastBoard = now
				send(Event{Type: BoardUpdated, Data: map[string]string{}})
			}

		case resp := <-b.countReqCh:
			resp <- len(clients)
		}
	}
}

// Close stops the broker and closes every client channel.
func (b *Broker) Close() {
	if b.closed.CompareAndSwap(false, true) {
		close(b.stopCh)
	}
	<-b.stopped
}

// Subscribe adds a client that receives messages published from now on.
func (b *Broker) Subscribe() chan []byte {
	return b.subscribe(subscribeReq{})
}

// SubscribeAfter adds a client and first replays the kept messages with an
// id greater than lastID.
func (b *Broker) SubscribeAfter(lastID uint64) chan []byte {
	return b.subscribe(subscribeReq{after: lastID, replay: true})
}

func (b *Broker) subscribe(req subscribeReq) chan []byte {
	req.ch = make(chan []byte, 64)
	if b.closed.Load() {
		close(req.ch)
		return req.ch
	}
	select {
	case b.subscribeCh <- req:
	case <-b.stopped:
		close(req.ch)
	}
	return req.ch
}

// Unsubscribe removes a client and closes its channel.
func (b *Broker) Unsubscribe(ch chan []byte) {
	if b.closed.Load() {
		return
	}
	select {
	case b.unsubscribeCh <- ch:
	case <-b.stopped:
	}
}

// ClientCount returns the number of connected clients.
func (b *Broker) ClientCount() int {
	if b.closed.Load() {
		return 0
	}
	resp := make(chan int, 1)
	select {
	case b.countReqCh <- resp:
	case <-b.stopped:
		return 0
	}
	select {
	case n := <-resp:
		return n
	case <-b.stopped:
		return 0
	}
}

// Publish broadcasts event as is.
func (b *Broker) Publish(event Event) {
	b.publish(publishReq{event: event})
}

// PublishChange broadcasts a board change of type typ about key, followed by
// the throttled board.updated event.
func (b *Broker) PublishChange(typ, key string) {
	b.publish(publishReq{event: Event{Type: typ, Data: map[string]string{"key": key}}, change: true})
}

// PublishCardEvent broadcasts card.<kind> for card id, followed by the
// throttled board.updated event. Unknown kinds are dropped.
func (b *Broker) PublishCardEvent(kind, id string) {
	typ, ok := cardEventTypes[kind]
	if !ok {
		return
	}
	b.publish(publishReq{event: Event{Type: typ, Data: map[string]string{"id": id}}, change: true})
}

func (b *Broker) publish(req publishReq) {
	if b.closed.Load() {
		return
	}
	select {
	case b.publishCh <- req:
	case <-b.stopped:
	}
}

// ServeHTTP streams events to one client (GET /api/events).
func (b *Broker) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	var ch chan []byte
	if lastID, err := strconv.ParseUint(r.Header.Get("Last-Event-ID"), 10, 64); err == nil {
		ch = b.SubscribeAfter(lastID)
	} else {
		ch = b.Subscribe()
	}
	defer b.Unsubscribe(ch)

	var ping <-chan time.Time
	if b.keepAlive > 0 {
		t := time.NewTicker(b.keepAlive)
		defer t.Stop()
		ping = t.C
	}

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ping:
			_, _ = w.Write([]byte(": keepalive\n\n"))
			flusher.Flush()
		case msg, ok := <-ch:
			if !ok {
				return
			}
			_, _ = w.Write(msg)
			flusher.Flush()
		}
	}
}
