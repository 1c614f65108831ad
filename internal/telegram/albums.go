package telegram

import (
	"sort"
	"sync"
	"time"

	"github.com/lueurxax/telegram-channel-relay/internal/core/domain"
)

// DefaultAlbumWait is how long the collector waits after the last item of a group.
const DefaultAlbumWait = 700 * time.Millisecond

type albumKey struct {
	chatID    int64
	groupedID int64
}

type pendingAlbum struct {
	messages map[int]domain.Message
	timer    *time.Timer
}

// AlbumCollector buffers grouped messages and emits each group once as an
// Album after it has been quiet for the configured wait.
type AlbumCollector struct {
	wait  time.Duration
	flush func(domain.Album)

	mu      sync.Mutex
	pending map[albumKey]*pendingAlbum
	closed  bool
}

// NewAlbumCollector calls flush from a timer goroutine for every completed album.
func NewAlbumCollector(wait time.Duration, flush func(domain.Album)) *AlbumCollector {
	if wait <= 0 {
		wait = DefaultAlbumWait
	}

	return &AlbumCollector{
		wait:    wait,
		flush:   flush,
		pending: make(map[albumKey]*pendingAlbum),
	}
}

// Add buffers msg. Messages without a grouped id are ignored; it reports whether msg was taken.
// A repeated id replaces the earlier copy.
func (c *AlbumCollector) Add(msg domain.Message) bool {
	if msg.GroupedID == 0 {
		return false
	}

	key := albumKey{chatID: msg.ChatID, groupedID: msg.GroupedID}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return false
	}

	p, ok := c.pending[key]
	if !ok {
		p = &pendingAlbum{messages: make(map[int]domain.Message)}
		p.timer = time.AfterFunc(c.wait, func() { c.fire(key, p) })
		c.pending[key] = p
	} else {
		p.timer.Reset(c.wait)
	}

	p.messages[msg.ID] = msg

	return true
}

// Pending returns the number of groups waiting for their timer.
func (c *AlbumCollector) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	return len(c.pending)
}

// Close stops all timers and flushes every buffered group synchronously.
// Later Adds are rejected.
func (c *AlbumCollector) Close() {
	c.mu.Lock()
	c.closed = true

	var albums []domain.Album

	for key, p := range c.pending {
		p.timer.Stop()
		albums = append(albums, buildAlbum(key, p))
		delete(c.pending, key)
	}
	c.mu.Unlock()

	for _, a := range albums {
		c.flush(a)
	}
}

func (c *AlbumCollector) fire(key albumKey, p *pendingAlbum) {
	c.mu.Lock()

	// The group may have been flushed by Close or replaced after a flush.
	if c.pending[key] != p {
		c.mu.Unlock()
		return
	}

	delete(c.pending, key)
	album := buildAlbum(key, p)
	c.mu.Unlock()

	c.flush(album)
}

func buildAlbum(key albumKey, p *pendingAlbum) domain.Album {
	msgs := make([]domain.Message, 0, len(p.messages))
	for _, m := range p.messages {
		msgs = append(msgs, m)
	}

	sort.Slice(msgs, func(i, j int) bool { return msgs[i].ID < msgs[j].ID })

	return domain.Album{GroupedID: key.groupedID, ChatID: key.chatID, Messages: msgs}
}
