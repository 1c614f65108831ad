package telegram

import (
	"context"
	"fmt"
	"sync"

	"github.com/gotd/td/tg"

	"github.com/lueurxax/telegram-channel-relay/internal/core/domain"
	"github.com/lueurxax/telegram-channel-relay/internal/core/errors"
)

const (
	dialogsPageSize = 100
	dialogsMaxPages = 50
)

// PeerCache maps marked chat ids to addressable input peers.
// Access hashes are learned from dialogs and from update entities.
type PeerCache struct {
	mu    sync.RWMutex
	peers map[int64]tg.InputPeerClass
}

func NewPeerCache() *PeerCache {
	return &PeerCache{peers: make(map[int64]tg.InputPeerClass)}
}

// Resolve returns the input peer of chatID.
func (c *PeerCache) Resolve(chatID int64) (tg.InputPeerClass, error) {
	c.mu.RLock()
	peer, ok := c.peers[chatID]
	c.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("chat %d: %w", chatID, errors.ErrPeerNotFound)
	}

	return peer, nil
}

// Len returns the number of known peers.
func (c *PeerCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return len(c.peers)
}

// LearnEntities records the chats and channels carried by an update.
func (c *PeerCache) LearnEntities(e tg.Entities) {
	if len(e.Channels) == 0 && len(e.Chats) == 0 {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	for _, ch := range e.Channels {
		c.learnChannelLocked(ch.ID, ch.AccessHash)
	}

	for _, chat := range e.Chats {
		c.peers[-chat.ID] = &tg.InputPeerChat{ChatID: chat.ID}
	}
}

// LearnChats records every chat object in a response.
func (c *PeerCache) LearnChats(chats []tg.ChatClass) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, chat := range chats {
		switch ch := chat.(type) {
		case *tg.Channel:
			if hash, ok := ch.GetAccessHash(); ok {
				c.learnChannelLocked(ch.ID, hash)
			}
		case *tg.ChannelForbidden:
			c.learnChannelLocked(ch.ID, ch.AccessHash)
		case *tg.Chat:
			c.peers[-ch.ID] = &tg.InputPeerChat{ChatID: ch.ID}
		}
	}
}

func (c *PeerCache) learnChannelLocked(channelID, accessHash int64) {
	if accessHash == 0 {
		if _, known := c.peers[domain.ChannelChatID(channelID)]; known {
			return
		}
	}

	c.peers[domain.ChannelChatID(channelID)] = &tg.InputPeerChannel{ChannelID: channelID, AccessHash: accessHash}
}

// DialogsAPI is the subset of the raw API used to walk dialogs.
type DialogsAPI interface {
	MessagesGetDialogs(ctx context.Context, request *tg.MessagesGetDialogsRequest) (tg.MessagesDialogsClass, error)
}

// LoadDialogs walks the account's dialogs and learns every chat in them.
// It returns the number of dialogs seen.
func (c *PeerCache) LoadDialogs(ctx context.Context, api DialogsAPI) (int, error) {
	req := &tg.MessagesGetDialogsRequest{
		OffsetPeer: &tg.InputPeerEmpty{},
		Limit:      dialogsPageSize,
	}

	total := 0

	for range dialogsMaxPages {
		resp, err := api.MessagesGetDialogs(ctx, req)
		if err != nil {
			return total, fmt.Errorf("get dialogs: %w", err)
		}

		modified, ok := resp.AsModified()
		if !ok {
			return total, nil
		}

		c.LearnChats(modified.GetChats())

		dialogs := modified.GetDialogs()
		total += len(dialogs)

		if _, isSlice := resp.(*tg.MessagesDialogsSlice); !isSlice || len(dialogs) < dialogsPageSize {
			return total, nil
		}

		next, ok := c.nextDialogsPage(dialogs, modified.GetMessages())
		if !ok {
			return total, nil
		}

		req.OffsetPeer, req.OffsetID, req.OffsetDate = next.peer, next.id, next.date
	}

	return total, nil
}

type dialogsOffset struct {
	peer tg.InputPeerClass
	id   int
	date int
}

func (c *PeerCache) nextDialogsPage(dialogs []tg.DialogClass, messages []tg.MessageClass) (dialogsOffset, bool) {
	last, ok := dialogs[len(dialogs)-1].(*tg.Dialog)
	if !ok {
		return dialogsOffset{}, false
	}

	chatID, ok := chatIDOf(last.Peer)
	if !ok {
		return dialogsOffset{}, false
	}

	peer, err := c.Resolve(chatID)
	if err != nil {
		peer = &tg.InputPeerEmpty{}
	}

	offset := dialogsOffset{peer: peer, id: last.TopMessage}

	for _, m := range messages {
		if msg, ok := m.(*tg.Message); ok && msg.ID == last.TopMessage {
			offset.date = msg.Date
			break
		}
	}

	return offset, true
}
