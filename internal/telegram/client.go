// Package telegram adapts the gotd MTProto client to the connection
// contract the monitor core drives. It owns session storage, the update
// dispatcher, and the chat access-hash cache; everything above it only sees
// plain chat and message identifiers.
package telegram

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/gotd/td/session"
	"github.com/gotd/td/telegram"
	"github.com/gotd/td/tg"

	"github.com/dkhv/tg-monitor/internal/monitor"
)

// Client wraps one gotd connection lifetime behind the monitor.Client
// contract. Connect and Disconnect bracket the lifetime of the underlying
// Run loop.
type Client struct {
	inner *telegram.Client
	disp  tg.UpdateDispatcher

	mu      sync.Mutex
	peers   map[int64]tg.InputPeerClass
	kinds   map[int64]chatKind
	handler func(monitor.Message)

	runCancel context.CancelFunc
	runDone   chan struct{}
	runErr    error
}

type chatKind struct {
	channel bool
	group   bool
}

// New builds an unconnected client from the monitor configuration. It is
// the monitor.ClientFactory used in production wiring.
func New(cfg monitor.Config) (monitor.Client, error) {
	c := &Client{
		peers: make(map[int64]tg.InputPeerClass),
		kinds: make(map[int64]chatKind),
		disp:  tg.NewUpdateDispatcher(),
	}

	c.disp.OnNewMessage(func(ctx context.Context, e tg.Entities, u *tg.UpdateNewMessage) error {
		c.absorbEntities(e)
		c.dispatch(u.Message)
		return nil
	})
	c.disp.OnNewChannelMessage(func(ctx context.Context, e tg.Entities, u *tg.UpdateNewChannelMessage) error {
		c.absorbEntities(e)
		c.dispatch(u.Message)
		return nil
	})

	c.inner = telegram.NewClient(cfg.APIID, cfg.APIHash, telegram.Options{
		SessionStorage: &session.FileStorage{Path: cfg.SessionFile},
		UpdateHandler:  c.disp,
	})
	return c, nil
}

// Connect starts the gotd Run loop in the background and waits until the
// connection is usable or ctx expires.
func (c *Client) Connect(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(context.Background())
	ready := make(chan struct{})
	done := make(chan struct{})

	c.mu.Lock()
	c.runCancel = cancel
	c.runDone = done
	c.mu.Unlock()

	go func() {
		defer close(done)
		err := c.inner.Run(runCtx, func(ctx context.Context) error {
			close(ready)
			<-ctx.Done()
			return ctx.Err()
		})
		c.mu.Lock()
		c.runErr = err
		c.mu.Unlock()
	}()

	select {
	case <-ready:
		return nil
	case <-done:
		cancel()
		c.mu.Lock()
		err := c.runErr
		c.mu.Unlock()
		if err == nil {
			err = errors.New("connection closed before becoming ready")
		}
		return err
	case <-ctx.Done():
		cancel()
		return ctx.Err()
	}
}

// Disconnect stops the Run loop and waits for it to exit, bounded by ctx.
func (c *Client) Disconnect(ctx context.Context) error {
	c.mu.Lock()
	cancel := c.runCancel
	done := c.runDone
	c.runCancel = nil
	c.runDone = nil
	c.mu.Unlock()

	if cancel == nil {
		return nil
	}
	cancel()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Authorized reports whether the stored session carries valid credentials.
func (c *Client) Authorized(ctx context.Context) (bool, error) {
	status, err := c.inner.Auth().Status(ctx)
	if err != nil {
		return false, fmt.Errorf("auth status: %w", err)
	}
	return status.Authorized, nil
}

// OnNewMessage registers the live handler. Telegram may deliver updates
// concurrently, so fn must be safe for concurrent calls.
func (c *Client) OnNewMessage(fn func(monitor.Message)) {
	c.mu.Lock()
	c.handler = fn
	c.mu.Unlock()
}

// Dialogs lists the account's dialogs and refreshes the peer cache with the
// access hashes the other calls need.
func (c *Client) Dialogs(ctx context.Context) ([]monitor.Dialog, error) {
	res, err := c.inner.API().MessagesGetDialogs(ctx, &tg.MessagesGetDialogsRequest{
		OffsetPeer: &tg.InputPeerEmpty{},
		Limit:      500,
	})
	if err != nil {
		return nil, fmt.Errorf("get dialogs: %w", err)
	}

	var chats []tg.ChatClass
	switch d := res.(type) {
	case *tg.MessagesDialogs:
		chats = d.Chats
	case *tg.MessagesDialogsSlice:
		chats = d.Chats
	case *tg.MessagesDialogsNotModified:
		return nil, nil
	default:
		return nil, fmt.Errorf("get dialogs: unexpected result %T", res)
	}

	var out []monitor.Dialog
	c.mu.Lock()
	for _, raw := range chats {
		switch chat := raw.(type) {
		case *tg.Chat:
			c.peers[chat.ID] = &tg.InputPeerChat{ChatID: chat.ID}
			c.kinds[chat.ID] = chatKind{group: true}
			out = append(out, monitor.Dialog{ID: chat.ID, Title: chat.Title, Group: true})
		case *tg.Channel:
			c.peers[chat.ID] = &tg.InputPeerChannel{ChannelID: chat.ID, AccessHash: chat.AccessHash}
			kind := chatKind{channel: chat.Broadcast, group: chat.Megagroup}
			c.kinds[chat.ID] = kind
			out = append(out, monitor.Dialog{
				ID:      chat.ID,
				Title:   chat.Title,
				Channel: kind.channel,
				Group:   kind.group,
			})
		}
	}
	c.mu.Unlock()
	return out, nil
}

// History returns up to limit messages of chatID newer than minID, oldest
// first.
func (c *Client) History(ctx context.Context, chatID, minID int64, limit int) ([]monitor.Message, error) {
	peer, kind, err := c.peer(chatID)
	if err != nil {
		return nil, err
	}

	res, err := c.inner.API().MessagesGetHistory(ctx, &tg.MessagesGetHistoryRequest{
		Peer:  peer,
		MinID: int(minID),
		Limit: limit,
	})
	if err != nil {
		return nil, fmt.Errorf("get history for chat %d: %w", chatID, err)
	}

	var raw []tg.MessageClass
	switch h := res.(type) {
	case *tg.MessagesMessages:
		raw = h.Messages
	case *tg.MessagesMessagesSlice:
		raw = h.Messages
	case *tg.MessagesChannelMessages:
		raw = h.Messages
	case *tg.MessagesMessagesNotModified:
		return nil, nil
	default:
		return nil, fmt.Errorf("get history for chat %d: unexpected result %T", chatID, res)
	}

	// Telegram returns newest first; callers want oldest first.
	var out []monitor.Message
	for i := len(raw) - 1; i >= 0; i-- {
		msg, ok := raw[i].(*tg.Message)
		if !ok {
			continue
		}
		out = append(out, monitor.Message{
			ChatID:  chatID,
			ID:      int64(msg.ID),
			Date:    time.Unix(int64(msg.Date), 0).UTC(),
			Text:    msg.Message,
			Channel: kind.channel,
			Group:   kind.group,
		})
	}
	return out, nil
}

// Forward relays one message to toChatID, keeping the forwarded-from
// header.
func (c *Client) Forward(ctx context.Context, fromChatID, messageID, toChatID int64) error {
	from, _, err := c.peer(fromChatID)
	if err != nil {
		return err
	}
	to, _, err := c.peer(toChatID)
	if err != nil {
		return err
	}

	_, err = c.inner.API().MessagesForwardMessages(ctx, &tg.MessagesForwardMessagesRequest{
		FromPeer: from,
		ToPeer:   to,
		ID:       []int{int(messageID)},
		RandomID: []int64{rand.Int63()},
	})
	if err != nil {
		return fmt.Errorf("forward message %d from chat %d: %w", messageID, fromChatID, err)
	}
	return nil
}

// peer looks chatID up in the access-hash cache populated by Dialogs and
// the update stream.
func (c *Client) peer(chatID int64) (tg.InputPeerClass, chatKind, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	p, ok := c.peers[chatID]
	if !ok {
		return nil, chatKind{}, fmt.Errorf("chat %d is not in the peer cache, dialogs not loaded yet", chatID)
	}
	return p, c.kinds[chatID], nil
}

// absorbEntities merges the chats carried alongside an update into the peer
// cache, so messages from chats that joined after the last Dialogs call can
// still be attributed and forwarded.
func (c *Client) absorbEntities(e tg.Entities) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for id := range e.Chats {
		c.peers[id] = &tg.InputPeerChat{ChatID: id}
		c.kinds[id] = chatKind{group: true}
	}
	for id, ch := range e.Channels {
		c.peers[id] = &tg.InputPeerChannel{ChannelID: id, AccessHash: ch.AccessHash}
		c.kinds[id] = chatKind{channel: ch.Broadcast, group: ch.Megagroup}
	}
}

// dispatch converts one raw update into a monitor.Message and hands it to
// the installed handler.
func (c *Client) dispatch(raw tg.MessageClass) {
	msg, ok := raw.(*tg.Message)
	if ok && msg.Out {
		// Messages sent by the monitored account itself are not inbound
		// activity.
		ok = false
	}
	if !ok {
		return
	}

	var chatID int64
	// The peer type is enough to classify the chat when the update carried
	// no entity for it.
	var fallback chatKind
	switch peer := msg.PeerID.(type) {
	case *tg.PeerChat:
		chatID = peer.ChatID
		fallback = chatKind{group: true}
	case *tg.PeerChannel:
		chatID = peer.ChannelID
		fallback = chatKind{channel: true}
	default:
		return
	}

	c.mu.Lock()
	handler := c.handler
	kind, known := c.kinds[chatID]
	c.mu.Unlock()
	if !known {
		kind = fallback
	}
	if handler == nil {
		return
	}

	handler(monitor.Message{
		ChatID:  chatID,
		ID:      int64(msg.ID),
		Date:    time.Unix(int64(msg.Date), 0).UTC(),
		Text:    msg.Message,
		Channel: kind.channel,
		Group:   kind.group,
	})
}
