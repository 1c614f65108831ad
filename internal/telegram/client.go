package telegram

import (
	"context"
	"fmt"
	"io"
	"os"
	"sync/atomic"

	"github.com/gotd/td/telegram"
	"github.com/gotd/td/telegram/auth"
	"github.com/gotd/td/telegram/updates"
	"github.com/gotd/td/tg"
	"github.com/rs/zerolog"

	"github.com/lueurxax/telegram-channel-relay/internal/platform/config"
)

// Client is the MTProto user session the relay reads from and writes to.
type Client struct {
	cfg     *config.Config
	router  Router
	client  *telegram.Client
	gaps    *updates.Manager
	api     *tg.Client
	peers   *PeerCache
	handler *UpdateHandler
	sender  *Sender
	auth    *terminalAuth
	logger  *zerolog.Logger
	ready   atomic.Bool
}

// New builds the session. Updates are routed through router and handed to sink.
func New(cfg *config.Config, router Router, sink TaskSink, logger *zerolog.Logger) *Client {
	return newClient(cfg, router, sink, os.Stdin, os.Stdout, logger)
}

func newClient(cfg *config.Config, router Router, sink TaskSink, in io.Reader, out io.Writer, logger *zerolog.Logger) *Client {
	peers := NewPeerCache()
	handler := NewUpdateHandler(router, sink, peers, cfg.AlbumWait, logger)

	dispatcher := tg.NewUpdateDispatcher()
	handler.Register(&dispatcher)

	gaps := updates.New(updates.Config{Handler: dispatcher})

	client := telegram.NewClient(cfg.TGAPIID, cfg.TGAPIHash, telegram.Options{
		SessionStorage: &telegram.FileSessionStorage{
			Path: cfg.TGSessionPath,
		},
		UpdateHandler: gaps,
	})

	api := client.API()

	return &Client{
		cfg:     cfg,
		router:  router,
		client:  client,
		gaps:    gaps,
		api:     api,
		peers:   peers,
		handler: handler,
		sender:  NewSender(api, peers, cfg.SendRPS, cfg.SendBurst, logger),
		auth:    newTerminalAuth(cfg.TGPhone, cfg.TG2FAPassword, in, out, logger),
		logger:  logger,
	}
}

// Sender returns the delivery transport bound to this session.
func (c *Client) Sender() *Sender {
	return c.sender
}

// Ready reports whether the session is authenticated and receiving updates.
func (c *Client) Ready() bool {
	return c.ready.Load()
}

// CloseIntake flushes buffered albums into the sink and stops collecting new ones.
// The session stays connected so queued tasks can still be delivered.
func (c *Client) CloseIntake() {
	c.handler.Close()
}

// Run connects, signs in, loads dialogs and streams updates until ctx is done.
// started is called once the update stream is live.
func (c *Client) Run(ctx context.Context, started func(ctx context.Context)) error {
	c.handler.bind(ctx)
	defer c.handler.Close()

	return c.client.Run(ctx, func(ctx context.Context) error {
		if err := c.client.Auth().IfNecessary(ctx, auth.NewFlow(c.auth, auth.SendCodeOptions{})); err != nil {
			return fmt.Errorf("auth: %w", err)
		}

		self, err := c.client.Self(ctx)
		if err != nil {
			return fmt.Errorf("get self: %w", err)
		}

		c.logger.Info().Int64("user_id", self.ID).Msg("Successfully authenticated as user")

		dialogs, err := c.peers.LoadDialogs(ctx, c.api)
		if err != nil {
			c.logger.Warn().Err(err).Msg("failed to load dialogs, peers will be learned from updates")
		}

		c.logger.Info().Int("dialogs", dialogs).Int("peers", c.peers.Len()).Msg("Loaded dialogs")
		c.checkPeers()

		c.ready.Store(true)
		defer c.ready.Store(false)

		return c.gaps.Run(ctx, c.api, self.ID, updates.AuthOptions{
			OnStart: func(ctx context.Context) {
				c.logger.Info().Msg("Update stream started")

				if started != nil {
					started(ctx)
				}
			},
		})
	})
}

// checkPeers warns about chats the session cannot address yet.
func (c *Client) checkPeers() {
	for _, id := range c.router.Sources() {
		if _, err := c.peers.Resolve(id); err != nil {
			c.logger.Warn().Int64("source_id", id).Msg("source chat not in dialogs, is the account subscribed?")
		}
	}

	for _, id := range c.router.Targets() {
		if _, err := c.peers.Resolve(id); err != nil {
			c.logger.Warn().Int64("target_id", id).Msg("target chat not in dialogs, sends will fail until it is learned")
		}
	}
}
