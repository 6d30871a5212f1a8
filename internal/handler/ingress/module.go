package ingress

import (
	"context"

	"github.com/ThreeDotsLabs/watermill/message"
	"go.uber.org/fx"

	"github.com/virtexvirtuoso/Virtuoso-sub009/config"
)

var Module = fx.Module("ingress-handler",
	fx.Provide(
		NewMessageHandler,
		NewWatermillRouter,
	),

	fx.Invoke(func(h *MessageHandler, router *message.Router, sub message.Subscriber, pub message.Publisher, cfg *config.Config) error {
		return h.RegisterHandlers(router, sub, pub, cfg)
	}),

	// [LIFECYCLE] the router starts after every domain module and stops before them
	fx.Invoke(func(lc fx.Lifecycle, router *message.Router, h *MessageHandler) {
		lc.Append(fx.Hook{
			OnStart: func(ctx context.Context) error {
				failed := make(chan error, 1)
				go func() {
					if err := router.Run(context.Background()); err != nil {
						h.logger.Error("INGRESS_ROUTER_STOPPED", "err", err)
						failed <- err
					}
				}()
				select {
				case <-router.Running():
					return nil
				case err := <-failed:
					return err
				case <-ctx.Done():
					return ctx.Err()
				}
			},
			OnStop: func(context.Context) error {
				return router.Close()
			},
		})
	}),
)
