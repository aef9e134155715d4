package websocket

import (
	"context"
	"errors"
	"log/slog"

	"github.com/tullo/livechat/internal/models"
	"github.com/tullo/livechat/internal/session"
)

// nextEvent returns the next deliverable event. Lag notices are logged and
// skipped; the stream carries on with the oldest retained event.
func nextEvent(ctx context.Context, sub *session.Subscription, id session.ID, log *slog.Logger) (models.Event, error) {
	for {
		evt, err := sub.Recv(ctx)
		var lagged *session.LaggedError
		if errors.As(err, &lagged) {
			log.Warn("live stream lagged", "session", id, "skipped", lagged.Skipped)
			continue
		}
		return evt, err
	}
}

// pump delivers events until the subscription closes, ctx is done or
// deliver fails. A closed subscription is a clean end of stream.
func pump(ctx context.Context, sub *session.Subscription, id session.ID, log *slog.Logger, deliver func(models.Event) error) error {
	for {
		evt, err := nextEvent(ctx, sub, id, log)
		if errors.Is(err, session.ErrClosed) {
			return nil
		}
		if err != nil {
			return err
		}
		if err := deliver(evt); err != nil {
			return err
		}
	}
}
