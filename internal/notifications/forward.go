package notifications

import (
	"context"
	"log/slog"
	"strconv"

	"sendit/internal/logging"
	"sendit/internal/reconcile"
)

// FromNotice maps a controller notice to a notification. Notices without a
// notification (completions of single files, tickets, removals) report false.
func FromNotice(n reconcile.Notice) (Event, Payload, bool) {
	switch n.Kind {
	case reconcile.NoticeError:
		return EventTransferFailed, Payload{"queue": string(n.Queue), "name": n.Key, "reason": n.Message}, true
	case reconcile.NoticeAborted:
		return EventTransferCancelled, Payload{"queue": string(n.Queue), "name": n.Key, "reason": n.Message}, true
	case reconcile.NoticeAllComplete:
		return EventDownloadsComplete, Payload{"count": strconv.FormatUint(n.Size, 10)}, true
	case reconcile.NoticeCommandFailed:
		return EventCommandFailed, Payload{"command": n.Command, "error": n.Message, "name": n.Key}, true
	}
	return "", nil, false
}

// Forward publishes each notice from notices until the channel closes or ctx
// ends. Delivery failures are logged and never retried.
func Forward(ctx context.Context, svc Service, notices <-chan reconcile.Notice, logger *slog.Logger) {
	logger = logging.NewComponentLogger(logger, "notifications")
	for {
		select {
		case <-ctx.Done():
			return
		case n, ok := <-notices:
			if !ok {
				return
			}
			event, payload, ok := FromNotice(n)
			if !ok {
				continue
			}
			if err := svc.Publish(ctx, event, payload); err != nil {
				logging.WarnWithContext(logger, "notification failed", "notification_failed",
					logging.String("notification", string(event)),
					logging.Error(err),
					logging.String(logging.FieldImpact, "push notification not delivered"),
					logging.String(logging.FieldErrorHint, "check notifications.ntfy_topic"))
			}
		}
	}
}
