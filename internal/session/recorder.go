package session

import (
	"context"
	"log/slog"

	"sendit/internal/history"
	"sendit/internal/logging"
	"sendit/internal/reconcile"
)

// outcomeFor maps a terminal notice to a history outcome.
func outcomeFor(kind reconcile.NoticeKind) (history.Outcome, bool) {
	switch kind {
	case reconcile.NoticeCompleted:
		return history.OutcomeCompleted, true
	case reconcile.NoticeError:
		return history.OutcomeFailed, true
	case reconcile.NoticeAborted:
		return history.OutcomeAborted, true
	case reconcile.NoticeRemoved:
		return history.OutcomeRemoved, true
	}
	return "", false
}

// recordHistory writes terminal notices and issued tickets to store until
// notices closes.
func recordHistory(ctx context.Context, store *history.Store, notices <-chan reconcile.Notice, logger *slog.Logger) {
	// Notices buffered before shutdown are still written.
	ctx = context.WithoutCancel(ctx)
	for n := range notices {
		if n.Kind == reconcile.NoticeTicket {
			if err := store.RecordTicket(ctx, n.Message, int(n.Size)); err != nil {
				historyWriteFailed(logger, err)
			}
			continue
		}
		outcome, ok := outcomeFor(n.Kind)
		if !ok {
			continue
		}
		entry := history.Entry{
			Direction:  string(n.Queue),
			Key:        n.Key,
			Path:       n.Path,
			Size:       n.Size,
			Outcome:    outcome,
			FinishedAt: n.At,
		}
		if n.Kind == reconcile.NoticeError || n.Kind == reconcile.NoticeAborted {
			entry.Reason = n.Message
		}
		if _, err := store.RecordTransfer(ctx, entry); err != nil {
			historyWriteFailed(logger, err)
		}
	}
}

func historyWriteFailed(logger *slog.Logger, err error) {
	logging.WarnWithContext(logger, "history write failed", "history_write_failed",
		logging.Error(err),
		logging.String(logging.FieldImpact, "transfer missing from history"),
		logging.String(logging.FieldErrorHint, "check free space and permissions on the history database"))
}
