package app

import (
	"context"
	"time"

	"pluginlister/internal/eventbus"
	"pluginlister/internal/lister"
	"pluginlister/internal/storage"
	logx "pluginlister/pkg/logx"
)

// auditEntry maps a bus event to an audit row. Retries are not recorded;
// the final sent/failed event carries the attempt count.
func auditEntry(e eventbus.Event) (storage.AuditEntry, bool) {
	switch d := e.Data.(type) {
	case lister.CommandEvent:
		return storage.AuditEntry{
			At:        e.Time,
			Kind:      e.Type,
			ActorID:   d.UserID,
			ActorName: d.UserName,
			Outcome:   d.Outcome,
			Count:     d.Plugins,
		}, true
	case lister.DeliveryEvent:
		if e.Type == eventbus.TypeDeliveryRetry {
			return storage.AuditEntry{}, false
		}
		return storage.AuditEntry{
			At:         e.Time,
			Kind:       e.Type,
			DeliveryID: d.ID,
			Attempt:    d.Attempt,
			Status:     d.Status,
			Error:      d.Error,
		}, true
	}
	return storage.AuditEntry{}, false
}

func recordAudit(ctx context.Context, events <-chan eventbus.Event, st storage.Store, log logx.Logger) {
	for {
		select {
		case <-ctx.Done():
			return
		case e, ok := <-events:
			if !ok {
				return
			}
			entry, ok := auditEntry(e)
			if !ok {
				continue
			}
			wctx, cancel := context.WithTimeout(ctx, 2*time.Second)
			if err := st.AppendAudit(wctx, entry); err != nil {
				log.Warn("audit append failed", logx.String("kind", entry.Kind), logx.Err(err))
			}
			cancel()
		}
	}
}
