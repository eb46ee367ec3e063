package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/opticavillalba/authcore/internal/auth/domain"
	"github.com/opticavillalba/authcore/internal/auth/metrics"
	"github.com/opticavillalba/authcore/internal/auth/store"
	"github.com/opticavillalba/authcore/pkg/idx"
	"github.com/opticavillalba/authcore/pkg/slogx"
)

// audit appends one login attempt. A failed append is logged and counted but
// never changes what the caller sees. The write is detached from ctx
// cancellation so a client hanging up cannot suppress its own audit trail.
func audit(
	ctx context.Context,
	st store.Store,
	now time.Time,
	event, username, clientAddr string,
	outcome error,
) {
	ok := outcome == nil
	metrics.LoginAttempts.WithLabelValues(event, metrics.Outcome(ok)).Inc()

	err := st.LoginAttempts().Append(context.WithoutCancel(ctx), domain.LoginAttempt{
		ID:         idx.NewAt(now).String(),
		Username:   username,
		Identifier: clientAddr,
		Event:      event,
		Success:    ok,
		Reason:     Code(outcome),
		CreatedAt:  now.UTC(),
	})
	if err != nil {
		metrics.AuditFailures.Inc()
		slogx.FromContext(ctx).Error("failed to append login attempt",
			slog.String("event", event),
			slog.String("username", username),
			slog.Any("error", err),
		)
	}
}
