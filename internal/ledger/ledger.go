package ledger

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/nurpe/finops/internal/service"
)

// Log records disbursements as structured journal lines. It stands in for a
// real general-ledger integration; downstream consumers tail the stream.
type Log struct {
	log zerolog.Logger
}

func New(log zerolog.Logger) *Log {
	return &Log{log: log.With().Str("component", "ledger").Logger()}
}

func (l *Log) PostPaymentEvent(ctx context.Context, event service.PaymentEvent) error {
	entry := l.log.Info().
		Str("payment_id", event.BatchID.String()).
		Float64("amount", event.Amount).
		Str("currency", string(event.Currency))

	lines := make([]map[string]any, 0, len(event.Items))
	for _, item := range event.Items {
		lines = append(lines, map[string]any{
			"kind":   item.Kind,
			"id":     item.ID,
			"title":  item.Title,
			"amount": item.Amount,
		})
	}
	entry.Interface("lines", lines).Msg("payment disbursed")
	return nil
}
