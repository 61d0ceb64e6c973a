package service

import (
	"context"

	"github.com/warp/incentive-engine/incentive"
	"github.com/warp/incentive-engine/logger"
)

// LogSink writes every published event as one structured log line.
func LogSink(log logger.Logger) incentive.EventSink {
	log = log.Named("event")
	return incentive.EventSinkFunc(func(ctx context.Context, events []incentive.Event) error {
		for _, e := range events {
			fields := []logger.Field{
				logger.String("type", string(e.Type)),
				logger.String("calculation_id", string(e.CalculationID)),
				logger.String("employee_id", string(e.EmployeeID)),
				logger.String("amount", e.Amount.String()),
			}
			if e.Actor != "" {
				fields = append(fields, logger.String("actor", e.Actor))
			}
			if e.Level != 0 {
				fields = append(fields, logger.Int("level", int(e.Level)))
			}
			if e.Detail != "" {
				fields = append(fields, logger.String("detail", e.Detail))
			}
			log.Info(ctx, "calculation event", fields...)
		}
		return nil
	})
}
