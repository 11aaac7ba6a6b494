package reservation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/settlement/internal/domain"
)

type confirmTask struct {
	ReservationID string `json:"reservation_id"`
	OrderID       string `json:"order_id"`
}

// ConfirmTaskHandler возвращает обработчик outbox-задачи подтверждения
// резерва. Истёкший к моменту обработки холд не повод для retry: durable-сток
// не тронут, задача считается выполненной с предупреждением в логе.
func ConfirmTaskHandler(manager Manager, logger *log.Entry) domain.TaskHandler {
	if logger == nil {
		logger = log.WithField("component", "reservation")
	}
	return func(ctx context.Context, msg domain.OutboxMessage) error {
		var task confirmTask
		if err := json.Unmarshal(msg.Payload, &task); err != nil {
			return fmt.Errorf("decode confirm task: %w", err)
		}
		if task.ReservationID == "" {
			return fmt.Errorf("confirm task without reservation_id")
		}

		result, err := manager.Confirm(ctx, task.ReservationID)
		if err != nil {
			if errors.Is(err, domain.ErrReservationNotFound) {
				logger.WithFields(log.Fields{
					"reservation_id": task.ReservationID,
					"order_id":       task.OrderID,
				}).Warn("hold expired before confirmation, stock left untouched")
				return nil
			}
			return err
		}

		logger.WithFields(log.Fields{
			"reservation_id": task.ReservationID,
			"order_id":       task.OrderID,
			"items":          len(result.Confirmed),
		}).Info("reservation confirmed")
		return nil
	}
}
