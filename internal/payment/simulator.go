// Package payment моделирует шаг оплаты при оформлении заказа. Реальных платёжных систем нет.
package payment

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/mmeshcher/storefront/internal/model"
)

// Поддерживаемые способы оплаты.
const (
	MethodCOD  = "cod"
	MethodMomo = "momo"
)

// Gateway подтверждает оплату заказа выбранным способом.
type Gateway interface {
	Authorize(ctx context.Context, method string) (model.PaymentStatus, error)
}

// Simulator сразу принимает оплату наложенным платежом. Оплата по QR-коду кошелька
// подтверждается после обратного отсчёта.
type Simulator struct {
	Countdown time.Duration
}

// NewSimulator создаёт симулятор с указанной длительностью обратного отсчёта.
func NewSimulator(countdown time.Duration) *Simulator {
	return &Simulator{Countdown: countdown}
}

// Authorize возвращает состояние оплаты для способа method. Отмена контекста во время
// отсчёта прерывает оплату с model.ErrPaymentCancelled.
func (s *Simulator) Authorize(ctx context.Context, method string) (model.PaymentStatus, error) {
	switch strings.ToLower(method) {
	case "", MethodCOD:
		return model.PaymentStatusPending, nil
	case MethodMomo:
		timer := time.NewTimer(s.Countdown)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return model.PaymentStatusFailed, fmt.Errorf("%w: %w", model.ErrPaymentCancelled, ctx.Err())
		case <-timer.C:
			return model.PaymentStatusPaid, nil
		}
	default:
		return model.PaymentStatusFailed, fmt.Errorf("%w: unknown payment method %q", model.ErrValidation, method)
	}
}
