package domain

// ReservationItem — одна позиция временного холда: товар и количество.
// Холды живут только в кэше; durable-сток меняется в момент confirm.
type ReservationItem struct {
	ProductID string
	Qty       int32
}

// ConfirmResult — итог подтверждения резерва: какие позиции списаны,
// какие завершились ошибкой.
type ConfirmResult struct {
	Confirmed []ReservationItem
	Errors    []error
}

// OK сообщает, прошло ли подтверждение без ошибок.
func (r *ConfirmResult) OK() bool {
	return len(r.Errors) == 0
}
