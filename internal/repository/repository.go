package repository

import (
	"github.com/Ljo9000/skupi/internal/database"
)

type Repositories struct {
	Events      *EventRepository
	Payments    *PaymentRepository
	WaitingList *WaitingListRepository
}

func NewRepositories(db *database.DB) *Repositories {
	return &Repositories{
		Events:      NewEventRepository(db),
		Payments:    NewPaymentRepository(db),
		WaitingList: NewWaitingListRepository(db),
	}
}
