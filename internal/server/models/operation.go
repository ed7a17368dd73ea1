package models

import "time"

// Operation tracks an asynchronous server-side step, such as applying a
// finished upload batch. Status holds one of the common.OperationStatus* codes.
type Operation struct {
	ID        string
	AccountID string
	DeviceID  string
	Status    int
	Count     int
	Error     string
	CreatedAt time.Time
}
