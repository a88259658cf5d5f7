package persistence

import "context"

// UserStore persists the user ledger document as a whole.
type UserStore interface {
	LoadUsers(ctx context.Context) (UsersDocument, error)
	SaveUsers(ctx context.Context, doc UsersDocument) error
}

// CalendarStore persists the weekly booking document as a whole.
type CalendarStore interface {
	LoadBookings(ctx context.Context) (CalendarDocument, error)
	SaveBookings(ctx context.Context, doc CalendarDocument) error
}

// DeviceStore persists the plug descriptor document as a whole.
type DeviceStore interface {
	LoadDevices(ctx context.Context) (DevicesDocument, error)
	SaveDevices(ctx context.Context, doc DevicesDocument) error
}
