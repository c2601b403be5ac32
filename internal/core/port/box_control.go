package port

import "context"

// BoxControl is the write side of the box. A nil error only means the cloud
// accepted the request; the change shows up in the stats later.
type BoxControl interface {
	SetBoxMode(ctx context.Context, mode int) error
	SetGridDelivery(ctx context.Context, enabled bool) error
	SetGridDeliveryLimit(ctx context.Context, limit int) error
	SetBoilerMode(ctx context.Context, mode int) error
}
