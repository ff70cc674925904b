package notifiers

import (
	"context"
	"github.com/basit-dev-64/notification-system-backend/internal/domain/model"
)

// Channel is a delivery mechanism behind a uniform send capability.
// A returned error means the send could not be completed at all and may be retried;
// a result with Success == false is a failure reported by the provider.
type Channel interface {
	Send(ctx context.Context, n *model.Notification) (*model.SendResult, error)
}

// Resolver returns the channel serving a notification type.
type Resolver interface {
	Resolve(t model.NotificationType) (Channel, error)
}
