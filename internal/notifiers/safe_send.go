package notifiers

import (
	"context"
	"fmt"
	"github.com/basit-dev-64/notification-system-backend/internal/domain/model"
	"time"
)

// SafeSend calls ch.Send under timeout. A panic inside the channel is returned as an error.
func SafeSend(ctx context.Context, ch Channel, n *model.Notification, timeout time.Duration) (res *model.SendResult, err error) {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	defer func() {
		if r := recover(); r != nil {
			res = nil
			err = fmt.Errorf("%s channel panicked: %v", n.Type, r)
		}
	}()

	res, err = ch.Send(ctx, n)
	if err == nil && res == nil {
		err = fmt.Errorf("%s channel returned no result", n.Type)
	}
	return res, err
}
