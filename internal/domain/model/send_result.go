package model

// SendResult is what a channel reports for one send call.
type SendResult struct {
	Success   bool
	MessageID string
	Error     string
	// Temporary marks a failed result as worth retrying.
	Temporary bool
	Metadata  map[string]string
}

// Failure converts an unsuccessful result into a ChannelFailure. It returns nil on success.
func (r *SendResult) Failure(t NotificationType) *ChannelFailure {
	if r == nil || r.Success {
		return nil
	}
	reason := r.Error
	if reason == "" {
		reason = "channel reported failure without details"
	}
	return &ChannelFailure{Channel: t, Reason: reason, Temporary: r.Temporary}
}
