package metrics

import "expvar"

var (
	MessagesQueued       = expvar.NewInt("mail_messages_queued_total")
	MessagesSent         = expvar.NewInt("mail_messages_sent_total")
	SendFailures         = expvar.NewInt("mail_send_failures_total")
	MessagesRejected     = expvar.NewInt("mail_messages_rejected_total")
	MessagesDeadLettered = expvar.NewInt("mail_messages_dead_lettered_total")
	queueDepth           = expvar.NewInt("mail_queue_depth")
)

// SetQueueDepth records the current queue depth.
func SetQueueDepth(n int) {
	queueDepth.Set(int64(n))
}

// QueueDepth returns the last recorded queue depth.
func QueueDepth() int64 {
	return queueDepth.Value()
}

// ResetForTests clears counters; intended for use in tests only.
func ResetForTests() {
	MessagesQueued.Set(0)
	MessagesSent.Set(0)
	SendFailures.Set(0)
	MessagesRejected.Set(0)
	MessagesDeadLettered.Set(0)
	queueDepth.Set(0)
}
