// Package notification delivers formatted relay messages to external chat
// channels (Telegram, generic webhooks). Delivery is best-effort: a failed
// send is reported to the caller but never blocks or rolls back signal
// processing.
package notification

import (
	"context"
	"log"
)

// Notifier is the outbound message sink consumed by the dispatcher.
type Notifier interface {
	// Send delivers one formatted message. Returns error if delivery fails.
	Send(ctx context.Context, text string) error
}

// LogNotifier writes messages to the process log (useful for development).
type LogNotifier struct{}

// NewLogNotifier creates a log-based notifier.
func NewLogNotifier() *LogNotifier {
	return &LogNotifier{}
}

func (n *LogNotifier) Send(ctx context.Context, text string) error {
	log.Printf("[notify] %s", text)
	return nil
}
