package notifier

import "context"

// TextNotifier defines a minimal text notification interface.
type TextNotifier interface {
	SendText(ctx context.Context, text string) error
}
