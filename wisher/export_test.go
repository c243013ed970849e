package wisher

import (
	"context"
	"time"
)

// SetSleep replaces the pause between deliveries.
func (w *Wisher) SetSleep(f func(context.Context, time.Duration)) {
	w.sleep = f
}
