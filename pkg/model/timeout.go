package model

import (
	"context"
	"time"
)

func withTimeoutMillis(ctx context.Context, millis int) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, time.Duration(millis)*time.Millisecond)
}
