package dispatcher

import (
	"time"

	"github.com/ulugbek-dev/broadcast-gateway/internal/model"
)

// Delay converts a messages/second rate into the fixed interval between two
// consecutive delivery attempts. Millisecond resolution, rounded up, so the
// real throughput never exceeds the requested rate.
func Delay(rate int) time.Duration {
	rate = model.ClampRateLimit(rate)
	ms := (1000 + rate - 1) / rate
	return time.Duration(ms) * time.Millisecond
}
