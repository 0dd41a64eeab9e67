package models

import "time"

// Clock returns the server's notion of now. Day-of-week gating uses its location.
type Clock func() time.Time

func SystemClock() Clock {
	return time.Now
}
