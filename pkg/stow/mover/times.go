package mover

import "time"

// fileTimes holds the timestamps a copy tries to carry over.
type fileTimes struct {
	Access   time.Time
	Birth    time.Time
	HasBirth bool
}
