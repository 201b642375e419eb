package encryptfs

import "time"

// Clock is a monotonic time source used to calibrate PBKDF iteration
// counts against a target duration.
type Clock interface {
	Now() time.Time
}

type wallClock struct{}

func (wallClock) Now() time.Time { return time.Now() }

var defaultClock Clock = wallClock{}
