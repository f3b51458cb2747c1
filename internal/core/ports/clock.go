package ports

import "time"

// Clock is the wall clock used to run auctions and confirmation deadlines.
type Clock interface {
	Now() time.Time
}

// SystemClock ...
type SystemClock struct{}

func (SystemClock) Now() time.Time {
	return time.Now()
}
