package utils

import (
	"time"
)

// UnixTimeToTime converts a Unix timestamp to a UTC time.Time
func UnixTimeToTime(unixTime int64) time.Time {
	return time.Unix(unixTime, 0).UTC()
}
