package util

import "time"

// secondsCutoff separates unix seconds from unix milliseconds. 1e11 seconds
// lies in the year 5138, 1e11 milliseconds in 1973.
const secondsCutoff = 1e11

// EpochMillis accepts a unix timestamp in seconds or milliseconds and returns
// milliseconds. Non-positive values are returned unchanged.
func EpochMillis(ts int64) int64 {
    if ts > 0 && ts < secondsCutoff {
        return ts * 1000
    }
    return ts
}

// TimeFromEpoch converts a seconds-or-milliseconds timestamp to UTC time.
// It returns (zero, false) for non-positive input.
func TimeFromEpoch(ts int64) (time.Time, bool) {
    if ts <= 0 {
        return time.Time{}, false
    }
    return time.UnixMilli(EpochMillis(ts)).UTC(), true
}
