// Package likecount derives a game's like count from a stored base, a
// deterministic per-day growth walk and the number of explicit likes.
// Nothing in here touches the clock, the database or the cache.
package likecount

import (
	"time"
)

const (
	Day = 24 * time.Hour

	// MinPlausibleYear guards against an unsynchronised clock (a zero or
	// epoch "now"). Earlier timestamps skip the day walk.
	MinPlausibleYear = 2000

	isoDate = "2006-01-02"
)

// Input is everything Compute depends on.
type Input struct {
	GameID            string
	BaseLikeCount     int64
	LastLikeIncrement time.Time
	Now               time.Time
	ExplicitLikes     int64
}

// RollingHash is the 32-bit h = 31*h + c string hash, wrapping on overflow.
func RollingHash(s string) int32 {
	var h int32
	for i := 0; i < len(s); i++ {
		h = 31*h + int32(s[i])
	}
	return h
}

// DailyIncrement is the growth for one calendar day, always 1, 2 or 3.
func DailyIncrement(gameID string, day time.Time) int64 {
	h := int64(RollingHash(gameID + day.UTC().Format(isoDate)))
	if h < 0 {
		h = -h
	}
	return h%3 + 1
}

// ElapsedDays counts whole days between last and now; never negative.
func ElapsedDays(last, now time.Time) int {
	if !Plausible(now) || now.Before(last) {
		return 0
	}
	return int(now.Sub(last) / Day)
}

func Plausible(now time.Time) bool {
	return now.UTC().Year() >= MinPlausibleYear
}

// Walk sums the daily increments for days 1..ElapsedDays(last, now).
func Walk(gameID string, last, now time.Time) int64 {
	days := ElapsedDays(last, now)
	var sum int64
	for i := 1; i <= days; i++ {
		sum += DailyIncrement(gameID, last.UTC().AddDate(0, 0, i))
	}
	return sum
}

// Derived is the base plus the day walk, without explicit likes. This is the
// part cached in like_count_cache.
func Derived(gameID string, base int64, last, now time.Time) int64 {
	return base + Walk(gameID, last, now)
}

// Compute returns the full like count for in.
func Compute(in Input) int64 {
	return Derived(in.GameID, in.BaseLikeCount, in.LastLikeIncrement, in.Now) + in.ExplicitLikes
}

// Rebase folds every whole elapsed day into the base and moves the anchor
// forward by the same number of days, so Derived is unchanged for any later now.
func Rebase(gameID string, base int64, last, now time.Time) (int64, time.Time) {
	days := ElapsedDays(last, now)
	if days == 0 {
		return base, last
	}
	return base + Walk(gameID, last, now), last.UTC().AddDate(0, 0, days)
}
