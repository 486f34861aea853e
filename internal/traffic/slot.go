package traffic

import "time"

const (
	// SlotMinutes is the width of one prediction slot.
	SlotMinutes = 15
	// SlotsPerDay is the number of prediction slots in a day.
	SlotsPerDay = 24 * 60 / SlotMinutes
)

// SlotIndex returns the 15-minute slot of the day for t, in [0, SlotsPerDay).
// Only the wall-clock hour and minute of t are used.
func SlotIndex(t time.Time) int {
	return (t.Hour()*60 + t.Minute()) / SlotMinutes
}

// SlotStart returns the time of day at which slot begins.
func SlotStart(slot int) time.Duration {
	return time.Duration(slot*SlotMinutes) * time.Minute
}
