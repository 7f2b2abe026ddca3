package entities

import (
	"testing"
	"time"

	"cloud.google.com/go/civil"
	"github.com/stretchr/testify/assert"
)

func tod(s string) *TimeOfDay {
	t := MustParseTimeOfDay(s)
	return &t
}

func TestAvailabilityRule_Validate(t *testing.T) {
	valid := AvailabilityRule{DayOfWeek: time.Monday, StartTime: MustParseTimeOfDay("09:00"), EndTime: MustParseTimeOfDay("12:00"), IsAvailable: true}
	assert.NoError(t, valid.Validate())

	reversed := valid
	reversed.StartTime, reversed.EndTime = reversed.EndTime, reversed.StartTime
	assert.Error(t, reversed.Validate())

	badDay := valid
	badDay.DayOfWeek = 7
	assert.Error(t, badDay.Validate())
}

func TestBlockedTime_Validate(t *testing.T) {
	day := civil.Date{Year: 2026, Month: time.March, Day: 2}

	assert.NoError(t, (&BlockedTime{Date: day}).Validate())
	assert.NoError(t, (&BlockedTime{Date: day, StartTime: tod("10:00"), EndTime: tod("11:00")}).Validate())
	assert.Error(t, (&BlockedTime{Date: day, StartTime: tod("10:00")}).Validate())
	assert.Error(t, (&BlockedTime{Date: day, StartTime: tod("11:00"), EndTime: tod("10:00")}).Validate())
	assert.Error(t, (&BlockedTime{}).Validate())
}

func TestBlockedTime_AppliesTo(t *testing.T) {
	monday := civil.Date{Year: 2026, Month: time.March, Day: 2}
	nextMonday := monday.AddDays(7)
	previousMonday := monday.AddDays(-7)
	tuesday := monday.AddDays(1)

	oneOff := &BlockedTime{Date: monday}
	assert.True(t, oneOff.AppliesTo(monday))
	assert.False(t, oneOff.AppliesTo(nextMonday))

	recurring := &BlockedTime{Date: monday, IsRecurring: true}
	assert.True(t, recurring.AppliesTo(monday))
	assert.True(t, recurring.AppliesTo(nextMonday))
	assert.False(t, recurring.AppliesTo(tuesday))
	assert.False(t, recurring.AppliesTo(previousMonday))
}

func TestBlockedTime_Bounds(t *testing.T) {
	start, end := (&BlockedTime{}).Bounds()
	assert.Equal(t, TimeOfDay(0), start)
	assert.Equal(t, TimeOfDay(MinutesPerDay), end)

	start, end = (&BlockedTime{StartTime: tod("10:00"), EndTime: tod("11:00")}).Bounds()
	assert.Equal(t, MustParseTimeOfDay("10:00"), start)
	assert.Equal(t, MustParseTimeOfDay("11:00"), end)
}

func TestTimeWindow_Overlaps(t *testing.T) {
	day := civil.Date{Year: 2026, Month: time.March, Day: 2}
	w := func(s, e string) TimeWindow {
		return TimeWindow{Date: day, Start: MustParseTimeOfDay(s), End: MustParseTimeOfDay(e)}
	}

	assert.True(t, w("09:00", "10:00").Overlaps(w("09:30", "10:30")))
	assert.True(t, w("09:00", "12:00").Overlaps(w("10:00", "11:00")))
	assert.False(t, w("09:00", "10:00").Overlaps(w("10:00", "11:00")), "touching endpoints")

	other := w("09:00", "10:00")
	other.Date = day.AddDays(1)
	assert.False(t, w("09:00", "10:00").Overlaps(other))
}
