package store

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validRecurringJob() Job {
	return Job{
		Name:       "weekly seat",
		LibraryID:  1,
		TimeSlot:   "08:00-12:00",
		Recurring:  true,
		CronDays:   "mon,wed",
		DateOffset: 2,
		CronHour:   9,
		CronMinute: 5,
	}
}

func validOneShotJob() Job {
	runAt := time.Date(2025, time.December, 22, 9, 0, 0, 0, time.UTC)
	return Job{
		Name:       "exam day",
		LibraryID:  1,
		TimeSlot:   "08:00-12:00",
		RunAt:      &runAt,
		TargetDate: "24.12.2025",
	}
}

func TestJobValidate(t *testing.T) {
	require.NoError(t, validRecurringJob().Validate())
	require.NoError(t, validOneShotJob().Validate())

	j := validRecurringJob()
	j.Name = "  "
	assert.Error(t, j.Validate())

	j = validRecurringJob()
	j.LibraryID = 99
	assert.Error(t, j.Validate())

	j = validRecurringJob()
	j.TimeSlot = "morning"
	assert.Error(t, j.Validate())

	j = validRecurringJob()
	j.CronDays = "someday"
	assert.Error(t, j.Validate(), "recurring job with no usable weekday must not be stored")

	j = validRecurringJob()
	j.DateOffset = -1
	assert.Error(t, j.Validate())

	j = validOneShotJob()
	j.RunAt = nil
	assert.Error(t, j.Validate())

	j = validOneShotJob()
	j.TargetDate = "2025-12-24"
	assert.Error(t, j.Validate(), "target date must be portal format")
}

func TestJobTargetFor(t *testing.T) {
	now := time.Date(2025, time.December, 22, 9, 0, 0, 0, time.UTC)

	j := validRecurringJob()
	target, err := j.TargetFor(now)
	require.NoError(t, err)
	assert.Equal(t, "24.12.2025", target.Format("02.01.2006"))

	o := validOneShotJob()
	target, err = o.TargetFor(now)
	require.NoError(t, err)
	assert.Equal(t, "24.12.2025", target.Format("02.01.2006"))

	o.TargetDate = ""
	o.Recurring = false
	_, err = o.TargetFor(now)
	assert.Error(t, err)
}

func TestSeatListRoundTrip(t *testing.T) {
	assert.Equal(t, "12,7,3", joinInts([]int{12, 7, 3}))
	assert.Equal(t, []int{12, 7, 3}, parseInts("12,7,3"))
	assert.Equal(t, []int{5}, parseInts(" 5 , x, "), "junk entries are skipped")
	assert.Nil(t, parseInts(""))
	assert.Equal(t, "", joinInts(nil))
}
