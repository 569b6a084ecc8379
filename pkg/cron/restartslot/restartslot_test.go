package restartslot

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func intSet(vals ...int) map[int]bool {
	s := make(map[int]bool, len(vals))
	for _, v := range vals {
		s[v] = true
	}
	return s
}

func TestParseMinuteField_SingleValue(t *testing.T) {
	got, err := ParseMinuteField("30")
	require.NoError(t, err)
	assert.Equal(t, intSet(30), got)
}

func TestParseMinuteField_ListValues(t *testing.T) {
	got, err := ParseMinuteField("0,15,30,45")
	require.NoError(t, err)
	assert.Equal(t, intSet(0, 15, 30, 45), got)
}

func TestParseMinuteField_Range(t *testing.T) {
	got, err := ParseMinuteField("10-20")
	require.NoError(t, err)
	assert.Equal(t, intSet(10, 11, 12, 13, 14, 15, 16, 17, 18, 19, 20), got)
}

func TestParseMinuteField_Step(t *testing.T) {
	got, err := ParseMinuteField("*/5")
	require.NoError(t, err)
	assert.Equal(t, intSet(0, 5, 10, 15, 20, 25, 30, 35, 40, 45, 50, 55), got)

	got, err = ParseMinuteField("0-30/10")
	require.NoError(t, err)
	assert.Equal(t, intSet(0, 10, 20, 30), got)
}

func TestParseMinuteField_Wildcard(t *testing.T) {
	got, err := ParseMinuteField("*")
	require.NoError(t, err)
	assert.Len(t, got, 60)
}

func TestParseMinuteField_Complex(t *testing.T) {
	got, err := ParseMinuteField("0,15,30-35,*/20")
	require.NoError(t, err)
	assert.Equal(t, intSet(0, 15, 30, 31, 32, 33, 34, 35, 20, 40), got)
}

func TestParseHourField_Basics(t *testing.T) {
	got, err := ParseHourField("6")
	require.NoError(t, err)
	assert.Equal(t, intSet(6), got)

	got, err = ParseHourField("6,8,12")
	require.NoError(t, err)
	assert.Equal(t, intSet(6, 8, 12), got)

	got, err = ParseHourField("6-8")
	require.NoError(t, err)
	assert.Equal(t, intSet(6, 7, 8), got)

	got, err = ParseHourField("*/6")
	require.NoError(t, err)
	assert.Equal(t, intSet(0, 6, 12, 18), got)

	got, err = ParseHourField("6-18/2")
	require.NoError(t, err)
	assert.Equal(t, intSet(6, 8, 10, 12, 14, 16, 18), got)

	got, err = ParseHourField("*")
	require.NoError(t, err)
	assert.Len(t, got, 24)
}

func backupJob(cron string) Job { return Job{Identifier: "backup", CronExpression: cron} }
func restartJob(cron, serverID string) Job {
	return Job{Identifier: "restart_server", CronExpression: cron, ServerID: serverID}
}

func TestBackupMinutes_Empty(t *testing.T) {
	got, err := BackupMinutes(nil)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestBackupMinutes_WithTasks(t *testing.T) {
	jobs := []Job{
		backupJob("0,15 * * * *"),
		backupJob("30 1 * * *"),
	}
	got, err := BackupMinutes(jobs)
	require.NoError(t, err)
	assert.Equal(t, intSet(0, 15, 30), got)
}

func TestRestartSlots_WithExclusion(t *testing.T) {
	jobs := []Job{
		restartJob("5 6 * * *", "server1"),
		restartJob("25 8 * * *", "server2"),
	}
	got, err := RestartSlots(jobs, "")
	require.NoError(t, err)
	assert.Equal(t, map[Slot]bool{{6, 5}: true, {8, 25}: true}, got)

	got, err = RestartSlots(jobs, "server1")
	require.NoError(t, err)
	assert.Equal(t, map[Slot]bool{{8, 25}: true}, got)
}

func TestFindNextAvailable_NoConflicts(t *testing.T) {
	slot, err := FindNextAvailable(nil, 6, 0, "")
	require.NoError(t, err)
	assert.Equal(t, Slot{6, 0}, slot)
}

func TestFindNextAvailable_OnlyBackupConflict(t *testing.T) {
	jobs := []Job{backupJob("0 * * * *")}
	slot, err := FindNextAvailable(jobs, 6, 0, "")
	require.NoError(t, err)
	assert.Equal(t, Slot{6, 5}, slot)
}

func TestFindNextAvailable_BackupAndRestartConflicts(t *testing.T) {
	jobs := []Job{
		backupJob("0 * * * *"),
		restartJob("5 6 * * *", "other-server"),
	}
	slot, err := FindNextAvailable(jobs, 6, 0, "")
	require.NoError(t, err)
	assert.Equal(t, Slot{6, 10}, slot)
}

func TestFindNextAvailable_WithExclusion(t *testing.T) {
	jobs := []Job{
		restartJob("5 6 * * *", "current-server"),
		restartJob("10 6 * * *", "other-server"),
	}
	slot, err := FindNextAvailable(jobs, 6, 0, "")
	require.NoError(t, err)
	assert.Equal(t, Slot{6, 0}, slot)

	slot, err = FindNextAvailable(jobs, 6, 0, "current-server")
	require.NoError(t, err)
	assert.Equal(t, Slot{6, 0}, slot)
}

func TestFindNextAvailable_HourFullOfRestartSlots(t *testing.T) {
	var jobs []Job
	for m := 0; m < 60; m += 5 {
		jobs = append(jobs, restartJob(sprintfCron(m, 6), "srv"))
	}
	slot, err := FindNextAvailable(jobs, 6, 0, "")
	require.NoError(t, err)
	assert.Equal(t, Slot{7, 0}, slot)
}

func TestFindNextAvailable_HourFullWithBackupConflicts(t *testing.T) {
	jobs := []Job{backupJob("0,5 * * * *")}
	for m := 0; m < 60; m += 5 {
		jobs = append(jobs, restartJob(sprintfCron(m, 6), "srv"))
	}
	slot, err := FindNextAvailable(jobs, 6, 0, "")
	require.NoError(t, err)
	assert.Equal(t, Slot{7, 10}, slot)
}

func TestFindNextAvailable_ManyBackupConflicts(t *testing.T) {
	var jobs []Job
	for _, m := range []int{0, 5, 10, 15, 20, 25, 30, 35, 40, 45, 50} {
		jobs = append(jobs, backupJob(sprintfCron(m, -1)))
	}
	slot, err := FindNextAvailable(jobs, 6, 0, "")
	require.NoError(t, err)
	assert.Equal(t, Slot{6, 55}, slot)
}

func TestFindNextAvailable_FallsBackToStartWhenFullyOccupied(t *testing.T) {
	var jobs []Job
	for _, h := range []int{6, 7} {
		for m := 0; m < 60; m += 5 {
			jobs = append(jobs, backupJob(sprintfCron(m, h)))
		}
	}
	for m := 0; m < 60; m += 5 {
		jobs = append(jobs, backupJob(sprintfCron(m, -1)))
	}
	slot, err := FindNextAvailable(jobs, 6, 0, "")
	require.NoError(t, err)
	assert.Equal(t, Slot{6, 0}, slot)
}

func TestFindNextAvailable_RoundsDownToGrid(t *testing.T) {
	slot, err := FindNextAvailable(nil, 8, 30, "")
	require.NoError(t, err)
	assert.Equal(t, Slot{8, 30}, slot)

	slot, err = FindNextAvailable(nil, 9, 23, "")
	require.NoError(t, err)
	assert.Equal(t, Slot{9, 20}, slot)
}

func TestCheckConflict(t *testing.T) {
	jobs := []Job{
		backupJob("30 * * * *"),
		restartJob("25 6 * * *", "server1"),
	}

	ok, err := CheckConflict(jobs, 6, 30, "")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = CheckConflict(jobs, 6, 25, "")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = CheckConflict(jobs, 8, 25, "")
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = CheckConflict(jobs, 6, 20, "")
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = CheckConflict(jobs, 6, 25, "server1")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestGenerateRestartCron_Default(t *testing.T) {
	cron, err := GenerateCron(nil, 6, 0, "", "", "", "")
	require.NoError(t, err)
	assert.Equal(t, "0 6 * * *", cron)
}

func TestGenerateRestartCron_CustomPatterns(t *testing.T) {
	cron, err := GenerateCron(nil, 6, 0, "1", "*/2", "1-5", "")
	require.NoError(t, err)
	assert.Equal(t, "0 6 1 */2 1-5", cron)
}

// sprintfCron builds a "minute hour * * *" cron expression; hour == -1
// produces a wildcard hour, matching the original suite's "global" minute
// conflicts that apply regardless of hour.
func sprintfCron(minute, hour int) string {
	if hour < 0 {
		return fmt.Sprintf("%d * * * *", minute)
	}
	return fmt.Sprintf("%d %d * * *", minute, hour)
}
