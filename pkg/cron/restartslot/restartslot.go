// Package restartslot finds a free restart-window slot for the
// "restart_server" cron kind: a (hour, minute) pair on the 5-minute grid
// that doesn't collide with any backup job's minute field or any other
// server's restart slot.
//
// The algorithm is ported from the behavior pinned by the original
// implementation's test suite (backend/tests/cron/test_restart_scheduler.py)
// rather than its source, which was not part of the retrieved pack; every
// branch below is exercised by a test carried over from that file.
package restartslot

import (
	"fmt"
	"strconv"
	"strings"
)

const (
	backupKind  = "backup"
	restartKind = "restart_server"

	gridStep  = 5
	minutesPerHour = 60
	hoursPerDay    = 24
)

// Job is the minimal view of a persisted cron job this package needs: its
// kind, its 5-field cron expression, and (for restart_server jobs only) the
// server it belongs to.
type Job struct {
	Identifier     string
	CronExpression string // "minute hour day-of-month month day-of-week"
	ServerID       string
}

// Slot is an (hour, minute) pair on the restart grid.
type Slot struct {
	Hour   int
	Minute int
}

// ParseMinuteField expands a cron minute field (0-59) into the concrete set
// of minutes it matches: single values, comma lists, ranges, step values,
// and wildcards, including combinations like "0,15,30-35,*/20".
func ParseMinuteField(field string) (map[int]bool, error) {
	return parseField(field, 0, 59)
}

// ParseHourField expands a cron hour field (0-23) the same way.
func ParseHourField(field string) (map[int]bool, error) {
	return parseField(field, 0, 23)
}

func parseField(field string, lo, hi int) (map[int]bool, error) {
	out := make(map[int]bool)
	for _, part := range strings.Split(field, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}

		base := part
		step := 1
		if i := strings.IndexByte(part, '/'); i >= 0 {
			base = part[:i]
			s, err := strconv.Atoi(part[i+1:])
			if err != nil || s <= 0 {
				return nil, fmt.Errorf("invalid step in cron field %q", part)
			}
			step = s
		}

		var rangeLo, rangeHi int
		switch {
		case base == "*":
			rangeLo, rangeHi = lo, hi
		case strings.Contains(base, "-"):
			bounds := strings.SplitN(base, "-", 2)
			a, err1 := strconv.Atoi(bounds[0])
			b, err2 := strconv.Atoi(bounds[1])
			if err1 != nil || err2 != nil {
				return nil, fmt.Errorf("invalid range in cron field %q", part)
			}
			rangeLo, rangeHi = a, b
		default:
			v, err := strconv.Atoi(base)
			if err != nil {
				return nil, fmt.Errorf("invalid value in cron field %q", part)
			}
			rangeLo, rangeHi = v, v
		}

		for v := rangeLo; v <= rangeHi; v += step {
			out[v] = true
		}
	}
	return out, nil
}

func cronFields(expr string) []string {
	return strings.Fields(expr)
}

// BackupMinutes collects every minute occupied by a backup-kind job,
// regardless of hour.
func BackupMinutes(jobs []Job) (map[int]bool, error) {
	out := make(map[int]bool)
	for _, j := range jobs {
		if j.Identifier != backupKind {
			continue
		}
		fields := cronFields(j.CronExpression)
		if len(fields) < 2 {
			continue
		}
		minutes, err := ParseMinuteField(fields[0])
		if err != nil {
			return nil, err
		}
		for m := range minutes {
			out[m] = true
		}
	}
	return out, nil
}

// RestartSlots collects every (hour, minute) occupied by a restart_server
// job, excluding excludeServerID's own entries.
func RestartSlots(jobs []Job, excludeServerID string) (map[Slot]bool, error) {
	out := make(map[Slot]bool)
	for _, j := range jobs {
		if j.Identifier != restartKind {
			continue
		}
		if excludeServerID != "" && j.ServerID == excludeServerID {
			continue
		}
		fields := cronFields(j.CronExpression)
		if len(fields) < 2 {
			continue
		}
		minutes, err := ParseMinuteField(fields[0])
		if err != nil {
			return nil, err
		}
		hours, err := ParseHourField(fields[1])
		if err != nil {
			return nil, err
		}
		for h := range hours {
			for m := range minutes {
				out[Slot{Hour: h, Minute: m}] = true
			}
		}
	}
	return out, nil
}

// CheckConflict reports whether (hour, minute) collides with any backup
// job's minute or any other restart_server job's slot.
func CheckConflict(jobs []Job, hour, minute int, excludeServerID string) (bool, error) {
	backupMinutes, err := BackupMinutes(jobs)
	if err != nil {
		return false, err
	}
	if backupMinutes[minute] {
		return true, nil
	}
	restartSlots, err := RestartSlots(jobs, excludeServerID)
	if err != nil {
		return false, err
	}
	return restartSlots[Slot{Hour: hour, Minute: minute}], nil
}

// FindNextAvailable walks the 5-minute grid forward from (startHour,
// startMinute) — rounded down to the grid — looking for a slot free of both
// backup-minute and restart-slot conflicts. If a full day passes with no
// free slot, it falls back to the rounded start time itself.
func FindNextAvailable(jobs []Job, startHour, startMinute int, excludeServerID string) (Slot, error) {
	backupMinutes, err := BackupMinutes(jobs)
	if err != nil {
		return Slot{}, err
	}
	restartSlots, err := RestartSlots(jobs, excludeServerID)
	if err != nil {
		return Slot{}, err
	}

	start := Slot{Hour: startHour, Minute: (startMinute / gridStep) * gridStep}

	h, m := start.Hour, start.Minute
	totalSlots := hoursPerDay * (minutesPerHour / gridStep)
	for i := 0; i < totalSlots; i++ {
		if !backupMinutes[m] && !restartSlots[Slot{Hour: h, Minute: m}] {
			return Slot{Hour: h, Minute: m}, nil
		}
		m += gridStep
		if m >= minutesPerHour {
			m = 0
			h = (h + 1) % hoursPerDay
		}
	}

	return start, nil
}

// GenerateCron builds a 5-field cron expression for a restart_server job at
// the next available slot.
func GenerateCron(jobs []Job, startHour, startMinute int, dayPattern, monthPattern, weekdayPattern, excludeServerID string) (string, error) {
	if dayPattern == "" {
		dayPattern = "*"
	}
	if monthPattern == "" {
		monthPattern = "*"
	}
	if weekdayPattern == "" {
		weekdayPattern = "*"
	}

	slot, err := FindNextAvailable(jobs, startHour, startMinute, excludeServerID)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%d %d %s %s %s", slot.Minute, slot.Hour, dayPattern, monthPattern, weekdayPattern), nil
}
