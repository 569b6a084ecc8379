package cron

import (
	"encoding/json"

	"github.com/hearthstack/mcfleet/pkg/cron/restartslot"
	"github.com/hearthstack/mcfleet/pkg/types"
)

// RestartServerIdentifier is the registry key for the restart_server kind.
// The handler registered under it is domain-specific (it needs to reach
// the container driver and/or task manager) and is supplied by whoever
// wires the process; this package only owns the slot-finding logic and the
// parameter shape every restart_server job must carry.
const RestartServerIdentifier = "restart_server"

const backupIdentifier = "backup"

// RestartServerParams is the params_json shape for every restart_server
// job: which server it restarts.
type RestartServerParams struct {
	ServerID string `json:"server_id" validate:"required"`
}

// ScheduleRestart computes the next restart slot free of conflicts with
// every other backup and restart_server job, generates its cron
// expression, and submits it as serverID's restart_server job (creating or
// recovering cronJobID as appropriate).
func (m *Manager) ScheduleRestart(cronJobID, serverID, name string, startHour, startMinute int, dayPattern, monthPattern, weekdayPattern string) (*types.CronJob, error) {
	jobs, err := m.store.listJobs()
	if err != nil {
		return nil, err
	}

	slotJobs := make([]restartslot.Job, 0, len(jobs))
	for _, j := range jobs {
		if j.Status == types.CronCancelled {
			continue
		}
		switch j.Identifier {
		case backupIdentifier:
			slotJobs = append(slotJobs, restartslot.Job{Identifier: j.Identifier, CronExpression: j.CronExpression})
		case RestartServerIdentifier:
			var p RestartServerParams
			if err := json.Unmarshal([]byte(j.ParamsJSON), &p); err != nil {
				continue
			}
			slotJobs = append(slotJobs, restartslot.Job{Identifier: j.Identifier, CronExpression: j.CronExpression, ServerID: p.ServerID})
		}
	}

	cronExpr, err := restartslot.GenerateCron(slotJobs, startHour, startMinute, dayPattern, monthPattern, weekdayPattern, serverID)
	if err != nil {
		return nil, err
	}

	return m.Submit(cronJobID, RestartServerIdentifier, name, cronExpr, "", RestartServerParams{ServerID: serverID})
}
