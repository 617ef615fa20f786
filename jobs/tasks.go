package jobs

import (
	"encoding/json"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskSessionSweep closes web sessions that idled past the timeout.
	TaskSessionSweep = "sessions:sweep"
	// TaskSecurityScan inspects recent security events for abuse patterns.
	TaskSecurityScan = "security:scan"
)

// SessionSweepPayload configures one sweep run.
type SessionSweepPayload struct {
	IdleMinutes int `json:"idle_minutes"`
}

// NewSessionSweepTask constructs an Asynq task for the sweep.
func NewSessionSweepTask(idleMinutes int) (*asynq.Task, error) {
	data, err := json.Marshal(SessionSweepPayload{IdleMinutes: idleMinutes})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskSessionSweep, data), nil
}

// SecurityScanPayload configures one scan run.
type SecurityScanPayload struct {
	WindowMinutes int `json:"window_minutes"`
	Threshold     int `json:"threshold"`
}

// NewSecurityScanTask constructs an Asynq task for the scan.
func NewSecurityScanTask(windowMinutes, threshold int) (*asynq.Task, error) {
	data, err := json.Marshal(SecurityScanPayload{WindowMinutes: windowMinutes, Threshold: threshold})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskSecurityScan, data), nil
}
