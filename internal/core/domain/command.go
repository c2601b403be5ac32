package domain

import (
	"fmt"
	"time"

	"github.com/berfenger/oigshield2mqtt/internal/core/shield"

	"github.com/spf13/cast"
)

const (
	SHIELD_STATE_ACTIVE = "active"
	SHIELD_STATE_IDLE   = "idle"

	statusTimeFormat = "02.01.2006 15:04:05"
)

// ShieldStatus is the read model of the shield exposed over HTTP and MQTT.
type ShieldStatus struct {
	Status         string            `json:"status"`
	Activity       string            `json:"activity"`
	TotalRequests  int               `json:"total_requests"`
	QueueLength    int               `json:"queue_length"`
	Running        *RunningRequest   `json:"running,omitempty"`
	QueuedRequests []QueuedRequest   `json:"queued_requests"`
	Recent         []FinishedRequest `json:"recent"`
}

type RunningRequest struct {
	Id              string   `json:"id"`
	Service         string   `json:"service"`
	Changes         []string `json:"changes"`
	StartedAt       string   `json:"started_at"`
	DurationSeconds float64  `json:"duration_seconds"`
	// ObservedAt is the newest telemetry update among the expected resources.
	ObservedAt string `json:"observed_at,omitempty"`
}

type QueuedRequest struct {
	Position int      `json:"position"`
	Id       string   `json:"id"`
	Service  string   `json:"service"`
	Changes  []string `json:"changes"`
	QueuedAt string   `json:"queued_at"`
	Params   any      `json:"params,omitempty"`
}

type FinishedRequest struct {
	Id         string        `json:"id"`
	Service    string        `json:"service"`
	Status     shield.Status `json:"status"`
	FinishedAt string        `json:"finished_at"`
}

// NewShieldStatus renders a snapshot. Running changes show where each resource
// started, where it is heading and its current value.
func NewShieldStatus(snap shield.Snapshot, obs shield.StateObserver, now time.Time) ShieldStatus {
	status := ShieldStatus{
		Status:         SHIELD_STATE_ACTIVE,
		Activity:       SHIELD_STATE_IDLE,
		QueueLength:    len(snap.Queue),
		TotalRequests:  len(snap.Queue),
		QueuedRequests: make([]QueuedRequest, 0, len(snap.Queue)),
		Recent:         make([]FinishedRequest, 0, len(snap.History)),
	}

	if cmd := snap.Active; cmd != nil {
		status.Activity = cmd.Name
		status.TotalRequests++
		changes := make([]string, 0, len(cmd.Expected))
		for _, e := range cmd.Expected {
			changes = append(changes, fmt.Sprintf("%s: '%s' → '%s' (nyní: '%s')",
				e.ResourceID, valueOr(cmd.Original, e.ResourceID), cast.ToString(e.Value), observed(obs, e.ResourceID)))
		}
		status.Running = &RunningRequest{
			Id:              cmd.ID,
			Service:         cmd.Name,
			Changes:         changes,
			StartedAt:       cmd.DispatchedAt.Local().Format(statusTimeFormat),
			DurationSeconds: now.Sub(cmd.DispatchedAt).Seconds(),
		}
		if at, ok := lastObserved(obs, cmd.Expected.ResourceIDs()); ok {
			status.Running.ObservedAt = at.Local().Format(statusTimeFormat)
		}
	}

	for i, cmd := range snap.Queue {
		changes := make([]string, 0, len(cmd.Expected))
		for _, e := range cmd.Expected {
			changes = append(changes, fmt.Sprintf("%s: '%s' → '%s'",
				e.ResourceID, observed(obs, e.ResourceID), cast.ToString(e.Value)))
		}
		status.QueuedRequests = append(status.QueuedRequests, QueuedRequest{
			Position: i + 1,
			Id:       cmd.ID,
			Service:  cmd.Name,
			Changes:  changes,
			QueuedAt: cmd.SubmittedAt.Local().Format(statusTimeFormat),
			Params:   cmd.Params,
		})
	}

	for i := len(snap.History) - 1; i >= 0; i-- {
		cmd := snap.History[i]
		status.Recent = append(status.Recent, FinishedRequest{
			Id:         cmd.ID,
			Service:    cmd.Name,
			Status:     cmd.Status,
			FinishedAt: cmd.FinishedAt.Local().Format(statusTimeFormat),
		})
	}
	return status
}

type updateTimes interface {
	UpdatedAt(resourceID string) (time.Time, bool)
}

func lastObserved(obs shield.StateObserver, resourceIDs []string) (time.Time, bool) {
	times, ok := obs.(updateTimes)
	if !ok {
		return time.Time{}, false
	}
	var last time.Time
	for _, id := range resourceIDs {
		if at, ok := times.UpdatedAt(id); ok && at.After(last) {
			last = at
		}
	}
	return last, !last.IsZero()
}

func observed(obs shield.StateObserver, resourceID string) string {
	if obs == nil {
		return STATE_UNKNOWN
	}
	v, ok := obs.Read(resourceID)
	if !ok {
		return STATE_UNKNOWN
	}
	return cast.ToString(v)
}

func valueOr(values map[string]any, key string) string {
	if v, ok := values[key]; ok {
		return cast.ToString(v)
	}
	return STATE_UNKNOWN
}
