package plugin

import "time"

// Snapshot is a point-in-time view of plugin runtime state.
type Snapshot struct {
	Time    time.Time `json:"time"`
	Plugins []Status  `json:"plugins"`
}

type Status struct {
	Name    string `json:"name"`
	Enabled bool   `json:"enabled"`
	Running bool   `json:"running"`

	Quarantined   bool   `json:"quarantined"`
	QuarantineErr string `json:"quarantine_err,omitempty"`

	LastHealth HealthResult `json:"last_health"`
}

type HealthResult struct {
	Plugin string    `json:"plugin"`
	At     time.Time `json:"at"`
	Status string    `json:"status,omitempty"`
	Err    string    `json:"err,omitempty"`
	Fails  int       `json:"fails,omitempty"`
}

type pluginEvent struct {
	Plugin string `json:"plugin"`
	Stage  string `json:"stage,omitempty"`
	Err    string `json:"err,omitempty"`
	TookMS int64  `json:"took_ms,omitempty"`
}
