package model

import "time"

type Process struct {
	PID       int       `json:"pid" yaml:"pid"`
	PPID      int       `json:"ppid" yaml:"ppid"`
	Command   string    `json:"command" yaml:"command"`
	Cmdline   string    `json:"cmdline,omitempty" yaml:"cmdline,omitempty"`
	Exe       string    `json:"exe,omitempty" yaml:"exe,omitempty"`
	StartedAt time.Time `json:"started_at" yaml:"started_at"`
	User      string    `json:"user,omitempty" yaml:"user,omitempty"`

	// Elevated is nil when it could not be determined
	Elevated *bool `json:"elevated,omitempty" yaml:"elevated,omitempty"`

	// AppType is "process" except where the OS classifies the holder
	// (Restart Manager: app, service, explorer, console, critical)
	AppType string `json:"app_type,omitempty" yaml:"app_type,omitempty"`

	// Health status ("healthy", "zombie", "stopped")
	Health string `json:"health,omitempty" yaml:"health,omitempty"`
}

// ProcessSummary holds basic information about a process for listing
type ProcessSummary struct {
	PID     int
	PPID    int
	User    string
	Command string
}
