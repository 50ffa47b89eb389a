package model

type SourceType string

const (
	SourceContainer  SourceType = "container"
	SourceSystemd    SourceType = "systemd"
	SourceLaunchd    SourceType = "launchd"
	SourceSupervisor SourceType = "supervisor"
	SourceShell      SourceType = "shell"
	SourceUnknown    SourceType = "unknown"
)

// Source is what most likely started a lock holder.
type Source struct {
	Type       SourceType `json:"type" yaml:"type"`
	Name       string     `json:"name" yaml:"name"`
	Confidence float64    `json:"confidence" yaml:"confidence"`

	// Respawns is set when the source is known to restart the process after it exits
	Respawns bool `json:"respawns,omitempty" yaml:"respawns,omitempty"`
}
