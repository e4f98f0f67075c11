package console

import (
	"scadalink/internal/polling"
)

// ControlSurface is the operator-facing subset of the engine the console
// is allowed to drive: group lifecycle plus a point-in-time status read.
// It is intentionally narrow — the console has no access to engine
// internals beyond this interface.
type ControlSurface interface {
	StartGroup(cfg polling.GroupConfig) error
	StopGroup(groupID string)
	TriggerHandshake(groupID string) error
	GetAllStatus() []polling.Status
	Config(groupID string) (polling.GroupConfig, bool)
	Health() HealthSnapshot
	Shutdown()
}

// HealthSnapshot is the pipeline-health panel's data: buffer utilization,
// writer success rate, connection pool state, and connected monitor clients.
type HealthSnapshot struct {
	BufferSize           int
	BufferCapacity       int
	BufferOverflowCount  int64
	WriterSuccessRatePct float64
	WriterAvgBatchSize   float64
	BackupFileCount      int
	ConnectedPLCs        int
	TotalPLCs            int
	MonitorClients       int
}

// RestartGroup stops then restarts a group, looking its configuration up
// through the control surface so the console itself never has to cache it.
func RestartGroup(cs ControlSurface, groupID string) error {
	cfg, ok := cs.Config(groupID)
	if !ok {
		return errUnknownGroup(groupID)
	}
	cs.StopGroup(groupID)
	return cs.StartGroup(cfg)
}

type unknownGroupError string

func (e unknownGroupError) Error() string { return "console: unknown group " + string(e) }

func errUnknownGroup(groupID string) error { return unknownGroupError(groupID) }
