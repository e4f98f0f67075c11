package model

import "time"

// LogMode is the per-tag policy controlling whether a reading reaches the
// historian.
type LogMode int

const (
	LogAlways LogMode = iota
	LogOnChange
	LogNever
)

func ParseLogMode(s string) LogMode {
	switch s {
	case "ON_CHANGE":
		return LogOnChange
	case "NEVER":
		return LogNever
	default:
		return LogAlways
	}
}

// Category routes a tag-log insert to the OPERATION destination table or
// the shared STATE/ALARM tag-log table.
type Category int

const (
	CategoryOperation Category = iota
	CategoryState
	CategoryAlarm
)

func ParseCategory(s string) Category {
	switch s {
	case "STATE":
		return CategoryState
	case "ALARM":
		return CategoryAlarm
	default:
		return CategoryOperation
	}
}

// PollingMode selects the scheduling strategy a group's worker runs.
type PollingMode int

const (
	ModeFixed PollingMode = iota
	ModeHandshake
)

func ParsePollingMode(s string) PollingMode {
	if s == "HANDSHAKE" {
		return ModeHandshake
	}
	return ModeFixed
}

// ThreadState is a worker's lifecycle state.
type ThreadState int

const (
	StateStopped ThreadState = iota
	StateRunning
	StateStopping
	StateError
)

func (s ThreadState) String() string {
	switch s {
	case StateRunning:
		return "RUNNING"
	case StateStopping:
		return "STOPPING"
	case StateError:
		return "ERROR"
	default:
		return "STOPPED"
	}
}

// Quality reflects whether a BufferedReading's source poll reported an
// error for that address.
type Quality int

const (
	QualityGood Quality = iota
	QualityBad
	QualityUncertain
)

func (q Quality) String() string {
	switch q {
	case QualityBad:
		return "BAD"
	case QualityUncertain:
		return "UNCERTAIN"
	default:
		return "GOOD"
	}
}

// PollingSample is the producer->consumer unit a worker emits on each
// successful or partially successful poll.
type PollingSample struct {
	Timestamp       time.Time
	GroupID         string
	GroupName       string
	PLCCode         string
	Mode            PollingMode
	Category        Category
	Values          map[string]Value
	ErrorTags       map[string]string
	PollDurationMs  int64
	TagLogModes     map[string]LogMode
	TagMachineCodes map[string]string
}

// BufferedReading is the writer's unit of work: one (tagAddress, value)
// pair expanded out of a PollingSample, carrying the per-tag routing
// metadata (category, log mode, machine code) the writer needs to decide
// the destination table and apply change-detection without ever going back
// to the sample or a config lookup.
type BufferedReading struct {
	Timestamp   time.Time
	PLCCode     string
	TagAddress  string
	Value       Value
	Quality     Quality
	Category    Category
	LogMode     LogMode
	MachineCode string
}

// Expand emits one BufferedReading per tag value carried by the sample,
// with Quality BAD iff the address appears in ErrorTags.
func (s *PollingSample) Expand() []BufferedReading {
	out := make([]BufferedReading, 0, len(s.Values))
	for addr, v := range s.Values {
		q := QualityGood
		if _, failed := s.ErrorTags[addr]; failed {
			q = QualityBad
		}
		out = append(out, BufferedReading{
			Timestamp:   s.Timestamp,
			PLCCode:     s.PLCCode,
			TagAddress:  addr,
			Value:       v,
			Quality:     q,
			Category:    s.Category,
			LogMode:     s.TagLogModes[addr],
			MachineCode: s.TagMachineCodes[addr],
		})
	}
	return out
}
