package model

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestParseLogMode(t *testing.T) {
	assert.Equal(t, LogOnChange, ParseLogMode("ON_CHANGE"))
	assert.Equal(t, LogNever, ParseLogMode("NEVER"))
	assert.Equal(t, LogAlways, ParseLogMode("ALWAYS"))
	assert.Equal(t, LogAlways, ParseLogMode("unknown"))
}

func TestParseCategory(t *testing.T) {
	assert.Equal(t, CategoryState, ParseCategory("STATE"))
	assert.Equal(t, CategoryAlarm, ParseCategory("ALARM"))
	assert.Equal(t, CategoryOperation, ParseCategory("OPERATION"))
	assert.Equal(t, CategoryOperation, ParseCategory("unknown"))
}

func TestParsePollingMode(t *testing.T) {
	assert.Equal(t, ModeHandshake, ParsePollingMode("HANDSHAKE"))
	assert.Equal(t, ModeFixed, ParsePollingMode("FIXED"))
	assert.Equal(t, ModeFixed, ParsePollingMode("unknown"))
}

func TestThreadState_String(t *testing.T) {
	assert.Equal(t, "RUNNING", StateRunning.String())
	assert.Equal(t, "STOPPING", StateStopping.String())
	assert.Equal(t, "ERROR", StateError.String())
	assert.Equal(t, "STOPPED", StateStopped.String())
}

func TestPollingSample_ExpandMarksErrorTagsAsBadQuality(t *testing.T) {
	now := time.Now()
	s := &PollingSample{
		Timestamp: now,
		PLCCode:   "P1",
		Category:  CategoryState,
		Values: map[string]Value{
			"D100": Int(1),
			"D101": Int(2),
		},
		ErrorTags: map[string]string{"D101": "timeout"},
		TagLogModes: map[string]LogMode{
			"D100": LogAlways,
			"D101": LogOnChange,
		},
		TagMachineCodes: map[string]string{
			"D100": "M1",
			"D101": "M1",
		},
	}

	readings := s.Expand()
	byAddr := map[string]BufferedReading{}
	for _, r := range readings {
		byAddr[r.TagAddress] = r
	}

	assert.Len(t, readings, 2)
	assert.Equal(t, QualityGood, byAddr["D100"].Quality)
	assert.Equal(t, QualityBad, byAddr["D101"].Quality)
	assert.Equal(t, "M1", byAddr["D100"].MachineCode)
}
