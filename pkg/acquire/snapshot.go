package acquire

import (
	"time"

	"github.com/itohio/gorad/pkg/rate"
	"github.com/itohio/gorad/pkg/source"
	"go.uber.org/zap/zapcore"
)

// Snapshot is the state of a channel published once per second. Rates that
// could not be determined are rate.Missing.
type Snapshot struct {
	Channel      string
	Kind         source.Kind
	Time         time.Time // Second boundary of CPS
	CPS          float64
	CPM          float64
	CorrectedCPS float64
	CorrectedCPM float64
	WindowLen    int   // CPS values behind CPM
	Overflows    int64 // Polls where the device buffer saturated
	DroppedReads int64 // Failed reads counted as zero pulses
	Connected    bool
}

func newSnapshot(name string, kind source.Kind) Snapshot {
	return Snapshot{
		Channel:      name,
		Kind:         kind,
		CPS:          rate.Missing,
		CPM:          rate.Missing,
		CorrectedCPS: rate.Missing,
		CorrectedCPM: rate.Missing,
	}
}

// MarshalLogObject lets a Snapshot be logged with zap.Object.
func (s Snapshot) MarshalLogObject(enc zapcore.ObjectEncoder) error {
	enc.AddString("channel", s.Channel)
	enc.AddString("kind", s.Kind.String())
	if !s.Time.IsZero() {
		enc.AddTime("time", s.Time)
	}
	addRate(enc, "cps", s.CPS)
	addRate(enc, "cpm", s.CPM)
	addRate(enc, "cps_corrected", s.CorrectedCPS)
	addRate(enc, "cpm_corrected", s.CorrectedCPM)
	enc.AddInt("window", s.WindowLen)
	if s.Overflows > 0 {
		enc.AddInt64("overflows", s.Overflows)
	}
	if s.DroppedReads > 0 {
		enc.AddInt64("dropped_reads", s.DroppedReads)
	}
	enc.AddBool("connected", s.Connected)
	return nil
}

// addRate writes v, or "missing" since JSON has no NaN.
func addRate(enc zapcore.ObjectEncoder, key string, v float64) {
	if rate.IsMissing(v) {
		enc.AddString(key, "missing")
		return
	}
	enc.AddFloat64(key, v)
}
