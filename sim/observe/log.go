package observe

import (
	"github.com/sirupsen/logrus"

	"github.com/wrsn-sim/wrsn-sim/sim"
)

// LogListener writes every metric event to a logrus logger at Level.
type LogListener struct {
	logger logrus.FieldLogger
	level  logrus.Level
	runID  string
}

// NewLogListener logs through logger, or the standard logrus logger if nil.
func NewLogListener(logger logrus.FieldLogger, level logrus.Level, runID string) *LogListener {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &LogListener{logger: logger, level: level, runID: runID}
}

func (l *LogListener) OnMetricEvent(m sim.MetricEvent) {
	r := NewRecord(l.runID, m)
	fields := logrus.Fields{"kind": r.Kind, "time": r.Time}
	if r.Subject != "" {
		fields["subject"] = r.Subject
	}
	if r.Old != nil {
		fields["old"] = r.Old
	}
	if r.New != nil {
		fields["new"] = r.New
	}
	if l.runID != "" {
		fields["run"] = l.runID
	}
	entry := l.logger.WithFields(fields)
	switch l.level {
	case logrus.TraceLevel:
		entry.Trace("metric")
	case logrus.DebugLevel:
		entry.Debug("metric")
	case logrus.WarnLevel:
		entry.Warn("metric")
	default:
		entry.Info("metric")
	}
}

func (l *LogListener) OnSimulationEnd() {
	l.logger.WithField("run", l.runID).Info("metric stream closed")
}
