package stats

import (
	logger "github.com/sirupsen/logrus"
)

// LoggingSink is a gostats.FlushableSink that mirrors every flushed stat to
// the process logger at debug level.
type LoggingSink struct{}

func (s *LoggingSink) log(name, typ string, value float64) {
	if logger.IsLevelEnabled(logger.DebugLevel) {
		logger.WithFields(logger.Fields{
			"name":  name,
			"type":  typ,
			"value": value,
		}).Debug("flushing stat")
	}
}

// Implementation of the gostats.FlushableSink interface

func (s *LoggingSink) FlushCounter(name string, value uint64) { s.log(name, "counter", float64(value)) }
func (s *LoggingSink) FlushGauge(name string, value uint64)   { s.log(name, "gauge", float64(value)) }
func (s *LoggingSink) FlushTimer(name string, value float64)  { s.log(name, "timer", value) }
func (s *LoggingSink) Flush()                                 { s.log("", "all stats", 0) }
