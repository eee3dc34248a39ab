// Package logger provides structured JSON logging and in-process metrics for
// calendar-events.
//
// Each log line is a single JSON object with a timestamp, level, message,
// optional structured fields and an optional error string:
//
//	logger.Info("event added", logger.Fields{
//	    "id":    evt.ID,
//	    "count": n,
//	})
//
//	logger.Error("persist failed", logger.Fields{"key": key}, err)
//
// Metrics keeps counters, gauges and timing statistics. The store updates
// them on every mutation and the HTTP server exposes a snapshot.
package logger
