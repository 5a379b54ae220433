// SPDX-License-Identifier: MIT
package transport

import (
	"featex/internal/log"

	"github.com/sirupsen/logrus"
)

// LoggingTransport implements the Transport interface by logging feature
// frames at debug level.
type LoggingTransport struct {
	entry *logrus.Entry
}

// NewLoggingTransport creates a new LoggingTransport instance.
func NewLoggingTransport() *LoggingTransport {
	entry := log.WithComponent("transport")
	entry.Info("Using LoggingTransport")
	return &LoggingTransport{entry: entry}
}

// Send logs the received data. Frames are logged field by field; anything
// else is logged with its type.
func (lt *LoggingTransport) Send(data any) error {
	if log.GetLevel() > log.LevelDebug {
		return nil
	}
	frame, err := AsFrame(data)
	if err != nil {
		lt.entry.Debugf("received %T: %+v", data, data)
		return nil
	}
	fields := logrus.Fields{"seq": frame.Seq, "block": frame.Block, "time": frame.TimeSec}
	for i, v := range frame.Values {
		if i < len(frame.Names) {
			fields[frame.Names[i]] = v
		}
	}
	lt.entry.WithFields(fields).Debug("feature frame")
	return nil // Logging transport never fails to "send"
}

// Close is a no-op for LoggingTransport.
func (lt *LoggingTransport) Close() error {
	lt.entry.Debug("Close called")
	return nil
}

// Ensure LoggingTransport satisfies the interface at compile time.
var _ Transport = (*LoggingTransport)(nil)
