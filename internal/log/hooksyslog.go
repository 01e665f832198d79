/*
 * MIT License
 *
 * Copyright (c) 2021 Nicolas JUHEL
 *
 * Permission is hereby granted, free of charge, to any person obtaining a copy
 * of this software and associated documentation files (the "Software"), to deal
 * in the Software without restriction, including without limitation the rights
 * to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
 * copies of the Software, and to permit persons to whom the Software is
 * furnished to do so, subject to the following conditions:
 *
 * The above copyright notice and this permission notice shall be included in all
 * copies or substantial portions of the Software.
 *
 * THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
 * IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
 * FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
 * AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
 * LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
 * OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
 * SOFTWARE.
 *
 *
 */

package log

import (
	"log/syslog"

	"github.com/sirupsen/logrus"
)

// SyslogHook forwards every log line to a local or remote syslog daemon,
// in addition to whatever output AddHook's caller already configured.
type SyslogHook struct {
	w      *syslog.Writer
	levels []logrus.Level
}

// NewSyslogHook dials network/addr (network="" for the local syslog
// socket) tagged with tag, with priority as the writer's facility and
// default severity. The hook fires for every logrus level.
func NewSyslogHook(network, addr, tag string, priority syslog.Priority) (*SyslogHook, error) {
	w, err := syslog.Dial(network, addr, priority, tag)
	if err != nil {
		return nil, err
	}
	return &SyslogHook{w: w, levels: logrus.AllLevels}, nil
}

func (h *SyslogHook) Levels() []logrus.Level {
	return h.levels
}

func (h *SyslogHook) Fire(e *logrus.Entry) error {
	line, err := e.String()
	if err != nil {
		return err
	}
	switch e.Level {
	case logrus.PanicLevel, logrus.FatalLevel, logrus.ErrorLevel:
		return h.w.Err(line)
	case logrus.WarnLevel:
		return h.w.Warning(line)
	case logrus.DebugLevel:
		return h.w.Debug(line)
	default:
		return h.w.Info(line)
	}
}

func (h *SyslogHook) Close() error {
	return h.w.Close()
}
