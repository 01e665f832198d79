/*
 * MIT License
 *
 * Copyright (c) 2020 Nicolas JUHEL
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
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/sirupsen/logrus"
)

// Fields carries structured context attached to a single log line —
// connection endpoint, session id, processor name, and so on.
type Fields map[string]interface{}

var (
	mu  sync.RWMutex
	std = logrus.New()
	lvl = InfoLevel
)

func init() {
	std.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	std.SetOutput(os.Stdout)
	std.SetLevel(lvl.logrus())
}

// SetLevel changes the minimum level that will actually be emitted.
func SetLevel(l Level) {
	mu.Lock()
	defer mu.Unlock()
	lvl = l
	std.SetLevel(l.logrus())
}

// SetOutput redirects where log lines are written (stdout by default).
func SetOutput(w io.Writer) {
	mu.Lock()
	defer mu.Unlock()
	std.SetOutput(w)
}

// SetFormatter swaps the logrus formatter (e.g. to JSON for aggregation).
func SetFormatter(f logrus.Formatter) {
	mu.Lock()
	defer mu.Unlock()
	std.SetFormatter(f)
}

// AddHook registers a logrus hook (syslog forwarding, metrics, etc.).
func AddHook(h logrus.Hook) {
	mu.Lock()
	defer mu.Unlock()
	std.AddHook(h)
}

func entry(f Fields) *logrus.Entry {
	mu.RLock()
	defer mu.RUnlock()
	if len(f) == 0 {
		return logrus.NewEntry(std)
	}
	return std.WithFields(logrus.Fields(f))
}

// Log emits message at level l with the given structured fields.
func (l Level) Log(message string, f Fields) {
	if l == NilLevel {
		return
	}
	e := entry(f)
	switch l {
	case DebugLevel:
		e.Debug(message)
	case InfoLevel:
		e.Info(message)
	case WarnLevel:
		e.Warn(message)
	case ErrorLevel:
		e.Error(message)
	case FatalLevel:
		e.Error(message)
	}
}

// Logf is Log with fmt-style formatting and no structured fields.
func (l Level) Logf(pattern string, args ...interface{}) {
	l.Log(fmt.Sprintf(pattern, args...), nil)
}
