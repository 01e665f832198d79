/*
 * MIT License
 *
 * Copyright (c) 2024 Nicolas JUHEL
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

package config

import (
	"context"

	liblog "github.com/nabbar/recsync/internal/log"
)

// Component is the lifecycle contract cmd/recsyncd's two components
// (the service.Server and the admin HTTP surface) implement. This is a deliberately smaller cut of the corpus's
// ComponentEvent: no Reload, no dependency graph, no flag/monitor
// registration hooks — a single binary service starting its fixed,
// known component list in order needs none of that.
type Component interface {
	Name() string
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
}

// Manager starts components in registration order and stops them in
// reverse, matching config/manage.go's ordering guarantee without its
// dependency-graph machinery.
type Manager struct {
	components []Component
}

// NewManager builds a Manager over the given components, in the order
// they should start.
func NewManager(components ...Component) *Manager {
	return &Manager{components: components}
}

// Start starts every component in order, stopping whatever already
// started if one fails.
func (m *Manager) Start(ctx context.Context) error {
	started := make([]Component, 0, len(m.components))
	for _, c := range m.components {
		if err := c.Start(ctx); err != nil {
			liblog.ErrorLevel.Log("component start failed", liblog.Fields{"component": c.Name(), "error": err.Error()})
			for i := len(started) - 1; i >= 0; i-- {
				started[i].Stop(ctx)
			}
			return err
		}
		liblog.InfoLevel.Log("component started", liblog.Fields{"component": c.Name()})
		started = append(started, c)
	}
	return nil
}

// Stop stops every component in reverse order, best-effort: a failing
// Stop is logged and does not prevent the remaining components from
// being stopped.
func (m *Manager) Stop(ctx context.Context) {
	for i := len(m.components) - 1; i >= 0; i-- {
		c := m.components[i]
		if err := c.Stop(ctx); err != nil {
			liblog.ErrorLevel.Log("component stop failed", liblog.Fields{"component": c.Name(), "error": err.Error()})
			continue
		}
		liblog.InfoLevel.Log("component stopped", liblog.Fields{"component": c.Name()})
	}
}
