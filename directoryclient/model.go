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

// Package directoryclient is a small REST client for the channel
// directory service consumed by the directory reconciler processor: a
// flat property/channel store reachable over HTTP, matching the
// contract described in the channel-directory service's own resource
// model (properties own channels, channels own a property list).
package directoryclient

// Property is one name/owner/value triple, as both a property
// definition (name+owner only) and a channel's attached property.
type Property struct {
	Name  string `json:"name"`
	Owner string `json:"owner,omitempty"`
	Value string `json:"value,omitempty"`
}

// Channel is a named resource carrying a property list.
type Channel struct {
	Name       string     `json:"name"`
	Owner      string     `json:"owner,omitempty"`
	Properties []Property `json:"properties,omitempty"`
}

// FindArg is one (key, value) constraint of a findByArgs query. The
// reserved keys "~size" and "~name" carry the result-size limit and a
// '|'-separated name alternation, matching the directory service's own
// query-string conventions.
type FindArg struct {
	Key   string
	Value string
}
