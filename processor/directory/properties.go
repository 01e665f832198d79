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

package directory

import (
	"github.com/nabbar/recsync/directoryclient"
)

// standardProperties is the property list every live channel always
// carries (cfstore.py's create_properties).
func standardProperties(owner, at, recceiverID, hostName, iocName, iocIP, iocid string) []directoryclient.Property {
	return []directoryclient.Property{
		{Name: propHostName, Owner: owner, Value: hostName},
		{Name: propIocName, Owner: owner, Value: iocName},
		{Name: propIocID, Owner: owner, Value: iocid},
		{Name: propIocIP, Owner: owner, Value: iocIP},
		{Name: propPvStatus, Owner: owner, Value: statusActive},
		{Name: propTime, Owner: owner, Value: at},
		{Name: propRecceiverID, Owner: owner, Value: recceiverID},
	}
}

func statusProperty(owner, status, at string) []directoryclient.Property {
	return []directoryclient.Property{
		{Name: propPvStatus, Owner: owner, Value: status},
		{Name: propTime, Owner: owner, Value: at},
	}
}

// mergeProperties implements the "Property merge rule": new wins on
// name conflict, old non-managed properties are preserved, old managed
// properties absent from the new list are discarded.
func mergeProperties(newProps, oldProps []directoryclient.Property, managed map[string]struct{}) []directoryclient.Property {
	names := make(map[string]struct{}, len(newProps))
	for _, p := range newProps {
		names[p.Name] = struct{}{}
	}

	out := append([]directoryclient.Property(nil), newProps...)
	for _, p := range oldProps {
		if _, inNew := names[p.Name]; inNew {
			continue
		}
		if _, isManaged := managed[p.Name]; isManaged {
			continue
		}
		out = append(out, p)
	}
	return out
}
