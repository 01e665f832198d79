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

package directoryclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	liberr "github.com/nabbar/recsync/errors"
)

// Client is the set of directory-service operations the reconciler
// relies on: read the property schema, create/update a single property
// definition, bulk-upsert channels, bulk-update one property value
// across many channels by name, and search channels by a list of
// constraints.
type Client interface {
	GetAllProperties(ctx context.Context) ([]Property, liberr.Error)
	SetProperty(ctx context.Context, prop Property) liberr.Error
	SetChannels(ctx context.Context, channels []Channel) liberr.Error
	UpdateProperty(ctx context.Context, prop Property, channelNames []string) liberr.Error
	FindByArgs(ctx context.Context, args []FindArg) ([]Channel, liberr.Error)
}

type httpClient struct {
	base *url.URL
	cli  *http.Client
}

// New builds a Client against baseURL (e.g. "https://cf.example.org/ChannelFinder").
// When cli is nil a client with a 30s timeout is used, matching the
// corpus's convention of a safe default rather than an unbounded one.
func New(baseURL string, cli *http.Client) (Client, liberr.Error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, ErrBuildRequest.Error(err)
	}
	if cli == nil {
		cli = &http.Client{Timeout: 30 * time.Second}
	}
	return &httpClient{base: u, cli: cli}, nil
}

func (c *httpClient) endpoint(parts ...string) *url.URL {
	u := *c.base
	for _, p := range parts {
		u.Path = u.Path + "/" + p
	}
	return &u
}

func (c *httpClient) do(ctx context.Context, method string, u *url.URL, body interface{}, out interface{}) liberr.Error {
	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return ErrEncodeRequest.Error(err)
		}
		reader = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, u.String(), reader)
	if err != nil {
		return ErrBuildRequest.Error(err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	res, err := c.cli.Do(req)
	if err != nil {
		return ErrDoRequest.Error(err)
	}
	defer func() { _ = res.Body.Close() }()

	if res.StatusCode < 200 || res.StatusCode >= 300 {
		return ErrStatusCode.Error(fmt.Errorf("status %d calling %s", res.StatusCode, u.String()))
	}

	if out == nil {
		return nil
	}
	if err = json.NewDecoder(res.Body).Decode(out); err != nil {
		return ErrDecodeResponse.Error(err)
	}
	return nil
}

func (c *httpClient) GetAllProperties(ctx context.Context) ([]Property, liberr.Error) {
	var props []Property
	if e := c.do(ctx, http.MethodGet, c.endpoint("resources", "properties"), nil, &props); e != nil {
		return nil, e
	}
	return props, nil
}

func (c *httpClient) SetProperty(ctx context.Context, prop Property) liberr.Error {
	return c.do(ctx, http.MethodPut, c.endpoint("resources", "properties", prop.Name), prop, nil)
}

func (c *httpClient) SetChannels(ctx context.Context, channels []Channel) liberr.Error {
	if len(channels) == 0 {
		return nil
	}
	return c.do(ctx, http.MethodPut, c.endpoint("resources", "channels"), channels, nil)
}

func (c *httpClient) UpdateProperty(ctx context.Context, prop Property, channelNames []string) liberr.Error {
	if len(channelNames) == 0 {
		return nil
	}
	u := c.endpoint("resources", "properties", prop.Name)
	q := u.Query()
	for _, n := range channelNames {
		q.Add("channelName", n)
	}
	u.RawQuery = q.Encode()
	return c.do(ctx, http.MethodPost, u, prop, nil)
}

func (c *httpClient) FindByArgs(ctx context.Context, args []FindArg) ([]Channel, liberr.Error) {
	u := c.endpoint("resources", "channels")
	q := u.Query()
	for _, a := range args {
		q.Add(a.Key, a.Value)
	}
	u.RawQuery = q.Encode()

	var channels []Channel
	if e := c.do(ctx, http.MethodGet, u, nil, &channels); e != nil {
		return nil, e
	}
	return channels, nil
}

// sizeArg builds the "~size" find constraint, matching prepareFindArgs'
// conditional inclusion only when a positive limit is configured.
func sizeArg(limit int) (FindArg, bool) {
	if limit <= 0 {
		return FindArg{}, false
	}
	return FindArg{Key: "~size", Value: strconv.Itoa(limit)}, true
}
