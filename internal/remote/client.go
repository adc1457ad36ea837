// Package remote talks to the attendance endpoint. All four operations go
// through one URL and differ only by verb, query string and body.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strconv"
	"time"

	"github.com/valyala/fasthttp"

	"github.com/puce/registro/internal/attendance"
	"github.com/puce/registro/internal/logging"
)

const (
	opAuthenticate   = "authenticate"
	opListUsers      = "list users"
	opSubmit         = "submit attendance"
	opListAttendance = "list attendance"
)

// Options configures a Client.
type Options struct {
	// Endpoint is the remote resource URL.
	Endpoint string
	// Relay rewrites the endpoint URL. Nil means Direct.
	Relay Relay
	// Timeout bounds each request. Zero leaves the transport default.
	Timeout time.Duration
	// HTTP overrides the transport, mostly for tests.
	HTTP   *fasthttp.Client
	Logger *slog.Logger
}

// Client issues the attendance endpoint calls.
type Client struct {
	endpoint string
	relay    Relay
	timeout  time.Duration
	http     *fasthttp.Client
	logger   *slog.Logger
}

// New builds a Client from opts.
func New(opts Options) (*Client, error) {
	if opts.Endpoint == "" {
		return nil, fmt.Errorf("remote endpoint is required")
	}
	if _, err := url.ParseRequestURI(opts.Endpoint); err != nil {
		return nil, fmt.Errorf("parse remote endpoint: %w", err)
	}
	c := &Client{
		endpoint: opts.Endpoint,
		relay:    opts.Relay,
		timeout:  opts.Timeout,
		http:     opts.HTTP,
		logger:   opts.Logger,
	}
	if c.relay == nil {
		c.relay = Direct{}
	}
	if c.http == nil {
		c.http = &fasthttp.Client{Name: "registro", DisablePathNormalizing: true}
	}
	if c.logger == nil {
		c.logger = logging.Discard()
	}
	return c, nil
}

// Authenticate looks up the identity for a credential pair. It returns
// attendance.ErrNotFound when the remote answers without an identity.
func (c *Client) Authenticate(ctx context.Context, user, pass string) (attendance.Identity, error) {
	body, err := c.do(ctx, opAuthenticate, fasthttp.MethodGet, url.Values{"user": {user}, "pass": {pass}}, nil)
	if err != nil {
		return attendance.Identity{}, err
	}
	body = bytes.TrimSpace(body)
	if len(body) == 0 {
		return attendance.Identity{}, attendance.ErrNotFound
	}
	switch body[0] {
	case '[':
		var ids []attendance.Identity
		if err := json.Unmarshal(body, &ids); err != nil {
			return attendance.Identity{}, &attendance.ConnectionError{Op: opAuthenticate, Err: err}
		}
		if len(ids) == 0 {
			return attendance.Identity{}, attendance.ErrNotFound
		}
		return ids[0], nil
	case '{':
		var id attendance.Identity
		if err := json.Unmarshal(body, &id); err != nil {
			return attendance.Identity{}, &attendance.ConnectionError{Op: opAuthenticate, Err: err}
		}
		if id.RecordID == 0 {
			return attendance.Identity{}, attendance.ErrNotFound
		}
		return id, nil
	}
	if !json.Valid(body) {
		return attendance.Identity{}, &attendance.ConnectionError{Op: opAuthenticate, Err: errors.New("response is not JSON")}
	}
	return attendance.Identity{}, attendance.ErrNotFound
}

// ListUsers returns every identity known to the remote.
func (c *Client) ListUsers(ctx context.Context) ([]attendance.Identity, error) {
	body, err := c.do(ctx, opListUsers, fasthttp.MethodGet, nil, nil)
	if err != nil {
		return nil, err
	}
	ids := []attendance.Identity{}
	if err := decodeList(body, &ids); err != nil {
		return nil, &attendance.ConnectionError{Op: opListUsers, Err: err}
	}
	return ids, nil
}

type submitRequest struct {
	RecordUser int64 `json:"record_user"`
	JoinUser   int64 `json:"join_user"`
}

// SubmitAttendance records attendance for recordID. The record is sent in
// both body fields. Success requires an explicit success flag or status.
func (c *Client) SubmitAttendance(ctx context.Context, recordID int64) (bool, error) {
	payload, err := json.Marshal(submitRequest{RecordUser: recordID, JoinUser: recordID})
	if err != nil {
		return false, err
	}
	body, err := c.do(ctx, opSubmit, fasthttp.MethodPost, nil, payload)
	if err != nil {
		return false, err
	}
	body = bytes.TrimSpace(body)
	if len(body) == 0 || body[0] != '{' {
		if len(body) > 0 && !json.Valid(body) {
			return false, &attendance.ConnectionError{Op: opSubmit, Err: errors.New("response is not JSON")}
		}
		// An empty, array or scalar body carries no success field.
		return false, nil
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(body, &fields); err != nil {
		return false, &attendance.ConnectionError{Op: opSubmit, Err: err}
	}
	// Each field is read on its own so an oddly typed neighbour cannot
	// hide an explicit success.
	var success bool
	if raw, ok := fields["success"]; ok && json.Unmarshal(raw, &success) == nil && success {
		return true, nil
	}
	var status string
	if raw, ok := fields["status"]; ok && json.Unmarshal(raw, &status) == nil && status == "success" {
		return true, nil
	}
	if raw, ok := fields["message"]; ok && string(raw) != "null" && string(raw) != `""` {
		c.logger.Warn("ambiguous submit response treated as failure",
			slog.Int64("record", recordID),
			slog.String("message", string(raw)),
		)
	}
	return false, nil
}

// ListAttendance returns the attendance history for recordID.
func (c *Client) ListAttendance(ctx context.Context, recordID int64) ([]attendance.Entry, error) {
	body, err := c.do(ctx, opListAttendance, fasthttp.MethodGet, url.Values{"record": {strconv.FormatInt(recordID, 10)}}, nil)
	if err != nil {
		return nil, err
	}
	entries := []attendance.Entry{}
	if err := decodeList(body, &entries); err != nil {
		return nil, &attendance.ConnectionError{Op: opListAttendance, Err: err}
	}
	return entries, nil
}

func (c *Client) do(ctx context.Context, op, method string, query url.Values, payload []byte) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, &attendance.ConnectionError{Op: op, Err: err}
	}
	target := c.endpoint
	if len(query) > 0 {
		target += "?" + query.Encode()
	}

	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseRequest(req)
	defer fasthttp.ReleaseResponse(resp)

	req.SetRequestURI(c.relay.Route(target))
	req.Header.SetMethod(method)
	req.Header.SetContentType("application/json")
	if payload != nil {
		req.SetBody(payload)
	}

	start := time.Now()
	var err error
	if deadline, ok := ctx.Deadline(); ok {
		err = c.http.DoDeadline(req, resp, deadline)
	} else if c.timeout > 0 {
		err = c.http.DoTimeout(req, resp, c.timeout)
	} else {
		err = c.http.Do(req, resp)
	}
	// Credentials ride in the query string; log the operation, not the URL.
	c.logger.Debug("remote call",
		slog.String("op", op),
		slog.String("method", method),
		slog.Int("status", resp.StatusCode()),
		slog.Duration("duration", time.Since(start)),
	)
	if err != nil {
		return nil, &attendance.ConnectionError{Op: op, Err: err}
	}
	status := resp.StatusCode()
	if status < 200 || status > 299 {
		c.logger.Debug("remote error body", slog.String("op", op), slog.String("body", string(resp.Body())))
		return nil, &attendance.ConnectionError{Op: op, Status: status}
	}
	body := make([]byte, len(resp.Body()))
	copy(body, resp.Body())
	return body, nil
}

// decodeList decodes a JSON array into out. Any other JSON shape yields an
// empty list; malformed JSON is an error.
func decodeList(body []byte, out any) error {
	body = bytes.TrimSpace(body)
	if len(body) == 0 || body[0] != '[' {
		if len(body) > 0 && !json.Valid(body) {
			return errors.New("response is not JSON")
		}
		return nil
	}
	return json.Unmarshal(body, out)
}
