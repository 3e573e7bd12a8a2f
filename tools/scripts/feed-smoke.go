// Package main provides a CI-friendly smoke test for a running flussauth.
//
// It validates:
//   - feed handshake + subprotocol selection
//   - hello/ack session establishment
//   - filter echo
//   - an /auth request shows up on the feed with a masked token
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	v1 "flussauth/pkg/contracts/accesslog/v1"

	"github.com/coder/websocket"
	"github.com/spf13/pflag"
)

const maxReadBytes = 1 << 20 // 1MiB

type feedClient struct {
	conn      *websocket.Conn
	sessionID string

	inbox chan v1.Envelope
	errCh chan error
}

func main() {
	var (
		baseURL = pflag.String("url", "http://127.0.0.1:8080", "flussauth base URL")
		origin  = pflag.String("origin", "http://localhost", "Origin header for the feed handshake")
		apiKey  = pflag.String("api-key", os.Getenv("FLUSSAUTH_API_KEY"), "management API key")
		tok     = pflag.String("token", "", "token to authorize (an unknown token still produces a denied entry)")
		stream  = pflag.String("stream", "smoke-stream", "stream name")
		ip      = pflag.String("ip", "203.0.113.7", "client address reported to /auth")
		timeout = pflag.Duration("timeout", 7*time.Second, "per-step timeout")
		verbose = pflag.BoolP("verbose", "v", false, "verbose output")
	)
	pflag.Parse()

	base, err := url.Parse(*baseURL)
	if err != nil || (base.Scheme != "http" && base.Scheme != "https") || base.Host == "" {
		fatalf("invalid --url %q", *baseURL)
	}
	if strings.TrimSpace(*tok) == "" {
		*tok = fmt.Sprintf("smoke-%d", time.Now().UnixNano())
	}

	root := context.Background()
	c := mustConnect(root, feedURL(base, *apiKey), *origin, *timeout)
	defer func() { _ = c.conn.Close(websocket.StatusNormalClosure, "bye") }()
	if *verbose {
		fmt.Printf("connected: session=%s\n", c.sessionID)
	}

	mustFilter(root, c, v1.FilterPayload{StreamName: *stream}, *timeout)

	status := mustAuth(root, base, *stream, *ip, *tok, *timeout)
	if *verbose {
		fmt.Printf("/auth status=%d\n", status)
	}

	entry := mustReadEntry(root, c, *timeout)
	if entry.StreamName != *stream || entry.ClientIP != *ip {
		fatalf("entry mismatch: stream=%q ip=%q", entry.StreamName, entry.ClientIP)
	}
	if strings.Contains(entry.TokenPrefix, *tok) && len(*tok) > 6 {
		fatalf("feed leaked the full token")
	}
	wantResult := "denied"
	if status == http.StatusOK {
		wantResult = "allowed"
	}
	if entry.Result != wantResult {
		fatalf("result mismatch: got=%q want=%q", entry.Result, wantResult)
	}

	fmt.Printf("OK: session=%s result=%s reason=%s entry=%s\n", c.sessionID, entry.Result, entry.Reason, entry.EntryID)
}

func feedURL(base *url.URL, apiKey string) string {
	u := *base
	u.Scheme = "ws"
	if base.Scheme == "https" {
		u.Scheme = "wss"
	}
	u.Path = strings.TrimRight(u.Path, "/") + "/api/access-logs/ws"
	if apiKey != "" {
		q := u.Query()
		q.Set("api_key", apiKey)
		u.RawQuery = q.Encode()
	}
	return u.String()
}

func mustConnect(parent context.Context, wsURL, origin string, stepTimeout time.Duration) *feedClient {
	ctx, cancel := context.WithTimeout(parent, stepTimeout)
	defer cancel()

	h := http.Header{}
	if strings.TrimSpace(origin) != "" {
		h.Set("Origin", origin)
	}
	conn, resp, err := websocket.Dial(ctx, wsURL, &websocket.DialOptions{
		Subprotocols: []string{v1.Subprotocol},
		HTTPHeader:   h,
	})
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		fatalf("connect: %v", err)
	}
	if got := conn.Subprotocol(); got != v1.Subprotocol {
		fatalf("subprotocol mismatch: got=%q want=%q", got, v1.Subprotocol)
	}
	conn.SetReadLimit(maxReadBytes)

	c := &feedClient{
		conn:  conn,
		inbox: make(chan v1.Envelope, 512),
		errCh: make(chan error, 1),
	}
	c.startReadLoop()

	mustWrite(parent, conn, envelope(v1.TypeHello, v1.HelloPayload{}), stepTimeout)
	ack := c.mustReadUntilType(parent, v1.TypeHelloAck, stepTimeout)

	var p v1.HelloAckPayload
	if err := json.Unmarshal(ack.Payload, &p); err != nil {
		fatalf("unmarshal hello_ack payload: %v", err)
	}
	if strings.TrimSpace(p.SessionID) == "" {
		fatalf("hello_ack missing session_id")
	}
	c.sessionID = p.SessionID
	return c
}

func mustFilter(parent context.Context, c *feedClient, f v1.FilterPayload, stepTimeout time.Duration) {
	mustWrite(parent, c.conn, envelope(v1.TypeFilter, f), stepTimeout)
	echo := c.mustReadUntilType(parent, v1.TypeFilter, stepTimeout)

	var got v1.FilterPayload
	if err := json.Unmarshal(echo.Payload, &got); err != nil {
		fatalf("unmarshal filter echo: %v", err)
	}
	if got != f {
		fatalf("filter echo mismatch: got=%+v want=%+v", got, f)
	}
}

func mustAuth(parent context.Context, base *url.URL, stream, ip, tok string, stepTimeout time.Duration) int {
	ctx, cancel := context.WithTimeout(parent, stepTimeout)
	defer cancel()

	u := *base
	u.Path = strings.TrimRight(u.Path, "/") + "/auth"
	u.RawQuery = url.Values{"name": {stream}, "ip": {ip}, "token": {tok}, "proto": {"hls"}}.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		fatalf("build /auth request: %v", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		fatalf("/auth: %v", err)
	}
	_ = resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK, http.StatusForbidden:
		return resp.StatusCode
	default:
		fatalf("/auth unexpected status %d", resp.StatusCode)
		return 0
	}
}

func mustReadEntry(parent context.Context, c *feedClient, stepTimeout time.Duration) v1.AccessLogPayload {
	env := c.mustReadUntilType(parent, v1.TypeAccessLog, stepTimeout)
	var p v1.AccessLogPayload
	if err := json.Unmarshal(env.Payload, &p); err != nil {
		fatalf("unmarshal access_log payload: %v", err)
	}
	if p.EntryID == "" || p.OccurredAt.IsZero() {
		fatalf("access_log entry missing id or timestamp")
	}
	return p
}

func (c *feedClient) startReadLoop() {
	go func() {
		defer close(c.inbox)
		for {
			_, data, err := c.conn.Read(context.Background())
			if err != nil {
				c.fail(err)
				return
			}
			var env v1.Envelope
			if err := json.Unmarshal(data, &env); err != nil {
				c.fail(fmt.Errorf("bad json: %w", err))
				return
			}
			if err := env.Validate(); err != nil {
				c.fail(fmt.Errorf("bad envelope: %w", err))
				return
			}
			select {
			case c.inbox <- env:
			default:
				c.fail(errors.New("inbox overflow: consumer too slow"))
				return
			}
		}
	}()
}

func (c *feedClient) fail(err error) {
	select {
	case c.errCh <- err:
	default:
	}
}

// mustReadUntilType skips entries of other types except errors, which are fatal.
func (c *feedClient) mustReadUntilType(parent context.Context, wantType string, stepTimeout time.Duration) v1.Envelope {
	ctx, cancel := context.WithTimeout(parent, stepTimeout)
	defer cancel()

	for {
		select {
		case <-ctx.Done():
			fatalf("timeout waiting for %q: %v", wantType, ctx.Err())
		case err := <-c.errCh:
			fatalf("connection error while waiting for %q: %v", wantType, err)
		case env, ok := <-c.inbox:
			if !ok {
				fatalf("connection closed while waiting for %q", wantType)
			}
			if env.Type == wantType {
				return env
			}
			if env.Type == v1.TypeError {
				var ep v1.ErrorPayload
				_ = json.Unmarshal(env.Payload, &ep)
				fatalf("server error: code=%q msg=%q", ep.Code, ep.Message)
			}
		}
	}
}

func envelope(typ string, payload any) v1.Envelope {
	b, err := json.Marshal(payload)
	if err != nil {
		panic(err)
	}
	return v1.Envelope{
		V:       v1.Version,
		Type:    typ,
		ID:      fmt.Sprintf("smoke-%s-%d", typ, time.Now().UnixNano()),
		TS:      time.Now().UTC(),
		Payload: b,
	}
}

func mustWrite(parent context.Context, conn *websocket.Conn, env v1.Envelope, stepTimeout time.Duration) {
	ctx, cancel := context.WithTimeout(parent, stepTimeout)
	defer cancel()

	b, err := json.Marshal(env)
	if err != nil {
		fatalf("marshal envelope: %v", err)
	}
	if err := conn.Write(ctx, websocket.MessageText, b); err != nil {
		fatalf("write failed: %v", err)
	}
}

func fatalf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "FAIL: "+format+"\n", args...)
	os.Exit(1)
}
