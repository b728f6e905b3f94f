// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.
package mqtt

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"time"

	"github.com/dev-BJ/CleanEnv-Dashboard/internal/options"
	"github.com/dev-BJ/CleanEnv-Dashboard/internal/wallclock"
	"github.com/eclipse/paho.golang/packets"
	"github.com/gorilla/websocket"
)

// ConnectionProvider is a function that returns a net.Conn connected to an
// MQTT server that is ready to read to and write from. Note that the returned
// net.Conn must be thread-safe (i.e., concurrent Write calls must not
// interleave).
type ConnectionProvider func(context.Context) (net.Conn, error)

// TLSConfigProvider is a function that returns a *tls.Config to be used when
// opening a TLS connection to an MQTT server. See tls.Config for more
// information on TLS configuration options.
type TLSConfigProvider func(context.Context) (*tls.Config, error)

// ConstantTLSConfig is a TLSConfigProvider that returns an unchanging
// *tls.Config. This can be used if the TLS configuration does not need to be
// updated between network connections to the MQTT server.
func ConstantTLSConfig(config *tls.Config) TLSConfigProvider {
	return func(context.Context) (*tls.Config, error) {
		return config, nil
	}
}

// TCPConnection is a ConnectionProvider that connects to an MQTT server over
// TCP.
func TCPConnection(hostname string, port int) ConnectionProvider {
	return func(ctx context.Context) (net.Conn, error) {
		var d net.Dialer
		conn, err := d.DialContext(
			ctx,
			"tcp",
			fmt.Sprintf("%s:%d", hostname, port),
		)
		if err != nil {
			return nil, &ConnectionError{
				message: "error opening TCP connection",
				wrapped: err,
			}
		}
		return packets.NewThreadSafeConn(conn), nil
	}
}

type (
	// WebSocketOptions are the resolved options for WebSocketConnection.
	WebSocketOptions struct {
		TLSConfig        TLSConfigProvider
		Header           http.Header
		HandshakeTimeout time.Duration
	}

	// WebSocketOption represents a single WebSocket connection option.
	WebSocketOption interface{ webSocket(*WebSocketOptions) }

	// WithTLSConfig sets the TLS configuration used for wss:// URLs.
	WithTLSConfig TLSConfigProvider

	// WithHeader sets extra HTTP headers sent with the upgrade request.
	WithHeader http.Header

	// WithHandshakeTimeout bounds the HTTP upgrade handshake.
	WithHandshakeTimeout time.Duration
)

func (o WithTLSConfig) webSocket(opt *WebSocketOptions) {
	opt.TLSConfig = TLSConfigProvider(o)
}

func (o WithHeader) webSocket(opt *WebSocketOptions) {
	opt.Header = http.Header(o)
}

func (o WithHandshakeTimeout) webSocket(opt *WebSocketOptions) {
	opt.HandshakeTimeout = time.Duration(o)
}

// Apply resolves the provided list of options.
func (o *WebSocketOptions) Apply(
	opts []WebSocketOption,
	rest ...WebSocketOption,
) {
	for opt := range options.Apply[WebSocketOption](opts, rest...) {
		opt.webSocket(o)
	}
}

// WebSocketConnection is a ConnectionProvider that connects to an MQTT server
// through a ws:// or wss:// URL using the "mqtt" WebSocket sub-protocol.
func WebSocketConnection(
	serverURL string,
	opts ...WebSocketOption,
) ConnectionProvider {
	var opt WebSocketOptions
	opt.Apply(opts)

	return func(ctx context.Context) (net.Conn, error) {
		u, err := url.Parse(serverURL)
		if err != nil {
			return nil, &InvalidArgumentError{
				message: "invalid WebSocket URL",
				wrapped: err,
			}
		}
		if u.Scheme != "ws" && u.Scheme != "wss" {
			return nil, &InvalidArgumentError{
				message: fmt.Sprintf("unsupported URL scheme %q", u.Scheme),
			}
		}

		d := websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: opt.HandshakeTimeout,
			Subprotocols:     []string{"mqtt"},
		}

		if u.Scheme == "wss" && opt.TLSConfig != nil {
			config, err := opt.TLSConfig(ctx)
			if err != nil {
				return nil, &ConnectionError{
					message: "error getting TLS configuration",
					wrapped: err,
				}
			}
			d.TLSClientConfig = config
		}

		ws, _, err := d.DialContext(ctx, u.String(), opt.Header)
		if err != nil {
			return nil, &ConnectionError{
				message: "error opening WebSocket connection",
				wrapped: err,
			}
		}
		return packets.NewThreadSafeConn(&webSocketConn{Conn: ws}), nil
	}
}

// webSocketConn adapts a message-oriented WebSocket to the byte stream paho
// expects. MQTT control packets may span or share binary frames.
type webSocketConn struct {
	*websocket.Conn
	reader io.Reader
}

func (c *webSocketConn) Read(p []byte) (int, error) {
	for {
		if c.reader == nil {
			typ, r, err := c.NextReader()
			if err != nil {
				return 0, err
			}
			if typ != websocket.BinaryMessage {
				continue
			}
			c.reader = r
		}

		n, err := c.reader.Read(p)
		if errors.Is(err, io.EOF) {
			c.reader = nil
			if n == 0 {
				continue
			}
			err = nil
		}
		return n, err
	}
}

func (c *webSocketConn) Write(p []byte) (int, error) {
	if err := c.WriteMessage(websocket.BinaryMessage, p); err != nil {
		return 0, err
	}
	return len(p), nil
}

func (c *webSocketConn) SetDeadline(t time.Time) error {
	if err := c.SetReadDeadline(t); err != nil {
		return err
	}
	return c.SetWriteDeadline(t)
}

func (c *webSocketConn) Close() error {
	_ = c.WriteControl(
		websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		wallclock.Instance.Now().Add(time.Second),
	)
	return c.Conn.Close()
}
