// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.
package telemetry

import (
	"crypto/tls"
	"net/url"
	"strings"
	"time"
)

type (
	// Config describes a broker session.
	Config struct {
		// BrokerURL must use the ws:// or wss:// scheme.
		BrokerURL string

		// Topics are subscribed independently on every connection.
		Topics []string

		Options ClientOptions
	}

	// ClientOptions tune the transport. Zero values take the defaults.
	ClientOptions struct {
		ClientID string
		Username string
		Password string

		// PersistentSession disables clean-session semantics.
		PersistentSession bool

		ConnectTimeout  time.Duration
		ReconnectPeriod time.Duration
		KeepAlive       time.Duration

		// ProtocolVersion selects MQTT 3.1.1 (4) or MQTT 5 (5).
		ProtocolVersion byte

		// TLSConfig is used for wss:// brokers.
		TLSConfig *tls.Config
	}
)

const (
	DefaultConnectTimeout  = 4 * time.Second
	DefaultReconnectPeriod = time.Second
	DefaultKeepAlive       = 60 * time.Second

	ProtocolVersion311 byte = 4
	ProtocolVersion5   byte = 5
)

const (
	errMissingFields = "Broker URL and at least one topic must be provided."
	errBadScheme     = "Invalid protocol. Broker URL in a web client must " +
		"start with ws:// or wss://."
)

// ParseTopics splits a comma-separated topic list, trimming whitespace and
// dropping empty entries.
func ParseTopics(list string) []string {
	return compactTopics(strings.Split(list, ","))
}

func compactTopics(topics []string) []string {
	out := make([]string, 0, len(topics))
	for _, t := range topics {
		if t = strings.TrimSpace(t); t != "" {
			out = append(out, t)
		}
	}
	return out
}

// Validate checks the configuration without touching the network.
func (c *Config) Validate() error {
	_, err := c.resolve()
	return err
}

// Returns a copy with topics compacted and defaults applied.
func (c *Config) resolve() (Config, error) {
	res := *c
	res.BrokerURL = strings.TrimSpace(c.BrokerURL)
	res.Topics = compactTopics(c.Topics)

	switch {
	case res.BrokerURL == "":
		return res, &ConfigError{Field: "brokerUrl", message: errMissingFields}
	case len(res.Topics) == 0:
		return res, &ConfigError{Field: "topics", message: errMissingFields}
	}

	if !strings.HasPrefix(res.BrokerURL, "ws://") &&
		!strings.HasPrefix(res.BrokerURL, "wss://") {
		return res, &ConfigError{Field: "brokerUrl", message: errBadScheme}
	}
	if _, err := url.Parse(res.BrokerURL); err != nil {
		return res, &ConfigError{Field: "brokerUrl", message: errBadScheme}
	}

	o := &res.Options
	switch o.ProtocolVersion {
	case 0:
		o.ProtocolVersion = ProtocolVersion5
	case ProtocolVersion311, ProtocolVersion5:
	default:
		return res, &ConfigError{
			Field:   "protocolVersion",
			message: "Unsupported MQTT protocol version; use 4 or 5.",
		}
	}
	if o.ConnectTimeout <= 0 {
		o.ConnectTimeout = DefaultConnectTimeout
	}
	if o.ReconnectPeriod <= 0 {
		o.ReconnectPeriod = DefaultReconnectPeriod
	}
	if o.KeepAlive <= 0 {
		o.KeepAlive = DefaultKeepAlive
	}
	return res, nil
}
