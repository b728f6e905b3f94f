// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.

// Package config loads the tegmon service configuration. Values are layered:
// built-in defaults, then an optional YAML file, then environment variables,
// then command-line flags.
package config

import (
	"encoding"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/dev-BJ/CleanEnv-Dashboard/mqtt"
	"github.com/dev-BJ/CleanEnv-Dashboard/telemetry"
	"github.com/spf13/pflag"
	"gopkg.in/yaml.v3"
)

// FileEnv names the environment variable holding the config file path.
const FileEnv = "TEGMON_CONFIG"

type (
	// Config is the full service configuration.
	Config struct {
		Listen         string   `yaml:"listen"         env:"TEGMON_LISTEN"`
		AllowedOrigins []string `yaml:"allowedOrigins" env:"TEGMON_ALLOWED_ORIGINS"`

		// AutoConnect opens a session on startup when the broker settings
		// are complete.
		AutoConnect bool `yaml:"autoConnect" env:"TEGMON_AUTO_CONNECT"`

		Log       Log       `yaml:"log"`
		MQTT      MQTT      `yaml:"mqtt"`
		Telemetry Telemetry `yaml:"telemetry"`
	}

	// Log selects the log handler.
	Log struct {
		// Level is one of debug, info, warn or error.
		Level string `yaml:"level" env:"TEGMON_LOG_LEVEL"`

		// Format is text (colorized) or json.
		Format string `yaml:"format" env:"TEGMON_LOG_FORMAT"`
	}

	// MQTT holds the broker defaults. The environment keys match the ones
	// the device dashboard has always read.
	MQTT struct {
		BrokerURL string   `yaml:"brokerUrl" env:"MQTT_BROKER_URL"`
		Topics    []string `yaml:"topics"    env:"MQTT_TOPIC"`
		Username  string   `yaml:"username"  env:"MQTT_USERNAME"`
		Password  string   `yaml:"password"  env:"MQTT_PASSWORD"`
		ClientID  string   `yaml:"clientId"  env:"MQTT_CLIENT_ID"`

		ProtocolVersion   uint8 `yaml:"protocolVersion"   env:"MQTT_PROTOCOL_VERSION"`
		PersistentSession bool  `yaml:"persistentSession" env:"MQTT_PERSISTENT_SESSION"`

		ConnectTimeout  Duration `yaml:"connectTimeout"  env:"MQTT_CONNECT_TIMEOUT"`
		ReconnectPeriod Duration `yaml:"reconnectPeriod" env:"MQTT_RECONNECT_PERIOD"`
		KeepAlive       Duration `yaml:"keepAlive"       env:"MQTT_KEEP_ALIVE"`

		TLS TLS `yaml:"tls"`
	}

	// TLS names the PEM files for wss:// brokers.
	TLS struct {
		CAFile      string `yaml:"caFile"      env:"MQTT_TLS_CA_FILE"`
		CertFile    string `yaml:"certFile"    env:"MQTT_TLS_CERT_FILE"`
		KeyFile     string `yaml:"keyFile"     env:"MQTT_TLS_KEY_FILE"`
		KeyPassword string `yaml:"keyPassword" env:"MQTT_TLS_KEY_PASSWORD"`
	}

	// Telemetry tunes the session controller.
	Telemetry struct {
		LivenessWindow     Duration `yaml:"livenessWindow"     env:"TEGMON_LIVENESS_WINDOW"`
		QualityInterval    Duration `yaml:"qualityInterval"    env:"TEGMON_QUALITY_INTERVAL"`
		ExcellentThreshold Duration `yaml:"excellentThreshold" env:"TEGMON_EXCELLENT_THRESHOLD"`
		GoodThreshold      Duration `yaml:"goodThreshold"      env:"TEGMON_GOOD_THRESHOLD"`
	}
)

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Listen:         ":8080",
		AllowedOrigins: []string{"*"},
		Log:            Log{Level: "info", Format: "text"},
		MQTT: MQTT{
			ProtocolVersion: telemetry.ProtocolVersion5,
			ConnectTimeout:  Duration(telemetry.DefaultConnectTimeout),
			ReconnectPeriod: Duration(telemetry.DefaultReconnectPeriod),
			KeepAlive:       Duration(telemetry.DefaultKeepAlive),
		},
		Telemetry: Telemetry{
			LivenessWindow:     Duration(telemetry.DefaultLivenessWindow),
			QualityInterval:    Duration(telemetry.DefaultQualityInterval),
			ExcellentThreshold: Duration(telemetry.DefaultThresholds.Excellent),
			GoodThreshold:      Duration(telemetry.DefaultThresholds.Good),
		},
	}
}

// Load builds the configuration from the defaults, the file at path (if
// non-empty; TOML when it ends in .toml, YAML otherwise) and the environment
// as reported by lookup. A nil lookup reads the process environment.
func Load(path string, lookup func(string) (string, bool)) (*Config, error) {
	if lookup == nil {
		lookup = os.LookupEnv
	}

	cfg := Default()
	if path != "" {
		if err := loadFromFile(path, cfg); err != nil {
			return nil, err
		}
	}
	if err := populateFromEnv(reflect.ValueOf(cfg).Elem(), lookup); err != nil {
		return nil, err
	}
	return cfg, nil
}

func loadFromFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config %s: %w", path, err)
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		_, err = toml.Decode(string(data), cfg)
	default:
		err = yaml.Unmarshal(data, cfg)
	}
	if err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}
	return nil
}

var textUnmarshaler = reflect.TypeFor[encoding.TextUnmarshaler]()

func populateFromEnv(v reflect.Value, lookup func(string) (string, bool)) error {
	t := v.Type()
	for i := range t.NumField() {
		field := t.Field(i)
		value := v.Field(i)
		if !field.IsExported() {
			continue
		}

		key := field.Tag.Get("env")
		if key == "" {
			if field.Type.Kind() == reflect.Struct {
				if err := populateFromEnv(value, lookup); err != nil {
					return err
				}
			}
			continue
		}

		raw, ok := lookup(key)
		if !ok {
			continue
		}
		if err := assign(value, strings.TrimSpace(raw)); err != nil {
			return fmt.Errorf("env %s: %w", key, err)
		}
	}
	return nil
}

func assign(value reflect.Value, raw string) error {
	if value.CanAddr() && value.Addr().Type().Implements(textUnmarshaler) {
		u := value.Addr().Interface().(encoding.TextUnmarshaler)
		return u.UnmarshalText([]byte(raw))
	}

	switch value.Kind() {
	case reflect.String:
		value.SetString(raw)
	case reflect.Bool:
		b, err := strconv.ParseBool(raw)
		if err != nil {
			return err
		}
		value.SetBool(b)
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		n, err := strconv.ParseInt(raw, 10, value.Type().Bits())
		if err != nil {
			return err
		}
		value.SetInt(n)
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		n, err := strconv.ParseUint(raw, 10, value.Type().Bits())
		if err != nil {
			return err
		}
		value.SetUint(n)
	case reflect.Slice:
		if value.Type().Elem().Kind() != reflect.String {
			return fmt.Errorf("unsupported slice type %s", value.Type())
		}
		value.Set(reflect.ValueOf(telemetry.ParseTopics(raw)))
	default:
		return fmt.Errorf("unsupported kind %s", value.Kind())
	}
	return nil
}

// AddFlags binds command-line overrides to the configuration. The current
// values become the flag defaults, so call it after Load.
func (c *Config) AddFlags(flagSet *pflag.FlagSet) {
	flagSet.StringVar(&c.Listen, "listen", c.Listen, "HTTP listen address")
	flagSet.StringSliceVar(&c.AllowedOrigins, "allowed-origin", c.AllowedOrigins, "CORS origin allowed to call the API (repeatable)")
	flagSet.BoolVar(&c.AutoConnect, "auto-connect", c.AutoConnect, "connect to the configured broker on startup")
	flagSet.StringVar(&c.Log.Level, "log-level", c.Log.Level, "log level: debug, info, warn or error")
	flagSet.StringVar(&c.Log.Format, "log-format", c.Log.Format, "log format: text or json")

	flagSet.StringVar(&c.MQTT.BrokerURL, "broker", c.MQTT.BrokerURL, "broker URL (ws:// or wss://)")
	flagSet.StringSliceVar(&c.MQTT.Topics, "topic", c.MQTT.Topics, "topic to subscribe to (repeatable)")
	flagSet.StringVar(&c.MQTT.Username, "username", c.MQTT.Username, "broker username")
	flagSet.StringVar(&c.MQTT.Password, "password", c.MQTT.Password, "broker password")
	flagSet.StringVar(&c.MQTT.ClientID, "client-id", c.MQTT.ClientID, "MQTT client ID (random when empty)")
	flagSet.Uint8Var(&c.MQTT.ProtocolVersion, "protocol-version", c.MQTT.ProtocolVersion, "MQTT protocol version: 4 (3.1.1) or 5")
	flagSet.BoolVar(&c.MQTT.PersistentSession, "persistent-session", c.MQTT.PersistentSession, "keep the broker session across reconnects")
	flagSet.Var(&c.MQTT.ConnectTimeout, "connect-timeout", "connection attempt timeout")
	flagSet.Var(&c.MQTT.ReconnectPeriod, "reconnect-period", "delay between reconnect attempts")
	flagSet.Var(&c.MQTT.KeepAlive, "keep-alive", "MQTT keep-alive interval")
	flagSet.StringVar(&c.MQTT.TLS.CAFile, "tls-ca-file", c.MQTT.TLS.CAFile, "PEM bundle of trusted CAs")
	flagSet.StringVar(&c.MQTT.TLS.CertFile, "tls-cert-file", c.MQTT.TLS.CertFile, "client certificate PEM")
	flagSet.StringVar(&c.MQTT.TLS.KeyFile, "tls-key-file", c.MQTT.TLS.KeyFile, "client key PEM")

	flagSet.Var(&c.Telemetry.LivenessWindow, "liveness-window", "how long a reading keeps the receiving indicator on")
	flagSet.Var(&c.Telemetry.QualityInterval, "quality-interval", "how often connection quality is reclassified")
}

// Validate checks values that cannot be caught by parsing alone.
func (c *Config) Validate() error {
	var errs []error
	switch c.Log.Format {
	case "text", "json":
	default:
		errs = append(errs, fmt.Errorf("log format %q must be text or json", c.Log.Format))
	}
	if _, err := c.Log.SlogLevel(); err != nil {
		errs = append(errs, err)
	}
	if c.Telemetry.GoodThreshold < c.Telemetry.ExcellentThreshold {
		errs = append(errs, errors.New("good threshold must not be below the excellent threshold"))
	}
	if c.AutoConnect {
		session := c.Session()
		if err := session.Validate(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// ClientOptions returns the transport defaults for connect requests. TLS
// material is loaded from disk when any file is configured.
func (c *Config) ClientOptions() (telemetry.ClientOptions, error) {
	opts := c.clientOptions()

	tlsFiles := c.MQTT.TLS
	if tlsFiles == (TLS{}) {
		return opts, nil
	}
	tlsConfig, err := mqtt.TLSConfigFromFiles(mqtt.TLSFiles{
		CAFile:      tlsFiles.CAFile,
		CertFile:    tlsFiles.CertFile,
		KeyFile:     tlsFiles.KeyFile,
		KeyPassword: tlsFiles.KeyPassword,
	})
	if err != nil {
		return opts, err
	}
	opts.TLSConfig = tlsConfig
	return opts, nil
}

// Session returns the session configuration for auto-connect, without TLS
// material.
func (c *Config) Session() telemetry.Config {
	return telemetry.Config{
		BrokerURL: c.MQTT.BrokerURL,
		Topics:    c.MQTT.Topics,
		Options:   c.clientOptions(),
	}
}

func (c *Config) clientOptions() telemetry.ClientOptions {
	return telemetry.ClientOptions{
		ClientID:          c.MQTT.ClientID,
		Username:          c.MQTT.Username,
		Password:          c.MQTT.Password,
		PersistentSession: c.MQTT.PersistentSession,
		ConnectTimeout:    time.Duration(c.MQTT.ConnectTimeout),
		ReconnectPeriod:   time.Duration(c.MQTT.ReconnectPeriod),
		KeepAlive:         time.Duration(c.MQTT.KeepAlive),
		ProtocolVersion:   c.MQTT.ProtocolVersion,
	}
}

// Thresholds returns the quality thresholds.
func (c *Config) Thresholds() telemetry.Thresholds {
	return telemetry.Thresholds{
		Excellent: time.Duration(c.Telemetry.ExcellentThreshold),
		Good:      time.Duration(c.Telemetry.GoodThreshold),
	}
}

// SlogLevel parses the configured level.
func (l Log) SlogLevel() (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(l.Level)); err != nil {
		return 0, fmt.Errorf("log level %q: %w", l.Level, err)
	}
	return level, nil
}
