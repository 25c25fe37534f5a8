package main

import (
	"fmt"
	"reflect"
	"strconv"
	"strings"

	"github.com/rs/zerolog"
)

// Config contains the configuration for lipallocd. The env tag contains the
// environment variable name and the default value if missing, or empty (if
// not ?=), following pkg/atlas/config.go's scheme.
type Config struct {
	// The address to listen on for the control plane.
	ListenAddr string `env:"LIPALLOCD_ADDR?=:8090"`

	// Maximum concurrent control-plane connections (0 = unlimited).
	MaxConns int `env:"LIPALLOCD_MAX_CONNS=256"`

	// Highest reload protocol version this daemon accepts.
	MaxProtocolVersion string `env:"LIPALLOCD_MAX_PROTOCOL_VERSION=v1.0.0"`

	// "port" (PortLcoreMapping) or "addr" (AddrLcoreMapping).
	PoolMode string `env:"LIPALLOCD_POOL_MODE=port"`

	// Bitmask of enabled worker cores.
	EnabledCoreMask uint64 `env:"LIPALLOCD_CORE_MASK=1"`

	// Whether to pin worker goroutines to OS threads/CPUs via
	// golang.org/x/sys/unix.SchedSetaffinity on Linux.
	PinCores bool `env:"LIPALLOCD_PIN_CORES"`

	// SA-pool ephemeral port range, shared by every service created from
	// StaticServices below.
	SAPortMin uint16 `env:"LIPALLOCD_SAPOOL_PORT_MIN=1024"`
	SAPortMax uint16 `env:"LIPALLOCD_SAPOOL_PORT_MAX=65535"`

	// Virtual services to register at startup, one per entry, each shaped
	// "proto|vaddr|vport|ifname|addr" (e.g. "tcp|203.0.113.1|80|eth0|10.0.0.1").
	// Repeat proto/vaddr/vport/ifname across entries to seed a service with
	// more than one local address. A bare daemon with no admin API to create
	// services otherwise has nothing to resolve control-plane requests
	// against, so this is the bootstrap path (SPEC_FULL.md §1).
	StaticServices []string `env:"LIPALLOCD_STATIC_SERVICES"`

	// Path to the sqlite3 audit log database.
	AuditDBPath string `env:"LIPALLOCD_AUDIT_DB?=lipallocd_audit.db"`

	// The minimum log level (e.g., trace, debug, info, warn, error, fatal).
	LogLevel zerolog.Level `env:"LIPALLOCD_LOG_LEVEL=info"`

	// Whether to use pretty (console) logs on stdout.
	LogPretty bool `env:"LIPALLOCD_LOG_PRETTY=true"`

	// The systemd notify socket, set automatically by systemd.
	NotifySocket string `env:"NOTIFY_SOCKET"`
}

// UnmarshalEnv populates c from es, a list of "KEY=VALUE" strings, following
// the scheme and field-type switch of pkg/atlas/config.go's UnmarshalEnv.
func (c *Config) UnmarshalEnv(es []string) error {
	em := map[string]string{}
	for _, e := range es {
		if strings.HasPrefix(e, "LIPALLOCD_") || strings.HasPrefix(e, "NOTIFY_SOCKET=") {
			if k, v, ok := strings.Cut(e, "="); ok {
				em[k] = v
			}
		}
	}

	cv := reflect.ValueOf(c).Elem()
	for _, ctf := range reflect.VisibleFields(cv.Type()) {
		env, ok := ctf.Tag.Lookup("env")
		if !ok {
			continue
		}

		var unsettable bool
		key, val, _ := strings.Cut(env, "=")
		if strings.HasSuffix(key, "?") {
			key = strings.TrimSuffix(key, "?")
			unsettable = true
		}
		if v, exists := em[key]; exists {
			if unsettable || v != "" {
				val = v
			}
			delete(em, key)
		}

		switch cvf := cv.FieldByName(ctf.Name); cvf.Interface().(type) {
		case string:
			cvf.SetString(val)
		case int:
			if val == "" {
				cvf.SetInt(0)
			} else if v, err := strconv.ParseInt(val, 10, 64); err == nil {
				cvf.SetInt(v)
			} else {
				return fmt.Errorf("env %s (%T): parse %q: %w", key, cvf.Interface(), val, err)
			}
		case uint16:
			if val == "" {
				cvf.SetUint(0)
			} else if v, err := strconv.ParseUint(val, 10, 16); err == nil {
				cvf.SetUint(v)
			} else {
				return fmt.Errorf("env %s (%T): parse %q: %w", key, cvf.Interface(), val, err)
			}
		case uint64:
			if val == "" {
				cvf.SetUint(0)
			} else if v, err := strconv.ParseUint(val, 0, 64); err == nil {
				cvf.SetUint(v)
			} else {
				return fmt.Errorf("env %s (%T): parse %q: %w", key, cvf.Interface(), val, err)
			}
		case bool:
			if val == "" {
				cvf.SetBool(false)
			} else if v, err := strconv.ParseBool(val); err == nil {
				cvf.SetBool(v)
			} else {
				return fmt.Errorf("env %s (%T): parse %q: %w", key, cvf.Interface(), val, err)
			}
		case zerolog.Level:
			if v, err := zerolog.ParseLevel(val); err == nil {
				cvf.Set(reflect.ValueOf(v))
			} else {
				return fmt.Errorf("env %s (%T): parse %q: %w", key, cvf.Interface(), val, err)
			}
		case []string:
			if val == "" {
				cvf.Set(reflect.ValueOf([]string{}))
			} else {
				cvf.Set(reflect.ValueOf(strings.Split(val, ",")))
			}
		default:
			return fmt.Errorf("unhandled type %T (%s)", cvf.Interface(), env)
		}
	}

	for key, val := range em {
		if val != "" {
			return fmt.Errorf("unknown environment variable %q", key)
		}
	}
	return nil
}
