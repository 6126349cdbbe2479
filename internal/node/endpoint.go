package node

import (
	"context"
	"encoding/base64"
	"fmt"
	"net"
	"net/url"
	"strconv"
	"strings"
)

// Endpoint is the resolved node address. It is built once by ResolveEndpoint
// and never changes afterwards.
type Endpoint struct {
	Address   string // resolved ip:port that gets dialed
	HostName  string // value of the HTTP Host header
	Port      uint16
	BasicAuth string // base64 of login:password
}

// ConfigError reports a startup misconfiguration the adapter cannot run with.
type ConfigError struct {
	Address string
	Reason  string
	Err     error
}

func (e *ConfigError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("node %s: %s: %v", e.Address, e.Reason, e.Err)
	}
	return fmt.Sprintf("node %s: %s", e.Address, e.Reason)
}

func (e *ConfigError) Unwrap() error { return e.Err }

// LookupFunc resolves a host name to addresses; net.DefaultResolver.LookupIPAddr fits.
type LookupFunc func(ctx context.Context, host string) ([]net.IPAddr, error)

// ResolveEndpoint parses "host[:port]", resolves the host once and pre-encodes
// the credentials. defaultPort is used when the address carries none.
func ResolveEndpoint(ctx context.Context, address string, defaultPort uint16, login, password string, lookup LookupFunc) (Endpoint, error) {
	if login == "" || password == "" {
		return Endpoint{}, &ConfigError{Address: address, Reason: "rpc login/password must be set"}
	}
	raw := address
	if !strings.Contains(raw, "://") {
		raw = "http://" + raw
	}
	u, err := url.Parse(raw)
	if err != nil || u.Hostname() == "" {
		return Endpoint{}, &ConfigError{Address: address, Reason: "can't parse address", Err: err}
	}

	port := defaultPort
	if p := u.Port(); p != "" {
		n, err := strconv.ParseUint(p, 10, 16)
		if err != nil || n == 0 {
			return Endpoint{}, &ConfigError{Address: address, Reason: "invalid port", Err: err}
		}
		port = uint16(n)
	}
	if port == 0 {
		return Endpoint{}, &ConfigError{Address: address, Reason: "no port and no default rpc port"}
	}

	host := u.Hostname()
	ip := net.ParseIP(host)
	if ip == nil {
		if lookup == nil {
			lookup = net.DefaultResolver.LookupIPAddr
		}
		addrs, err := lookup(ctx, host)
		if err != nil || len(addrs) == 0 {
			return Endpoint{}, &ConfigError{Address: address, Reason: "can't lookup address " + host, Err: err}
		}
		ip = addrs[0].IP
		for _, a := range addrs {
			if v4 := a.IP.To4(); v4 != nil {
				ip = v4
				break
			}
		}
	} else {
		host = ip.String()
	}

	return Endpoint{
		Address:   net.JoinHostPort(ip.String(), strconv.Itoa(int(port))),
		HostName:  host,
		Port:      port,
		BasicAuth: base64.StdEncoding.EncodeToString([]byte(login + ":" + password)),
	}, nil
}
