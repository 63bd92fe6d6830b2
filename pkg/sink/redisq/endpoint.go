// Package redisq ships events to Redis lists. Connections are owned by a
// Pool that hands out leases round-robin across a set of endpoints, and a
// Client retries failed commands across endpoints so a single dead backend
// does not lose events.
package redisq

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"strconv"
	"strings"
)

const defaultPort = 6379

var (
	ErrBadEndpoint = errors.New("invalid endpoint address")
)

// Endpoint identifies one Redis backend: an address plus the database number
// to select.
type Endpoint struct {
	Host string
	Port int
	DB   int
}

// Addr returns the dialable host:port form.
func (e Endpoint) Addr() string {
	return net.JoinHostPort(e.Host, strconv.Itoa(e.Port))
}

func (e Endpoint) String() string {
	return fmt.Sprintf("redis://%s/%d", e.Addr(), e.DB)
}

// ParseEndpoint reads an address of the form scheme://[host][:port][/db].
// The host defaults to localhost, the port to 6379, and the database to 0.
// A database segment that is not a number is an error.
func ParseEndpoint(raw string) (Endpoint, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return Endpoint{}, fmt.Errorf("%w: %q: %v", ErrBadEndpoint, raw, err)
	}
	if u.Opaque != "" {
		return Endpoint{}, fmt.Errorf("%w: %q must be of the form scheme://host:port/db", ErrBadEndpoint, raw)
	}
	ep := Endpoint{
		Host: u.Hostname(),
		Port: defaultPort,
	}
	if ep.Host == "" {
		ep.Host = "localhost"
	}
	if port := u.Port(); port != "" {
		n, err := strconv.Atoi(port)
		if err != nil {
			return Endpoint{}, fmt.Errorf("%w: %q is not a valid port", ErrBadEndpoint, port)
		}
		ep.Port = n
	}
	if db := strings.TrimPrefix(u.Path, "/"); db != "" {
		n, err := strconv.Atoi(db)
		if err != nil {
			return Endpoint{}, fmt.Errorf("%w: could not parse %q as a Redis DB number", ErrBadEndpoint, db)
		}
		ep.DB = n
	}
	return ep, nil
}

// ParseEndpoints parses each address in raws, failing on the first bad one.
func ParseEndpoints(raws []string) ([]Endpoint, error) {
	endpoints := make([]Endpoint, 0, len(raws))
	for _, raw := range raws {
		ep, err := ParseEndpoint(raw)
		if err != nil {
			return nil, err
		}
		endpoints = append(endpoints, ep)
	}
	return endpoints, nil
}
