package status

import (
	"fmt"
	"net"
	"strconv"
	"strings"
)

// DefaultPort is the standard server port used when an address omits one.
const DefaultPort uint16 = 25565

// Endpoint identifies a physical server by host and port.
// Hosts compare case-insensitively.
type Endpoint struct {
	Host string `json:"host"`
	Port uint16 `json:"port"`
}

// ParseEndpoint parses "host" or "host:port". IPv6 literals must be bracketed
// when a port is given.
func ParseEndpoint(addr string) (Endpoint, error) {
	addr = strings.TrimSpace(addr)
	if addr == "" {
		return Endpoint{}, fmt.Errorf("empty address")
	}

	host, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		// No port component
		host = strings.Trim(addr, "[]")
		if host == "" {
			return Endpoint{}, fmt.Errorf("invalid address %q", addr)
		}
		return Endpoint{Host: host, Port: DefaultPort}, nil
	}

	if host == "" {
		return Endpoint{}, fmt.Errorf("invalid address %q: missing host", addr)
	}

	port, err := strconv.ParseUint(portStr, 10, 16)
	if err != nil || port == 0 {
		return Endpoint{}, fmt.Errorf("invalid port in address %q", addr)
	}

	return Endpoint{Host: host, Port: uint16(port)}, nil
}

// Key is the identity key used for deduplication.
func (e Endpoint) Key() string {
	return net.JoinHostPort(strings.ToLower(e.Host), strconv.Itoa(int(e.Port)))
}

// Equal reports whether two endpoints name the same physical server.
func (e Endpoint) Equal(other Endpoint) bool {
	return e.Port == other.Port && strings.EqualFold(e.Host, other.Host)
}

// Address returns the dialable host:port string.
func (e Endpoint) Address() string {
	return net.JoinHostPort(e.Host, strconv.Itoa(int(e.Port)))
}

func (e Endpoint) String() string {
	return e.Address()
}
