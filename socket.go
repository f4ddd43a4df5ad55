package tmppostgres

import (
	"fmt"
	"path/filepath"
	"strconv"
	"strings"
)

type socketKind int

const (
	socketUnix socketKind = iota
	socketIP
)

// SocketClass chooses how clients reach the server.
type SocketClass struct {
	kind socketKind
	// host for IP sockets, directory for Unix sockets. Empty means default:
	// loopback for IP, a fresh temporary directory for Unix.
	where string
}

// UnixSocket listens on a Unix-domain socket in dir. An empty dir makes a
// temporary directory that is removed on Stop.
func UnixSocket(dir string) SocketClass {
	return SocketClass{kind: socketUnix, where: dir}
}

// IPSocket listens on host (default 127.0.0.1).
func IPSocket(host string) SocketClass {
	return SocketClass{kind: socketIP, where: host}
}

// IsUnix reports whether the class is a Unix-domain socket.
func (s SocketClass) IsUnix() bool { return s.kind == socketUnix }

func (s SocketClass) String() string {
	if s.kind == socketIP {
		return "ip"
	}
	return "unix"
}

// ParseSocketClass parses "unix", "unix:/dir", "ip" or "ip:host".
func ParseSocketClass(s string) (SocketClass, error) {
	kind, where, _ := strings.Cut(s, ":")
	switch kind {
	case "unix":
		return UnixSocket(where), nil
	case "ip", "tcp":
		return IPSocket(where), nil
	}
	return SocketClass{}, fmt.Errorf("invalid socket class %q: expected unix[:dir] or ip[:host]", s)
}

// Socket is a bound socket descriptor: the class that was chosen, the host
// string clients use, and the port.
type Socket struct {
	Class SocketClass
	// Host is the socket directory for Unix sockets or the address for IP.
	Host string
	Port int
}

// listenDirectives are the postgresql.conf lines that make the server
// listen on this socket and nowhere else.
func (s Socket) listenDirectives() []string {
	if s.Class.IsUnix() {
		return []string{
			"listen_addresses = ''",
			fmt.Sprintf("unix_socket_directories = '%s'", s.Host),
		}
	}
	return []string{
		fmt.Sprintf("listen_addresses = '%s'", s.Host),
		"unix_socket_directories = ''",
	}
}

// Path is the socket file for Unix sockets, empty for IP.
func (s Socket) Path() string {
	if !s.Class.IsUnix() {
		return ""
	}
	return filepath.Join(s.Host, ".s.PGSQL."+strconv.Itoa(s.Port))
}
