//
//
// Tencent is pleased to support the open source community by making tRPC available.
//
// Copyright (C) 2023 Tencent.
// All rights reserved.
//
// If you have downloaded a copy of the tRPC source code from Tencent,
// please note that tRPC source code is licensed under the  Apache 2.0 License,
// A copy of the Apache 2.0 License is included in this file.
//
//

//go:build linux || freebsd || dragonfly || darwin
// +build linux freebsd dragonfly darwin

package netutil

import (
	"fmt"
	"net"
	"os"
	"strconv"

	"github.com/kavu/go_reuseport"
	"github.com/pkg/errors"
	"golang.org/x/sys/unix"
)

// ResolveFlags controls how Resolve looks up a host.
type ResolveFlags int

const (
	// ResolveNumeric rejects any host that isn't already an IPv4/IPv6
	// literal; no DNS query is issued.
	ResolveNumeric ResolveFlags = 1 << iota
	// ResolvePreferIPv4 orders IPv4 candidates first when both families
	// are returned.
	ResolvePreferIPv4
)

// ConnectFlags controls TCPConnect's retry behavior.
type ConnectFlags int

const (
	// ConnectBestEffortBind retries with no source address bound if
	// binding the supplied source to every candidate address fails.
	ConnectBestEffortBind ConnectFlags = 1 << iota
)

// SetBlocking flips O_NONBLOCK on fd. All other socket options are
// orthogonal to this call.
func SetBlocking(fd int, blocking bool) error {
	return unix.SetNonblock(fd, !blocking)
}

// Resolve looks up host and returns every address the resolver yields, in
// the order found. With ResolveNumeric set, host must already be an
// IPv4/IPv6 literal; no DNS query is performed, only validation.
func Resolve(host string, flags ResolveFlags) ([]net.IP, error) {
	if ip := net.ParseIP(host); ip != nil {
		return []net.IP{ip}, nil
	}
	if flags&ResolveNumeric != 0 {
		return nil, fmt.Errorf("netutil: %q is not a numeric address", host)
	}
	ips, err := net.LookupIP(host)
	if err != nil {
		return nil, errors.Wrap(err, "netutil: resolve")
	}
	if flags&ResolvePreferIPv4 != 0 {
		sortIPv4First(ips)
	}
	return ips, nil
}

func sortIPv4First(ips []net.IP) {
	i := 0
	for j, ip := range ips {
		if ip.To4() != nil {
			ips[i], ips[j] = ips[j], ips[i]
			i++
		}
	}
}

// TCPConnect iterates every address Resolve returns for host, creating a
// socket and attempting to connect on each; it succeeds on the first
// address that works. If source is non-empty, every attempt binds it
// first; with ConnectBestEffortBind, if binding fails on every candidate
// the whole procedure is retried once with no source bound.
func TCPConnect(host string, port int, source string, flags ConnectFlags) (net.Conn, error) {
	ips, err := Resolve(host, 0)
	if err != nil {
		return nil, err
	}
	conn, bindFailedEverywhere, err := tryConnect(ips, port, source)
	if err == nil {
		return conn, nil
	}
	if bindFailedEverywhere && source != "" && flags&ConnectBestEffortBind != 0 {
		conn, _, err = tryConnect(ips, port, "")
		return conn, err
	}
	return nil, err
}

func tryConnect(ips []net.IP, port int, source string) (net.Conn, bool, error) {
	var dialer net.Dialer
	if source != "" {
		dialer.LocalAddr = &net.TCPAddr{IP: net.ParseIP(source)}
	}
	bindFailedEverywhere := source != ""
	var lastErr error
	for _, ip := range ips {
		addr := net.JoinHostPort(ip.String(), strconv.Itoa(port))
		conn, err := dialer.Dial("tcp", addr)
		if err == nil {
			return conn, false, nil
		}
		lastErr = err
		if !isBindError(err) {
			bindFailedEverywhere = false
		}
	}
	if lastErr == nil {
		lastErr = fmt.Errorf("netutil: no addresses to connect to")
	}
	return nil, bindFailedEverywhere, errors.Wrap(lastErr, "netutil: tcp connect")
}

func isBindError(err error) bool {
	// net.Dialer wraps a failed source bind as an OpError with Op "dial"
	// around an os.SyscallError naming the bind syscall.
	var sysErr *os.SyscallError
	if errors.As(err, &sysErr) {
		return sysErr.Syscall == "bind"
	}
	return false
}

// TCPServer enumerates the addresses bind resolves to, creates the first
// usable listening socket with SO_REUSEADDR (and IPV6_V6ONLY off for IPv6
// wildcard binds), and listens with the given backlog.
func TCPServer(bind string, port int, family string, backlog int) (net.Listener, error) {
	if family == "" {
		family = "tcp"
	}
	// backlog is accepted for contract parity with the original listen(2)
	// call; Go's net package does not expose backlog tuning, so the kernel
	// default applies here regardless of the value passed.
	_ = backlog
	addr := net.JoinHostPort(bind, strconv.Itoa(port))
	ln, err := reuseport.Listen(family, addr)
	if err != nil {
		return nil, errors.Wrap(err, "netutil: tcp server listen")
	}
	return ln, nil
}

// ReadFull reads until buf is full, the peer closes (EOF), or an error
// occurs. It returns the number of bytes actually read. When a read
// fails, including with io.EOF, the bytes read so far are returned
// together with that error; a read of 0 bytes with no error ends the
// loop with the count so far and a nil error.
func ReadFull(conn net.Conn, buf []byte) (int, error) {
	total := 0
	for total < len(buf) {
		n, err := conn.Read(buf[total:])
		total += n
		if err != nil {
			return total, err
		}
		if n == 0 {
			return total, nil
		}
	}
	return total, nil
}

// WriteFull writes all of buf, looping across short writes, and returns
// the number of bytes actually written.
func WriteFull(conn net.Conn, buf []byte) (int, error) {
	total := 0
	for total < len(buf) {
		n, err := conn.Write(buf[total:])
		total += n
		if err != nil {
			return total, err
		}
		if n == 0 {
			return total, fmt.Errorf("netutil: write returned 0 with no error")
		}
	}
	return total, nil
}

// AcceptLoop calls Accept(fd) once, retrying transparently on EINTR.
// Other errors are returned to the caller.
func AcceptLoop(fd int) (int, unix.Sockaddr, error) {
	for {
		ns, sa, err := Accept(fd)
		if err == unix.EINTR {
			continue
		}
		return ns, sa, err
	}
}

// FormatAddr renders addr the way the original command surface reports
// peer/local names: IPv4 as "a.b.c.d:port", IPv6 bracketed as
// "[addr]:port", and Unix-domain sockets as the synthetic
// "/unixsocket:0" regardless of the actual path.
func FormatAddr(addr net.Addr) string {
	switch a := addr.(type) {
	case *net.TCPAddr:
		if a.IP.To4() != nil {
			return fmt.Sprintf("%s:%d", a.IP.String(), a.Port)
		}
		return fmt.Sprintf("[%s]:%d", a.IP.String(), a.Port)
	case *net.UDPAddr:
		if a.IP.To4() != nil {
			return fmt.Sprintf("%s:%d", a.IP.String(), a.Port)
		}
		return fmt.Sprintf("[%s]:%d", a.IP.String(), a.Port)
	case *net.UnixAddr:
		return "/unixsocket:0"
	default:
		return addr.String()
	}
}
