// Tencent is pleased to support the open source community by making tRPC available.
// Copyright (C) 2023 THL A29 Limited, a Tencent company. All rights reserved.
// If you have downloaded a copy of the tRPC source code from Tencent,
// please note that tRPC source code is licensed under the Apache 2.0 License,
// A copy of the Apache 2.0 License is included in this file.

package kvreactor

import (
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/kvreactor/kvreactor/internal/ae"
	"github.com/kvreactor/kvreactor/internal/netutil"
	"github.com/kvreactor/kvreactor/internal/slowlog"
	"github.com/kvreactor/kvreactor/log"
)

// Server drives one event loop accepting TCP connections and dispatching
// line-delimited commands. It owns the store, the slow log, and every
// connection's read buffer; all of it runs on the loop's single
// goroutine once Run is called.
type Server struct {
	cfg     config
	loop    *ae.EventLoop
	ln      net.Listener
	lnFD    int
	slow    *slowlog.Log
	reaper  *slowlog.AsyncReaper
	store   map[string]string
	conns   map[int]*connState
}

type connState struct {
	conn net.Conn
	file *os.File // keeps fd alive; this is the exact descriptor registered with the loop
	fd   int
	peer string
	buf  []byte
}

func (c *connState) close() {
	c.conn.Close()
	c.file.Close()
}

// NewServer builds a Server bound to bind:port, applying opts over the
// package defaults.
func NewServer(bind string, port int, opts ...Option) (*Server, error) {
	var cfg config
	cfg.setDefault()
	for _, o := range opts {
		o.f(&cfg)
	}

	loop, err := ae.NewEventLoop(cfg.setSize)
	if err != nil {
		return nil, errors.Wrap(err, "kvreactor: new event loop")
	}

	ln, err := netutil.TCPServer(bind, port, "tcp", 511)
	if err != nil {
		loop.Close()
		return nil, errors.Wrap(err, "kvreactor: listen")
	}
	lnFD, err := netutil.GetFD(ln)
	if err != nil {
		ln.Close()
		loop.Close()
		return nil, errors.Wrap(err, "kvreactor: get listener fd")
	}
	if err := netutil.SetBlocking(lnFD, false); err != nil {
		ln.Close()
		loop.Close()
		return nil, errors.Wrap(err, "kvreactor: set listener non-blocking")
	}

	s := &Server{
		cfg:   cfg,
		loop:  loop,
		ln:    ln,
		lnFD:  lnFD,
		store: make(map[string]string),
		conns: make(map[int]*connState),
	}

	var reaper *slowlog.AsyncReaper
	if cfg.slowLogExport != nil {
		reaper, err = slowlog.NewAsyncReaper(8, func(e slowlog.Entry) {
			cfg.slowLogExport(e.ID, e.Argv)
		})
		if err != nil {
			ln.Close()
			loop.Close()
			return nil, errors.Wrap(err, "kvreactor: new slow log reaper")
		}
	}
	s.reaper = reaper
	s.slow = slowlog.New(cfg.slowLogThreshold.Microseconds(), cfg.slowLogMaxLen, reaper)

	if err := loop.RegisterFile(lnFD, ae.MaskReadable, s.onAcceptable, nil, nil); err != nil {
		ln.Close()
		loop.Close()
		return nil, errors.Wrap(err, "kvreactor: register listener")
	}
	return s, nil
}

// Addr returns the listener's bound address, including the actual port
// chosen when NewServer was called with port 0.
func (s *Server) Addr() net.Addr {
	return s.ln.Addr()
}

// Run drives the event loop until Stop is called.
func (s *Server) Run() {
	s.loop.Run()
}

// Stop requests the loop exit at the next iteration boundary.
func (s *Server) Stop() {
	s.loop.StopLoop()
}

// Close releases the listener, every accepted connection, and the loop's
// backend.
func (s *Server) Close() error {
	for fd, c := range s.conns {
		s.loop.UnregisterFile(fd, ae.MaskReadable|ae.MaskWritable)
		c.close()
	}
	if s.reaper != nil {
		s.reaper.Close()
	}
	s.ln.Close()
	return s.loop.Close()
}

func (s *Server) onAcceptable(loop *ae.EventLoop, fd int, user any, mask ae.FileMask) error {
	ns, sa, err := netutil.AcceptLoop(fd)
	if err != nil {
		log.Debugf("kvreactor: accept error: %v", err)
		return nil
	}
	if err := netutil.SetBlocking(ns, false); err != nil {
		log.Warnf("kvreactor: set accepted fd non-blocking: %v", err)
	}
	if s.cfg.tcpKeepAlive > 0 {
		if err := netutil.KeepAlive(ns, int(s.cfg.tcpKeepAlive.Seconds())); err != nil {
			log.Warnf("kvreactor: keepalive: %v", err)
		}
	}
	addr := netutil.SockaddrToTCPOrUnixAddr(sa)
	peer := "unknown"
	if addr != nil {
		peer = netutil.FormatAddr(addr)
	}
	f := os.NewFile(uintptr(ns), "conn")
	conn, err := net.FileConn(f)
	if err != nil {
		log.Debugf("kvreactor: wrap accepted fd: %v", err)
		f.Close()
		return nil
	}
	// net.FileConn dups f's descriptor for its own use; f itself still
	// owns fd ns, the exact descriptor number registered with the loop
	// below, and must be kept open (and eventually closed) alongside conn.
	c := &connState{conn: conn, file: f, fd: ns, peer: peer, buf: make([]byte, 0, 4096)}
	s.conns[ns] = c
	if err := loop.RegisterFile(ns, ae.MaskReadable, s.onReadable, nil, c); err != nil {
		c.close()
		delete(s.conns, ns)
		return errors.Wrap(err, "kvreactor: register connection")
	}
	return nil
}

func (s *Server) onReadable(loop *ae.EventLoop, fd int, user any, mask ae.FileMask) error {
	c := user.(*connState)
	tmp := make([]byte, 4096)
	n, err := c.conn.Read(tmp)
	if n > 0 {
		c.buf = append(c.buf, tmp[:n]...)
		s.drainCommands(c)
	}
	if err != nil {
		loop.UnregisterFile(fd, ae.MaskReadable|ae.MaskWritable)
		c.close()
		delete(s.conns, fd)
	}
	return nil
}

func (s *Server) drainCommands(c *connState) {
	for {
		idx := indexByte(c.buf, '\n')
		if idx < 0 {
			return
		}
		line := strings.TrimRight(string(c.buf[:idx]), "\r")
		c.buf = c.buf[idx+1:]
		if line == "" {
			continue
		}
		start := time.Now()
		reply := s.dispatch(strings.Fields(line), c.peer)
		elapsed := time.Since(start)
		_, _ = netutil.WriteFull(c.conn, []byte(reply+"\n"))
		s.slow.RecordIfNeeded(strings.Fields(line), elapsed.Microseconds(), c.peer, "")
	}
}

func indexByte(b []byte, c byte) int {
	for i, x := range b {
		if x == c {
			return i
		}
	}
	return -1
}

// dispatch implements a minimal command surface: GET/SET/DEL against the
// in-memory store, plus the SLOWLOG surface spec.md describes as living
// over the command dispatcher.
func (s *Server) dispatch(argv []string, peer string) string {
	if len(argv) == 0 {
		return "ERR empty command"
	}
	switch strings.ToUpper(argv[0]) {
	case "GET":
		if len(argv) != 2 {
			return "ERR wrong number of arguments for GET"
		}
		v, ok := s.store[argv[1]]
		if !ok {
			return "(nil)"
		}
		return v
	case "SET":
		if len(argv) != 3 {
			return "ERR wrong number of arguments for SET"
		}
		s.store[argv[1]] = argv[2]
		return "OK"
	case "DEL":
		if len(argv) != 2 {
			return "ERR wrong number of arguments for DEL"
		}
		delete(s.store, argv[1])
		return "OK"
	case "SLOWLOG":
		return s.dispatchSlowlog(argv[1:])
	default:
		return "ERR unknown command '" + argv[0] + "'"
	}
}

func (s *Server) dispatchSlowlog(argv []string) string {
	if len(argv) == 0 {
		return "ERR wrong number of arguments for SLOWLOG"
	}
	switch strings.ToUpper(argv[0]) {
	case "HELP":
		return strings.Join(slowlog.HelpText, "\n")
	case "LEN":
		return strconv.Itoa(s.slow.Len())
	case "RESET":
		s.slow.Reset()
		return "OK"
	case "GET":
		count := 0
		if len(argv) == 2 {
			n, err := strconv.Atoi(argv[1])
			if err != nil {
				return "ERR count must be an integer"
			}
			count = n
		}
		entries := s.slow.Get(count)
		lines := make([]string, 0, len(entries))
		for _, e := range entries {
			lines = append(lines, strings.Join([]string{
				strconv.FormatInt(e.ID, 10),
				strconv.FormatInt(e.WallTime.Unix(), 10),
				strconv.FormatInt(e.DurationUs, 10),
				strings.Join(e.Argv, " "),
				e.Peer,
				e.ClientName,
			}, "|"))
		}
		return strings.Join(lines, "\n")
	default:
		return "ERR unknown SLOWLOG subcommand"
	}
}
