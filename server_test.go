// Tencent is pleased to support the open source community by making tRPC available.
// Copyright (C) 2023 THL A29 Limited, a Tencent company. All rights reserved.
// If you have downloaded a copy of the tRPC source code from Tencent,
// please note that tRPC source code is licensed under the Apache 2.0 License,
// A copy of the Apache 2.0 License is included in this file.

package kvreactor_test

import (
	"bufio"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	kvreactor "github.com/kvreactor/kvreactor"
)

func TestServerGetSetDel(t *testing.T) {
	srv, err := kvreactor.NewServer("127.0.0.1", 0, kvreactor.WithSlowLogThreshold(0))
	require.NoError(t, err)
	defer srv.Close()
	go srv.Run()
	defer srv.Stop()

	conn, err := net.DialTimeout("tcp", srv.Addr().String(), time.Second)
	require.NoError(t, err)
	defer conn.Close()
	reader := bufio.NewReader(conn)

	send(t, conn, "SET foo bar")
	require.Equal(t, "OK", readLine(t, reader))

	send(t, conn, "GET foo")
	require.Equal(t, "bar", readLine(t, reader))

	send(t, conn, "DEL foo")
	require.Equal(t, "OK", readLine(t, reader))

	send(t, conn, "GET foo")
	require.Equal(t, "(nil)", readLine(t, reader))
}

func TestServerUnknownAndArity(t *testing.T) {
	srv, err := kvreactor.NewServer("127.0.0.1", 0, kvreactor.WithSlowLogThreshold(0))
	require.NoError(t, err)
	defer srv.Close()
	go srv.Run()
	defer srv.Stop()

	conn, err := net.DialTimeout("tcp", srv.Addr().String(), time.Second)
	require.NoError(t, err)
	defer conn.Close()
	reader := bufio.NewReader(conn)

	send(t, conn, "FROB")
	require.Equal(t, "ERR unknown command 'FROB'", readLine(t, reader))

	send(t, conn, "GET")
	require.Equal(t, "ERR wrong number of arguments for GET", readLine(t, reader))
}

func TestServerSlowlog(t *testing.T) {
	srv, err := kvreactor.NewServer("127.0.0.1", 0, kvreactor.WithSlowLogThreshold(0), kvreactor.WithSlowLogMaxLen(2))
	require.NoError(t, err)
	defer srv.Close()
	go srv.Run()
	defer srv.Stop()

	conn, err := net.DialTimeout("tcp", srv.Addr().String(), time.Second)
	require.NoError(t, err)
	defer conn.Close()
	reader := bufio.NewReader(conn)

	send(t, conn, "SET a 1")
	readLine(t, reader)
	send(t, conn, "SET b 2")
	readLine(t, reader)
	send(t, conn, "SET c 3")
	readLine(t, reader)

	send(t, conn, "SLOWLOG LEN")
	require.Equal(t, "2", readLine(t, reader))

	send(t, conn, "SLOWLOG RESET")
	require.Equal(t, "OK", readLine(t, reader))

	// With a zero threshold the RESET itself is recorded once it completes.
	send(t, conn, "SLOWLOG LEN")
	require.Equal(t, "1", readLine(t, reader))
}

func send(t *testing.T, conn net.Conn, line string) {
	t.Helper()
	_, err := conn.Write([]byte(line + "\n"))
	require.NoError(t, err)
}

func readLine(t *testing.T, r *bufio.Reader) string {
	t.Helper()
	line, err := r.ReadString('\n')
	require.NoError(t, err)
	return line[:len(line)-1]
}
