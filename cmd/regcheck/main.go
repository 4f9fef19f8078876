// Command regcheck exercises the registration handshake in isolation:
// it connects, registers one handle, reports the server's verdict, and
// disconnects. Useful for poking at a running server without a full
// client.
package main

import (
	"fmt"
	"net"
	"os"
	"time"

	"github.com/derekjr/chatrelay/pkg/protocol"
)

func main() {
	if len(os.Args) != 4 {
		fmt.Fprintf(os.Stderr, "usage: %s <server-host> <port> <handle>\n", os.Args[0])
		os.Exit(2)
	}
	host, port, handle := os.Args[1], os.Args[2], os.Args[3]

	if len(handle) == 0 || len(handle) > protocol.MaxHandleLen {
		fmt.Fprintf(os.Stderr, "handle must be 1..%d bytes\n", protocol.MaxHandleLen)
		os.Exit(1)
	}

	addr := net.JoinHostPort(host, port)
	conn, err := net.DialTimeout("tcp", addr, 10*time.Second)
	if err != nil {
		fmt.Fprintf(os.Stderr, "connect: %v\n", err)
		os.Exit(1)
	}
	defer conn.Close()
	fmt.Printf("connected to %s\n", addr)

	payload, err := (&protocol.RegisterMessage{Handle: handle}).Encode()
	if err != nil {
		fmt.Fprintf(os.Stderr, "encode: %v\n", err)
		os.Exit(1)
	}
	if err := protocol.EncodeFrame(conn, &protocol.Frame{Flag: protocol.FlagClientInit, Payload: payload}); err != nil {
		fmt.Fprintf(os.Stderr, "send: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("registration sent for handle %q\n", handle)

	conn.SetReadDeadline(time.Now().Add(10 * time.Second))
	reply, err := protocol.DecodeFrame(conn)
	if err != nil {
		fmt.Fprintln(os.Stderr, "server terminated connection")
		os.Exit(1)
	}

	fmt.Printf("response flag: %d (%s)\n", reply.Flag, protocol.FlagName(reply.Flag))
	if reply.Flag != protocol.FlagConfirmHandle {
		os.Exit(1)
	}
}
