package main

import (
	"errors"
	"flag"
	"fmt"
	"net"
	"os"
	"strconv"

	"github.com/sirupsen/logrus"

	"github.com/derekjr/chatrelay/pkg/client"
)

func main() {
	debug := flag.Bool("debug", false, "Enable debug logging")
	simulate := flag.Int("simulate", 0, "Run N scripted clients against the server instead of an interactive session")
	flag.Usage = usage
	flag.Parse()
	args := flag.Args()

	// The original tool also accepted the simulate switch after the
	// positional arguments.
	if n := len(args); n >= 2 && args[n-2] == "--simulate" {
		count, err := strconv.Atoi(args[n-1])
		if err != nil {
			fmt.Fprintf(os.Stderr, "invalid simulate count %q\n", args[n-1])
			os.Exit(2)
		}
		*simulate = count
		args = args[:n-2]
	}

	if len(args) != 3 {
		usage()
		os.Exit(2)
	}
	handle, host, port := args[0], args[1], args[2]
	addr := net.JoinHostPort(host, port)

	logger := logrus.New()
	logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	if *debug {
		logger.SetLevel(logrus.DebugLevel)
	} else {
		logger.SetLevel(logrus.WarnLevel)
	}

	if *simulate > 0 {
		err := client.RunSimulation(client.SimulationConfig{
			Addr:    addr,
			Clients: *simulate,
			Logger:  logger,
		})
		if err != nil {
			logger.WithError(err).Error("simulation failed")
			os.Exit(1)
		}
		return
	}

	if err := client.ValidateHandle(handle); err != nil {
		fmt.Fprintf(os.Stderr, "invalid handle %q: %v\n", handle, err)
		os.Exit(1)
	}

	conn, err := client.Dial(addr)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}
	defer conn.Close()
	conn.SetLogger(logger)

	session := client.NewSession(conn, handle)
	session.SetLogger(logger)

	if err := session.Register(); err != nil {
		fmt.Fprintf(os.Stderr, "registration failed: %v\n", err)
		os.Exit(1)
	}

	if err := session.Run(os.Stdin); err != nil {
		if errors.Is(err, client.ErrServerClosed) {
			fmt.Fprintln(os.Stderr, "server terminated connection")
		} else {
			fmt.Fprintf(os.Stderr, "%v\n", err)
		}
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, "usage: client [flags] <handle> <server-host> <server-port>")
	flag.PrintDefaults()
}
