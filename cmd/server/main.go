package main

import (
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/sirupsen/logrus"

	"github.com/derekjr/chatrelay/pkg/server"
)

// Version is set at build time via ldflags.
var Version = "dev"

func main() {
	configPath := flag.String("config", "", "Path to TOML config file")
	debug := flag.Bool("debug", false, "Enable debug logging")
	metricsAddr := flag.String("metrics-addr", "", "Address for the Prometheus /metrics endpoint (overrides config)")
	wsPort := flag.Int("ws-port", 0, "Port for the WebSocket listener, 0 disables (overrides config)")
	version := flag.Bool("version", false, "Show version information")
	flag.Parse()

	if *version {
		fmt.Printf("chatrelay server %s\n", Version)
		os.Exit(0)
	}

	logger := logrus.New()
	logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	if *debug {
		logger.SetLevel(logrus.DebugLevel)
	}

	config, err := server.LoadConfig(*configPath)
	if err != nil {
		logger.WithError(err).Fatal("failed to load config")
	}

	// An optional positional argument sets the listen port.
	if flag.NArg() > 1 {
		fmt.Fprintln(os.Stderr, "usage: server [flags] [port]")
		os.Exit(2)
	}
	if flag.NArg() == 1 {
		port, err := parseListenPort(flag.Arg(0))
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(2)
		}
		config.TCPPort = port
	}
	if *metricsAddr != "" {
		config.MetricsAddr = *metricsAddr
	}
	if *wsPort != 0 {
		config.WSPort = *wsPort
	}

	srv := server.NewServer(config)
	srv.SetLogger(logger)
	srv.SetMetrics(server.NewMetrics())

	if err := srv.Start(); err != nil {
		logger.WithError(err).Fatal("failed to start server")
	}
	logger.WithField("addr", srv.Addr()).Info("server listening")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	logger.WithField("signal", sig).Info("shutting down")

	if err := srv.Stop(); err != nil {
		logger.WithError(err).Error("shutdown error")
		os.Exit(1)
	}
}

// parseListenPort validates an explicit port argument. Unlike the
// config default, an explicit argument may not be 0.
func parseListenPort(arg string) (int, error) {
	port, err := strconv.Atoi(arg)
	if err != nil || port < 1 || port > 65535 {
		return 0, fmt.Errorf("invalid port %q", arg)
	}
	return port, nil
}
