package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/guardia-project/guardia/internal/agent"
	"github.com/guardia-project/guardia/internal/logging"
)

var Version = "dev"

func main() {
	cfg, showVersion, err := parseConfig(os.Args[0], os.Args[1:], os.Getenv)
	if err != nil {
		if err == flag.ErrHelp {
			os.Exit(0)
		}
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	if showVersion {
		fmt.Println(Version)
		return
	}

	logger := logging.New(logging.Config{Component: "guardia-agent"})

	srv := agent.New(cfg, logger)
	if err := srv.Start(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()
	<-ctx.Done()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), defaultShutdownTimeout)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

const defaultShutdownTimeout = 5 * time.Second

func parseConfig(progName string, args []string, getenv func(string) string) (agent.Config, bool, error) {
	getenvTrim := func(k string) string {
		return strings.TrimSpace(getenv(k))
	}

	envBind := getenvTrim("AGENT_ADDR")
	envPort := getenvTrim("AGENT_PORT")
	envSecret := getenvTrim("AGENT_SECRET")

	defaultPort := 3000
	if envPort != "" {
		if parsed, err := strconv.Atoi(envPort); err == nil {
			defaultPort = parsed
		}
	}
	defaultBind := envBind
	if defaultBind == "" {
		defaultBind = "0.0.0.0"
	}

	fs := flag.NewFlagSet(progName, flag.ContinueOnError)
	bindFlag := fs.String("bind", defaultBind, "Address to bind the metrics server to")
	portFlag := fs.Int("port", defaultPort, "Port to serve GET /metrics on")
	secretFlag := fs.String("secret", envSecret, "Shared secret validated against X-MONITORING-SECRET (optional)")
	showVersion := fs.Bool("version", false, "Print the agent version and exit")

	if err := fs.Parse(args); err != nil {
		return agent.Config{}, false, err
	}
	if *showVersion {
		return agent.Config{}, true, nil
	}

	return agent.Config{
		Bind:   *bindFlag,
		Port:   *portFlag,
		Secret: *secretFlag,
	}, false, nil
}
