// Command dnssd publishes, resolves and monitors one DNS-SD service.
//
// It runs an in-process mDNS daemon and drives a single discovery session,
// either from an interactive shell or from commands given as arguments.
//
// Usage:
//
//	dnssd [flags] [command...]
//
// Flags:
//
//	-config string     YAML configuration file
//	-name string       Service instance name
//	-type string       Service type, e.g. _ipp._tcp
//	-domain string     Domain (default "local.")
//	-port int          Port to publish
//	-txt key[=value]   TXT entry (repeatable)
//	-address-type      Address lookup type: a, aaaa (default "a")
//	-timeout duration  Resolve timeout (default 5s)
//	-interface string  Restrict mDNS to one network interface
//	-log-level string  Log level: debug, info, warn, error (default "info")
//	-trace string      Write a session trace file (view with dnssd-trace)
//	-version           Print the version and exit
//
// Examples:
//
//	# Interactive shell for a printer
//	dnssd -name printer -type _ipp._tcp -port 631 -txt rp=printers/1
//
//	# Resolve and keep watching the TXT record
//	dnssd -name printer -type _ipp._tcp resolve monitor
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/mash-protocol/dnssd-go/cmd/dnssd/interactive"
	"github.com/mash-protocol/dnssd-go/pkg/daemon"
	"github.com/mash-protocol/dnssd-go/pkg/discovery"
	"github.com/mash-protocol/dnssd-go/pkg/dispatch"
	"github.com/mash-protocol/dnssd-go/pkg/log"
	"github.com/mash-protocol/dnssd-go/pkg/version"
)

var (
	configFile  string
	flagConfig  Config
	txtFlags    listFlag
	port        uint
	showVersion bool
)

func init() {
	flag.StringVar(&configFile, "config", "", "YAML configuration file")
	flag.StringVar(&flagConfig.Name, "name", "", "Service instance name")
	flag.StringVar(&flagConfig.Type, "type", "", "Service type, e.g. _ipp._tcp")
	flag.StringVar(&flagConfig.Domain, "domain", "", "Domain (default \"local.\")")
	flag.UintVar(&port, "port", 0, "Port to publish")
	flag.Var(&txtFlags, "txt", "TXT entry key[=value] (repeatable)")
	flag.StringVar(&flagConfig.AddressType, "address-type", "", "Address lookup type: a, aaaa (default \"a\")")
	flag.StringVar(&flagConfig.Timeout, "timeout", "", "Resolve timeout (default 5s)")
	flag.StringVar(&flagConfig.Interface, "interface", "", "Restrict mDNS to one network interface")
	flag.StringVar(&flagConfig.LogLevel, "log-level", "", "Log level: debug, info, warn, error (default \"info\")")
	flag.StringVar(&flagConfig.Trace, "trace", "", "Write a session trace file")
	flag.BoolVar(&showVersion, "version", false, "Print the version and exit")
}

func main() {
	flag.Parse()

	if showVersion {
		fmt.Printf("dnssd %s\n", version.Current)
		return
	}

	cfg, err := buildConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	logger := setupLogging(cfg.LogLevel)

	if err := run(cfg, logger, flag.Args()); err != nil {
		logger.Error("dnssd failed", "error", err)
		os.Exit(1)
	}
}

func buildConfig() (Config, error) {
	var cfg Config
	if configFile != "" {
		fileCfg, err := loadConfigFile(configFile)
		if err != nil {
			return Config{}, err
		}
		cfg = fileCfg
	}

	if port > 65535 {
		return Config{}, fmt.Errorf("port must be 0-65535, got %d", port)
	}
	flagConfig.Port = uint16(port)
	flagConfig.TXT = txtFlags
	cfg.merge(flagConfig)

	if cfg.Type == "" {
		return Config{}, fmt.Errorf("service type is required (-type or config file)")
	}
	return cfg, nil
}

func setupLogging(level string) *slog.Logger {
	var lvl slog.Level
	switch strings.ToLower(level) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
	slog.SetDefault(logger)
	return logger
}

func run(cfg Config, logger *slog.Logger, commands []string) error {
	timeout, err := cfg.resolveTimeout()
	if err != nil {
		return err
	}
	addrType, err := cfg.addressType()
	if err != nil {
		return err
	}
	txt, err := cfg.txtRecord()
	if err != nil {
		return err
	}

	dcfg := daemon.DefaultConfig()
	dcfg.Interface = cfg.Interface
	dcfg.Logger = logger
	d, err := daemon.NewZeroconfDaemon(dcfg)
	if err != nil {
		return fmt.Errorf("start daemon: %w", err)
	}
	defer d.Close()

	// Replies and timeouts run on one queue goroutine.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	queue := dispatch.NewQueue(64)
	defer queue.Close()
	go func() {
		if err := queue.Run(ctx); err != nil && err != context.Canceled {
			logger.Warn("event queue stopped", "error", err)
		}
	}()

	sel := dispatch.NewSelector()
	sel.SetTarget(queue)
	disp := dispatch.New(d, dispatch.Config{Selector: sel, Logger: logger})
	defer disp.Close()

	trace, closeTrace, err := setupTrace(cfg.Trace, logger)
	if err != nil {
		return err
	}
	defer closeTrace()

	sess, err := discovery.NewSession(discovery.SessionConfig{
		Name:        cfg.Name,
		Type:        cfg.Type,
		Domain:      cfg.Domain,
		Port:        cfg.Port,
		TXT:         txt,
		AddressType: addrType,
		Daemon:      d,
		Dispatcher:  disp,
		Logger:      logger,
		Trace:       trace,
	})
	if err != nil {
		return fmt.Errorf("create session: %w", err)
	}
	defer sess.Close()

	logger.Info("session ready", "service", sess.FullName(), "session_id", sess.ID())

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	if len(commands) > 0 {
		sh := interactive.NewWriter(sess, timeout, os.Stdout)
		sess.OnEvent(sh.HandleEvent)
		for _, c := range commands {
			if sh.Exec(c) {
				return nil
			}
		}
		sig := <-sigCh
		logger.Info("received signal", "signal", sig)
		return nil
	}

	sh, err := interactive.New(sess, timeout)
	if err != nil {
		return err
	}
	sess.OnEvent(sh.HandleEvent)

	go func() {
		select {
		case sig := <-sigCh:
			logger.Info("received signal", "signal", sig)
			cancel()
		case <-ctx.Done():
		}
	}()
	sh.Run(ctx, cancel)
	return nil
}

// setupTrace opens the trace file. Debug logging also mirrors trace events
// to the slog logger.
func setupTrace(path string, logger *slog.Logger) (log.Logger, func(), error) {
	var loggers []log.Logger
	closeFn := func() {}

	if path != "" {
		fl, err := log.NewFileLogger(path)
		if err != nil {
			return nil, nil, fmt.Errorf("open trace file: %w", err)
		}
		fl.SetErrorLogger(logger)
		loggers = append(loggers, fl)
		closeFn = func() { _ = fl.Close() }
	}
	if logger.Enabled(context.Background(), slog.LevelDebug) {
		loggers = append(loggers, log.NewSlogAdapter(logger))
	}

	switch len(loggers) {
	case 0:
		return nil, closeFn, nil
	case 1:
		return loggers[0], closeFn, nil
	default:
		return log.NewMultiLogger(loggers...), closeFn, nil
	}
}
