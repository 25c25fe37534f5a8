// Command lipallocd runs the local address/port allocator daemon.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/hashicorp/go-envparse"
	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog"
	"github.com/spf13/pflag"

	"github.com/fnatlb/lipalloc/pkg/auditdb"
	"github.com/fnatlb/lipalloc/pkg/control"
	"github.com/fnatlb/lipalloc/pkg/lipalloc"
)

var opt struct {
	Help bool
}

func init() {
	pflag.BoolVarP(&opt.Help, "help", "h", false, "Show this help text")
}

func main() {
	pflag.Parse()

	if pflag.NArg() > 1 || opt.Help {
		fmt.Printf("usage: %s [options] [env_file]\n\noptions:\n%s\n", os.Args[0], pflag.CommandLine.FlagUsages())
		if opt.Help {
			os.Exit(2)
		}
		os.Exit(0)
	}

	var e []string
	if pflag.NArg() == 0 {
		e = os.Environ()
	} else {
		x, err := readEnv(pflag.Arg(0))
		if err != nil {
			fmt.Fprintf(os.Stderr, "error: read env file: %v\n", err)
			os.Exit(1)
		}
		e = x
		if v, ok := os.LookupEnv("NOTIFY_SOCKET"); ok {
			e = append(e, "NOTIFY_SOCKET="+v)
		}
	}

	var c Config
	if err := c.UnmarshalEnv(e); err != nil {
		fmt.Fprintf(os.Stderr, "error: parse config: %v\n", err)
		os.Exit(1)
	}

	logger := zerolog.New(consoleOrJSON(c.LogPretty)).With().Timestamp().Str("component", "lipallocd").Logger().Level(c.LogLevel)

	mode := lipalloc.PortLcoreMapping
	if strings.EqualFold(c.PoolMode, "addr") {
		mode = lipalloc.AddrLcoreMapping
	}
	lcfg := lipalloc.Config{Mode: mode, EnabledCoreMask: c.EnabledCoreMask}
	lipalloc.Init(lcfg)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if c.PinCores {
		for core := 0; core < lipalloc.MaxCores; core++ {
			if !lcfg.CoreEnabled(core) {
				continue
			}
			core := core
			go func() {
				if err := pinCurrentGoroutine(core); err != nil {
					logger.Warn().Err(err).Int("core", core).Msg("pin core")
					return
				}
				logger.Debug().Int("core", core).Msg("worker goroutine pinned")
				<-ctx.Done()
			}()
		}
	}

	ifaces := lipalloc.NewIfaceTable()
	registry := control.NewServiceRegistry()
	if err := bootstrapStaticServices(&c, registry, ifaces, logger); err != nil {
		logger.Fatal().Err(err).Msg("bootstrap static services")
	}

	audit, err := auditdb.Open(c.AuditDBPath)
	if err != nil {
		logger.Fatal().Err(err).Msg("open audit database")
	}
	defer audit.Close()

	cur, tgt, err := audit.Version()
	if err != nil {
		logger.Fatal().Err(err).Msg("get audit database version")
	}
	if cur != tgt {
		if err := audit.MigrateUp(context.Background(), tgt); err != nil {
			logger.Fatal().Err(err).Msg("migrate audit database")
		}
	}

	s := control.NewServer(&control.Server{
		Logger:             logger,
		Addr:               c.ListenAddr,
		MaxConns:           c.MaxConns,
		MaxProtocolVersion: c.MaxProtocolVersion,
		Services:           registry,
		Audit:              audit,
	})

	hch := make(chan os.Signal, 1)
	signal.Notify(hch, syscall.SIGHUP)
	go func() {
		for range hch {
			logger.Info().Msg("got SIGHUP, reload is handled per-service via POST /v1/reload")
		}
	}()

	errch := make(chan error, 1)
	go func() { errch <- s.ListenAndServe() }()

	sdnotify(c.NotifySocket, "READY=1")
	logger.Info().Str("addr", c.ListenAddr).Msg("lipallocd listening")

	select {
	case <-ctx.Done():
		sdnotify(c.NotifySocket, "STOPPING=1")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := s.Shutdown(shutdownCtx); err != nil {
			logger.Error().Err(err).Msg("shutdown control server")
		}
	case err := <-errch:
		if err != nil && !errors.Is(err, context.Canceled) {
			logger.Fatal().Err(err).Msg("control server exited")
		}
	}
}

func readEnv(name string) ([]string, error) {
	f, err := os.Open(name)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	m, err := envparse.Parse(f)
	if err != nil {
		return nil, err
	}

	var r []string
	for k, v := range m {
		r = append(r, k+"="+v)
	}
	return r, nil
}
