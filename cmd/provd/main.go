// Command provd is the provenance receiver (spec §6): it listens for
// POST /log batches, folds them into job summaries (§4), and prints each
// completed job as it closes out.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/provtrace/provtrace/internal/idle"
	"github.com/provtrace/provtrace/internal/tracingutil"
	"github.com/provtrace/provtrace/processor"
	"github.com/provtrace/provtrace/queue"
	"github.com/provtrace/provtrace/server"

	"github.com/matgreaves/run"
)

func main() {
	addr := flag.String("addr", "127.0.0.1:9000", "listen address")
	workers := flag.Int("workers", 4, "max concurrent POST /log handlers (0 = unbounded)")
	sink := flag.String("sink", "stdout", "job summary sink: stdout or none")
	adminAddr := flag.String("admin-addr", "", "gRPC health/admin listen address (empty disables it)")
	idleTimeout := flag.Duration("idle", 0, "shut down after this long with no ingested events (0 disables)")
	flag.Parse()

	shutdownTracing, err := tracingutil.Setup(context.Background())
	if err != nil {
		fmt.Fprintf(os.Stderr, "provd: tracing setup: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		shutdownTracing(shutdownCtx)
	}()

	var out io.Writer
	switch *sink {
	case "stdout":
		out = os.Stdout
	case "none":
		out = io.Discard
	default:
		fmt.Fprintf(os.Stderr, "provd: unknown -sink %q, want stdout or none\n", *sink)
		os.Exit(1)
	}

	q := queue.New()
	audit := server.NewAuditLog()

	p := processor.New(q, processor.NewTextSink(out))
	p.Warn = processor.StderrWarner(os.Stderr)
	p.Audit = audit

	idleTimer := idle.New(*idleTimeout)

	httpServer := server.New(q, audit, *workers)
	httpServer.OnActivity = idleTimer.Activity

	ln, err := net.Listen("tcp", *addr)
	if err != nil {
		fmt.Fprintf(os.Stderr, "provd: listen: %v\n", err)
		os.Exit(1)
	}
	fmt.Fprintf(os.Stderr, "provd listening on %s\n", ln.Addr())

	group := run.Group{
		"http":      httpRunner(ln, httpServer.Handler()),
		"processor": p.Runner(),
	}

	var admin *server.AdminServer
	if *adminAddr != "" {
		adminLn, err := net.Listen("tcp", *adminAddr)
		if err != nil {
			fmt.Fprintf(os.Stderr, "provd: admin listen: %v\n", err)
			os.Exit(1)
		}
		admin = server.NewAdminServer()
		fmt.Fprintf(os.Stderr, "provd admin listening on %s\n", adminLn.Addr())
		group["admin"] = run.Func(func(ctx context.Context) error {
			return admin.Serve(ctx, adminLn)
		})
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	runErr := make(chan error, 1)
	go func() { runErr <- group.Run(ctx) }()

	select {
	case <-idleTimer.ShutdownCh():
		fmt.Fprintln(os.Stderr, "provd: idle timeout, shutting down")
		if admin != nil {
			admin.SetServing(false)
		}
		cancel()
		<-runErr
	case sig := <-sigCh:
		fmt.Fprintf(os.Stderr, "provd: received %s, shutting down\n", sig)
		if admin != nil {
			admin.SetServing(false)
		}
		cancel()
		<-runErr
	case err := <-runErr:
		if err != nil {
			fmt.Fprintf(os.Stderr, "provd: %v\n", err)
			os.Exit(1)
		}
	}
}

// httpRunner adapts an already-bound listener and handler into a
// run.Runner that shuts down gracefully on cancellation, matching
// cmd/rigd/main.go's httpSrv.Shutdown pattern.
func httpRunner(ln net.Listener, handler http.Handler) run.Runner {
	return run.Func(func(ctx context.Context) error {
		httpSrv := &http.Server{Handler: handler}

		serveErr := make(chan error, 1)
		go func() { serveErr <- httpSrv.Serve(ln) }()

		select {
		case <-ctx.Done():
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			httpSrv.Shutdown(shutdownCtx)
			return nil
		case err := <-serveErr:
			if err == http.ErrServerClosed {
				return nil
			}
			return err
		}
	})
}
