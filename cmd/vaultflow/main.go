package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/vaultflow/vaultflow"
)

func main() {
	var (
		vaultPath = flag.String("vault", "", "vault root directory (required)")
		agent     = flag.String("agent", "vaultflow", "agent name used in notes and audit blocks")
		interval  = flag.Duration("interval", 5*time.Second, "watcher poll interval")
		once      = flag.Bool("once", false, "run a single cycle and exit")
		traceFile = flag.String("trace", "", "write OpenTelemetry traces to this file")
	)
	flag.Parse()
	if *vaultPath == "" {
		fmt.Fprintln(os.Stderr, "usage: vaultflow -vault <dir> [-interval 5s] [-once]")
		os.Exit(2)
	}

	config := vaultflow.DefaultConfig(*vaultPath)
	config.Agent = *agent
	config.Watcher.PollInterval = *interval

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	var options []vaultflow.Option
	if *traceFile != "" {
		options = append(options, vaultflow.WithTracing("vaultflow", "dev", *traceFile))
	}
	srv, err := vaultflow.New(ctx, config, options...)
	if err != nil {
		log.Fatalf("failed to start: %v", err)
	}
	rt := srv.Runtime()

	if *once {
		if _, err := rt.ProcessInbox(ctx); err != nil {
			log.Printf("inbox scan failed: %v", err)
		}
		report, err := rt.RunCycle(ctx)
		if err != nil {
			log.Fatalf("cycle failed: %v", err)
		}
		log.Printf("cycle complete: discovered=%d classified=%d gated=%d dispatched=%q archived=%d",
			report.Discovered, report.Classified, report.Gated, report.Dispatched, len(report.Archived))
		return
	}

	if err := rt.Start(ctx); err != nil {
		log.Fatalf("failed to start runtime: %v", err)
	}
	log.Printf("vaultflow watching %s every %s", *vaultPath, *interval)
	<-ctx.Done()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	_ = rt.Shutdown(shutdownCtx)
	log.Printf("vaultflow stopped")
}
