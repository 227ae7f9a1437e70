package main

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func (repl *REPL) metricsMux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(repl.registry, promhttp.HandlerOpts{}))
	return mux
}

// CommandMetrics serves /metrics in the background.
func (repl *REPL) CommandMetrics(args []string) error {
	if len(args) != 1 {
		return HelpMetrics
	}
	srv := &http.Server{
		Addr:              args[0],
		Handler:           repl.metricsMux(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			repl.Opts.Logger.Error("metrics server stopped", "addr", args[0], "err", err)
		}
	}()
	_, _ = fmt.Fprintf(repl.out, "serving metrics on %s\n", args[0])
	return nil
}
