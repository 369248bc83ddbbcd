// Command genmock writes a deterministic synthetic copy of the NCEI archive
// tree (daily and monthly tar.gz archives plus both station files) so the
// pipeline can run without network access. With --serve it also serves the
// tree over HTTP for use as NOAA_BASE_URL.
//
// Usage:
//
//	go run ./cmd/genmock --out data/mock --stations 20 --unlisted 2
//	go run ./cmd/genmock --serve :8089
//	NOAA_BASE_URL=http://localhost:8089 go run ./cmd/ushcn all
package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"slices"
	"syscall"
	"time"

	"github.com/spf13/pflag"

	"github.com/couchcryptid/ushcn-etl/internal/adapter/noaa"
	"github.com/couchcryptid/ushcn-etl/internal/domain"
)

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	opts := noaa.DefaultMockOptions()
	out := pflag.StringP("out", "o", "", "directory to write the archive tree into")
	serve := pflag.String("serve", "", "address to serve the archive tree on, e.g. :8089")
	pflag.IntVar(&opts.Stations, "stations", opts.Stations, "stations listed in the station files")
	pflag.IntVar(&opts.Unlisted, "unlisted", opts.Unlisted, "stations with data but no station file row")
	pflag.IntVar(&opts.FirstYear, "first-year", opts.FirstYear, "first data year")
	pflag.IntVar(&opts.LastYear, "last-year", opts.LastYear, "last data year")
	pflag.Uint64Var(&opts.Seed, "seed", opts.Seed, "random seed")
	pflag.Parse()

	if *out == "" && *serve == "" {
		pflag.Usage()
		return errors.New("one of --out or --serve is required")
	}

	set, err := noaa.BuildMockSet(opts)
	if err != nil {
		return err
	}
	printStats(set)

	if *out != "" {
		if err := set.WriteTo(*out); err != nil {
			return fmt.Errorf("writing archive tree: %w", err)
		}
		log.Printf("wrote %d files to %s", len(set.Files), *out)
	}
	if *serve != "" {
		return serveSet(set, *serve)
	}
	return nil
}

func serveSet(set *noaa.MockSet, addr string) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	srv := &http.Server{
		Addr:              addr,
		Handler:           set.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	log.Printf("serving mock archives on %s", addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func printStats(set *noaa.MockSet) {
	names := make([]string, 0, len(set.Files))
	for name := range set.Files {
		names = append(names, name)
	}
	slices.Sort(names)
	for _, name := range names {
		log.Printf("  %-55s %8d bytes", name, len(set.Files[name]))
	}

	log.Printf("listed stations: %d", set.StationsTotal)
	for _, v := range domain.AllVariants() {
		log.Printf("%-14s values=%d without station=%d quality flagged=%d",
			v, set.Values[v], set.Gaps[v], set.QualityFlags[v])
	}
	log.Printf("unknown element lines: %d", set.UnknownLines)
}
