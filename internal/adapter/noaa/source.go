package noaa

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/couchcryptid/ushcn-etl/internal/domain"
	"github.com/couchcryptid/ushcn-etl/internal/pipeline"
)

// Downloader fetches a URL to a local file.
type Downloader interface {
	Fetch(ctx context.Context, rawURL string) (string, error)
}

// Source serves variant data members and station tables from the NCEI
// archive layout.
type Source struct {
	catalog    Catalog
	downloader Downloader
	logger     *slog.Logger
}

// NewSource creates a Source reading from catalog through downloader.
func NewSource(catalog Catalog, downloader Downloader, logger *slog.Logger) *Source {
	return &Source{catalog: catalog, downloader: downloader, logger: logger}
}

// Members downloads each archive of the variant and visits the members that
// hold the variant's data lines.
func (s *Source) Members(ctx context.Context, v domain.DatasetVariant, visit pipeline.MemberFunc) error {
	for _, u := range s.catalog.Archives(v) {
		if err := s.archive(ctx, v, u, visit); err != nil {
			return err
		}
	}
	return nil
}

func (s *Source) archive(ctx context.Context, v domain.DatasetVariant, rawURL string, visit pipeline.MemberFunc) error {
	local, err := s.downloader.Fetch(ctx, rawURL)
	if err != nil {
		return &domain.SourceFailure{Variant: v, Source: rawURL, Err: err}
	}
	f, err := os.Open(local)
	if err != nil {
		return &domain.SourceFailure{Variant: v, Source: rawURL, Err: err}
	}
	defer f.Close()

	// Errors returned by visit belong to the caller and pass through as they
	// are; only archive errors become a SourceFailure.
	var visitErr error
	members := 0
	err = ExtractTarGz(f, func(name string, r io.Reader) error {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if !v.Accepts(name) {
			return nil
		}
		members++
		visitErr = visit(name, r)
		return visitErr
	})
	if visitErr != nil {
		return visitErr
	}
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return &domain.SourceFailure{Variant: v, Source: rawURL, Err: err}
	}
	s.logger.Info("archive processed", "variant", v.String(), "url", rawURL, "members", members)
	return nil
}

// Stations downloads and parses a station metadata file.
func (s *Source) Stations(ctx context.Context, format domain.StationFormat) (*domain.StationTable, error) {
	rawURL := s.catalog.StationFile(format)
	local, err := s.downloader.Fetch(ctx, rawURL)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(local)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", format, err)
	}
	defer f.Close()
	return domain.LoadStations(f, format)
}
