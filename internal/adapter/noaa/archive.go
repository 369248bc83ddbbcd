package noaa

import (
	"archive/tar"
	"fmt"
	"io"
	"time"

	"github.com/klauspost/compress/gzip"
)

// ArchiveFile is one member written by WriteTarGz.
type ArchiveFile struct {
	Name string
	Body []byte
}

// WriteTarGz writes files as a gzip-compressed tar archive in the layout the
// NCEI archives use. It produces the fixtures that ExtractTarGz reads.
func WriteTarGz(w io.Writer, modTime time.Time, files ...ArchiveFile) error {
	gz := gzip.NewWriter(w)
	tw := tar.NewWriter(gz)
	for _, f := range files {
		hdr := &tar.Header{
			Name:     f.Name,
			Mode:     0o644,
			Size:     int64(len(f.Body)),
			ModTime:  modTime,
			Typeflag: tar.TypeReg,
		}
		if err := tw.WriteHeader(hdr); err != nil {
			return fmt.Errorf("write header %s: %w", f.Name, err)
		}
		if _, err := tw.Write(f.Body); err != nil {
			return fmt.Errorf("write %s: %w", f.Name, err)
		}
	}
	if err := tw.Close(); err != nil {
		return fmt.Errorf("close tar: %w", err)
	}
	return gz.Close()
}
