package noaa

import (
	"archive/tar"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/klauspost/compress/gzip"
)

// MemberFunc receives one regular archive member. The reader is only valid
// during the call.
type MemberFunc func(name string, r io.Reader) error

// ExtractTarGz streams every regular file of a gzip-compressed tar archive to
// visit without writing it to disk. Member names are cleaned; absolute names
// and names escaping the archive root are skipped.
func ExtractTarGz(r io.Reader, visit MemberFunc) error {
	gz, err := gzip.NewReader(r)
	if err != nil {
		return fmt.Errorf("open gzip: %w", err)
	}
	defer gz.Close()

	tr := tar.NewReader(gz)
	for {
		hdr, err := tr.Next()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("read tar: %w", err)
		}
		if hdr.Typeflag != tar.TypeReg {
			continue
		}
		name, ok := cleanMemberName(hdr.Name)
		if !ok {
			continue
		}
		if err := visit(name, tr); err != nil {
			return err
		}
	}
}

func cleanMemberName(name string) (string, bool) {
	if name == "" || strings.HasPrefix(name, "/") || strings.Contains(name, `\`) {
		return "", false
	}
	clean := path.Clean(name)
	if clean == "." || clean == ".." || strings.HasPrefix(clean, "../") {
		return "", false
	}
	return clean, true
}
