// Package noaa retrieves and unpacks the NCEI archive files behind each
// dataset variant.
package noaa

import (
	"github.com/couchcryptid/ushcn-etl/internal/domain"
)

// DefaultBaseURL is the NCEI public data root.
const DefaultBaseURL = "https://www.ncei.noaa.gov/pub/data"

// monthlyElements are the USHCN element archives, one per element.
var monthlyElements = []string{"tmax", "tmin", "tavg"}

// Catalog maps variants and station tables to archive URLs under BaseURL.
type Catalog struct {
	BaseURL string
}

// Archives returns the tar.gz archives holding a variant's data files.
func (c Catalog) Archives(v domain.DatasetVariant) []string {
	if v == domain.Daily {
		return []string{c.BaseURL + "/ghcn/daily/ghcnd_hcn.tar.gz"}
	}
	suffix := monthlySuffix(v)
	urls := make([]string, 0, len(monthlyElements))
	for _, el := range monthlyElements {
		urls = append(urls, c.BaseURL+"/ushcn/v2.5/ushcn."+el+".latest."+suffix+".tar.gz")
	}
	return urls
}

// StationFile returns the URL of a station metadata file.
func (c Catalog) StationFile(f domain.StationFormat) string {
	if f == domain.USHCNStations {
		return c.BaseURL + "/ushcn/v2.5/ushcn-v2.5-stations.txt"
	}
	return c.BaseURL + "/ghcn/daily/ghcnd-stations.txt"
}

func monthlySuffix(v domain.DatasetVariant) string {
	switch v {
	case domain.MonthlyTOB:
		return "tob"
	case domain.MonthlyFLS52:
		return "FLs.52j"
	default:
		return "raw"
	}
}
