package main

import (
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/couchcryptid/ushcn-etl/internal/domain"
)

const datasetHelp = "daily, monthly-raw, monthly-tob, monthly-fls52, monthly, stations, all"

// selection is the resolved set of work requested on the command line.
type selection struct {
	variants []domain.DatasetVariant
	stations bool
}

// selectDatasets resolves dataset names. "monthly" expands to the three
// monthly variants and "all" to every variant plus the station export.
func selectDatasets(names []string) (selection, error) {
	var sel selection
	add := func(vs ...domain.DatasetVariant) {
		for _, v := range vs {
			if !slices.Contains(sel.variants, v) {
				sel.variants = append(sel.variants, v)
			}
		}
	}

	for _, name := range names {
		switch n := strings.ToLower(strings.TrimSpace(name)); n {
		case "":
			continue
		case "all":
			add(domain.AllVariants()...)
			sel.stations = true
		case "monthly":
			add(domain.MonthlyRaw, domain.MonthlyTOB, domain.MonthlyFLS52)
		case "stations":
			sel.stations = true
		default:
			v, err := domain.ParseVariant(n)
			if err != nil {
				return selection{}, fmt.Errorf("unknown dataset %q (want one of %s)", name, datasetHelp)
			}
			add(v)
		}
	}
	if len(sel.variants) == 0 && !sel.stations {
		return selection{}, errors.New("no datasets requested")
	}
	return sel, nil
}
