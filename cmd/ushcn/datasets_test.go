package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/ushcn-etl/internal/domain"
)

func TestSelectDatasets(t *testing.T) {
	tests := []struct {
		name     string
		in       []string
		variants []domain.DatasetVariant
		stations bool
	}{
		{"single", []string{"daily"}, []domain.DatasetVariant{domain.Daily}, false},
		{"case and spaces", []string{" Monthly-TOB "}, []domain.DatasetVariant{domain.MonthlyTOB}, false},
		{"monthly group", []string{"monthly"}, []domain.DatasetVariant{domain.MonthlyRaw, domain.MonthlyTOB, domain.MonthlyFLS52}, false},
		{"duplicates collapse", []string{"monthly-raw", "monthly", "monthly-raw"}, []domain.DatasetVariant{domain.MonthlyRaw, domain.MonthlyTOB, domain.MonthlyFLS52}, false},
		{"stations only", []string{"stations"}, nil, true},
		{"all", []string{"all"}, domain.AllVariants(), true},
		{"blank entries ignored", []string{"", "daily"}, []domain.DatasetVariant{domain.Daily}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sel, err := selectDatasets(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.variants, sel.variants)
			assert.Equal(t, tt.stations, sel.stations)
		})
	}
}

func TestSelectDatasets_Errors(t *testing.T) {
	_, err := selectDatasets(nil)
	assert.EqualError(t, err, "no datasets requested")

	_, err = selectDatasets([]string{"daily", "hourly"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), `unknown dataset "hourly"`)
}
