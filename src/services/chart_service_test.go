package services

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRenderEquityCurvesEmpty(t *testing.T) {
	svc := NewChartService()

	_, err := svc.RenderEquityCurves("empty", nil)
	assert.ErrorIs(t, err, ErrEmptyHistory)

	_, err = svc.RenderEquityCurves("empty", []EquitySeries{{Name: "A"}})
	assert.ErrorIs(t, err, ErrEmptyHistory)
}

func TestRenderEquityCurvesPNG(t *testing.T) {
	svc := NewChartService()
	dates := []time.Time{
		time.Date(2020, 1, 31, 0, 0, 0, 0, time.UTC),
		time.Date(2020, 2, 29, 0, 0, 0, 0, time.UTC),
		time.Date(2020, 3, 31, 0, 0, 0, 0, time.UTC),
	}
	series := []EquitySeries{
		{Name: "Growth", Dates: dates, Values: []float64{1000, 1100, 1050}},
		{Name: "Income", Dates: dates, Values: []float64{1000, 1010, 1020}},
	}

	png, err := svc.RenderEquityCurves("Portfolio value over time", series)
	require.NoError(t, err)
	require.NotEmpty(t, png)
	// PNG magic bytes
	assert.Equal(t, []byte{0x89, 'P', 'N', 'G'}, png[:4])
}

func TestRenderAnnualReturns(t *testing.T) {
	svc := NewChartService()

	_, err := svc.RenderAnnualReturns("empty", nil)
	assert.ErrorIs(t, err, ErrEmptyHistory)

	series := []AnnualSeries{
		{Name: "Growth", Returns: map[int]float64{2019: 0.12, 2020: -0.05}},
		{Name: "Income", Returns: map[int]float64{2020: 0.03}},
	}
	png, err := svc.RenderAnnualReturns("Annual returns (%)", series)
	require.NoError(t, err)
	require.NotEmpty(t, png)
	assert.Equal(t, []byte{0x89, 'P', 'N', 'G'}, png[:4])
}
