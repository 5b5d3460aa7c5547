package services

import (
	"sort"
	"strconv"

	charts "github.com/vicanso/go-charts/v2"
)

type chartServiceImpl struct{}

func NewChartService() ChartService {
	return &chartServiceImpl{}
}

// RenderEquityCurves draws each portfolio's balance trajectory on a shared
// date axis. Series are assumed pre-aligned by the engine (same common start
// date, same trading calendar); the first series defines the x axis.
func (s *chartServiceImpl) RenderEquityCurves(title string, series []EquitySeries) ([]byte, error) {
	if len(series) == 0 || len(series[0].Dates) == 0 {
		return nil, ErrEmptyHistory
	}

	axis := series[0].Dates
	xLabels := make([]string, len(axis))
	for i, d := range axis {
		xLabels[i] = d.Format("2006-01")
	}

	values := make([][]float64, 0, len(series))
	names := make([]string, 0, len(series))
	var yMin, yMax float64
	first := true
	for _, sr := range series {
		if len(sr.Values) == 0 {
			continue
		}
		for _, v := range sr.Values {
			if first {
				yMin, yMax = v, v
				first = false
				continue
			}
			if v < yMin {
				yMin = v
			}
			if v > yMax {
				yMax = v
			}
		}
		values = append(values, sr.Values)
		names = append(names, sr.Name)
	}
	if len(values) == 0 {
		return nil, ErrEmptyHistory
	}

	pad := (yMax - yMin) * 0.05
	if pad < yMax*0.002 {
		pad = yMax * 0.002
	}
	yMin -= pad
	if yMin < 0 {
		yMin = 0
	}
	yMax += pad

	seriesList := charts.NewSeriesListDataFromValues(values, charts.ChartTypeLine)
	for i := range seriesList {
		seriesList[i].Name = names[i]
	}

	painter, err := charts.Render(charts.ChartOption{SeriesList: seriesList},
		charts.TitleTextOptionFunc(title),
		charts.XAxisOptionFunc(charts.XAxisOption{Data: xLabels, BoundaryGap: charts.FalseFlag(), SplitNumber: 10}),
		charts.YAxisOptionFunc(charts.YAxisOption{Min: &yMin, Max: &yMax, DivideCount: 5}),
		charts.LegendOptionFunc(charts.LegendOption{Data: names}),
		charts.ThemeOptionFunc(charts.ThemeLight),
	)
	if err != nil {
		return nil, err
	}
	return painter.Bytes()
}

// RenderAnnualReturns draws calendar-year returns as grouped percent bars.
// The x axis is the union of years seen across all series; a series without
// data for a year contributes a zero-height bar there.
func (s *chartServiceImpl) RenderAnnualReturns(title string, series []AnnualSeries) ([]byte, error) {
	yearSet := make(map[int]bool)
	for _, sr := range series {
		for y := range sr.Returns {
			yearSet[y] = true
		}
	}
	if len(yearSet) == 0 {
		return nil, ErrEmptyHistory
	}

	years := make([]int, 0, len(yearSet))
	for y := range yearSet {
		years = append(years, y)
	}
	sort.Ints(years)

	xLabels := make([]string, len(years))
	for i, y := range years {
		xLabels[i] = strconv.Itoa(y)
	}

	values := make([][]float64, len(series))
	names := make([]string, len(series))
	for i, sr := range series {
		row := make([]float64, len(years))
		for j, y := range years {
			row[j] = sr.Returns[y] * 100
		}
		values[i] = row
		names[i] = sr.Name
	}

	painter, err := charts.BarRender(values,
		charts.TitleTextOptionFunc(title),
		charts.XAxisDataOptionFunc(xLabels),
		charts.LegendOptionFunc(charts.LegendOption{Data: names, Top: charts.PositionTop}),
		charts.ThemeOptionFunc(charts.ThemeLight),
		charts.WidthOptionFunc(1000),
		charts.HeightOptionFunc(600),
		func(opt *charts.ChartOption) {
			for i := range opt.SeriesList {
				opt.SeriesList[i].Name = names[i]
			}
		},
	)
	if err != nil {
		return nil, err
	}
	return painter.Bytes()
}
