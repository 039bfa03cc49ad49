package lens

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-analyze/charts"
)

// chart color constants
var greenTextColor = charts.ColorGreenAlt3
var redTextColor = charts.ColorRed.WithAdjustHSL(0, .1, -.1)

// ReportMetrics contains the run summary and per-step history.
type ReportMetrics struct {
	GeneratedAt time.Time         `json:"generated_at"`
	RunID       string            `json:"run_id"`
	InputFile   string            `json:"input_file"`
	DurationMs  int64             `json:"run_ms"`
	StartSize   int               `json:"start_size"`
	FinalSize   int               `json:"final_size"`
	Iterations  []IterationMetric `json:"iterations"`
	Passes      []PassStats       `json:"passes"`
}

// ReportMap represents a report as an extensible map structure.
// Custom implementations can add additional fields before writing to JSON.
type ReportMap map[string]interface{}

// BuildReportMap converts metrics to a ReportMap that can be extended by
// custom implementations before writing to JSON.
func BuildReportMap(metrics *ReportMetrics) (ReportMap, error) {
	if metrics.GeneratedAt.IsZero() {
		metrics.GeneratedAt = time.Now()
	}
	reportBytes, err := json.Marshal(metrics)
	if err != nil {
		return nil, fmt.Errorf("marshal report to bytes failed: %w", err)
	}
	var reportMap ReportMap
	if err := json.Unmarshal(reportBytes, &reportMap); err != nil {
		return nil, fmt.Errorf("unmarshal report to map failed: %w", err)
	}
	return reportMap, nil
}

// WriteToFile writes the report map to a JSON file.
// This method allows custom implementations to write extended reports.
func (rm ReportMap) WriteToFile(path string) error {
	if path == "" {
		return nil
	}

	encodedReport, err := json.MarshalIndent(rm, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal report map failed: %w", err)
	}
	if err := os.WriteFile(path, encodedReport, 0644); err != nil {
		return fmt.Errorf("write report file failed: %w", err)
	}
	return nil
}

// WriteReportFiles writes the JSON report and the chart image to the given
// paths. Either path may be empty to skip that output.
func WriteReportFiles(reportJsonFile, reportChartsFile string, metrics *ReportMetrics) error {
	if reportJsonFile != "" {
		reportMap, err := BuildReportMap(metrics)
		if err != nil {
			return err
		}
		if err := reportMap.WriteToFile(reportJsonFile); err != nil {
			return err
		}
	}
	if reportChartsFile != "" {
		if err := writeReportCharts(reportChartsFile, metrics); err != nil {
			return err
		}
	}
	return nil
}

// RenderReportChartsFromJson takes a ReportMetrics and renders the report to a png.
func RenderReportChartsFromJson(metrics ReportMetrics) ([]byte, error) {
	painterOpt := charts.PainterOptions{
		OutputFormat: charts.ChartOutputPNG,
		Width:        1024,
		Height:       768,
	}
	return renderReportCharts(painterOpt, &metrics)
}

func writeReportCharts(path string, metrics *ReportMetrics) error {
	var outputType string
	if strings.HasSuffix(path, ".png") {
		outputType = charts.ChartOutputPNG
	} else if strings.HasSuffix(path, ".jpg") || strings.HasSuffix(path, ".jpeg") {
		outputType = charts.ChartOutputJPG
	} else if strings.HasSuffix(path, ".svg") {
		outputType = charts.ChartOutputSVG
	} else {
		return fmt.Errorf("unhandled chart file type: %s", path)
	}

	painterOpt := charts.PainterOptions{
		OutputFormat: outputType,
		Width:        1024,
		Height:       768,
	}
	if buf, err := renderReportCharts(painterOpt, metrics); err != nil {
		return fmt.Errorf("render charts failed: %w", err)
	} else if err = os.WriteFile(path, buf, 0644); err != nil {
		return fmt.Errorf("write chart file failed: %w", err)
	}
	return nil
}

func renderReportCharts(painterOpt charts.PainterOptions, metrics *ReportMetrics) ([]byte, error) {
	p := charts.NewPainter(painterOpt)
	p.FilledRect(0, 0, p.Width(), p.Height(), charts.ColorWhite, charts.ColorWhite, 0)
	const chartPadding = 10
	p = p.Child(charts.PainterPaddingOption(charts.NewBox(0, chartPadding, chartPadding, chartPadding)))

	titleFont := charts.FontStyle{
		FontSize:  16,
		FontColor: charts.ColorBlack,
		Font:      charts.GetDefaultFont(),
	}
	title := metrics.InputFile + ": " + strconv.Itoa(metrics.StartSize) + " -> " +
		strconv.Itoa(metrics.FinalSize) + " bytes"
	titleBox := p.MeasureText(title, 0, titleFont)

	painters, err := p.LayoutByRows().
		RowGap(strconv.Itoa(titleBox.Height())).
		Row().Height("300").Columns("sizeTrend").
		Row().Height("160").Columns("passBars").
		Row().Columns("passTable"). // remaining space for the per-pass table
		Build()
	if err != nil {
		return nil, fmt.Errorf("error building chart layout: %w", err)
	}

	theme := charts.GetTheme(charts.ThemeLight).
		WithBackgroundColor(charts.ColorTransparent).
		WithSeriesColors([]charts.Color{
			charts.ColorGreenAlt1,
			charts.ColorRed,
		})

	// size after each accepted step, starting from the input size
	sizes := make([]float64, 0, len(metrics.Iterations)+1)
	sizes = append(sizes, float64(metrics.StartSize))
	for _, it := range metrics.Iterations {
		sizes = append(sizes, float64(it.Size))
	}
	sizeOpt := charts.NewLineChartOptionWithData([][]float64{sizes})
	sizeOpt.Theme = theme
	sizeOpt.Title.Text = "Size Per Accepted Step (bytes)"
	sizeOpt.XAxis.Show = charts.Ptr(false)
	if err := painters["sizeTrend"].LineChart(sizeOpt); err != nil {
		return nil, fmt.Errorf("error rendering chart: %w", err)
	}

	// stacked accepts vs rejections across all passes
	var totalAccepts, totalRejects float64
	for _, ps := range metrics.Passes {
		totalAccepts += float64(ps.Accepts)
		totalRejects += float64(ps.Attempts - ps.Accepts)
	}
	barOpt := charts.NewHorizontalBarChartOptionWithData([][]float64{
		{totalAccepts}, {totalRejects},
	})
	barOpt.StackSeries = charts.Ptr(true)
	barOpt.Theme = theme
	barOpt.Title.Text = "Accepted vs Rejected Candidates"
	barOpt.XAxis.Unit = axisUnitForMax(int(totalAccepts + totalRejects))
	barOpt.YAxis.Show = charts.Ptr(false)
	barOpt.SeriesList[1].Label.Show = charts.Ptr(true)
	barOpt.SeriesList[1].Label.ValueFormatter = func(f float64) string {
		total := totalAccepts + totalRejects
		if total == 0 {
			return "no candidates"
		}
		return charts.FormatValueHumanize(100.0*totalAccepts/total, 1, false) + "% accepted"
	}
	if err := painters["passBars"].HorizontalBarChart(barOpt); err != nil {
		return nil, fmt.Errorf("error rendering chart: %w", err)
	}

	if err := renderPassTable(painters["passTable"], metrics.Passes); err != nil {
		return nil, err
	}

	p.Text(title, (p.Width()/2)-(titleBox.Width()/2), titleBox.Height(), 0, titleFont)
	return p.Bytes()
}

func renderPassTable(bottom *charts.Painter, passes []PassStats) error {
	tableTitle := "Pass Breakdown"
	tableTitleFont := charts.FontStyle{
		FontSize:  12,
		FontColor: charts.ColorBlack,
		Font:      charts.GetDefaultFont(),
	}
	tableTitleBox := bottom.MeasureText(tableTitle, 0, tableTitleFont)
	bottom.Text(tableTitle, 10, tableTitleBox.Height(), 0, tableTitleFont)

	rows := make([][]string, len(passes))
	for i, ps := range passes {
		rows[i] = []string{
			ps.Name,
			strconv.Itoa(ps.Attempts),
			strconv.Itoa(ps.Accepts),
			strconv.Itoa(ps.OutOfRange),
			strconv.Itoa(ps.Failures),
			strconv.Itoa(ps.CacheHits),
		}
	}
	rowColors := []charts.Color{
		{R: 240, G: 240, B: 240, A: 255},
		charts.ColorTransparent,
	}
	if len(rows)%2 == 0 {
		// reverse row colors so table end is opposite of transparent
		rowColors[0], rowColors[1] = rowColors[1], rowColors[0]
	}
	defaultCellFontStyle := charts.FontStyle{
		FontSize:  12,
		FontColor: charts.Color{R: 50, G: 50, B: 50, A: 255},
		Font:      charts.GetDefaultFont(),
	}
	tableOpt := charts.TableChartOption{
		Header:                []string{"Pass", "Attempts", "Accepts", "Out of Range", "Failures", "Cache Hits"},
		Data:                  rows,
		HeaderBackgroundColor: charts.Color{R: 210, G: 210, B: 210, A: 255},
		RowBackgroundColors:   rowColors,
		Padding:               charts.NewBoxEqual(10),
		Spans:                 []int{24, 8, 8, 10, 8, 10},
		TextAligns: []string{charts.AlignLeft, charts.AlignCenter, charts.AlignCenter,
			charts.AlignCenter, charts.AlignCenter, charts.AlignCenter},
		CellModifier: func(cell charts.TableCell) charts.TableCell {
			if cell.Row == 0 {
				return cell
			}
			cell.FontStyle = defaultCellFontStyle // reset on each call to prevent prior changes persisting

			switch cell.Column {
			case 2: // accepts
				if cell.Text != "0" {
					cell.FontStyle.FontColor = greenTextColor
				}
			case 4: // failures
				if cell.Text != "0" {
					cell.FontStyle.FontColor = redTextColor
				}
			}
			return cell
		},
	}
	tablePainter := bottom.Child(charts.PainterPaddingOption(charts.NewBox(10, tableTitleBox.Height()+8, 0, 0)))
	if err := tablePainter.TableChart(tableOpt); err != nil {
		return fmt.Errorf("error rendering table: %w", err)
	}
	return nil
}

func axisUnitForMax(val int) float64 {
	if val >= 8000 {
		return 2000
	} else if val > 2000 {
		return 1000
	} else if val >= 800 {
		return 200
	} else if val > 200 {
		return 100
	} else if val >= 80 {
		return 20
	} else if val > 20 {
		return 10
	} else if val >= 10 {
		return 2
	} else {
		return 1
	}
}
