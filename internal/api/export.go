package api

import (
	"fmt"
	"net/http"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/banshee-data/anygrow.bridge/internal/db"
	"github.com/banshee-data/anygrow.bridge/internal/httputil"
	"github.com/banshee-data/anygrow.bridge/internal/monitoring"
	"github.com/banshee-data/anygrow.bridge/internal/protocol"
	"github.com/banshee-data/anygrow.bridge/internal/units"
)

const readingsSheet = "Readings"

var readingsColumnWidths = []float64{22, 14, 12, 10, 14}

// exportReadings serves GET /api/sensors/export.xlsx with the same
// parameters as /api/sensors.
func (s *Server) exportReadings(w http.ResponseWriter, r *http.Request) {
	httputil.AllowAnyOrigin(w)
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	tempUnits, ok := temperatureUnits(r)
	if !ok {
		httputil.BadRequest(w, "invalid units; valid options: "+units.GetValidUnitsString())
		return
	}

	hours := httputil.IntParam(r, "hours", DefaultQueryHours)
	limit := httputil.IntParam(r, "limit", DefaultQueryLimit)
	rows, err := s.db.Readings(hours, limit)
	if err != nil {
		monitoring.Logf("Error querying readings for export: %v", err)
		httputil.InternalServerError(w, "failed to query readings")
		return
	}

	f, err := buildReadingsWorkbook(rows, tempUnits)
	if err != nil {
		monitoring.Logf("Error building readings workbook: %v", err)
		httputil.InternalServerError(w, "failed to build workbook")
		return
	}
	defer f.Close()

	filename := fmt.Sprintf("anygrow-readings-%s.xlsx", time.Now().Format("20060102-150405"))
	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	if err := f.Write(w); err != nil {
		monitoring.Logf("Error writing readings workbook: %v", err)
	}
}

// buildReadingsWorkbook lays rows out on a single sheet. CO2 cells are left
// blank for readings at or above the sensor ceiling.
func buildReadingsWorkbook(rows []db.StoredReading, tempUnits string) (*excelize.File, error) {
	f := excelize.NewFile()
	if err := f.SetSheetName("Sheet1", readingsSheet); err != nil {
		f.Close()
		return nil, err
	}

	headerStyle, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
		Fill: excelize.Fill{Type: "pattern", Color: []string{"E0E0E0"}, Pattern: 1},
		Alignment: &excelize.Alignment{
			Horizontal: "center",
		},
	})
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to create header style: %w", err)
	}

	tempHeader := "Temperature (°C)"
	if tempUnits == units.Fahrenheit {
		tempHeader = "Temperature (°F)"
	}
	headers := []interface{}{"Timestamp", tempHeader, "Humidity (%)", "CO2 (ppm)", "Illumination"}
	if err := f.SetSheetRow(readingsSheet, "A1", &headers); err != nil {
		f.Close()
		return nil, err
	}
	last, _ := excelize.CoordinatesToCellName(len(headers), 1)
	if err := f.SetCellStyle(readingsSheet, "A1", last, headerStyle); err != nil {
		f.Close()
		return nil, err
	}

	for i, width := range readingsColumnWidths {
		col, err := excelize.ColumnNumberToName(i + 1)
		if err != nil {
			f.Close()
			return nil, err
		}
		if err := f.SetColWidth(readingsSheet, col, col, width); err != nil {
			f.Close()
			return nil, err
		}
	}

	for i, row := range rows {
		temp := row.Temperature
		if tempUnits != units.Celsius {
			temp = units.ConvertTemperature(temp, tempUnits)
		}
		var co2 interface{}
		if row.CO2 < protocol.CO2Ceiling {
			co2 = row.CO2
		}
		values := []interface{}{row.TsText, temp, row.Humidity, co2, row.Illumination}
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			f.Close()
			return nil, err
		}
		if err := f.SetSheetRow(readingsSheet, cell, &values); err != nil {
			f.Close()
			return nil, fmt.Errorf("failed to write row %d: %w", i+2, err)
		}
	}
	return f, nil
}
