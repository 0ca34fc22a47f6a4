package export

import (
	"bytes"
	"fmt"

	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"

	"github.com/garyjia/commute-approvals/internal/application/port"
	"github.com/garyjia/commute-approvals/internal/domain/entity"
)

const sheetName = "Trips"

var tripHeaders = []string{
	"ID", "Status", "Requester", "Rider", "Department", "Pickup", "Destination",
	"Departure", "Passengers", "Trip type", "Reason", "Driver", "Driver phone", "Cab", "Comment",
}

// ExcelExporter implements port.TripExporter as an xlsx workbook
type ExcelExporter struct {
	logger *zap.Logger
}

// NewExcelExporter creates a new trip report exporter
func NewExcelExporter(logger *zap.Logger) *ExcelExporter {
	return &ExcelExporter{logger: logger}
}

// ExportTrips writes one row per trip under a header row
func (e *ExcelExporter) ExportTrips(trips []*entity.TripRequest) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName(f.GetSheetName(0), sheetName); err != nil {
		return nil, fmt.Errorf("failed to name sheet: %w", err)
	}

	if err := f.SetSheetRow(sheetName, "A1", &tripHeaderRow); err != nil {
		return nil, fmt.Errorf("failed to write header: %w", err)
	}
	style, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err == nil {
		lastCol, _ := excelize.ColumnNumberToName(len(tripHeaders))
		e.setStyle(f, "A1", lastCol+"1", style)
	}

	for i, trip := range trips {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return nil, err
		}
		row := tripRow(trip)
		if err := f.SetSheetRow(sheetName, cell, &row); err != nil {
			return nil, fmt.Errorf("failed to write trip %d: %w", trip.ID, err)
		}
	}

	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		return nil, fmt.Errorf("failed to write workbook: %w", err)
	}

	e.logger.Info("Trip report exported", zap.Int("rows", len(trips)), zap.Int("bytes", buf.Len()))
	return buf.Bytes(), nil
}

func (e *ExcelExporter) setStyle(f *excelize.File, from, to string, style int) {
	if err := f.SetCellStyle(sheetName, from, to, style); err != nil {
		e.logger.Warn("Failed to set header style", zap.Error(err))
	}
}

var tripHeaderRow = func() []interface{} {
	row := make([]interface{}, len(tripHeaders))
	for i, h := range tripHeaders {
		row[i] = h
	}
	return row
}()

func tripRow(trip *entity.TripRequest) []interface{} {
	var driver, phone, cab string
	if f := trip.Fulfillment; f != nil {
		driver, phone, cab = f.DriverName, f.DriverPhone, f.CabModel+" "+f.RegNumber
	}
	return []interface{}{
		trip.ID,
		trip.Status.String(),
		trip.RequesterID,
		trip.Rider(),
		trip.Department,
		trip.Origin,
		trip.Destination,
		trip.DepartureTime.Format(entity.DepartureLayout),
		trip.Passengers,
		trip.TripType,
		trip.Reason,
		driver,
		phone,
		cab,
		trip.Comment,
	}
}

// Verify interface compliance
var _ port.TripExporter = (*ExcelExporter)(nil)
