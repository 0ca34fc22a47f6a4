package service

import (
	"context"
	"fmt"

	"github.com/garyjia/commute-approvals/internal/application/pagination"
	"github.com/garyjia/commute-approvals/internal/application/port"
	"github.com/garyjia/commute-approvals/internal/domain/apperror"
	"github.com/garyjia/commute-approvals/internal/domain/entity"
)

// exportPageSize bounds each fetch while collecting an export
const exportPageSize = 100

// ReportService renders trip listings as spreadsheets
type ReportService interface {
	ExportTrips(ctx context.Context, filter port.TripFilter) ([]byte, error)
}

type reportServiceImpl struct {
	trips    port.TripRepository
	exporter port.TripExporter
	logger   Logger
}

// NewReportService creates a new ReportService
func NewReportService(trips port.TripRepository, exporter port.TripExporter, logger Logger) ReportService {
	return &reportServiceImpl{
		trips:    trips,
		exporter: exporter,
		logger:   logger,
	}
}

// ExportTrips walks every page of trips matching filter and renders them
func (s *reportServiceImpl) ExportTrips(ctx context.Context, filter port.TripFilter) ([]byte, error) {
	engine, err := pagination.New[*entity.TripRequest, port.TripFilter](s.trips, filter, exportPageSize)
	if err != nil {
		return nil, err
	}

	var trips []*entity.TripRequest
	for page := 1; ; page++ {
		result, err := engine.GetPageItems(ctx, page)
		if err != nil {
			return nil, err
		}
		trips = append(trips, result.Data...)
		if page >= result.PageMeta.TotalPages {
			break
		}
	}

	data, err := s.exporter.ExportTrips(trips)
	if err != nil {
		s.logger.Error("Failed to export trips", "error", err, "count", len(trips))
		return nil, apperror.Dependency("export trips", fmt.Errorf("render report: %w", err))
	}

	s.logger.Info("Trips exported", "count", len(trips))
	return data, nil
}
