package service

import (
	"context"

	"github.com/garyjia/commute-approvals/internal/application/pagination"
	"github.com/garyjia/commute-approvals/internal/application/port"
	"github.com/garyjia/commute-approvals/internal/domain/entity"
)

// GetTrip returns the trip request with id
func (c *coordinatorImpl) GetTrip(ctx context.Context, id int64) (*entity.TripRequest, error) {
	return c.loadTrip(ctx, id)
}

// GetRoute returns the route request with id
func (c *coordinatorImpl) GetRoute(ctx context.Context, id int64) (*entity.RouteRequest, error) {
	return c.loadRoute(ctx, id)
}

// ListTrips returns one page of trips matching filter
func (c *coordinatorImpl) ListTrips(ctx context.Context, req pagination.PageRequest, filter port.TripFilter) (*pagination.PageResult[*entity.TripRequest], error) {
	page, err := pagination.GetPage[*entity.TripRequest, port.TripFilter](ctx, c.trips, req, filter)
	if err != nil {
		c.logger.Error("Failed to list trips", "error", err, "page", req.Page, "size", req.Size)
		return nil, err
	}
	return page, nil
}

// ListRoutes returns one page of route requests matching filter
func (c *coordinatorImpl) ListRoutes(ctx context.Context, req pagination.PageRequest, filter port.RouteFilter) (*pagination.PageResult[*entity.RouteRequest], error) {
	page, err := pagination.GetPage[*entity.RouteRequest, port.RouteFilter](ctx, c.routes, req, filter)
	if err != nil {
		c.logger.Error("Failed to list route requests", "error", err, "page", req.Page, "size", req.Size)
		return nil, err
	}
	return page, nil
}
