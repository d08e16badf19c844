package rtc

import (
	"context"
)

// fakeEngine satisfies Engine with injectable behaviour per call.
type fakeEngine struct {
	estimateGeogrid func(ctx context.Context, grid RadarGrid, orbit Orbit, spacingX, spacingY float64, epsg int) (Geogrid, error)
	bistaticDelay   func(ctx context.Context, b *Burst, rgStepMeters, azStepSeconds float64) (LUT2D, error)
	topo            func(ctx context.Context, req TopoRequest) (TopoResult, error)
	geocode         func(ctx context.Context, req GeocodeRequest) error
	radarGridLayers func(ctx context.Context, req RadarGridLayersRequest) error
}

func (f *fakeEngine) EstimateGeogrid(ctx context.Context, grid RadarGrid, orbit Orbit, spacingX, spacingY float64, epsg int) (Geogrid, error) {
	return f.estimateGeogrid(ctx, grid, orbit, spacingX, spacingY, epsg)
}

func (f *fakeEngine) BistaticDelay(ctx context.Context, b *Burst, rgStepMeters, azStepSeconds float64) (LUT2D, error) {
	return f.bistaticDelay(ctx, b, rgStepMeters, azStepSeconds)
}

func (f *fakeEngine) Topo(ctx context.Context, req TopoRequest) (TopoResult, error) {
	return f.topo(ctx, req)
}

func (f *fakeEngine) Geocode(ctx context.Context, req GeocodeRequest) error {
	return f.geocode(ctx, req)
}

func (f *fakeEngine) RadarGridLayers(ctx context.Context, req RadarGridLayersRequest) error {
	return f.radarGridLayers(ctx, req)
}
