package rtc

import "fmt"

// ErrInvalidSnapValue reports a grid snap step that is non-positive or not
// an exact integer multiple of the pixel spacing on its axis.
type ErrInvalidSnapValue struct {
	Axis    string
	Snap    float64
	Spacing float64
}

func (err ErrInvalidSnapValue) Error() string {
	if err.Snap <= 0 {
		return fmt.Sprintf("snap value in %s direction must be > 0 (got %g)", err.Axis, err.Snap)
	}
	return fmt.Sprintf("%s snap %g must be an exact multiple of the %s spacing %g",
		err.Axis, err.Snap, err.Axis, err.Spacing)
}

// ErrAmbiguousHemisphere reports a point on the equator, for which no UTM
// hemisphere can be chosen.
type ErrAmbiguousHemisphere struct {
	Lat, Lon float64
}

func (err ErrAmbiguousHemisphere) Error() string {
	return fmt.Sprintf("could not determine EPSG for lon=%g lat=%g", err.Lon, err.Lat)
}

// ErrInvariantViolation reports an internal inconsistency that should be
// unreachable for valid inputs.
type ErrInvariantViolation struct {
	msg string
}

func (err ErrInvariantViolation) Error() string {
	return err.msg
}

// ErrDegenerateCropWindow reports a crop window that collapsed to a
// non-positive width or height after snapping and clamping.
type ErrDegenerateCropWindow struct {
	Window Bounds
}

func (err ErrDegenerateCropWindow) Error() string {
	return fmt.Sprintf("crop window degenerated to non-positive size: [%g %g %g %g]",
		err.Window.XMin, err.Window.YMin, err.Window.XMax, err.Window.YMax)
}
