package stage

// LightingOption is a functional option used to configure a LightingStage during construction.
type LightingOption func(*LightingStage)

// WithWorkgroupTile sets the requested workgroup size, DefaultLightingTile by default. The
// size is halved along its larger axis until it fits the device limits, with each invocation
// shading more pixels to compensate.
//
// Parameters:
//   - tile: the requested workgroup width and height
//
// Returns:
//   - LightingOption: a function that sets the requested tile
func WithWorkgroupTile(tile [2]uint32) LightingOption {
	return func(l *LightingStage) {
		if tile[0] > 0 && tile[1] > 0 {
			l.requested = tile
		}
	}
}
