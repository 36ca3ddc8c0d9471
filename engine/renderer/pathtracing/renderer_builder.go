package pathtracing

const (
	// DefaultMaxBounces is the number of indirect bounces traced per path.
	DefaultMaxBounces = 4
	// DefaultProbeSampleCount is the number of paths traced per probe texel.
	DefaultProbeSampleCount = 64
)

// DefaultTraceTile is the ray generation workgroup size.
var DefaultTraceTile = [2]uint32{8, 8}

// RendererOption is a functional option used to configure a Renderer during construction.
type RendererOption func(*Renderer)

// WithMaxBounces sets the number of indirect bounces of every path.
//
// Parameters:
//   - bounces: the bounce count
//
// Returns:
//   - RendererOption: a function that sets the bounce count
func WithMaxBounces(bounces uint32) RendererOption {
	return func(r *Renderer) {
		r.maxBounces = bounces
	}
}

// WithSampleCount sets the number of paths traced per pixel in one trace. Zero is ignored.
//
// Parameters:
//   - samples: paths per pixel, 1 by default in swapchain mode
//
// Returns:
//   - RendererOption: a function that sets the sample count
func WithSampleCount(samples uint32) RendererOption {
	return func(r *Renderer) {
		if samples > 0 {
			r.sampleCount = samples
		}
	}
}

// WithSeed sets the seed mixed into the per-pixel random sequence.
func WithSeed(seed uint32) RendererOption {
	return func(r *Renderer) {
		r.seed = seed
	}
}

// WithTraceTile sets the requested ray generation workgroup, fitted to the device limits.
// A tile with a zero axis is ignored.
//
// Parameters:
//   - tile: the workgroup width and height
//
// Returns:
//   - RendererOption: a function that sets the trace tile
func WithTraceTile(tile [2]uint32) RendererOption {
	return func(r *Renderer) {
		if tile[0] > 0 && tile[1] > 0 {
			r.requested = tile
		}
	}
}
