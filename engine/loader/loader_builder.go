package loader

// LoaderBuilderOption is a functional option for configuring a Loader via NewLoader.
type LoaderBuilderOption func(*loader)

// WithMaxTextureSize bounds the longest edge of imported textures. Zero keeps full size.
//
// Parameters:
//   - size: the edge limit in pixels
//
// Returns:
//   - LoaderBuilderOption: a function that applies the limit to a loader
func WithMaxTextureSize(size uint32) LoaderBuilderOption {
	return func(l *loader) {
		l.maxTextureSize = size
	}
}

// WithDecodeWorkers sets how many images are decoded in parallel.
func WithDecodeWorkers(n int) LoaderBuilderOption {
	return func(l *loader) {
		l.decodeWorkers = n
	}
}

// WithAsset pre-populates the cache, for procedurally built assets.
//
// Parameters:
//   - key: the cache key for the asset
//   - asset: the asset to cache
//
// Returns:
//   - LoaderBuilderOption: a function that applies the asset to a loader
func WithAsset(key string, asset *Asset) LoaderBuilderOption {
	return func(l *loader) {
		l.cache[key] = asset
	}
}
