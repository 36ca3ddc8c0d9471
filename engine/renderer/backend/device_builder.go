package backend

// DeviceBuilderOption is a functional option used to configure a Device during construction.
type DeviceBuilderOption func(*wgpuDevice)

// WithLabel sets the debug label of the device.
//
// Parameters:
//   - label: the label reported by validation messages
//
// Returns:
//   - DeviceBuilderOption: a function that sets the label
func WithLabel(label string) DeviceBuilderOption {
	return func(d *wgpuDevice) {
		d.label = label
	}
}

// WithForceFallbackAdapter requests the software fallback adapter, used by headless CI runs.
func WithForceFallbackAdapter(force bool) DeviceBuilderOption {
	return func(d *wgpuDevice) {
		d.forceFallbackAdapter = force
	}
}

// WithSoftwareRayTracing enables the compute traced acceleration structures. Enabled by default;
// when disabled Capabilities reports no ray tracing and the renderer runs raster only.
func WithSoftwareRayTracing(enabled bool) DeviceBuilderOption {
	return func(d *wgpuDevice) {
		d.rayTracing = enabled
	}
}

// WithPushRingSize sets the per command buffer push constant ring in bytes.
//
// Parameters:
//   - size: the ring size, DefaultPushRingSize by default
//
// Returns:
//   - DeviceBuilderOption: a function that sets the ring size
func WithPushRingSize(size uint32) DeviceBuilderOption {
	return func(d *wgpuDevice) {
		if size >= PushBlockSize {
			d.pushRingSize = size
		}
	}
}
