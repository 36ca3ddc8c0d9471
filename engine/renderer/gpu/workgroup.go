package gpu

import "github.com/Carmen-Shannon/oxy-hybrid/common"

// WorkgroupTile is the pixel tile a compute workgroup covers. Each invocation of a
// Size[0] x Size[1] workgroup processes LoadCount[0] x LoadCount[1] pixels.
type WorkgroupTile struct {
	Size      [2]uint32
	LoadCount [2]uint32
}

// Area returns the pixel area covered by one workgroup per axis.
func (t WorkgroupTile) Area() [2]uint32 {
	return [2]uint32{t.Size[0] * t.LoadCount[0], t.Size[1] * t.LoadCount[1]}
}

// WorkgroupCount returns the number of workgroups covering extent with tiles of the given
// size, rounding up on each axis. The count is never zero.
//
// Parameters:
//   - extent: the image extent to cover
//   - tile: the pixel tile one workgroup covers
//
// Returns:
//   - [3]uint32: the dispatch size
func WorkgroupCount(extent Extent2D, tile [2]uint32) [3]uint32 {
	return [3]uint32{
		max(common.CeilDiv(extent.Width, tile[0]), 1),
		max(common.CeilDiv(extent.Height, tile[1]), 1),
		1,
	}
}

// FitWorkgroupTile shrinks a requested tile until it fits the device limits by halving its
// larger axis, doubling the per-invocation load count on that axis so one workgroup still
// covers the requested area.
//
// Parameters:
//   - tile: the requested workgroup size
//   - caps: the device limits
//
// Returns:
//   - WorkgroupTile: the fitted size and load count
func FitWorkgroupTile(tile [2]uint32, caps Capabilities) WorkgroupTile {
	fitted := WorkgroupTile{Size: tile, LoadCount: [2]uint32{1, 1}}

	fits := func() bool {
		s := fitted.Size
		if caps.MaxComputeWorkgroupInvocations != 0 && s[0]*s[1] > caps.MaxComputeWorkgroupInvocations {
			return false
		}
		for axis := range 2 {
			if limit := caps.MaxComputeWorkgroupSize[axis]; limit != 0 && s[axis] > limit {
				return false
			}
		}
		return true
	}

	for !fits() {
		axis := 0
		if fitted.Size[1] > fitted.Size[0] {
			axis = 1
		}
		if fitted.Size[axis] == 1 {
			break
		}
		fitted.Size[axis] /= 2
		fitted.LoadCount[axis] *= 2
	}
	return fitted
}
