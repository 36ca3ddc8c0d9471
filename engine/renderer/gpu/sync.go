package gpu

import (
	"fmt"
	"strings"
)

// ImageLayout is the layout an image is in at a point of the command stream. Every stage that
// touches a shared image declares the layout it expects on entry and the one it leaves behind.
type ImageLayout int

const (
	ImageLayoutUndefined ImageLayout = iota
	ImageLayoutGeneral
	ImageLayoutColorAttachment
	ImageLayoutDepthAttachment
	ImageLayoutDepthReadOnly
	ImageLayoutShaderReadOnly
	ImageLayoutTransferSrc
	ImageLayoutTransferDst
	ImageLayoutPresentSrc
)

var layoutNames = [...]string{
	"Undefined", "General", "ColorAttachment", "DepthAttachment", "DepthReadOnly",
	"ShaderReadOnly", "TransferSrc", "TransferDst", "PresentSrc",
}

func (l ImageLayout) String() string {
	if int(l) >= 0 && int(l) < len(layoutNames) {
		return layoutNames[l]
	}
	return fmt.Sprintf("ImageLayout(%d)", int(l))
}

// PipelineStage is a bit set of pipeline stages used as barrier scopes.
type PipelineStage uint32

const (
	StageTopOfPipe PipelineStage = 1 << iota
	StageVertexInput
	StageVertexShader
	StageEarlyFragmentTests
	StageFragmentShader
	StageLateFragmentTests
	StageColorAttachmentOutput
	StageComputeShader
	StageRayTracingShader
	StageAccelerationStructureBuild
	StageTransfer
	StageBottomOfPipe

	StageNone PipelineStage = 0
)

// Access is a bit set of memory access types used as barrier scopes.
type Access uint32

const (
	AccessShaderRead Access = 1 << iota
	AccessShaderWrite
	AccessColorAttachmentRead
	AccessColorAttachmentWrite
	AccessDepthStencilAttachmentRead
	AccessDepthStencilAttachmentWrite
	AccessTransferRead
	AccessTransferWrite
	AccessAccelerationStructureRead
	AccessAccelerationStructureWrite
	AccessUniformRead
	AccessVertexAttributeRead
	AccessIndexRead

	AccessNone Access = 0
)

// SyncScope is one side of a barrier: the stages and accesses that must complete, or that must wait.
type SyncScope struct {
	Stages PipelineStage
	Access Access
}

func (s SyncScope) String() string {
	return fmt.Sprintf("{stages:%#x access:%#x}", uint32(s.Stages), uint32(s.Access))
}

// Predefined scopes shared by the stages.
var (
	ScopeWaitForNone          = SyncScope{StageTopOfPipe, AccessNone}
	ScopeBlockNone            = SyncScope{StageBottomOfPipe, AccessNone}
	ScopeComputeRead          = SyncScope{StageComputeShader, AccessShaderRead}
	ScopeComputeWrite         = SyncScope{StageComputeShader, AccessShaderWrite}
	ScopeFragmentRead         = SyncScope{StageFragmentShader, AccessShaderRead}
	ScopeColorAttachmentRead  = SyncScope{StageColorAttachmentOutput, AccessColorAttachmentRead}
	ScopeColorAttachmentWrite = SyncScope{StageColorAttachmentOutput, AccessColorAttachmentWrite}
	ScopeDepthRead            = SyncScope{StageEarlyFragmentTests | StageLateFragmentTests, AccessDepthStencilAttachmentRead}
	ScopeDepthWrite           = SyncScope{StageEarlyFragmentTests | StageLateFragmentTests, AccessDepthStencilAttachmentWrite}
	ScopeRayTracingRead       = SyncScope{StageRayTracingShader, AccessShaderRead}
	ScopeRayTracingWrite      = SyncScope{StageRayTracingShader, AccessShaderWrite}
	ScopeTransferWrite        = SyncScope{StageTransfer, AccessTransferWrite}
	ScopeUniformUpload        = SyncScope{StageVertexShader | StageFragmentShader | StageComputeShader | StageRayTracingShader, AccessUniformRead}
	ScopeASBuild              = SyncScope{StageAccelerationStructureBuild, AccessAccelerationStructureWrite}
	ScopeASTrace              = SyncScope{StageRayTracingShader | StageComputeShader | StageFragmentShader, AccessAccelerationStructureRead}
)

// PipelineBarrier orders everything in Src before everything in Dst.
type PipelineBarrier struct {
	Src, Dst SyncScope
}

// BarrierEmpty orders nothing. Used for transitions whose first use is synchronized elsewhere.
var BarrierEmpty = PipelineBarrier{Src: ScopeWaitForNone, Dst: ScopeBlockNone}

// WaitForNone returns a barrier whose source scope is empty, gating dst on nothing that
// happened earlier this frame.
func WaitForNone(dst SyncScope) PipelineBarrier {
	return PipelineBarrier{Src: ScopeWaitForNone, Dst: dst}
}

// BlockNone returns a barrier whose destination scope is empty.
func BlockNone(src SyncScope) PipelineBarrier {
	return PipelineBarrier{Src: src, Dst: ScopeBlockNone}
}

func (b PipelineBarrier) String() string {
	return b.Src.String() + "->" + b.Dst.String()
}

// LayoutTransition moves an image from Old to New with the given barrier.
type LayoutTransition struct {
	Old, New ImageLayout
	Barrier  PipelineBarrier
}

func (t LayoutTransition) String() string {
	return t.Old.String() + "->" + t.New.String()
}

// ImageBarrier applies a layout transition to one image.
type ImageBarrier struct {
	Image      Image
	Transition LayoutTransition
}

// DescribeBarriers renders a barrier list for logs and test failure messages.
func DescribeBarriers(images []ImageBarrier) string {
	parts := make([]string, 0, len(images))
	for _, ib := range images {
		label := "<nil>"
		if ib.Image != nil {
			label = ib.Image.Label()
		}
		parts = append(parts, label+":"+ib.Transition.String())
	}
	return strings.Join(parts, ", ")
}
