package backend

import (
	"errors"
	"fmt"

	"github.com/cogentcore/webgpu/wgpu"

	"github.com/Carmen-Shannon/oxy-hybrid/engine/renderer/gpu"
)

// pendingWrite is a queue write performed when recording ends, ordered before the
// command buffer's submission.
type pendingWrite struct {
	buf    *buffer
	offset uint64
	data   []byte
}

// commandBuffer records into a WebGPU command encoder. Compute work is grouped into a compute
// pass that opens on the first dispatch and closes at the next barrier, render pass or End.
type commandBuffer struct {
	handle
	dev *wgpuDevice

	encoder   *wgpu.CommandEncoder
	finished  *wgpu.CommandBuffer
	recording bool
	err       error

	renderPass  *wgpu.RenderPassEncoder
	framebuffer *framebuffer
	computePass *wgpu.ComputePassEncoder

	bound         *pipeline
	sets          [gpu.PushConstantSet]*descriptorSet
	pipelineDirty bool
	setsDirty     bool

	push      *pushRing
	pushBuf   *wgpu.Buffer
	pushGroup *wgpu.BindGroup

	writes []pendingWrite
}

var _ gpu.CommandBuffer = &commandBuffer{}

func newCommandBuffer(d *wgpuDevice, label string) (*commandBuffer, error) {
	alignment := max(d.limits.MinUniformBufferOffsetAlignment, 1)
	c := &commandBuffer{
		handle: handle{class: gpu.ClassCommandBuffer, label: label},
		dev:    d,
		push:   newPushRing(PushBlockSize, alignment, d.pushRingSize),
	}

	var err error
	c.pushBuf, err = d.device.CreateBuffer(&wgpu.BufferDescriptor{
		Label: label + " Push Constants",
		Size:  uint64(d.pushRingSize),
		Usage: wgpu.BufferUsageUniform | wgpu.BufferUsageCopyDst,
	})
	if err != nil {
		return nil, fmt.Errorf("backend: command buffer %q push ring: %w", label, err)
	}
	c.pushGroup, err = d.device.CreateBindGroup(&wgpu.BindGroupDescriptor{
		Label:  label + " Push Constants",
		Layout: d.pushLayout,
		Entries: []wgpu.BindGroupEntry{{
			Binding: 0,
			Buffer:  c.pushBuf,
			Offset:  0,
			Size:    PushBlockSize,
		}},
	})
	if err != nil {
		c.pushBuf.Release()
		return nil, fmt.Errorf("backend: command buffer %q push group: %w", label, err)
	}
	return c, nil
}

func (c *commandBuffer) fail(err error) {
	if c.err == nil {
		c.err = fmt.Errorf("command buffer %q: %w", c.label, err)
	}
}

// active reports whether commands can be recorded, failing the buffer otherwise.
func (c *commandBuffer) active(name string) bool {
	if !c.recording {
		c.fail(fmt.Errorf("%s: %w", name, gpu.ErrNotRecording))
		return false
	}
	return c.err == nil
}

func (c *commandBuffer) Begin() error {
	if c.recording {
		return fmt.Errorf("command buffer %q: Begin while recording", c.label)
	}
	if c.finished != nil {
		c.finished.Release()
		c.finished = nil
	}
	encoder, err := c.dev.device.CreateCommandEncoder(&wgpu.CommandEncoderDescriptor{Label: c.label})
	if err != nil {
		return fmt.Errorf("command buffer %q: %w", c.label, err)
	}
	c.encoder = encoder
	c.recording = true
	c.err = nil
	c.renderPass, c.framebuffer, c.computePass = nil, nil, nil
	c.bound = nil
	c.sets = [gpu.PushConstantSet]*descriptorSet{}
	c.push.reset()
	c.writes = c.writes[:0]
	return nil
}

func (c *commandBuffer) End() error {
	if !c.recording {
		return fmt.Errorf("command buffer %q: End: %w", c.label, gpu.ErrNotRecording)
	}
	c.recording = false
	if c.renderPass != nil {
		c.fail(fmt.Errorf("render pass %q not ended", c.framebuffer.label))
		c.renderPass.End()
		c.renderPass = nil
	}
	c.endComputePass()

	defer func() {
		c.encoder.Release()
		c.encoder = nil
	}()
	if c.err != nil {
		return c.err
	}

	finished, err := c.encoder.Finish(nil)
	if err != nil {
		return fmt.Errorf("command buffer %q: finish: %w", c.label, err)
	}
	if data := c.push.data(); len(data) > 0 {
		c.dev.queue.WriteBuffer(c.pushBuf, 0, data)
	}
	for _, w := range c.writes {
		c.dev.WriteBuffer(w.buf, w.offset, w.data)
	}
	c.writes = c.writes[:0]
	c.finished = finished
	return nil
}

func (c *commandBuffer) endComputePass() {
	if c.computePass != nil {
		c.computePass.End()
		c.computePass = nil
	}
}

// PipelineBarrier validates the image transitions. WebGPU orders passes itself, so only the
// open compute pass is closed.
func (c *commandBuffer) PipelineBarrier(barrier gpu.PipelineBarrier, images ...gpu.ImageBarrier) {
	if !c.active("PipelineBarrier") {
		return
	}
	if c.renderPass != nil {
		c.fail(errors.New("pipeline barrier inside a render pass"))
		return
	}
	c.endComputePass()
	for _, ib := range images {
		if err := c.dev.tracker.Apply(ib); err != nil {
			c.fail(err)
			return
		}
	}
}

func (c *commandBuffer) BeginRenderPass(fb gpu.Framebuffer, clears []gpu.ClearValue) {
	if !c.active("BeginRenderPass") {
		return
	}
	if c.renderPass != nil {
		c.fail(fmt.Errorf("render pass %q begun inside %q", fb.Label(), c.framebuffer.label))
		return
	}
	c.endComputePass()
	if err := c.dev.tracker.BeginPass(fb); err != nil {
		c.fail(err)
		return
	}

	f := fb.(*framebuffer)
	desc := &wgpu.RenderPassDescriptor{Label: f.label}
	for i, a := range f.pass.desc.Attachments {
		view := f.attachments[i].(*imageView).view
		var clear gpu.ClearValue
		if i < len(clears) {
			clear = clears[i]
		}
		if a.Usage == gpu.AttachmentDepth {
			desc.DepthStencilAttachment = &wgpu.RenderPassDepthStencilAttachment{
				View:            view,
				DepthLoadOp:     loadOp(a.LoadOp),
				DepthStoreOp:    storeOp(a.StoreOp),
				DepthClearValue: clear.Depth,
			}
			continue
		}
		desc.ColorAttachments = append(desc.ColorAttachments, wgpu.RenderPassColorAttachment{
			View:    view,
			LoadOp:  loadOp(a.LoadOp),
			StoreOp: storeOp(a.StoreOp),
			ClearValue: wgpu.Color{
				R: float64(clear.Color[0]),
				G: float64(clear.Color[1]),
				B: float64(clear.Color[2]),
				A: float64(clear.Color[3]),
			},
		})
	}

	c.renderPass = c.encoder.BeginRenderPass(desc)
	c.framebuffer = f
	c.pipelineDirty = true
	c.setsDirty = true
}

func (c *commandBuffer) EndRenderPass() {
	if !c.active("EndRenderPass") {
		return
	}
	if c.renderPass == nil {
		c.fail(errors.New("EndRenderPass without a render pass"))
		return
	}
	c.renderPass.End()
	c.dev.tracker.EndPass(c.framebuffer)
	c.renderPass = nil
	c.framebuffer = nil
}

func (c *commandBuffer) BindPipeline(p gpu.Pipeline) {
	if !c.active("BindPipeline") {
		return
	}
	pl := p.(*pipeline)
	inPass := c.renderPass != nil
	if (pl.bindPoint == gpu.BindPointGraphics) != inPass {
		c.fail(fmt.Errorf("pipeline %q bound with render pass active=%v", pl.label, inPass))
		return
	}
	c.bound = pl
	c.pipelineDirty = true
	c.setsDirty = true
}

func (c *commandBuffer) BindDescriptorSets(p gpu.Pipeline, firstSet uint32, sets []gpu.DescriptorSet) {
	if !c.active("BindDescriptorSets") {
		return
	}
	for i, s := range sets {
		idx := firstSet + uint32(i)
		if idx >= gpu.PushConstantSet {
			c.fail(fmt.Errorf("set %d is reserved for push constants", idx))
			return
		}
		ds := s.(*descriptorSet)
		if expected, ok := layoutForSet(p, idx); !ok || expected != ds.layout {
			c.fail(fmt.Errorf("set %q does not match set %d of pipeline %q", ds.label, idx, p.Label()))
			return
		}
		c.sets[idx] = ds
	}
	c.setsDirty = true
}

func layoutForSet(p gpu.Pipeline, set uint32) (gpu.DescriptorSetLayout, bool) {
	for _, l := range p.SetLayouts() {
		if l.Desc().Set == set {
			return l, true
		}
	}
	return nil, false
}

func (c *commandBuffer) PushConstants(p gpu.Pipeline, stages gpu.ShaderStage, offset uint32, data []byte) {
	if !c.active("PushConstants") {
		return
	}
	if err := c.push.push(offset, data); err != nil {
		c.fail(err)
	}
}

// bindGroups resolves the bind groups of the bound pipeline. Unused slots below the push
// constant set get the empty group.
func (c *commandBuffer) bindGroups() ([]*wgpu.BindGroup, []uint32, error) {
	groups := make([]*wgpu.BindGroup, c.bound.groups)
	var offsets []uint32
	for g := range c.bound.groups {
		if g == gpu.PushConstantSet {
			offset, err := c.push.offset()
			if err != nil {
				return nil, nil, err
			}
			groups[g] = c.pushGroup
			offsets = []uint32{offset}
			continue
		}
		if _, used := layoutForSet(c.bound, g); !used {
			groups[g] = c.dev.emptyGroup
			continue
		}
		if c.sets[g] == nil {
			return nil, nil, fmt.Errorf("set %d of pipeline %q not bound", g, c.bound.label)
		}
		groups[g] = c.sets[g].group
	}
	return groups, offsets, nil
}

// flushRender applies the bound state to the render pass before a draw.
func (c *commandBuffer) flushRender() bool {
	if c.renderPass == nil || c.bound == nil || c.bound.render == nil {
		c.fail(errors.New("draw without a render pass and graphics pipeline"))
		return false
	}
	groups, offsets, err := c.bindGroups()
	if err != nil {
		c.fail(err)
		return false
	}
	if c.pipelineDirty {
		c.renderPass.SetPipeline(c.bound.render)
		c.pipelineDirty = false
	}
	for g, group := range groups {
		if uint32(g) == gpu.PushConstantSet {
			c.renderPass.SetBindGroup(uint32(g), group, offsets)
		} else if c.setsDirty {
			c.renderPass.SetBindGroup(uint32(g), group, nil)
		}
	}
	c.setsDirty = false
	return true
}

// flushCompute opens the compute pass if needed and applies the bound state before a dispatch.
func (c *commandBuffer) flushCompute(rayTracing bool) bool {
	want := gpu.BindPointCompute
	if rayTracing {
		want = gpu.BindPointRayTracing
	}
	if c.renderPass != nil || c.bound == nil || c.bound.compute == nil || c.bound.bindPoint != want {
		c.fail(errors.New("dispatch without a matching compute pipeline outside a render pass"))
		return false
	}
	groups, offsets, err := c.bindGroups()
	if err != nil {
		c.fail(err)
		return false
	}
	if c.computePass == nil {
		c.computePass = c.encoder.BeginComputePass(nil)
		c.pipelineDirty = true
		c.setsDirty = true
	}
	if c.pipelineDirty {
		c.computePass.SetPipeline(c.bound.compute)
		c.pipelineDirty = false
	}
	for g, group := range groups {
		if uint32(g) == gpu.PushConstantSet {
			c.computePass.SetBindGroup(uint32(g), group, offsets)
		} else if c.setsDirty {
			c.computePass.SetBindGroup(uint32(g), group, nil)
		}
	}
	c.setsDirty = false
	return true
}

func (c *commandBuffer) BindVertexBuffers(first uint32, buffers ...gpu.Buffer) {
	if !c.active("BindVertexBuffers") {
		return
	}
	if c.renderPass == nil {
		c.fail(errors.New("vertex buffers bound outside a render pass"))
		return
	}
	for i, b := range buffers {
		c.renderPass.SetVertexBuffer(first+uint32(i), b.(*buffer).buf, 0, wgpu.WholeSize)
	}
}

func (c *commandBuffer) BindIndexBuffer(b gpu.Buffer, format gpu.IndexFormat) {
	if !c.active("BindIndexBuffer") {
		return
	}
	if c.renderPass == nil {
		c.fail(errors.New("index buffer bound outside a render pass"))
		return
	}
	c.renderPass.SetIndexBuffer(b.(*buffer).buf, indexFormat(format), 0, wgpu.WholeSize)
}

func (c *commandBuffer) Draw(vertexCount, instanceCount, firstVertex, firstInstance uint32) {
	if !c.active("Draw") || !c.flushRender() {
		return
	}
	c.renderPass.Draw(vertexCount, instanceCount, firstVertex, firstInstance)
}

func (c *commandBuffer) DrawIndexed(indexCount, instanceCount, firstIndex uint32, vertexOffset int32, firstInstance uint32) {
	if !c.active("DrawIndexed") || !c.flushRender() {
		return
	}
	c.renderPass.DrawIndexed(indexCount, instanceCount, firstIndex, vertexOffset, firstInstance)
}

func (c *commandBuffer) Dispatch(x, y, z uint32) {
	if !c.active("Dispatch") || !c.flushCompute(false) {
		return
	}
	c.computePass.DispatchWorkgroups(x, y, z)
}

// traceDispatch returns the workgroup count covering width x height x depth rays.
func traceDispatch(workgroup [2]uint32, width, height, depth uint32) [3]uint32 {
	count := gpu.WorkgroupCount(gpu.Extent2D{Width: width, Height: height}, workgroup)
	count[2] = max(depth, 1)
	return count
}

func (c *commandBuffer) TraceRays(p gpu.Pipeline, width, height, depth uint32) {
	if !c.active("TraceRays") {
		return
	}
	if p != gpu.Pipeline(c.bound) {
		c.fail(fmt.Errorf("trace with pipeline %q which is not bound", p.Label()))
		return
	}
	if !c.flushCompute(true) {
		return
	}
	count := traceDispatch(c.bound.workgroup, width, height, depth)
	c.computePass.DispatchWorkgroups(count[0], count[1], count[2])
}

// BuildTopLevel queues the encoded instance table. The upload is ordered before the
// submission, so every trace in this command buffer sees the last build.
func (c *commandBuffer) BuildTopLevel(tlas gpu.AccelerationStructure, instances []gpu.Instance) {
	if !c.active("BuildTopLevel") {
		return
	}
	if c.renderPass != nil {
		c.fail(errors.New("acceleration structure build inside a render pass"))
		return
	}
	c.endComputePass()
	as := tlas.(*accelerationStructure)
	if as.level != gpu.AccelerationTopLevel {
		c.fail(fmt.Errorf("BuildTopLevel on bottom-level structure %q", as.label))
		return
	}
	data, err := as.encodeInstances(instances)
	if err != nil {
		c.fail(err)
		return
	}
	c.writes = append(c.writes, pendingWrite{buf: as.buf, offset: 0, data: data})
}

func (c *commandBuffer) Release() {
	if c.encoder != nil {
		c.encoder.Release()
		c.encoder = nil
	}
	if c.finished != nil {
		c.finished.Release()
		c.finished = nil
	}
	if c.pushGroup != nil {
		c.pushGroup.Release()
		c.pushGroup = nil
	}
	if c.pushBuf != nil {
		c.pushBuf.Release()
		c.pushBuf = nil
	}
}
