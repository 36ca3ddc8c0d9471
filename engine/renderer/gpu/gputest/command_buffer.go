package gputest

import (
	"errors"
	"fmt"

	"github.com/Carmen-Shannon/oxy-hybrid/engine/renderer/gpu"
)

// Command is one recorded command. Only the fields relevant to Name are set.
type Command struct {
	Name        string
	Pipeline    gpu.Pipeline
	FirstSet    uint32
	Sets        []gpu.DescriptorSet
	Barrier     gpu.PipelineBarrier
	Images      []gpu.ImageBarrier
	Framebuffer gpu.Framebuffer
	Clears      []gpu.ClearValue
	Buffers     []gpu.Buffer
	Data        []byte
	Args        [5]uint32
	Structure   gpu.AccelerationStructure
	Instances   []gpu.Instance
}

// CommandBuffer records commands and applies layout transitions to the device tracker as
// they are recorded. The first invalid command is reported by End.
type CommandBuffer struct {
	handle
	recording bool
	pass      gpu.Framebuffer
	bound     gpu.Pipeline
	err       error

	// Commands holds everything recorded since the last Begin.
	Commands []Command
	// Submitted counts submissions of this buffer.
	Submitted int
}

var _ gpu.CommandBuffer = &CommandBuffer{}

// Names returns the recorded command names in order.
func (c *CommandBuffer) Names() []string {
	names := make([]string, len(c.Commands))
	for i, cmd := range c.Commands {
		names[i] = cmd.Name
	}
	return names
}

// Filter returns the recorded commands with the given name.
func (c *CommandBuffer) Filter(name string) []Command {
	var out []Command
	for _, cmd := range c.Commands {
		if cmd.Name == name {
			out = append(out, cmd)
		}
	}
	return out
}

func (c *CommandBuffer) fail(err error) {
	if c.err == nil {
		c.err = fmt.Errorf("command buffer %q: %w", c.label, err)
	}
}

func (c *CommandBuffer) record(cmd Command) {
	if !c.recording {
		c.fail(fmt.Errorf("%s: %w", cmd.Name, gpu.ErrNotRecording))
		return
	}
	c.Commands = append(c.Commands, cmd)
}

func (c *CommandBuffer) Begin() error {
	if c.recording {
		return fmt.Errorf("command buffer %q: Begin while recording", c.label)
	}
	c.recording = true
	c.pass = nil
	c.bound = nil
	c.err = nil
	c.Commands = c.Commands[:0]
	return nil
}

func (c *CommandBuffer) End() error {
	if !c.recording {
		return fmt.Errorf("command buffer %q: End: %w", c.label, gpu.ErrNotRecording)
	}
	if c.pass != nil {
		c.fail(fmt.Errorf("render pass %q not ended", c.pass.Label()))
	}
	c.recording = false
	return c.err
}

func (c *CommandBuffer) PipelineBarrier(barrier gpu.PipelineBarrier, images ...gpu.ImageBarrier) {
	if c.pass != nil {
		c.fail(errors.New("pipeline barrier inside a render pass"))
	}
	for _, ib := range images {
		if err := c.dev.Tracker.Apply(ib); err != nil {
			c.fail(err)
		}
	}
	c.record(Command{Name: "PipelineBarrier", Barrier: barrier, Images: append([]gpu.ImageBarrier(nil), images...)})
}

func (c *CommandBuffer) BeginRenderPass(framebuffer gpu.Framebuffer, clears []gpu.ClearValue) {
	if c.pass != nil {
		c.fail(fmt.Errorf("render pass %q begun inside %q", framebuffer.Label(), c.pass.Label()))
	}
	if err := c.dev.Tracker.BeginPass(framebuffer); err != nil {
		c.fail(err)
	}
	c.pass = framebuffer
	c.record(Command{Name: "BeginRenderPass", Framebuffer: framebuffer, Clears: clears})
}

func (c *CommandBuffer) EndRenderPass() {
	if c.pass == nil {
		c.fail(errors.New("EndRenderPass without a render pass"))
		return
	}
	c.dev.Tracker.EndPass(c.pass)
	c.record(Command{Name: "EndRenderPass", Framebuffer: c.pass})
	c.pass = nil
}

func (c *CommandBuffer) BindPipeline(pipeline gpu.Pipeline) {
	inPass := c.pass != nil
	if (pipeline.BindPoint() == gpu.BindPointGraphics) != inPass {
		c.fail(fmt.Errorf("pipeline %q bound with render pass active=%v", pipeline.Label(), inPass))
	}
	c.bound = pipeline
	c.record(Command{Name: "BindPipeline", Pipeline: pipeline})
}

func (c *CommandBuffer) BindDescriptorSets(pipeline gpu.Pipeline, firstSet uint32, sets []gpu.DescriptorSet) {
	layouts := pipeline.SetLayouts()
	for i, s := range sets {
		idx := int(firstSet) + i
		if idx >= len(layouts) {
			c.fail(fmt.Errorf("set %d out of range for pipeline %q", idx, pipeline.Label()))
			continue
		}
		if s.Layout() != layouts[idx] {
			c.fail(fmt.Errorf("set %q does not match layout %d of pipeline %q", s.Label(), idx, pipeline.Label()))
		}
		if h, ok := s.(*DescriptorSet); ok && h.isReleased() {
			c.fail(fmt.Errorf("set %q is released", s.Label()))
		}
	}
	c.record(Command{Name: "BindDescriptorSets", Pipeline: pipeline, FirstSet: firstSet, Sets: append([]gpu.DescriptorSet(nil), sets...)})
}

func (c *CommandBuffer) PushConstants(pipeline gpu.Pipeline, stages gpu.ShaderStage, offset uint32, data []byte) {
	c.record(Command{Name: "PushConstants", Pipeline: pipeline, Args: [5]uint32{uint32(stages), offset}, Data: append([]byte(nil), data...)})
}

func (c *CommandBuffer) BindVertexBuffers(first uint32, buffers ...gpu.Buffer) {
	c.record(Command{Name: "BindVertexBuffers", Args: [5]uint32{first}, Buffers: append([]gpu.Buffer(nil), buffers...)})
}

func (c *CommandBuffer) BindIndexBuffer(buffer gpu.Buffer, format gpu.IndexFormat) {
	c.record(Command{Name: "BindIndexBuffer", Buffers: []gpu.Buffer{buffer}, Args: [5]uint32{uint32(format)}})
}

func (c *CommandBuffer) requireBound(point gpu.BindPoint, name string) {
	if c.bound == nil || c.bound.BindPoint() != point {
		c.fail(fmt.Errorf("%s without a matching pipeline bound", name))
	}
}

func (c *CommandBuffer) Draw(vertexCount, instanceCount, firstVertex, firstInstance uint32) {
	c.requireBound(gpu.BindPointGraphics, "Draw")
	c.record(Command{Name: "Draw", Pipeline: c.bound, Args: [5]uint32{vertexCount, instanceCount, firstVertex, firstInstance}})
}

func (c *CommandBuffer) DrawIndexed(indexCount, instanceCount, firstIndex uint32, vertexOffset int32, firstInstance uint32) {
	c.requireBound(gpu.BindPointGraphics, "DrawIndexed")
	c.record(Command{Name: "DrawIndexed", Pipeline: c.bound, Args: [5]uint32{indexCount, instanceCount, firstIndex, uint32(vertexOffset), firstInstance}})
}

func (c *CommandBuffer) Dispatch(x, y, z uint32) {
	c.requireBound(gpu.BindPointCompute, "Dispatch")
	if c.pass != nil {
		c.fail(errors.New("Dispatch inside a render pass"))
	}
	c.record(Command{Name: "Dispatch", Pipeline: c.bound, Args: [5]uint32{x, y, z}})
}

func (c *CommandBuffer) TraceRays(pipeline gpu.Pipeline, width, height, depth uint32) {
	c.requireBound(gpu.BindPointRayTracing, "TraceRays")
	c.record(Command{Name: "TraceRays", Pipeline: pipeline, Args: [5]uint32{width, height, depth}})
}

func (c *CommandBuffer) BuildTopLevel(tlas gpu.AccelerationStructure, instances []gpu.Instance) {
	as := tlas.(*AccelerationStructure)
	if uint32(len(instances)) > as.Desc.MaxInstances {
		c.fail(fmt.Errorf("%d instances exceed capacity %d of %q", len(instances), as.Desc.MaxInstances, as.label))
	}
	as.Instances = append(as.Instances[:0], instances...)
	as.Builds++
	c.record(Command{Name: "BuildTopLevel", Structure: tlas, Instances: as.Instances})
}
