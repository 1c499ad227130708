package gputest

import (
	"github.com/hydrogendeuteride/QuaternionEngine-sub001/engine/renderer/gpu"
)

// Op names a recorded command.
type Op string

const (
	OpBarrier        Op = "barrier"
	OpBeginRendering Op = "beginRendering"
	OpEndRendering   Op = "endRendering"
	OpBeginLabel     Op = "beginLabel"
	OpEndLabel       Op = "endLabel"
	OpResetQueries   Op = "resetQueries"
	OpTimestamp      Op = "timestamp"
	OpCopyBuffer     Op = "copyBuffer"
	OpCopyToImage    Op = "copyBufferToImage"
	OpBlit           Op = "blit"
	OpBindPipeline   Op = "bindPipeline"
	OpBindSets       Op = "bindSets"
	OpPushConstants  Op = "pushConstants"
	OpBindVertex     Op = "bindVertex"
	OpBindIndex      Op = "bindIndex"
	OpViewport       Op = "viewport"
	OpScissor        Op = "scissor"
	OpDraw           Op = "draw"
	OpDrawIndexed    Op = "drawIndexed"
	OpDispatch       Op = "dispatch"
	OpBuildAS        Op = "buildAS"
	// OpMark is recorded by tests through CmdBuffer.Mark.
	OpMark Op = "mark"
)

// Command is one recorded call with the arguments relevant to its Op.
type Command struct {
	Op             Op
	ImageBarriers  []gpu.ImageBarrier
	BufferBarriers []gpu.BufferBarrier
	MemoryBarriers []gpu.MemoryBarrier
	Rendering      *gpu.RenderingInfo
	Label          string
	Stage          gpu.Stage
	Query          int
	Count          int
	Pipeline       gpu.Pipeline
	Sets           []gpu.DescriptorSet
	Src, Dst       interface{}
	Layout         gpu.Layout
	BufferCopies   []gpu.BufferCopy
	ImageCopies    []gpu.BufferImageCopy
	Blits          []gpu.ImageBlit
	Data           []byte
	Groups         [3]uint32
	Builds         []gpu.ASBuildInfo
}

type CmdBuffer struct {
	dev      *Device
	ID       int
	Commands []Command
	Begun    int
	Ended    int
}

func (c *CmdBuffer) add(cmd Command) {
	c.Commands = append(c.Commands, cmd)
}

// Begin discards previously recorded commands.
func (c *CmdBuffer) Begin() error {
	c.Commands = nil
	c.Begun++
	return nil
}

func (c *CmdBuffer) End() error {
	c.Ended++
	return nil
}

func (c *CmdBuffer) Barrier(images []gpu.ImageBarrier, buffers []gpu.BufferBarrier, memory []gpu.MemoryBarrier) {
	c.add(Command{
		Op:             OpBarrier,
		ImageBarriers:  append([]gpu.ImageBarrier(nil), images...),
		BufferBarriers: append([]gpu.BufferBarrier(nil), buffers...),
		MemoryBarriers: append([]gpu.MemoryBarrier(nil), memory...),
	})
}

func (c *CmdBuffer) BeginRendering(info *gpu.RenderingInfo) {
	cp := *info
	cp.Colors = append([]gpu.ColorAttachment(nil), info.Colors...)
	if info.Depth != nil {
		d := *info.Depth
		cp.Depth = &d
	}
	c.add(Command{Op: OpBeginRendering, Rendering: &cp})
}

func (c *CmdBuffer) EndRendering() { c.add(Command{Op: OpEndRendering}) }

func (c *CmdBuffer) BeginLabel(name string) { c.add(Command{Op: OpBeginLabel, Label: name}) }

func (c *CmdBuffer) EndLabel() { c.add(Command{Op: OpEndLabel}) }

// Mark records a test marker, typically from inside a pass record callback.
func (c *CmdBuffer) Mark(label string) { c.add(Command{Op: OpMark, Label: label}) }

func (c *CmdBuffer) ResetQueryPool(pool gpu.QueryPool, first, count int) {
	c.add(Command{Op: OpResetQueries, Query: first, Count: count})
}

func (c *CmdBuffer) WriteTimestamp(pool gpu.QueryPool, stage gpu.Stage, query int) {
	c.add(Command{Op: OpTimestamp, Stage: stage, Query: query})
	if q, ok := pool.(*QueryPool); ok && query < len(q.values) {
		c.dev.mu.Lock()
		q.values[query] = c.dev.tick()
		c.dev.mu.Unlock()
	}
}

func (c *CmdBuffer) CopyBuffer(src, dst gpu.Buffer, regions []gpu.BufferCopy) {
	c.add(Command{Op: OpCopyBuffer, Src: src, Dst: dst, BufferCopies: append([]gpu.BufferCopy(nil), regions...)})
	s, sok := src.(*Buffer)
	d, dok := dst.(*Buffer)
	if !sok || !dok || s.data == nil || d.data == nil {
		return
	}
	for _, r := range regions {
		copy(d.data[r.DstOffset:r.DstOffset+r.Size], s.data[r.SrcOffset:r.SrcOffset+r.Size])
	}
}

func (c *CmdBuffer) CopyBufferToImage(src gpu.Buffer, dst gpu.Image, layout gpu.Layout, regions []gpu.BufferImageCopy) {
	c.add(Command{Op: OpCopyToImage, Src: src, Dst: dst, Layout: layout, ImageCopies: append([]gpu.BufferImageCopy(nil), regions...)})
}

func (c *CmdBuffer) BlitImage(src gpu.Image, srcLayout gpu.Layout, dst gpu.Image, dstLayout gpu.Layout, regions []gpu.ImageBlit, filter gpu.Filter) {
	c.add(Command{Op: OpBlit, Src: src, Dst: dst, Layout: dstLayout, Blits: append([]gpu.ImageBlit(nil), regions...)})
}

func (c *CmdBuffer) BindPipeline(p gpu.Pipeline) { c.add(Command{Op: OpBindPipeline, Pipeline: p}) }

func (c *CmdBuffer) BindDescriptorSets(bp gpu.BindPoint, layout gpu.PipelineLayout, first uint32, sets []gpu.DescriptorSet) {
	c.add(Command{Op: OpBindSets, Query: int(first), Sets: append([]gpu.DescriptorSet(nil), sets...)})
}

func (c *CmdBuffer) PushConstants(layout gpu.PipelineLayout, stages gpu.ShaderStage, offset uint32, data []byte) {
	c.add(Command{Op: OpPushConstants, Data: append([]byte(nil), data...)})
}

func (c *CmdBuffer) BindVertexBuffer(buf gpu.Buffer, offset uint64) {
	c.add(Command{Op: OpBindVertex, Src: buf})
}

func (c *CmdBuffer) BindIndexBuffer(buf gpu.Buffer, offset uint64, t gpu.IndexType) {
	c.add(Command{Op: OpBindIndex, Src: buf})
}

func (c *CmdBuffer) SetViewport(vp gpu.Viewport) { c.add(Command{Op: OpViewport}) }

func (c *CmdBuffer) SetScissor(r gpu.Rect2D) { c.add(Command{Op: OpScissor}) }

func (c *CmdBuffer) Draw(vertexCount, instanceCount, firstVertex, firstInstance uint32) {
	c.add(Command{Op: OpDraw, Count: int(vertexCount)})
}

func (c *CmdBuffer) DrawIndexed(indexCount, instanceCount, firstIndex uint32, vertexOffset int32, firstInstance uint32) {
	c.add(Command{Op: OpDrawIndexed, Count: int(indexCount)})
}

func (c *CmdBuffer) Dispatch(x, y, z uint32) {
	c.add(Command{Op: OpDispatch, Groups: [3]uint32{x, y, z}})
}

func (c *CmdBuffer) BuildAccelerationStructures(builds []gpu.ASBuildInfo) {
	c.add(Command{Op: OpBuildAS, Builds: append([]gpu.ASBuildInfo(nil), builds...)})
}

// Ops lists the recorded ops in order.
func (c *CmdBuffer) Ops() []Op {
	ops := make([]Op, len(c.Commands))
	for i, cmd := range c.Commands {
		ops[i] = cmd.Op
	}
	return ops
}

// Find returns every recorded command with the given op.
func (c *CmdBuffer) Find(op Op) []Command {
	var out []Command
	for _, cmd := range c.Commands {
		if cmd.Op == op {
			out = append(out, cmd)
		}
	}
	return out
}

// Index returns the position of the first command matching op and label, -1 if absent.
func (c *CmdBuffer) Index(op Op, label string) int {
	for i, cmd := range c.Commands {
		if cmd.Op == op && cmd.Label == label {
			return i
		}
	}
	return -1
}

// ImageBarriers flattens every recorded image barrier.
func (c *CmdBuffer) ImageBarriers() []gpu.ImageBarrier {
	var out []gpu.ImageBarrier
	for _, cmd := range c.Commands {
		out = append(out, cmd.ImageBarriers...)
	}
	return out
}

// BufferBarriers flattens every recorded buffer barrier.
func (c *CmdBuffer) BufferBarriers() []gpu.BufferBarrier {
	var out []gpu.BufferBarrier
	for _, cmd := range c.Commands {
		out = append(out, cmd.BufferBarriers...)
	}
	return out
}

var _ gpu.CmdBuffer = (*CmdBuffer)(nil)
