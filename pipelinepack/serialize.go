package pipelinepack

import (
	"github.com/aeforge/buildpack/serial"
	"github.com/aeforge/buildpack/shader"
	"github.com/aeforge/buildpack/stream"
	"github.com/google/renameio"
	"golang.org/x/xerrors"
)

// pendingWritable adapts a renameio.PendingFile (an *os.File under the
// hood) to stream.Writable, the way stream.FileWriter adapts a plain
// *os.File, so Write can target either without duplicating the section
// codec.
type pendingWritable struct {
	f   *renameio.PendingFile
	pos int64
}

func (w *pendingWritable) IsOpen() bool { return true }
func (w *pendingWritable) Position() int64 { return w.pos }

func (w *pendingWritable) Size() (int64, error) {
	fi, err := w.f.Stat()
	if err != nil {
		return 0, err
	}
	return fi.Size(), nil
}

func (w *pendingWritable) SeekAbsolute(off int64) error {
	n, err := w.f.Seek(off, 0)
	w.pos = n
	return err
}

func (w *pendingWritable) Write(p []byte) (int, error) {
	n, err := w.f.Write(p)
	w.pos += int64(n)
	return n, err
}

func (w *pendingWritable) Flush() error { return nil }

// Write serializes p to w as its sections in MarkerOrder; no marker bytes
// are written between them.
func Write(w stream.Writable, p *Pack) error {
	s := serial.NewSerializer(w, nil)
	if err := s.WriteU32(p.Version); err != nil {
		return err
	}
	if err := writeDescriptorSetLayouts(s, p.DescriptorSetLayouts); err != nil {
		return err
	}
	if err := writePipelineLayouts(s, p.PipelineLayouts); err != nil {
		return err
	}
	if err := writeRenderPasses(s, p.RenderPasses); err != nil {
		return err
	}
	if err := writeNameMap(s, p.RenderPassNames); err != nil {
		return err
	}
	if err := writeSpirvShaders(s, p.SpirvShaders); err != nil {
		return err
	}
	if err := writeGraphicsPipelines(s, p.GraphicsPipelines); err != nil {
		return err
	}
	if err := writeMeshPipelines(s, p.MeshPipelines); err != nil {
		return err
	}
	if err := writeComputePipelines(s, p.ComputePipelines); err != nil {
		return err
	}
	if err := s.WriteSeqHeader(len(p.RayTracingPipelines)); err != nil {
		return err
	}
	return writePipelineNameMap(s, p.PipelineNames)
}

// WriteFile atomically writes p to path via renameio, matching the
// teacher's atomic-install pattern (internal/install) adapted to pack
// files instead of package installs.
func WriteFile(path string, p *Pack) error {
	t, err := renameio.TempFile("", path)
	if err != nil {
		return err
	}
	defer t.Cleanup()
	if err := Write(&pendingWritable{f: t}, p); err != nil {
		return err
	}
	return t.CloseAtomicallyReplace()
}

func writeDescriptorSetLayouts(s *serial.Serializer, layouts []DescriptorSetLayout) error {
	if err := s.WriteSeqHeader(len(layouts)); err != nil {
		return err
	}
	for _, l := range layouts {
		if err := s.WriteSeqHeader(len(l.Bindings)); err != nil {
			return err
		}
		for _, b := range l.Bindings {
			if err := writeBinding(s, b); err != nil {
				return err
			}
		}
	}
	return nil
}

func writeBinding(s *serial.Serializer, b shader.Binding) error {
	if err := s.WriteString(b.Name); err != nil {
		return err
	}
	if err := s.WriteU32(b.BindingIndex); err != nil {
		return err
	}
	if err := s.WriteU32(b.ArraySize); err != nil {
		return err
	}
	if err := s.WriteU32(uint32(b.StageMask)); err != nil {
		return err
	}
	if err := s.WriteU8(uint8(b.Kind)); err != nil {
		return err
	}
	if err := s.WriteBool(b.Buffer != nil); err != nil {
		return err
	}
	if b.Buffer != nil {
		if err := s.WriteU32(b.Buffer.StaticSize); err != nil {
			return err
		}
		if err := s.WriteU32(b.Buffer.ArrayStride); err != nil {
			return err
		}
		if err := s.WriteBool(b.Buffer.HasDynamicOffset); err != nil {
			return err
		}
		if err := s.WriteU32(b.Buffer.DynamicOffsetIndex); err != nil {
			return err
		}
	}
	if err := s.WriteBool(b.Image != nil); err != nil {
		return err
	}
	if b.Image != nil {
		if err := s.WriteU8(uint8(b.Image.Dim)); err != nil {
			return err
		}
		if err := s.WriteBool(b.Image.Array); err != nil {
			return err
		}
		if err := s.WriteBool(b.Image.MultiSampled); err != nil {
			return err
		}
		if err := s.WriteBool(b.Image.Shadow); err != nil {
			return err
		}
		if err := s.WriteU8(uint8(b.Image.ScalarFormat)); err != nil {
			return err
		}
		if err := s.WriteBool(b.Image.Discard); err != nil {
			return err
		}
	}
	return nil
}

func writePipelineLayouts(s *serial.Serializer, layouts []PipelineLayout) error {
	if err := s.WriteSeqHeader(len(layouts)); err != nil {
		return err
	}
	for _, pl := range layouts {
		if err := s.WriteSeqHeader(len(pl.Sets)); err != nil {
			return err
		}
		for _, set := range pl.Sets {
			if err := s.WriteString(set.SetName); err != nil {
				return err
			}
			if err := s.WriteU8(set.SetIndex); err != nil {
				return err
			}
			if err := s.WriteU32(uint32(set.Layout)); err != nil {
				return err
			}
		}
		pairs := serial.SortedPairs(pl.PushConstants)
		if err := s.WriteSeqHeader(len(pairs)); err != nil {
			return err
		}
		for _, pc := range pairs {
			if err := s.WriteString(pc.Key); err != nil {
				return err
			}
			if err := s.WriteU32(uint32(pc.Value.StageMask)); err != nil {
				return err
			}
			if err := s.WriteU32(pc.Value.Offset); err != nil {
				return err
			}
			if err := s.WriteU32(pc.Value.Size); err != nil {
				return err
			}
		}
	}
	return nil
}

func writeRenderPasses(s *serial.Serializer, passes []RenderPass) error {
	if err := s.WriteSeqHeader(len(passes)); err != nil {
		return err
	}
	for _, rp := range passes {
		if err := s.WriteString(rp.Name); err != nil {
			return err
		}
	}
	return nil
}

func writeNameMap[T ~uint32](s *serial.Serializer, m map[string]T) error {
	pairs := serial.SortedPairs(m)
	if err := s.WriteSeqHeader(len(pairs)); err != nil {
		return err
	}
	for _, p := range pairs {
		if err := s.WriteString(p.Key); err != nil {
			return err
		}
		if err := s.WriteU32(uint32(p.Value)); err != nil {
			return err
		}
	}
	return nil
}

func writePipelineNameMap(s *serial.Serializer, m map[string]PipelineUID) error {
	return writeNameMap(s, m)
}

func writeSpirvShaders(s *serial.Serializer, shaders []SpirvShader) error {
	if err := s.WriteSeqHeader(len(shaders)); err != nil {
		return err
	}
	for _, sh := range shaders {
		if err := writeDescription(s, sh.Description); err != nil {
			return err
		}
		if err := s.WriteSeqHeader(len(sh.Spirv)); err != nil {
			return err
		}
		for _, w := range sh.Spirv {
			if err := s.WriteU32(w); err != nil {
				return err
			}
		}
		if err := writeReflection(s, sh.Reflection); err != nil {
			return err
		}
	}
	return nil
}

func writeDescription(s *serial.Serializer, d shader.Description) error {
	if err := s.WriteString(d.Filename); err != nil {
		return err
	}
	if err := s.WriteU8(uint8(d.Stage)); err != nil {
		return err
	}
	if err := s.WriteI32(int32(d.Version)); err != nil {
		return err
	}
	if err := s.WriteSeqHeader(len(d.Defines)); err != nil {
		return err
	}
	for _, def := range d.Defines {
		if err := s.WriteString(def); err != nil {
			return err
		}
	}
	return nil
}

func writeReflection(s *serial.Serializer, r *shader.Reflection) error {
	if err := s.WriteBool(r != nil); err != nil {
		return err
	}
	if r == nil {
		return nil
	}
	if err := writeDescriptorSets(s, r.DescriptorSets); err != nil {
		return err
	}
	pairs := serial.SortedPairs(r.PushConstants)
	if err := s.WriteSeqHeader(len(pairs)); err != nil {
		return err
	}
	for _, p := range pairs {
		if err := s.WriteString(p.Key); err != nil {
			return err
		}
		if err := s.WriteString(p.Value.BlockName); err != nil {
			return err
		}
		if err := s.WriteU32(uint32(p.Value.StageMask)); err != nil {
			return err
		}
		if err := s.WriteU32(p.Value.Offset); err != nil {
			return err
		}
		if err := s.WriteU32(p.Value.Size); err != nil {
			return err
		}
	}
	if err := writeVertexAttributes(s, r.VertexAttributes); err != nil {
		return err
	}
	return writeFragmentOutputs(s, r.FragmentOutputs)
}

func writeDescriptorSets(s *serial.Serializer, sets [shader.MaxSets]*shader.DescriptorSet) error {
	n := 0
	for _, set := range sets {
		if set != nil {
			n++
		}
	}
	if err := s.WriteSeqHeader(n); err != nil {
		return err
	}
	for _, set := range sets {
		if set == nil {
			continue
		}
		if err := s.WriteU8(set.Index); err != nil {
			return err
		}
		if err := s.WriteString(set.Name); err != nil {
			return err
		}
		if err := s.WriteSeqHeader(len(set.Bindings)); err != nil {
			return err
		}
		for _, b := range set.Bindings {
			if err := writeBinding(s, b); err != nil {
				return err
			}
		}
	}
	return nil
}

func writeVertexAttributes(s *serial.Serializer, attrs []shader.VertexAttribute) error {
	if err := s.WriteSeqHeader(len(attrs)); err != nil {
		return err
	}
	for _, a := range attrs {
		if err := s.WriteString(a.Name); err != nil {
			return err
		}
		if err := s.WriteU32(a.Location); err != nil {
			return err
		}
		if err := s.WriteU8(uint8(a.Format)); err != nil {
			return err
		}
	}
	return nil
}

func writeFragmentOutputs(s *serial.Serializer, outs []shader.FragmentOutput) error {
	if err := s.WriteSeqHeader(len(outs)); err != nil {
		return err
	}
	for _, o := range outs {
		if err := s.WriteString(o.Name); err != nil {
			return err
		}
		if err := s.WriteU32(o.Location); err != nil {
			return err
		}
		if err := s.WriteU8(uint8(o.Format)); err != nil {
			return err
		}
	}
	return nil
}

func writeStageUIDMap(s *serial.Serializer, m map[shader.Stage]SpirvShaderUID) error {
	if err := s.WriteSeqHeader(len(m)); err != nil {
		return err
	}
	stages := make([]int, 0, len(m))
	for st := range m {
		stages = append(stages, int(st))
	}
	// deterministic order: ascending Stage value.
	for i := 0; i < len(stages); i++ {
		for j := i + 1; j < len(stages); j++ {
			if stages[j] < stages[i] {
				stages[i], stages[j] = stages[j], stages[i]
			}
		}
	}
	for _, st := range stages {
		if err := s.WriteU8(uint8(st)); err != nil {
			return err
		}
		if err := s.WriteU32(uint32(m[shader.Stage(st)])); err != nil {
			return err
		}
	}
	return nil
}

func writeTopology(s *serial.Serializer, topo []shader.Topology) error {
	if err := s.WriteSeqHeader(len(topo)); err != nil {
		return err
	}
	for _, t := range topo {
		if err := s.WriteU8(uint8(t)); err != nil {
			return err
		}
	}
	return nil
}

func writeSpecConstants(s *serial.Serializer, m map[string]uint32) error {
	pairs := serial.SortedPairs(m)
	if err := s.WriteSeqHeader(len(pairs)); err != nil {
		return err
	}
	for _, p := range pairs {
		if err := s.WriteString(p.Key); err != nil {
			return err
		}
		if err := s.WriteU32(p.Value); err != nil {
			return err
		}
	}
	return nil
}

func writeGraphicsPipelines(s *serial.Serializer, pipelines []GraphicsPipeline) error {
	if err := s.WriteSeqHeader(len(pipelines)); err != nil {
		return err
	}
	for _, gp := range pipelines {
		if err := writeStageUIDMap(s, gp.Stages); err != nil {
			return err
		}
		if err := s.WriteU32(uint32(gp.Layout)); err != nil {
			return err
		}
		if err := s.WriteU32(uint32(gp.RenderPass)); err != nil {
			return err
		}
		if err := writeVertexAttributes(s, gp.VertexAttributes); err != nil {
			return err
		}
		if err := writeFragmentOutputs(s, gp.FragmentOutputs); err != nil {
			return err
		}
		if err := writeTopology(s, gp.SupportedTopology); err != nil {
			return err
		}
		if err := writeSpecConstants(s, gp.SpecConstants); err != nil {
			return err
		}
	}
	return nil
}

func writeMeshPipelines(s *serial.Serializer, pipelines []MeshPipeline) error {
	if err := s.WriteSeqHeader(len(pipelines)); err != nil {
		return err
	}
	for _, mp := range pipelines {
		if err := writeStageUIDMap(s, mp.Stages); err != nil {
			return err
		}
		if err := s.WriteU32(uint32(mp.Layout)); err != nil {
			return err
		}
		if err := s.WriteU32(uint32(mp.RenderPass)); err != nil {
			return err
		}
		if err := writeFragmentOutputs(s, mp.FragmentOutputs); err != nil {
			return err
		}
		if err := writeSpecConstants(s, mp.SpecConstants); err != nil {
			return err
		}
	}
	return nil
}

func writeComputePipelines(s *serial.Serializer, pipelines []ComputePipeline) error {
	if err := s.WriteSeqHeader(len(pipelines)); err != nil {
		return err
	}
	for _, cp := range pipelines {
		if err := s.WriteU32(uint32(cp.Shader)); err != nil {
			return err
		}
		if err := s.WriteU32(uint32(cp.Layout)); err != nil {
			return err
		}
		if err := writeSpecConstants(s, cp.SpecConstants); err != nil {
			return err
		}
	}
	return nil
}

// Read deserializes a Pack from r, validating PackVersion.
func Read(r stream.Readable) (*Pack, error) {
	d := serial.NewDeserializer(r, nil)
	version, err := d.ReadU32()
	if err != nil {
		return nil, err
	}
	if version != PackVersion {
		return nil, xerrors.Errorf("pipelinepack: version %d: %w", version, serial.ErrVersionMismatch)
	}
	p := &Pack{Version: version}

	if p.DescriptorSetLayouts, err = readDescriptorSetLayouts(d); err != nil {
		return nil, err
	}
	if p.PipelineLayouts, err = readPipelineLayouts(d); err != nil {
		return nil, err
	}
	if p.RenderPasses, err = readRenderPasses(d); err != nil {
		return nil, err
	}
	if p.RenderPassNames, err = readNameMapRenderPass(d); err != nil {
		return nil, err
	}
	if p.SpirvShaders, err = readSpirvShaders(d); err != nil {
		return nil, err
	}
	if p.GraphicsPipelines, err = readGraphicsPipelines(d); err != nil {
		return nil, err
	}
	if p.MeshPipelines, err = readMeshPipelines(d); err != nil {
		return nil, err
	}
	if p.ComputePipelines, err = readComputePipelines(d); err != nil {
		return nil, err
	}
	n, err := d.ReadSeqHeader()
	if err != nil {
		return nil, err
	}
	p.RayTracingPipelines = make([]RayTracingPipeline, n)
	if p.PipelineNames, err = readNameMapPipeline(d); err != nil {
		return nil, err
	}
	return p, nil
}

// ReadFile opens path and reads a Pack from it.
func ReadFile(path string) (*Pack, error) {
	f, err := stream.OpenFileReader(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return Read(f)
}

func readBinding(d *serial.Deserializer) (shader.Binding, error) {
	var b shader.Binding
	var err error
	if b.Name, err = d.ReadString(); err != nil {
		return b, err
	}
	if b.BindingIndex, err = d.ReadU32(); err != nil {
		return b, err
	}
	if b.ArraySize, err = d.ReadU32(); err != nil {
		return b, err
	}
	mask, err := d.ReadU32()
	if err != nil {
		return b, err
	}
	b.StageMask = shader.StageMask(mask)
	kind, err := d.ReadU8()
	if err != nil {
		return b, err
	}
	b.Kind = shader.DescriptorKind(kind)
	hasBuf, err := d.ReadBool()
	if err != nil {
		return b, err
	}
	if hasBuf {
		buf := &shader.BufferInfo{}
		if buf.StaticSize, err = d.ReadU32(); err != nil {
			return b, err
		}
		if buf.ArrayStride, err = d.ReadU32(); err != nil {
			return b, err
		}
		if buf.HasDynamicOffset, err = d.ReadBool(); err != nil {
			return b, err
		}
		if buf.DynamicOffsetIndex, err = d.ReadU32(); err != nil {
			return b, err
		}
		b.Buffer = buf
	}
	hasImg, err := d.ReadBool()
	if err != nil {
		return b, err
	}
	if hasImg {
		img := &shader.ImageInfo{}
		dim, err := d.ReadU8()
		if err != nil {
			return b, err
		}
		img.Dim = shader.ImageDim(dim)
		if img.Array, err = d.ReadBool(); err != nil {
			return b, err
		}
		if img.MultiSampled, err = d.ReadBool(); err != nil {
			return b, err
		}
		if img.Shadow, err = d.ReadBool(); err != nil {
			return b, err
		}
		fmtv, err := d.ReadU8()
		if err != nil {
			return b, err
		}
		img.ScalarFormat = shader.ScalarFormat(fmtv)
		if img.Discard, err = d.ReadBool(); err != nil {
			return b, err
		}
		b.Image = img
	}
	return b, nil
}

func readDescriptorSetLayouts(d *serial.Deserializer) ([]DescriptorSetLayout, error) {
	n, err := d.ReadSeqHeader()
	if err != nil {
		return nil, err
	}
	out := make([]DescriptorSetLayout, n)
	for i := 0; i < n; i++ {
		bn, err := d.ReadSeqHeader()
		if err != nil {
			return nil, err
		}
		bindings := make([]shader.Binding, bn)
		for j := 0; j < bn; j++ {
			if bindings[j], err = readBinding(d); err != nil {
				return nil, err
			}
		}
		out[i] = DescriptorSetLayout{Bindings: bindings}
	}
	return out, nil
}

func readPipelineLayouts(d *serial.Deserializer) ([]PipelineLayout, error) {
	n, err := d.ReadSeqHeader()
	if err != nil {
		return nil, err
	}
	out := make([]PipelineLayout, n)
	for i := 0; i < n; i++ {
		sn, err := d.ReadSeqHeader()
		if err != nil {
			return nil, err
		}
		sets := make([]PipelineLayoutSet, sn)
		for j := 0; j < sn; j++ {
			name, err := d.ReadString()
			if err != nil {
				return nil, err
			}
			idx, err := d.ReadU8()
			if err != nil {
				return nil, err
			}
			layout, err := d.ReadU32()
			if err != nil {
				return nil, err
			}
			sets[j] = PipelineLayoutSet{SetName: name, SetIndex: idx, Layout: DescriptorSetLayoutUID(layout)}
		}
		pn, err := d.ReadSeqHeader()
		if err != nil {
			return nil, err
		}
		pcs := make(map[string]shader.PushConstantRange, pn)
		for j := 0; j < pn; j++ {
			name, err := d.ReadString()
			if err != nil {
				return nil, err
			}
			mask, err := d.ReadU32()
			if err != nil {
				return nil, err
			}
			offset, err := d.ReadU32()
			if err != nil {
				return nil, err
			}
			size, err := d.ReadU32()
			if err != nil {
				return nil, err
			}
			pcs[name] = shader.PushConstantRange{StageMask: shader.StageMask(mask), Offset: offset, Size: size}
		}
		out[i] = PipelineLayout{Sets: sets, PushConstants: pcs}
	}
	return out, nil
}

func readRenderPasses(d *serial.Deserializer) ([]RenderPass, error) {
	n, err := d.ReadSeqHeader()
	if err != nil {
		return nil, err
	}
	out := make([]RenderPass, n)
	for i := 0; i < n; i++ {
		name, err := d.ReadString()
		if err != nil {
			return nil, err
		}
		out[i] = RenderPass{Name: name}
	}
	return out, nil
}

func readNameMapRenderPass(d *serial.Deserializer) (map[string]RenderPassUID, error) {
	n, err := d.ReadSeqHeader()
	if err != nil {
		return nil, err
	}
	out := make(map[string]RenderPassUID, n)
	for i := 0; i < n; i++ {
		name, err := d.ReadString()
		if err != nil {
			return nil, err
		}
		uid, err := d.ReadU32()
		if err != nil {
			return nil, err
		}
		out[name] = RenderPassUID(uid)
	}
	return out, nil
}

func readNameMapPipeline(d *serial.Deserializer) (map[string]PipelineUID, error) {
	n, err := d.ReadSeqHeader()
	if err != nil {
		return nil, err
	}
	out := make(map[string]PipelineUID, n)
	for i := 0; i < n; i++ {
		name, err := d.ReadString()
		if err != nil {
			return nil, err
		}
		uid, err := d.ReadU32()
		if err != nil {
			return nil, err
		}
		out[name] = PipelineUID(uid)
	}
	return out, nil
}

func readDescription(d *serial.Deserializer) (shader.Description, error) {
	var desc shader.Description
	var err error
	if desc.Filename, err = d.ReadString(); err != nil {
		return desc, err
	}
	stage, err := d.ReadU8()
	if err != nil {
		return desc, err
	}
	desc.Stage = shader.Stage(stage)
	version, err := d.ReadI32()
	if err != nil {
		return desc, err
	}
	desc.Version = int(version)
	n, err := d.ReadSeqHeader()
	if err != nil {
		return desc, err
	}
	desc.Defines = make([]string, n)
	for i := 0; i < n; i++ {
		if desc.Defines[i], err = d.ReadString(); err != nil {
			return desc, err
		}
	}
	return desc, nil
}

func readDescriptorSets(d *serial.Deserializer) ([shader.MaxSets]*shader.DescriptorSet, error) {
	var sets [shader.MaxSets]*shader.DescriptorSet
	n, err := d.ReadSeqHeader()
	if err != nil {
		return sets, err
	}
	for i := 0; i < n; i++ {
		idx, err := d.ReadU8()
		if err != nil {
			return sets, err
		}
		name, err := d.ReadString()
		if err != nil {
			return sets, err
		}
		bn, err := d.ReadSeqHeader()
		if err != nil {
			return sets, err
		}
		bindings := make([]shader.Binding, bn)
		for j := 0; j < bn; j++ {
			if bindings[j], err = readBinding(d); err != nil {
				return sets, err
			}
		}
		if int(idx) < shader.MaxSets {
			sets[idx] = &shader.DescriptorSet{Index: idx, Name: name, Bindings: bindings}
		}
	}
	return sets, nil
}

func readVertexAttributes(d *serial.Deserializer) ([]shader.VertexAttribute, error) {
	n, err := d.ReadSeqHeader()
	if err != nil {
		return nil, err
	}
	out := make([]shader.VertexAttribute, n)
	for i := 0; i < n; i++ {
		name, err := d.ReadString()
		if err != nil {
			return nil, err
		}
		loc, err := d.ReadU32()
		if err != nil {
			return nil, err
		}
		f, err := d.ReadU8()
		if err != nil {
			return nil, err
		}
		out[i] = shader.VertexAttribute{Name: name, Location: loc, Format: shader.ScalarFormat(f)}
	}
	return out, nil
}

func readFragmentOutputs(d *serial.Deserializer) ([]shader.FragmentOutput, error) {
	n, err := d.ReadSeqHeader()
	if err != nil {
		return nil, err
	}
	out := make([]shader.FragmentOutput, n)
	for i := 0; i < n; i++ {
		name, err := d.ReadString()
		if err != nil {
			return nil, err
		}
		loc, err := d.ReadU32()
		if err != nil {
			return nil, err
		}
		f, err := d.ReadU8()
		if err != nil {
			return nil, err
		}
		out[i] = shader.FragmentOutput{Name: name, Location: loc, Format: shader.ScalarFormat(f)}
	}
	return out, nil
}

func readReflection(d *serial.Deserializer) (*shader.Reflection, error) {
	present, err := d.ReadBool()
	if err != nil || !present {
		return nil, err
	}
	r := shader.NewReflection()
	if r.DescriptorSets, err = readDescriptorSets(d); err != nil {
		return nil, err
	}
	n, err := d.ReadSeqHeader()
	if err != nil {
		return nil, err
	}
	for i := 0; i < n; i++ {
		key, err := d.ReadString()
		if err != nil {
			return nil, err
		}
		blockName, err := d.ReadString()
		if err != nil {
			return nil, err
		}
		mask, err := d.ReadU32()
		if err != nil {
			return nil, err
		}
		offset, err := d.ReadU32()
		if err != nil {
			return nil, err
		}
		size, err := d.ReadU32()
		if err != nil {
			return nil, err
		}
		r.PushConstants[key] = shader.PushConstantRange{BlockName: blockName, StageMask: shader.StageMask(mask), Offset: offset, Size: size}
	}
	if r.VertexAttributes, err = readVertexAttributes(d); err != nil {
		return nil, err
	}
	if r.FragmentOutputs, err = readFragmentOutputs(d); err != nil {
		return nil, err
	}
	return r, nil
}

func readSpirvShaders(d *serial.Deserializer) ([]SpirvShader, error) {
	n, err := d.ReadSeqHeader()
	if err != nil {
		return nil, err
	}
	out := make([]SpirvShader, n)
	for i := 0; i < n; i++ {
		desc, err := readDescription(d)
		if err != nil {
			return nil, err
		}
		wn, err := d.ReadSeqHeader()
		if err != nil {
			return nil, err
		}
		words := make([]uint32, wn)
		for j := 0; j < wn; j++ {
			if words[j], err = d.ReadU32(); err != nil {
				return nil, err
			}
		}
		refl, err := readReflection(d)
		if err != nil {
			return nil, err
		}
		out[i] = SpirvShader{Description: desc, Spirv: words, Reflection: refl}
	}
	return out, nil
}

func readStageUIDMap(d *serial.Deserializer) (map[shader.Stage]SpirvShaderUID, error) {
	n, err := d.ReadSeqHeader()
	if err != nil {
		return nil, err
	}
	out := make(map[shader.Stage]SpirvShaderUID, n)
	for i := 0; i < n; i++ {
		stage, err := d.ReadU8()
		if err != nil {
			return nil, err
		}
		uid, err := d.ReadU32()
		if err != nil {
			return nil, err
		}
		out[shader.Stage(stage)] = SpirvShaderUID(uid)
	}
	return out, nil
}

func readTopology(d *serial.Deserializer) ([]shader.Topology, error) {
	n, err := d.ReadSeqHeader()
	if err != nil {
		return nil, err
	}
	out := make([]shader.Topology, n)
	for i := 0; i < n; i++ {
		t, err := d.ReadU8()
		if err != nil {
			return nil, err
		}
		out[i] = shader.Topology(t)
	}
	return out, nil
}

func readSpecConstants(d *serial.Deserializer) (map[string]uint32, error) {
	n, err := d.ReadSeqHeader()
	if err != nil {
		return nil, err
	}
	out := make(map[string]uint32, n)
	for i := 0; i < n; i++ {
		name, err := d.ReadString()
		if err != nil {
			return nil, err
		}
		v, err := d.ReadU32()
		if err != nil {
			return nil, err
		}
		out[name] = v
	}
	return out, nil
}

func readGraphicsPipelines(d *serial.Deserializer) ([]GraphicsPipeline, error) {
	n, err := d.ReadSeqHeader()
	if err != nil {
		return nil, err
	}
	out := make([]GraphicsPipeline, n)
	for i := 0; i < n; i++ {
		stages, err := readStageUIDMap(d)
		if err != nil {
			return nil, err
		}
		layout, err := d.ReadU32()
		if err != nil {
			return nil, err
		}
		rp, err := d.ReadU32()
		if err != nil {
			return nil, err
		}
		vattrs, err := readVertexAttributes(d)
		if err != nil {
			return nil, err
		}
		fouts, err := readFragmentOutputs(d)
		if err != nil {
			return nil, err
		}
		topo, err := readTopology(d)
		if err != nil {
			return nil, err
		}
		specs, err := readSpecConstants(d)
		if err != nil {
			return nil, err
		}
		out[i] = GraphicsPipeline{
			Stages: stages, Layout: PipelineLayoutUID(layout), RenderPass: RenderPassUID(rp),
			VertexAttributes: vattrs, FragmentOutputs: fouts, SupportedTopology: topo, SpecConstants: specs,
		}
	}
	return out, nil
}

func readMeshPipelines(d *serial.Deserializer) ([]MeshPipeline, error) {
	n, err := d.ReadSeqHeader()
	if err != nil {
		return nil, err
	}
	out := make([]MeshPipeline, n)
	for i := 0; i < n; i++ {
		stages, err := readStageUIDMap(d)
		if err != nil {
			return nil, err
		}
		layout, err := d.ReadU32()
		if err != nil {
			return nil, err
		}
		rp, err := d.ReadU32()
		if err != nil {
			return nil, err
		}
		fouts, err := readFragmentOutputs(d)
		if err != nil {
			return nil, err
		}
		specs, err := readSpecConstants(d)
		if err != nil {
			return nil, err
		}
		out[i] = MeshPipeline{Stages: stages, Layout: PipelineLayoutUID(layout), RenderPass: RenderPassUID(rp), FragmentOutputs: fouts, SpecConstants: specs}
	}
	return out, nil
}

func readComputePipelines(d *serial.Deserializer) ([]ComputePipeline, error) {
	n, err := d.ReadSeqHeader()
	if err != nil {
		return nil, err
	}
	out := make([]ComputePipeline, n)
	for i := 0; i < n; i++ {
		sh, err := d.ReadU32()
		if err != nil {
			return nil, err
		}
		layout, err := d.ReadU32()
		if err != nil {
			return nil, err
		}
		specs, err := readSpecConstants(d)
		if err != nil {
			return nil, err
		}
		out[i] = ComputePipeline{Shader: SpirvShaderUID(sh), Layout: PipelineLayoutUID(layout), SpecConstants: specs}
	}
	return out, nil
}
