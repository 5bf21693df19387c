package pipelinepack

import (
	"fmt"
	"sort"
	"strings"

	"github.com/aeforge/buildpack/shader"
)

// sortBindings returns a copy of bindings sorted by name, the stable
// on-disk form §3 mandates for descriptor-set layouts.
func sortBindings(bindings []shader.Binding) []shader.Binding {
	out := append([]shader.Binding(nil), bindings...)
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// layoutKey builds a structural hash key for a DescriptorSetLayout so that
// equal-content layouts always dedupe to the same UID regardless of
// insertion order (§3 invariant, §8 "descriptor set layout with equal
// contents maps to exactly one UID").
func layoutKey(l DescriptorSetLayout) string {
	var b strings.Builder
	for _, bind := range sortBindings(l.Bindings) {
		fmt.Fprintf(&b, "%s|%d|%d|%d|%d;", bind.Name, bind.BindingIndex, bind.ArraySize, bind.StageMask, bind.Kind)
		if bind.Buffer != nil {
			fmt.Fprintf(&b, "buf:%d,%d,%v,%d;", bind.Buffer.StaticSize, bind.Buffer.ArrayStride, bind.Buffer.HasDynamicOffset, bind.Buffer.DynamicOffsetIndex)
		}
		if bind.Image != nil {
			fmt.Fprintf(&b, "img:%d,%v,%v,%v,%d,%v;", bind.Image.Dim, bind.Image.Array, bind.Image.MultiSampled, bind.Image.Shadow, bind.Image.ScalarFormat, bind.Image.Discard)
		}
	}
	return b.String()
}

// layoutPool deduplicates DescriptorSetLayout values by structural content.
type layoutPool struct {
	byKey map[string]DescriptorSetLayoutUID
	all   []DescriptorSetLayout
}

func newLayoutPool() *layoutPool {
	return &layoutPool{byKey: make(map[string]DescriptorSetLayoutUID)}
}

// intern returns l's UID, inserting it if no structurally-equal layout has
// been seen before. Bindings are stored in their stable sorted form.
func (p *layoutPool) intern(l DescriptorSetLayout) DescriptorSetLayoutUID {
	l.Bindings = sortBindings(l.Bindings)
	key := layoutKey(l)
	if uid, ok := p.byKey[key]; ok {
		return uid
	}
	uid := DescriptorSetLayoutUID(len(p.all))
	p.all = append(p.all, l)
	p.byKey[key] = uid
	return uid
}

// pipelineLayoutKey builds a structural key for a PipelineLayout from its
// ordered (set-name, UID) pairs and push-constant map, per §3/§8
// ("pipeline-layout merge is commutative and associative").
func pipelineLayoutKey(pl PipelineLayout) string {
	sets := append([]PipelineLayoutSet(nil), pl.Sets...)
	sort.Slice(sets, func(i, j int) bool { return sets[i].SetIndex < sets[j].SetIndex })

	var b strings.Builder
	for _, s := range sets {
		fmt.Fprintf(&b, "%d:%s:%d;", s.SetIndex, s.SetName, s.Layout)
	}
	names := make([]string, 0, len(pl.PushConstants))
	for name := range pl.PushConstants {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		pc := pl.PushConstants[name]
		fmt.Fprintf(&b, "pc:%s:%d:%d:%d;", name, pc.StageMask, pc.Offset, pc.Size)
	}
	return b.String()
}

type pipelineLayoutPool struct {
	byKey map[string]PipelineLayoutUID
	all   []PipelineLayout
}

func newPipelineLayoutPool() *pipelineLayoutPool {
	return &pipelineLayoutPool{byKey: make(map[string]PipelineLayoutUID)}
}

func (p *pipelineLayoutPool) intern(pl PipelineLayout) PipelineLayoutUID {
	sets := append([]PipelineLayoutSet(nil), pl.Sets...)
	sort.Slice(sets, func(i, j int) bool { return sets[i].SetIndex < sets[j].SetIndex })
	pl.Sets = sets
	key := pipelineLayoutKey(pl)
	if uid, ok := p.byKey[key]; ok {
		return uid
	}
	uid := PipelineLayoutUID(len(p.all))
	p.all = append(p.all, pl)
	p.byKey[key] = uid
	return uid
}
