package pipelinepack

import "github.com/aeforge/buildpack/shader"

// workingLayout accumulates a single pipeline's merged per-set descriptor
// layout and push-constant union across the fixpoint loop of §4.5 phase 3.
type workingLayout struct {
	sets          [shader.MaxSets]*shader.DescriptorSet
	pushConstants map[string]shader.PushConstantRange
}

func newWorkingLayout() *workingLayout {
	return &workingLayout{pushConstants: make(map[string]shader.PushConstantRange)}
}

// mergeBindingsInto merges src into dst (creating dst's set if necessary),
// returning the number of merge-events (§3 glossary: a newly inserted
// uniform, or an existing one gaining stage bits) and an error if two
// bindings of the same name conflict on kind, array size or buffer/image
// type parameters.
func mergeBindingsInto(dst *shader.DescriptorSet, src []shader.Binding) (int, error) {
	events := 0
	for _, s := range src {
		var existing *shader.Binding
		for i := range dst.Bindings {
			if dst.Bindings[i].Name == s.Name {
				existing = &dst.Bindings[i]
				break
			}
		}
		if existing == nil {
			cp := s
			dst.Bindings = append(dst.Bindings, cp)
			events++
			continue
		}
		if existing.Kind != s.Kind || existing.ArraySize != s.ArraySize {
			return events, ErrLayoutConflict
		}
		if existing.Buffer != nil && s.Buffer != nil {
			if existing.Buffer.StaticSize != s.Buffer.StaticSize || existing.Buffer.ArrayStride != s.Buffer.ArrayStride {
				return events, ErrLayoutConflict
			}
			if !existing.Buffer.HasDynamicOffset && s.Buffer.HasDynamicOffset {
				existing.Buffer.HasDynamicOffset = true
				existing.Buffer.DynamicOffsetIndex = s.Buffer.DynamicOffsetIndex
			}
		}
		if existing.Image != nil && s.Image != nil {
			if existing.Image.Dim != s.Image.Dim || existing.Image.Array != s.Image.Array ||
				existing.Image.MultiSampled != s.Image.MultiSampled || existing.Image.ScalarFormat != s.Image.ScalarFormat {
				return events, ErrLayoutConflict
			}
		}
		before := existing.StageMask
		existing.StageMask |= s.StageMask
		if existing.StageMask != before {
			events++
		}
	}
	return events, nil
}

// mergePushConstantsInto merges src into dst, rejecting conflicting names
// (§3: "conflicting names are rejected; overlapping stages with different
// ranges are rejected").
func mergePushConstantsInto(dst map[string]shader.PushConstantRange, src map[string]shader.PushConstantRange) (int, error) {
	events := 0
	for name, s := range src {
		existing, ok := dst[name]
		if !ok {
			dst[name] = s
			events++
			continue
		}
		if existing.Offset != s.Offset || existing.Size != s.Size {
			return events, ErrLayoutConflict
		}
		before := existing.StageMask
		existing.StageMask |= s.StageMask
		if existing.StageMask != before {
			dst[name] = existing
			events++
		}
	}
	return events, nil
}

// AddLayout merges one shader's reflection (per descriptor set index) into
// the pipeline's working layout — §4.5 phase-3 pass A.
func (w *workingLayout) AddLayout(refl *shader.Reflection) (int, error) {
	events := 0
	for i, set := range refl.DescriptorSets {
		if set == nil || len(set.Bindings) == 0 {
			continue
		}
		if w.sets[i] == nil {
			w.sets[i] = &shader.DescriptorSet{Index: uint8(i)}
		}
		if w.sets[i].Name == "" {
			w.sets[i].Name = set.Name
		}
		n, err := mergeBindingsInto(w.sets[i], set.Bindings)
		events += n
		if err != nil {
			return events, err
		}
	}
	n, err := mergePushConstantsInto(w.pushConstants, refl.PushConstants)
	events += n
	return events, err
}

// MergeLayouts pushes the pipeline's accumulated union back into a
// participating shader's own reflection — §4.5 phase-3 pass B — so a
// shader shared across pipelines ends up with the union of every user's
// requirements.
func (w *workingLayout) MergeLayouts(refl *shader.Reflection) (int, error) {
	events := 0
	for i, set := range w.sets {
		if set == nil || len(set.Bindings) == 0 {
			continue
		}
		if refl.DescriptorSets[i] == nil {
			refl.DescriptorSets[i] = &shader.DescriptorSet{Index: uint8(i)}
		}
		if refl.DescriptorSets[i].Name == "" {
			refl.DescriptorSets[i].Name = set.Name
		}
		n, err := mergeBindingsInto(refl.DescriptorSets[i], set.Bindings)
		events += n
		if err != nil {
			return events, err
		}
	}
	n, err := mergePushConstantsInto(refl.PushConstants, w.pushConstants)
	events += n
	return events, err
}
