package samplerpack

import (
	"errors"
	"sort"
)

// ErrNoSamplers is returned by Storage.Build when no samplers were declared.
var ErrNoSamplers = errors.New("samplerpack: no samplers declared")

// UID indexes a deduplicated SamplerDesc within a Pack.
type UID uint32

// Storage is the explicit, non-global sampler declaration store scripts
// populate (§9 DESIGN NOTES, same "no global singleton" rule as
// pipelinepack.Storage replacing SamplerStorage::Instance()).
type Storage struct {
	descs []SamplerDesc
}

// Add appends a sampler declaration.
func (s *Storage) Add(d SamplerDesc) { s.descs = append(s.descs, d) }

// Build validates every declared sampler, deduplicates them by structural
// equality (§4.6, mirrors SamplerStorage::Serialize's hash-bucket dedup),
// and returns the assembled Pack plus the count of samplers that required
// a validation fixup.
func (s *Storage) Build() (*Pack, int, error) {
	if len(s.descs) == 0 {
		return nil, 0, ErrNoSamplers
	}

	names := make(map[string]bool, len(s.descs))
	for _, d := range s.descs {
		if d.Name == "" {
			continue
		}
		if names[d.Name] {
			return nil, 0, ErrHasCollisions
		}
		names[d.Name] = true
	}

	var unique []SamplerDesc
	byUID := make(map[string]UID)
	fixups := 0

	for _, d := range s.descs {
		if !d.Validate() {
			fixups++
		}
		uid := UID(0)
		found := false
		for i, u := range unique {
			if u.equal(d) {
				uid = UID(i)
				found = true
				break
			}
		}
		if !found {
			uid = UID(len(unique))
			unique = append(unique, d)
		}
		if d.Name != "" {
			byUID[d.Name] = uid
		}
	}

	pairs := make([]namePair, 0, len(byUID))
	for name, uid := range byUID {
		pairs = append(pairs, namePair{Name: name, UID: uid})
	}
	sort.Slice(pairs, func(i, j int) bool { return pairs[i].Name < pairs[j].Name })

	return &Pack{Version: PackVersion, Samplers: unique, Names: pairs}, fixups, nil
}

type namePair struct {
	Name string
	UID  UID
}
