package domain

import (
	"encoding/json"
	"sort"
)

// IDSet is a set of participant identifiers. On the wire it is a JSON array;
// marshalling sorts it so output is stable.
type IDSet map[string]struct{}

func NewIDSet(ids ...string) IDSet {
	s := make(IDSet, len(ids))
	for _, id := range ids {
		s[id] = struct{}{}
	}
	return s
}

func (s IDSet) Has(id string) bool {
	_, ok := s[id]
	return ok
}

func (s IDSet) Len() int { return len(s) }

// Add inserts id, allocating the set on first use. Reports whether the set
// changed.
func (s *IDSet) Add(id string) bool {
	if *s == nil {
		*s = IDSet{}
	}
	if _, ok := (*s)[id]; ok {
		return false
	}
	(*s)[id] = struct{}{}
	return true
}

// Union merges other into s. Unions never remove members.
func (s *IDSet) Union(other IDSet) bool {
	changed := false
	for id := range other {
		if s.Add(id) {
			changed = true
		}
	}
	return changed
}

func (s IDSet) Clone() IDSet {
	if s == nil {
		return nil
	}
	out := make(IDSet, len(s))
	for id := range s {
		out[id] = struct{}{}
	}
	return out
}

func (s IDSet) MarshalJSON() ([]byte, error) {
	ids := make([]string, 0, len(s))
	for id := range s {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return json.Marshal(ids)
}

func (s *IDSet) UnmarshalJSON(data []byte) error {
	var ids []string
	if err := json.Unmarshal(data, &ids); err != nil {
		return err
	}
	*s = NewIDSet(ids...)
	return nil
}
