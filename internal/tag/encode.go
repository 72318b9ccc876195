package tag

import (
	"encoding/json"
	"sort"

	"gopkg.in/yaml.v3"
)

// Sets serialize as sorted string lists in both YAML content files and
// JSON save blobs.

func (s Set) sorted() []string {
	out := make([]string, 0, len(s))
	for t := range s {
		out = append(out, string(t))
	}
	sort.Strings(out)
	return out
}

func (s Set) MarshalYAML() (any, error) {
	return s.sorted(), nil
}

func (s *Set) UnmarshalYAML(value *yaml.Node) error {
	var raw []string
	if err := value.Decode(&raw); err != nil {
		return err
	}
	set := make(Set, len(raw))
	for _, r := range raw {
		set.Add(Tag(r))
	}
	*s = set
	return nil
}

func (s Set) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.sorted())
}

func (s *Set) UnmarshalJSON(data []byte) error {
	var raw []string
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	set := make(Set, len(raw))
	for _, r := range raw {
		set.Add(Tag(r))
	}
	*s = set
	return nil
}
