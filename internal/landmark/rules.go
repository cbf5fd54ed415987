package landmark

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// PriorityAxis selects which axis the orienter aligns first.
type PriorityAxis int

const (
	PriorityY PriorityAxis = iota
	PriorityX
)

func (a PriorityAxis) String() string {
	if a == PriorityX {
		return "x"
	}
	return "y"
}

// ParsePriority converts "x" or "y" into a PriorityAxis.
func ParsePriority(s string) (PriorityAxis, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "y", "":
		return PriorityY, nil
	case "x":
		return PriorityX, nil
	}
	return 0, fmt.Errorf("unknown priority axis %q", s)
}

func (a PriorityAxis) MarshalText() ([]byte, error) { return []byte(a.String()), nil }

func (a *PriorityAxis) UnmarshalText(b []byte) error {
	v, err := ParsePriority(string(b))
	if err != nil {
		return err
	}
	*a = v
	return nil
}

// RuleSet maps orientation marks onto landmark names for one kind of
// nucleus. Every rule set must map Reference.
type RuleSet struct {
	Name     string
	Marks    map[OrientationMark]Name
	Priority PriorityAxis
}

// Landmark returns the landmark name mapped to m.
func (rs RuleSet) Landmark(m OrientationMark) (Name, bool) {
	n, ok := rs.Marks[m]
	return n, ok
}

// ReferenceName returns the landmark name of the reference point.
func (rs RuleSet) ReferenceName() Name {
	return rs.Marks[Reference]
}

// Validate checks the rule set maps the reference mark.
func (rs RuleSet) Validate() error {
	if n, ok := rs.Marks[Reference]; !ok || n == "" {
		return fmt.Errorf("rule set %q does not map the reference mark", rs.Name)
	}
	return nil
}

// Clone returns an independent copy.
func (rs RuleSet) Clone() RuleSet {
	marks := make(map[OrientationMark]Name, len(rs.Marks))
	for k, v := range rs.Marks {
		marks[k] = v
	}
	rs.Marks = marks
	return rs
}

// Round is the rule set for round nuclei: a reference point and nothing else.
func Round() RuleSet {
	return RuleSet{
		Name: "round",
		Marks: map[OrientationMark]Name{
			Reference: ReferencePoint,
			Y:         ReferencePoint,
		},
		Priority: PriorityY,
	}
}

// MouseSperm is the rule set for rodent sperm nuclei, anchored on the hook tip.
func MouseSperm() RuleSet {
	return RuleSet{
		Name: "mouse-sperm",
		Marks: map[OrientationMark]Name{
			Reference: "Tip",
			Top:       "Top vertical",
			Bottom:    "Bottom vertical",
			X:         "Tip",
		},
		Priority: PriorityY,
	}
}

// PigSperm is the rule set for pig sperm nuclei, anchored on the tail
// attachment.
func PigSperm() RuleSet {
	return RuleSet{
		Name: "pig-sperm",
		Marks: map[OrientationMark]Name{
			Reference: "Tail",
			Left:      "Left horizontal",
			Right:     "Right horizontal",
			Y:         "Tail",
		},
		Priority: PriorityX,
	}
}

var builtins = map[string]func() RuleSet{
	"round":       Round,
	"mouse-sperm": MouseSperm,
	"pig-sperm":   PigSperm,
}

// BuiltinNames lists the built-in rule set names.
func BuiltinNames() []string {
	names := make([]string, 0, len(builtins))
	for n := range builtins {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Builtin returns a built-in rule set by name.
func Builtin(name string) (RuleSet, error) {
	f, ok := builtins[strings.ToLower(name)]
	if !ok {
		return RuleSet{}, fmt.Errorf("unknown rule set %q (available: %s)", name, strings.Join(BuiltinNames(), ", "))
	}
	return f(), nil
}

// ruleSetFile is the YAML layout of a rule set:
//
//	name: mouse-sperm
//	priority: y
//	marks:
//	  reference: Tip
//	  top: Top vertical
type ruleSetFile struct {
	Name     string            `yaml:"name"`
	Priority string            `yaml:"priority"`
	Marks    map[string]string `yaml:"marks"`
}

// ParseRuleSet decodes a YAML rule set.
func ParseRuleSet(data []byte) (RuleSet, error) {
	var raw ruleSetFile
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return RuleSet{}, fmt.Errorf("failed to parse rule set: %w", err)
	}
	priority, err := ParsePriority(raw.Priority)
	if err != nil {
		return RuleSet{}, err
	}
	rs := RuleSet{
		Name:     raw.Name,
		Marks:    make(map[OrientationMark]Name, len(raw.Marks)),
		Priority: priority,
	}
	for k, v := range raw.Marks {
		m, err := ParseMark(k)
		if err != nil {
			return RuleSet{}, err
		}
		rs.Marks[m] = Name(v)
	}
	if err := rs.Validate(); err != nil {
		return RuleSet{}, err
	}
	return rs, nil
}

// MarshalYAML encodes the rule set in the layout ParseRuleSet reads.
func (rs RuleSet) MarshalYAML() (interface{}, error) {
	raw := ruleSetFile{
		Name:     rs.Name,
		Priority: rs.Priority.String(),
		Marks:    make(map[string]string, len(rs.Marks)),
	}
	for m, n := range rs.Marks {
		raw.Marks[m.String()] = string(n)
	}
	return raw, nil
}

// LoadRuleSet resolves name as a built-in rule set, or else reads it as a
// YAML file path.
func LoadRuleSet(nameOrPath string) (RuleSet, error) {
	if rs, err := Builtin(nameOrPath); err == nil {
		return rs, nil
	}
	data, err := os.ReadFile(nameOrPath)
	if err != nil {
		return RuleSet{}, fmt.Errorf("failed to read rule set: %w", err)
	}
	return ParseRuleSet(data)
}
