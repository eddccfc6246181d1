// Package ontology implements qipu's note/link type vocabulary: the
// standard types, their inverse pairs, traversal costs, and the three
// ontology modes (spec §4.4). There is no class hierarchy here, only a
// small table.
package ontology

import "fmt"

// Mode selects how the standard vocabulary combines with user declarations.
type Mode string

const (
	ModeDefault     Mode = "default"
	ModeExtended    Mode = "extended"
	ModeReplacement Mode = "replacement"
)

// Standard note types (§4.4).
var StandardNoteTypes = []string{"fleeting", "literature", "permanent", "moc"}

const (
	costStructural = 0.5
	costDefault    = 1.0
)

// LinkType describes one entry in the link-type table.
type LinkType struct {
	Name        string
	Inverse     string
	Description string
	Cost        float64
}

// standardLinkPairs enumerates the fixed inverse pairs from §4.4. Entries
// appear once; Build mirrors each into both directions.
var standardLinkPairs = [][2]string{
	{"supports", "supported-by"},
	{"part-of", "has-part"},
	{"contradicts", "contradicted-by"},
	{"answers", "answered-by"},
	{"refines", "refined-by"},
	{"derived-from", "derived-to"},
	{"follows", "precedes"},
	{"alias-of", "has-alias"},
	{"same-as", "same-as"},
	{"related", "related"},
}

// structuralTypes cost 0.5 under the default cost table; everything else
// costs 1.0 (§4.4).
var structuralTypes = map[string]bool{
	"part-of": true, "has-part": true, "follows": true, "precedes": true,
	"same-as": true, "alias-of": true, "has-alias": true,
}

// Declaration is a user-supplied note or link type from config.toml's
// [ontology] table.
type Declaration struct {
	Name        string
	Inverse     string // link types only
	Description string
	Cost        *float64 // link types only; nil means "use the default cost"
}

// Ontology is the resolved vocabulary for one store.
type Ontology struct {
	mode      Mode
	noteTypes map[string]bool
	linkTypes map[string]LinkType
}

// Build resolves the ontology for mode, merging standard types with user
// declarations per §4.4: extended adds to the standard set (and may
// override an inverse), replacement uses only what's declared.
func Build(mode Mode, noteTypeDecls []Declaration, linkTypeDecls []Declaration) (*Ontology, error) {
	o := &Ontology{
		mode:      mode,
		noteTypes: map[string]bool{},
		linkTypes: map[string]LinkType{},
	}

	if mode != ModeReplacement {
		for _, t := range StandardNoteTypes {
			o.noteTypes[t] = true
		}
		for _, pair := range standardLinkPairs {
			a, b := pair[0], pair[1]
			cost := costDefault
			if structuralTypes[a] {
				cost = costStructural
			}
			o.linkTypes[a] = LinkType{Name: a, Inverse: b, Cost: cost}
			if b != a {
				costB := costDefault
				if structuralTypes[b] {
					costB = costStructural
				}
				o.linkTypes[b] = LinkType{Name: b, Inverse: a, Cost: costB}
			}
		}
	}

	if mode != ModeDefault {
		for _, d := range noteTypeDecls {
			if d.Name == "" {
				return nil, fmt.Errorf("ontology: note type declaration missing name")
			}
			o.noteTypes[d.Name] = true
		}
		for _, d := range linkTypeDecls {
			if d.Name == "" {
				return nil, fmt.Errorf("ontology: link type declaration missing name")
			}
			cost := costDefault
			if d.Cost != nil {
				cost = *d.Cost
			} else if structuralTypes[d.Name] {
				cost = costStructural
			}
			inverse := d.Inverse
			if inverse == "" {
				if existing, ok := o.linkTypes[d.Name]; ok {
					inverse = existing.Inverse
				} else {
					inverse = "inverse-" + d.Name
				}
			}
			o.linkTypes[d.Name] = LinkType{Name: d.Name, Inverse: inverse, Description: d.Description, Cost: cost}
			// A user declaration may override a standard type's inverse
			// (§4.4); keep the other side pointing back for consistency
			// unless it was also explicitly declared.
			if _, explicit := findDecl(linkTypeDecls, inverse); !explicit {
				invCost := costDefault
				if structuralTypes[inverse] {
					invCost = costStructural
				}
				if existing, ok := o.linkTypes[inverse]; ok {
					invCost = existing.Cost
				}
				o.linkTypes[inverse] = LinkType{Name: inverse, Inverse: d.Name, Cost: invCost}
			}
		}
	}

	return o, nil
}

func findDecl(decls []Declaration, name string) (Declaration, bool) {
	for _, d := range decls {
		if d.Name == name {
			return d, true
		}
	}
	return Declaration{}, false
}

// ValidNoteType reports whether t is allowed under this ontology.
func (o *Ontology) ValidNoteType(t string) bool { return o.noteTypes[t] }

// Inverse returns the configured inverse for link type t, synthesizing
// "inverse-<t>" for unknown types (§4.4). This never fails: an unknown
// type in extended/replacement mode still gets a usable inverse.
func (o *Ontology) Inverse(t string) string {
	if lt, ok := o.linkTypes[t]; ok {
		return lt.Inverse
	}
	return "inverse-" + t
}

// Cost returns the traversal weight for link type t, defaulting to 1.0 for
// unknown types.
func (o *Ontology) Cost(t string) float64 {
	if lt, ok := o.linkTypes[t]; ok {
		return lt.Cost
	}
	return costDefault
}

// ValidLinkType reports whether t is declared under this ontology.
// Cost/Inverse still give values for undeclared types, but `link add`
// rejects them (§7 UsageError) and doctor's OntologyCheck flags them, in
// every mode.
func (o *Ontology) ValidLinkType(t string) bool {
	_, ok := o.linkTypes[t]
	return ok
}

// Mode returns the ontology mode this instance was built with.
func (o *Ontology) Mode() Mode { return o.mode }

// LinkTypes returns all known link types sorted for deterministic display.
func (o *Ontology) LinkTypes() []LinkType {
	out := make([]LinkType, 0, len(o.linkTypes))
	for _, lt := range o.linkTypes {
		out = append(out, lt)
	}
	sortLinkTypes(out)
	return out
}

func sortLinkTypes(lts []LinkType) {
	for i := 1; i < len(lts); i++ {
		for j := i; j > 0 && lts[j].Name < lts[j-1].Name; j-- {
			lts[j], lts[j-1] = lts[j-1], lts[j]
		}
	}
}

// TagAliases maps short forms to canonical tags and answers equivalence
// queries (§4.4 tag_aliases).
type TagAliases struct {
	toCanonical map[string]string
	groups      map[string][]string
}

// NewTagAliases builds the alias table from a config map of alias ->
// canonical.
func NewTagAliases(aliasToCanonical map[string]string) *TagAliases {
	ta := &TagAliases{toCanonical: map[string]string{}, groups: map[string][]string{}}
	for alias, canon := range aliasToCanonical {
		ta.toCanonical[alias] = canon
		ta.groups[canon] = append(ta.groups[canon], alias)
	}
	return ta
}

// Canonical resolves t to its canonical form, or returns t unchanged if it
// has no alias.
func (ta *TagAliases) Canonical(t string) string {
	if ta == nil {
		return t
	}
	if canon, ok := ta.toCanonical[t]; ok {
		return canon
	}
	return t
}

// Equivalent returns the transitive closure of t under the alias relation:
// t itself, its canonical form (if different), and every alias of that
// canonical form.
func (ta *TagAliases) Equivalent(t string) []string {
	if ta == nil {
		return []string{t}
	}
	canon := ta.Canonical(t)
	seen := map[string]bool{canon: true, t: true}
	out := []string{canon}
	if t != canon {
		out = append([]string{t}, out...)
	}
	for _, alias := range ta.groups[canon] {
		if !seen[alias] {
			seen[alias] = true
			out = append(out, alias)
		}
	}
	return out
}
