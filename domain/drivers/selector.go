package drivers

import (
	"strings"

	"github.com/modelcurator/metagraph/domain/graphstore"
	"github.com/modelcurator/metagraph/pkg/apperror"
)

const (
	// noneSentinel denotes an absent field value on the wire.
	noneSentinel = "None"

	fieldSeparator = ", "
)

// Field is one parsed selector field: either the wildcard (every driver node
// in the category at reconcile time) or a concrete set of names.
type Field struct {
	All    bool
	Values []string
}

// Empty reports whether the field selects nothing.
func (f Field) Empty() bool {
	return !f.All && len(f.Values) == 0
}

// Selector is the structured form of a driver string.
type Selector struct {
	Sector    Field
	Domain    Field
	Country   Field
	Clarifier Field
}

// Field returns the parsed field for a category.
func (s Selector) Field(c Category) Field {
	switch c {
	case CategorySector:
		return s.Sector
	case CategoryDomain:
		return s.Domain
	case CategoryCountry:
		return s.Country
	case CategoryClarifier:
		return s.Clarifier
	default:
		return Field{}
	}
}

// ParseSelector parses the wire-format driver string
//
//	"<sector>, <domain>, <country>, <clarifier>"
//
// Fields are joined by ", "; sector, domain and country may each be a
// comma-separated multi-value list or the wildcard literal ALL. The clarifier
// is single-valued: surplus entries beyond the first are dropped and ALL
// reads as absent. When the string splits into
// more than four top-level segments the parse is right-anchored: the last
// three segments are clarifier, country and domain, and everything before
// them, rejoined with ", ", is the sector. This is the only way the format
// tolerates embedded commas in the sector field. It is genuinely ambiguous
// when domain or country also contain embedded commas; such strings silently
// mis-parse in favor of the sector, and that behavior is preserved for wire
// compatibility.
//
// Fewer than four segments follow the legacy short forms: a missing trailing
// clarifier defaults to "None", a missing country to "ALL".
func ParseSelector(raw string) (Selector, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return Selector{}, apperror.ErrParse.WithMessage("empty driver string")
	}

	parts := strings.Split(trimmed, fieldSeparator)

	var sector, domain, country, clarifier string
	switch n := len(parts); {
	case n > 4:
		// Right-anchored: the sector swallowed the extra segments.
		clarifier = parts[n-1]
		country = parts[n-2]
		domain = parts[n-3]
		sector = strings.Join(parts[:n-3], fieldSeparator)
	case n == 4:
		sector, domain, country, clarifier = parts[0], parts[1], parts[2], parts[3]
	case n == 3:
		// Legacy 3-field form: sector, domain, clarifier.
		sector, domain, clarifier = parts[0], parts[1], parts[2]
		country = graphstore.WildcardSentinel
	case n == 2:
		sector, domain = parts[0], parts[1]
		country = graphstore.WildcardSentinel
		clarifier = noneSentinel
	default:
		sector = parts[0]
		country = graphstore.WildcardSentinel
		clarifier = noneSentinel
	}

	sel := Selector{
		Sector:    parseField(sector),
		Domain:    parseField(domain),
		Country:   parseField(country),
		Clarifier: parseClarifier(clarifier),
	}
	return sel, nil
}

// parseField splits a single field on bare commas, trims whitespace and drops
// blanks and the "None" sentinel. If ALL appears anywhere the whole field
// collapses to the wildcard regardless of co-occurring values.
func parseField(raw string) Field {
	var f Field
	for _, piece := range strings.Split(raw, ",") {
		value := strings.TrimSpace(piece)
		if value == "" || value == noneSentinel {
			continue
		}
		if value == graphstore.WildcardSentinel {
			return Field{All: true}
		}
		f.Values = append(f.Values, value)
	}
	return f
}

// parseClarifier parses the clarifier field, which unlike the other three is
// single-valued: it resolves to at most one node. Extra comma-separated
// entries are dropped in favor of the first, and ALL is treated as absent
// because a single-valued field has no meaningful wildcard expansion.
func parseClarifier(raw string) Field {
	for _, piece := range strings.Split(raw, ",") {
		value := strings.TrimSpace(piece)
		if value == "" || value == noneSentinel || value == graphstore.WildcardSentinel {
			continue
		}
		return Field{Values: []string{value}}
	}
	return Field{}
}
