package drivers

// Category is a driver taxonomy axis. Driver nodes are unique by
// (category, name) and are created lazily on first reference.
type Category string

const (
	CategorySector    Category = "Sector"
	CategoryDomain    Category = "Domain"
	CategoryCountry   Category = "Country"
	CategoryClarifier Category = "Clarifier"
)

// Categories returns the taxonomy axes in wire-format field order.
func Categories() []Category {
	return []Category{CategorySector, CategoryDomain, CategoryCountry, CategoryClarifier}
}

// Label returns the node label driver nodes of this category carry.
func (c Category) Label() string {
	return string(c)
}

// EdgeType returns the driver-edge type for this category. Driver edges are
// propertyless and always point DriverNode -> Entity.
func (c Category) EdgeType() string {
	switch c {
	case CategorySector:
		return "SECTOR_OF"
	case CategoryDomain:
		return "DOMAIN_OF"
	case CategoryCountry:
		return "COUNTRY_OF"
	case CategoryClarifier:
		return "CLARIFIER_OF"
	default:
		return ""
	}
}

// EntityKind identifies what a selector is attached to. The reconcile
// algorithm is identical for all three kinds; only the node label differs.
type EntityKind string

const (
	KindObject   EntityKind = "Object"
	KindVariable EntityKind = "Variable"
	KindList     EntityKind = "List"
)

// Label returns the node label for entities of this kind.
func (k EntityKind) Label() string {
	return string(k)
}

// Valid reports whether k is a known entity kind.
func (k EntityKind) Valid() bool {
	switch k {
	case KindObject, KindVariable, KindList:
		return true
	}
	return false
}

// SelectorProp is the entity property the raw selector string is persisted
// under after a successful reconcile.
const SelectorProp = "drivers"
