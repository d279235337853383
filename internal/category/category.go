// Package category canonicalises free-form waste labels into the closed
// category vocabulary shared by the models and the UI.
package category

import "strings"

// Category is a canonical waste type.
type Category string

const (
	Plastic   Category = "plastic"
	Paper     Category = "paper"
	Cardboard Category = "cardboard"
	Glass     Category = "glass"
	Metal     Category = "metal"
	Organic   Category = "organic"
	EWaste    Category = "e-waste"
	Textile   Category = "textile"
	Trash     Category = "trash"
)

var all = []Category{Plastic, Paper, Cardboard, Glass, Metal, Organic, EWaste, Textile, Trash}

// synonyms maps folded labels, including every canonical name, onto a
// category.
var synonyms = map[string]Category{
	"plastic":        Plastic,
	"plastics":       Plastic,
	"pet":            Plastic,
	"pet bottle":     Plastic,
	"plastic bottle": Plastic,
	"plastic bag":    Plastic,
	"hdpe":           Plastic,
	"paper":          Paper,
	"newspaper":      Paper,
	"magazine":       Paper,
	"office paper":   Paper,
	"cardboard":      Cardboard,
	"carton":         Cardboard,
	"corrugated":     Cardboard,
	"glass":          Glass,
	"glass bottle":   Glass,
	"brown-glass":    Glass,
	"green-glass":    Glass,
	"white-glass":    Glass,
	"jar":            Glass,
	"metal":          Metal,
	"aluminium":      Metal,
	"aluminum":       Metal,
	"can":            Metal,
	"tin":            Metal,
	"steel":          Metal,
	"organic":        Organic,
	"bio":            Organic,
	"biological":     Organic,
	"food":           Organic,
	"compost":        Organic,
	"e-waste":        EWaste,
	"ewaste":         EWaste,
	"electronics":    EWaste,
	"electronic":     EWaste,
	"battery":        EWaste,
	"batteries":      EWaste,
	"textile":        Textile,
	"clothes":        Textile,
	"clothing":       Textile,
	"shoes":          Textile,
	"fabric":         Textile,
	"trash":          Trash,
	"general waste":  Trash,
	"residual":       Trash,
	"non-recyclable": Trash,
	"landfill":       Trash,
}

// All returns the canonical categories in display order.
func All() []Category {
	out := make([]Category, len(all))
	copy(out, all)
	return out
}

// Normalize maps a raw label onto its canonical category. Unknown labels are
// returned unchanged with ok set to false.
func Normalize(label string) (string, bool) {
	key := strings.Join(strings.Fields(strings.ToLower(label)), " ")
	key = strings.ReplaceAll(key, "_", " ")
	if c, ok := synonyms[key]; ok {
		return string(c), true
	}
	return label, false
}

// Valid reports whether label is already a canonical category.
func Valid(label string) bool {
	for _, c := range all {
		if string(c) == label {
			return true
		}
	}
	return false
}
