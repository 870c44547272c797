package engine

import (
	"strings"

	"github.com/cognolabs/changedetection/internal/domain/survey"
	"github.com/cognolabs/changedetection/internal/utils"
)

// Map fill colors.
const (
	ColorFlagged     = "#e74c3c"
	ColorResolved    = "#27ae60"
	ColorMixed       = "#f39c12"
	ColorCommercial  = "#c0392b"
	ColorResidential = "#2980b9"
	ColorUnanalyzed  = "#95a5a6"
)

// Style is the derived rendering for one geometry feature. Emphasize marks
// the feature for the pulsing attention treatment.
type Style struct {
	FillColor string `json:"fill_color"`
	Emphasize bool   `json:"emphasize"`
}

// typologyRules are checked in order; the first substring match wins.
var typologyRules = []struct {
	substrings []string
	color      string
}{
	{[]string{"mix", "mixed"}, ColorMixed},
	{[]string{"commercial", "business", "retail", "industrial"}, ColorCommercial},
	{[]string{"residential", "dwelling", "house", "flat"}, ColorResidential},
}

// StyleFor derives a feature's map style. A property with a change report is
// always colored by the report's status; typology is only consulted when no
// change is on record. Approved, confirmed and rejected all render as the
// resolved color: rejecting a flagged mismatch means "no real change", which
// is visually the same outcome as a confirmed match.
func StyleFor(feature *survey.Feature, idx *Index) Style {
	if change := idx.ActiveChange(feature.Key()); change != nil {
		if change.Status == survey.StatusFlagged {
			return Style{FillColor: ColorFlagged, Emphasize: true}
		}
		// approved, confirmed and rejected, plus anything the backend may
		// add later: a reviewed record never falls through to typology.
		return Style{FillColor: ColorResolved}
	}
	return typologyStyle(feature.Typology())
}

func typologyStyle(typology string) Style {
	label := utils.NormalizeTypology(typology)
	if label != "" {
		for _, rule := range typologyRules {
			for _, sub := range rule.substrings {
				if strings.Contains(label, sub) {
					return Style{FillColor: rule.color}
				}
			}
		}
	}
	return Style{FillColor: ColorUnanalyzed}
}
