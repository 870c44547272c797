package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cognolabs/changedetection/internal/domain/survey"
)

func TestStyleFor_ChangeStatusTakesPrecedenceOverTypology(t *testing.T) {
	// The feature's typology would match the commercial rule on its own; a
	// change record must win regardless.
	typologies := []string{"commercial", "residential", "mixed use", "", "warehouse"}

	for _, status := range []string{survey.StatusFlagged, survey.StatusApproved, survey.StatusConfirmed, survey.StatusRejected} {
		for _, typology := range typologies {
			snap := &Snapshot{
				GeoJSON: &survey.FeatureCollection{
					Features: []survey.Feature{testFeature(t, 1, typology)},
				},
				Changes: []survey.Change{testChange(1, 1, status, fptr(0.9))},
			}
			idx := BuildIndex(snap)

			style := StyleFor(&snap.GeoJSON.Features[0], idx)

			if status == survey.StatusFlagged {
				assert.Equal(t, ColorFlagged, style.FillColor, "status=%s typology=%q", status, typology)
				assert.True(t, style.Emphasize)
			} else {
				assert.Equal(t, ColorResolved, style.FillColor, "status=%s typology=%q", status, typology)
				assert.False(t, style.Emphasize)
			}
		}
	}
}

func TestStyleFor_RejectedRendersSameAsApproved(t *testing.T) {
	styleFor := func(status string) Style {
		snap := &Snapshot{
			GeoJSON: &survey.FeatureCollection{
				Features: []survey.Feature{testFeature(t, 1, "commercial")},
			},
			Changes: []survey.Change{testChange(1, 1, status, fptr(0.9))},
		}
		idx := BuildIndex(snap)
		return StyleFor(&snap.GeoJSON.Features[0], idx)
	}

	approved := styleFor(survey.StatusApproved)
	rejected := styleFor(survey.StatusRejected)
	flagged := styleFor(survey.StatusFlagged)

	assert.Equal(t, approved, rejected)
	assert.NotEqual(t, flagged.FillColor, rejected.FillColor)
}

func TestStyleFor_TypologyRules(t *testing.T) {
	tests := []struct {
		typology string
		want     string
	}{
		{"mix", ColorMixed},
		{"Mixed Use", ColorMixed},
		{"commercial", ColorCommercial},
		{"Retail Park", ColorCommercial},
		{"light industrial", ColorCommercial},
		{"business district", ColorCommercial},
		{"residential", ColorResidential},
		{"Dwelling", ColorResidential},
		{"terraced house", ColorResidential},
		{"flat", ColorResidential},
		{"agricultural", ColorUnanalyzed},
		{"", ColorUnanalyzed},
		{"  ", ColorUnanalyzed},
	}

	for _, tt := range tests {
		t.Run(tt.typology, func(t *testing.T) {
			snap := &Snapshot{
				GeoJSON: &survey.FeatureCollection{
					Features: []survey.Feature{testFeature(t, 1, tt.typology)},
				},
			}
			idx := BuildIndex(snap)

			style := StyleFor(&snap.GeoJSON.Features[0], idx)

			assert.Equal(t, tt.want, style.FillColor)
			assert.False(t, style.Emphasize)
		})
	}
}

func TestStyleFor_MixRuleCheckedBeforeCommercial(t *testing.T) {
	// "mixed commercial" matches both rule sets; the mix rule is listed
	// first and must win.
	snap := &Snapshot{
		GeoJSON: &survey.FeatureCollection{
			Features: []survey.Feature{testFeature(t, 1, "mixed commercial")},
		},
	}
	idx := BuildIndex(snap)

	style := StyleFor(&snap.GeoJSON.Features[0], idx)

	assert.Equal(t, ColorMixed, style.FillColor)
}

func TestStyleFor_Pure(t *testing.T) {
	snap := testSnapshot(t)
	idx := BuildIndex(snap)
	feature := &snap.GeoJSON.Features[0]

	first := StyleFor(feature, idx)
	for i := 0; i < 5; i++ {
		require.Equal(t, first, StyleFor(feature, idx))
	}
}
