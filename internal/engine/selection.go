package engine

import "github.com/cognolabs/changedetection/internal/domain/survey"

// Selection tracks the operator's current focus on the map and in the change
// list. Property and change are two cross-referenced optional fields rather
// than one sum type: a change whose property vanished from the geometry is
// still highlighted in the list, it just opens no property panel.
type Selection struct {
	Property *survey.Feature
	Change   *survey.Change
}

func (s Selection) IsIdle() bool {
	return s.Property == nil && s.Change == nil
}

// SelectProperty focuses a clicked geometry feature and pairs it with the
// property's current change report, if one exists.
func SelectProperty(idx *Index, feature *survey.Feature) Selection {
	if feature == nil {
		return Selection{}
	}
	return Selection{
		Property: feature,
		Change:   idx.ActiveChange(feature.Key()),
	}
}

// SelectPropertyByKey resolves an id against the current geometry (used when
// navigating from a prediction row). Unknown ids leave the selection as-is.
func SelectPropertyByKey(idx *Index, key string, current Selection) Selection {
	feature := idx.FeatureByKey(key)
	if feature == nil {
		return current
	}
	return SelectProperty(idx, feature)
}

// SelectChange focuses a change row. When the change's property is present in
// the current geometry the property panel opens too; otherwise only the
// change is selected.
func SelectChange(idx *Index, change *survey.Change) Selection {
	if change == nil {
		return Selection{}
	}
	return Selection{
		Property: idx.FeatureByKey(survey.KeyInt64(change.PropertyID)),
		Change:   change,
	}
}

// ClearSelection returns to the idle state.
func ClearSelection() Selection {
	return Selection{}
}

// RebindSelection re-resolves a selection against a freshly built index so it
// never points at stale data. Referenced entities that disappeared in the
// reload simply drop out of the selection; nothing fails.
func RebindSelection(idx *Index, current Selection) Selection {
	if current.Property != nil {
		feature := idx.FeatureByKey(current.Property.Key())
		if feature != nil {
			return SelectProperty(idx, feature)
		}
	}
	if current.Change != nil {
		return Selection{Change: idx.ChangeByID(current.Change.ID)}
	}
	return Selection{}
}
