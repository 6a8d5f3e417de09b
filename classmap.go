package bddconv

// Class mapping from BDD100K categories to training class IDs.

import "sort"

// ClassMapping maps a category label to the integer class ID used by the training pipeline.
// Categories that are not keys of the mapping are not converted.
type ClassMapping map[string]int

// DefaultClassMapping returns a new copy of the fixed class table used by the training pipeline.
func DefaultClassMapping() ClassMapping {
	return ClassMapping{
		"person":                        0,
		"bicycle":                       1,
		"car":                           2,
		"motorcycle":                    3,
		"bus":                           4,
		"train":                         5,
		"truck":                         6,
		"traffic sign":                  7,
		"traffic_light":                 8,
		"stop_sign":                     9,
		"curve_warning":                 10,
		"bumpy":                         11,
		"slippery_road":                 12,
		"pedestrian_crossing":           13,
		"double_curve":                  14,
		"traffic_signal_ahead":          15,
		"crossroad_junction_ahead":      16,
		"roundabout":                    17,
		"road_narrow":                   18,
		"no_motorcycle_and_car_allowed": 19,
		"no_turn":                       20,
		"no_overtaking":                 21,
		"speed_limit":                   22,
		"no_stopping":                   23,
		"turn":                          24,
		"proceed_or_turn":               25,
		"keep_left_or_right":            26,
		"schoolzone":                    27,
	}
}

// Lookup returns the class ID for label and whether the label is mapped.
func (m ClassMapping) Lookup(label string) (int, bool) {
	id, ok := m[label]
	return id, ok
}

// Labels returns the mapped labels ordered by class ID, ties broken by label.
func (m ClassMapping) Labels() []string {
	labels := make([]string, 0, len(m))
	for k := range m {
		labels = append(labels, k)
	}
	sort.Slice(labels, func(i, j int) bool {
		if m[labels[i]] != m[labels[j]] {
			return m[labels[i]] < m[labels[j]]
		}
		return labels[i] < labels[j]
	})
	return labels
}
