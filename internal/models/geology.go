package models

// GeologicalUnit is one stratigraphic unit returned by the geology data service.
// Optional attributes are pointers so that an absent value can be told apart from a zero one.
type GeologicalUnit struct {
	Name        *string  `json:"name,omitempty"`    // Unit name, may be absent.
	BottomAge   *float64 `json:"b_age,omitempty"`   // Older age bound, million years.
	TopAge      *float64 `json:"t_age,omitempty"`   // Younger age bound, million years.
	Lithology   string   `json:"lith,omitempty"`    // Free-text rock types.
	Environment string   `json:"environ,omitempty"` // Free-text depositional environment.
}

// Dataset is the ordered list of units covering a coordinate. An empty dataset is valid
// and means that no units are known at that point.
type Dataset []GeologicalUnit

// DatasetEnvelope mirrors the geology service response shape: {"success": {"data": [...]}}.
type DatasetEnvelope struct {
	Success struct {
		Data Dataset `json:"data"`
	} `json:"success"`
}

// Envelope wraps the dataset in the geology service response shape.
// A nil dataset is encoded as an empty array.
func (d Dataset) Envelope() DatasetEnvelope {
	var env DatasetEnvelope
	env.Success.Data = d
	if env.Success.Data == nil {
		env.Success.Data = Dataset{}
	}

	return env
}
