package model

import (
	"encoding/json"
	"sort"
)

// providerOrder is the column order of the common provider schema.
var providerOrder = []string{
	"source_state", "provider_url",
	"provider_name", "license_number", "license_holder",
	"provider_type", "status", "status_date", "license_begin_date", "license_expiration",
	"sutq_rating",
	"address", "latitude", "longitude", "phone", "email", "provider_website",
	"administrator", "capacity", "hours", "ages_served",
	"infant", "toddler", "preschool", "school",
	"county", "scholarships_accepted", "languages", "deficiencies",
}

var inspectionOrder = []string{
	"date", "type", "original_status", "corrective_status", "status_updated", "report_url",
}

// ProviderFieldNames returns the common provider fields in column order.
func ProviderFieldNames() []string {
	out := make([]string, len(providerOrder))
	copy(out, providerOrder)
	return out
}

// InspectionFieldNames returns the common inspection fields in column order.
func InspectionFieldNames() []string {
	out := make([]string, len(inspectionOrder))
	copy(out, inspectionOrder)
	return out
}

// Map flattens the inspection into a serializable mapping. Extension
// fields sit beside the common ones under their namespaced keys.
func (r *InspectionRecord) Map() map[string]any {
	out := make(map[string]any, len(inspectionOrder)+len(r.Extensions))
	for _, name := range inspectionOrder {
		v, _ := r.Get(name)
		out[name] = v.Interface()
	}
	for k, v := range r.Extensions {
		out[k] = v.Interface()
	}
	return out
}

// Map flattens the record into a serializable mapping. Every common field
// is present; absent scalars are "" and absent lists are empty.
func (r *ProviderRecord) Map() map[string]any {
	out := make(map[string]any, len(providerOrder)+len(r.Extensions)+1)
	for _, name := range providerOrder {
		v, _ := r.Get(name)
		out[name] = v.Interface()
	}
	for k, v := range r.Extensions {
		out[k] = v.Interface()
	}
	inspections := make([]map[string]any, 0, len(r.Inspections))
	for i := range r.Inspections {
		inspections = append(inspections, r.Inspections[i].Map())
	}
	out["inspections"] = inspections
	return out
}

// ExtensionKeys returns the record's extension keys in sorted order.
func (r *ProviderRecord) ExtensionKeys() []string {
	keys := make([]string, 0, len(r.Extensions))
	for k := range r.Extensions {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// MarshalJSON encodes the flattened mapping.
func (r ProviderRecord) MarshalJSON() ([]byte, error) {
	return json.Marshal(r.Map())
}

// UnmarshalJSON decodes a flattened mapping produced by MarshalJSON.
func (r *ProviderRecord) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*r = ProviderRecord{}
	for k, msg := range raw {
		if k == "inspections" {
			if err := json.Unmarshal(msg, &r.Inspections); err != nil {
				return err
			}
			continue
		}
		var v Value
		if err := json.Unmarshal(msg, &v); err != nil {
			return err
		}
		if !IsProviderStructField(k) && v.IsAbsent() {
			continue
		}
		r.Set(k, v)
	}
	return nil
}

// MarshalJSON encodes the flattened mapping.
func (r InspectionRecord) MarshalJSON() ([]byte, error) {
	return json.Marshal(r.Map())
}

// UnmarshalJSON decodes a flattened mapping produced by MarshalJSON.
func (r *InspectionRecord) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*r = InspectionRecord{}
	for k, msg := range raw {
		var v Value
		if err := json.Unmarshal(msg, &v); err != nil {
			return err
		}
		if !IsInspectionStructField(k) && v.IsAbsent() {
			continue
		}
		r.Set(k, v)
	}
	return nil
}
