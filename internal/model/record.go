package model

// ProviderRecord is one licensed child-care facility as published by a
// single state source at crawl time. Scalar fields use "" as the absent
// value and list fields use nil.
type ProviderRecord struct {
	SourceState string `json:"source_state"`
	ProviderURL string `json:"provider_url"`

	ProviderName  string `json:"provider_name"`
	LicenseNumber string `json:"license_number"`
	LicenseHolder string `json:"license_holder"`

	ProviderType      string `json:"provider_type"`
	Status            string `json:"status"`
	StatusDate        string `json:"status_date"`
	LicenseBeginDate  string `json:"license_begin_date"`
	LicenseExpiration string `json:"license_expiration"`
	SUTQRating        string `json:"sutq_rating"`

	Address         string `json:"address"`
	Latitude        string `json:"latitude"`
	Longitude       string `json:"longitude"`
	Phone           string `json:"phone"`
	Email           string `json:"email"`
	ProviderWebsite string `json:"provider_website"`

	Administrator        string   `json:"administrator"`
	Capacity             string   `json:"capacity"`
	Hours                string   `json:"hours"`
	AgesServed           string   `json:"ages_served"`
	Infant               string   `json:"infant"`
	Toddler              string   `json:"toddler"`
	Preschool            string   `json:"preschool"`
	School               string   `json:"school"`
	County               string   `json:"county"`
	ScholarshipsAccepted string   `json:"scholarships_accepted"`
	Languages            []string `json:"languages"`
	Deficiencies         string   `json:"deficiencies"`

	Inspections []InspectionRecord `json:"inspections"`

	// Extensions holds state-namespaced fields such as "va_inspector".
	Extensions map[string]Value `json:"-"`
}

// InspectionRecord is one inspection or complaint event owned by a
// ProviderRecord. Date keeps the source's own format.
type InspectionRecord struct {
	Date             string `json:"date"`
	Type             string `json:"type"`
	OriginalStatus   string `json:"original_status"`
	CorrectiveStatus string `json:"corrective_status"`
	StatusUpdated    string `json:"status_updated"`
	ReportURL        string `json:"report_url"`

	Extensions map[string]Value `json:"-"`
}

// providerStrings maps common scalar field names to their struct slots.
var providerStrings = map[string]func(*ProviderRecord) *string{
	"source_state":          func(r *ProviderRecord) *string { return &r.SourceState },
	"provider_url":          func(r *ProviderRecord) *string { return &r.ProviderURL },
	"provider_name":         func(r *ProviderRecord) *string { return &r.ProviderName },
	"license_number":        func(r *ProviderRecord) *string { return &r.LicenseNumber },
	"license_holder":        func(r *ProviderRecord) *string { return &r.LicenseHolder },
	"provider_type":         func(r *ProviderRecord) *string { return &r.ProviderType },
	"status":                func(r *ProviderRecord) *string { return &r.Status },
	"status_date":           func(r *ProviderRecord) *string { return &r.StatusDate },
	"license_begin_date":    func(r *ProviderRecord) *string { return &r.LicenseBeginDate },
	"license_expiration":    func(r *ProviderRecord) *string { return &r.LicenseExpiration },
	"sutq_rating":           func(r *ProviderRecord) *string { return &r.SUTQRating },
	"address":               func(r *ProviderRecord) *string { return &r.Address },
	"latitude":              func(r *ProviderRecord) *string { return &r.Latitude },
	"longitude":             func(r *ProviderRecord) *string { return &r.Longitude },
	"phone":                 func(r *ProviderRecord) *string { return &r.Phone },
	"email":                 func(r *ProviderRecord) *string { return &r.Email },
	"provider_website":      func(r *ProviderRecord) *string { return &r.ProviderWebsite },
	"administrator":         func(r *ProviderRecord) *string { return &r.Administrator },
	"capacity":              func(r *ProviderRecord) *string { return &r.Capacity },
	"hours":                 func(r *ProviderRecord) *string { return &r.Hours },
	"ages_served":           func(r *ProviderRecord) *string { return &r.AgesServed },
	"infant":                func(r *ProviderRecord) *string { return &r.Infant },
	"toddler":               func(r *ProviderRecord) *string { return &r.Toddler },
	"preschool":             func(r *ProviderRecord) *string { return &r.Preschool },
	"school":                func(r *ProviderRecord) *string { return &r.School },
	"county":                func(r *ProviderRecord) *string { return &r.County },
	"scholarships_accepted": func(r *ProviderRecord) *string { return &r.ScholarshipsAccepted },
	"deficiencies":          func(r *ProviderRecord) *string { return &r.Deficiencies },
}

var inspectionStrings = map[string]func(*InspectionRecord) *string{
	"date":              func(r *InspectionRecord) *string { return &r.Date },
	"type":              func(r *InspectionRecord) *string { return &r.Type },
	"original_status":   func(r *InspectionRecord) *string { return &r.OriginalStatus },
	"corrective_status": func(r *InspectionRecord) *string { return &r.CorrectiveStatus },
	"status_updated":    func(r *InspectionRecord) *string { return &r.StatusUpdated },
	"report_url":        func(r *InspectionRecord) *string { return &r.ReportURL },
}

// Set stores v under the common field name, or in Extensions when the name
// is not a struct field. Set reports false only for list values aimed at a
// scalar slot, which callers are expected to have coerced already.
func (r *ProviderRecord) Set(name string, v Value) bool {
	if name == "languages" {
		r.Languages = v.Items()
		return true
	}
	if slot, ok := providerStrings[name]; ok {
		if v.IsList() {
			return false
		}
		*slot(r) = v.String()
		return true
	}
	if r.Extensions == nil {
		r.Extensions = make(map[string]Value)
	}
	r.Extensions[name] = v
	return true
}

// Get returns the value stored under name and whether it is present.
func (r *ProviderRecord) Get(name string) (Value, bool) {
	if name == "languages" {
		return List(r.Languages), len(r.Languages) > 0
	}
	if slot, ok := providerStrings[name]; ok {
		s := *slot(r)
		return Text(s), s != ""
	}
	v, ok := r.Extensions[name]
	return v, ok && !v.IsAbsent()
}

// Set stores v under the inspection field name or in Extensions.
func (r *InspectionRecord) Set(name string, v Value) bool {
	if slot, ok := inspectionStrings[name]; ok {
		if v.IsList() {
			return false
		}
		*slot(r) = v.String()
		return true
	}
	if r.Extensions == nil {
		r.Extensions = make(map[string]Value)
	}
	r.Extensions[name] = v
	return true
}

// Get returns the inspection value stored under name and whether it is present.
func (r *InspectionRecord) Get(name string) (Value, bool) {
	if slot, ok := inspectionStrings[name]; ok {
		s := *slot(r)
		return Text(s), s != ""
	}
	v, ok := r.Extensions[name]
	return v, ok && !v.IsAbsent()
}

// IsProviderStructField reports whether name is backed by a ProviderRecord
// struct field rather than the extension map.
func IsProviderStructField(name string) bool {
	if name == "languages" {
		return true
	}
	_, ok := providerStrings[name]
	return ok
}

// IsInspectionStructField reports whether name is backed by an
// InspectionRecord struct field.
func IsInspectionStructField(name string) bool {
	_, ok := inspectionStrings[name]
	return ok
}
