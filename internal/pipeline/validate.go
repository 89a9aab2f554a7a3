package pipeline

import (
	"fmt"

	"github.com/sells-group/provider-cli/internal/model"
	"github.com/sells-group/provider-cli/internal/normalize"
)

func checkRequired(state, providerURL string) error {
	switch {
	case state == "":
		return &ValidationError{State: state, URL: providerURL, Field: "source_state", Reason: "required"}
	case !model.IsSupportedState(state):
		return &ValidationError{State: state, URL: providerURL, Field: "source_state",
			Reason: fmt.Sprintf("unsupported state %q", state)}
	case providerURL == "":
		return &ValidationError{State: state, URL: providerURL, Field: "provider_url", Reason: "required"}
	case !normalize.IsAbsoluteURL(providerURL):
		return &ValidationError{State: state, URL: providerURL, Field: "provider_url",
			Reason: "not an absolute http(s) URL"}
	}
	return nil
}

// Validate is the final gate before a record is emitted. It checks the
// required identity fields and rejects records that carry nothing beyond
// them.
func Validate(rec *model.ProviderRecord) error {
	if rec == nil {
		return &ValidationError{Field: "record", Reason: "nil record"}
	}
	if err := checkRequired(rec.SourceState, rec.ProviderURL); err != nil {
		return err
	}
	if !hasContent(rec) {
		return &ValidationError{State: rec.SourceState, URL: rec.ProviderURL, Field: "record",
			Reason: "no fields beyond source_state and provider_url"}
	}
	return nil
}

func hasContent(rec *model.ProviderRecord) bool {
	if len(rec.Inspections) > 0 {
		return true
	}
	for _, name := range model.ProviderFieldNames() {
		if name == "source_state" || name == "provider_url" {
			continue
		}
		if _, ok := rec.Get(name); ok {
			return true
		}
	}
	for _, v := range rec.Extensions {
		if !v.IsAbsent() {
			return true
		}
	}
	return false
}
