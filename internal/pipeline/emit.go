package pipeline

import (
	"github.com/sells-group/provider-cli/internal/model"
)

// Emit validates rec and flattens it into a serializable mapping: every
// common field is present, extension fields sit at top level under their
// namespaced keys, and inspections is a list of mappings.
func Emit(rec *model.ProviderRecord) (map[string]any, error) {
	if err := Validate(rec); err != nil {
		return nil, err
	}
	return rec.Map(), nil
}
