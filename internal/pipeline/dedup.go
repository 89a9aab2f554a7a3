package pipeline

import (
	"github.com/sells-group/provider-cli/internal/model"
)

// Fingerprint identifies an inspection event within one provider. Two rows
// with equal fingerprints describe the same event even when their report
// links differ.
type Fingerprint struct {
	Date             string
	Type             string
	OriginalStatus   string
	CorrectiveStatus string
}

// FingerprintOf returns the identity of a normalized inspection.
func FingerprintOf(ins *model.InspectionRecord) Fingerprint {
	return Fingerprint{
		Date:             ins.Date,
		Type:             ins.Type,
		OriginalStatus:   ins.OriginalStatus,
		CorrectiveStatus: ins.CorrectiveStatus,
	}
}

// DedupInspections drops inspections whose fingerprint was already seen,
// keeping first occurrences in their original order. The seen set lives only
// for this call.
func DedupInspections(in []model.InspectionRecord) []model.InspectionRecord {
	if len(in) == 0 {
		return nil
	}
	seen := make(map[Fingerprint]struct{}, len(in))
	out := make([]model.InspectionRecord, 0, len(in))
	for i := range in {
		fp := FingerprintOf(&in[i])
		if _, dup := seen[fp]; dup {
			continue
		}
		seen[fp] = struct{}{}
		out = append(out, in[i])
	}
	return out
}
