package agent

import (
	"encoding/json"
	"fmt"
	"strings"
)

// ParseDiagnosis extracts the structured diagnosis from a raw agent
// reply. The agent usually returns bare JSON but sometimes wraps it in a
// markdown code fence; both shapes parse. Anything else yields a result
// carrying the raw text and the parse error, never a partial diagnosis.
func ParseDiagnosis(raw string) DiagnosisResult {
	text := stripCodeFence(raw)
	if strings.TrimSpace(text) == "" {
		return DiagnosisResult{
			RawText:  raw,
			ParseErr: fmt.Errorf("%w: empty diagnosis body", ErrMalformedResponse),
		}
	}

	var d Diagnosis
	dec := json.NewDecoder(strings.NewReader(text))
	if err := dec.Decode(&d); err != nil {
		return DiagnosisResult{
			RawText:  raw,
			ParseErr: fmt.Errorf("%w: %v", ErrMalformedResponse, err),
		}
	}
	if d.CropHealthDiagnosis == nil && d.TreatmentRecommendation == nil && d.PreventionNotes == nil {
		return DiagnosisResult{
			RawText:  raw,
			ParseErr: fmt.Errorf("%w: no diagnosis sections present", ErrMalformedResponse),
		}
	}
	return DiagnosisResult{Diagnosis: &d, RawText: raw}
}

// stripCodeFence removes a surrounding markdown code fence, with or
// without a language tag, leaving other text untouched.
func stripCodeFence(s string) string {
	trimmed := strings.TrimSpace(s)
	if !strings.HasPrefix(trimmed, "```") {
		return trimmed
	}

	trimmed = strings.TrimPrefix(trimmed, "```")
	// Drop the language tag on the opening fence line, e.g. ```json
	if idx := strings.IndexByte(trimmed, '\n'); idx >= 0 {
		first := strings.TrimSpace(trimmed[:idx])
		if first == "" || isFenceTag(first) {
			trimmed = trimmed[idx+1:]
		}
	}
	trimmed = strings.TrimSpace(trimmed)
	trimmed = strings.TrimSuffix(trimmed, "```")
	return strings.TrimSpace(trimmed)
}

func isFenceTag(s string) bool {
	for _, r := range s {
		if (r < 'a' || r > 'z') && (r < 'A' || r > 'Z') && (r < '0' || r > '9') {
			return false
		}
	}
	return true
}
