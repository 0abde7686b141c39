package agent

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const diagnosisJSON = `{
  "crop_health_diagnosis": {
    "crop_detected": true,
    "disease_detected": true,
    "disease_name": "Early Blight",
    "confidence": "85%",
    "severity": "Moderate"
  },
  "treatment_recommendation": {
    "organic_treatment": "Apply neem oil spray",
    "immediate_action": "Remove affected leaves"
  },
  "disclaimer": "AI diagnosis for reference only."
}`

func TestParseDiagnosis_BareJSON(t *testing.T) {
	result := ParseDiagnosis(diagnosisJSON)

	require.True(t, result.Parsed())
	require.NotNil(t, result.Diagnosis.CropHealthDiagnosis)
	assert.Equal(t, "Early Blight", result.Diagnosis.CropHealthDiagnosis.DiseaseName)
	assert.Equal(t, "Apply neem oil spray", result.Diagnosis.TreatmentRecommendation.OrganicTreatment)
	assert.Equal(t, "AI diagnosis for reference only.", result.Diagnosis.Disclaimer)
}

func TestParseDiagnosis_MarkdownFencedJSON(t *testing.T) {
	fenced := "```json\n" + diagnosisJSON + "\n```"

	result := ParseDiagnosis(fenced)

	require.True(t, result.Parsed())
	assert.Equal(t, "Early Blight", result.Diagnosis.CropHealthDiagnosis.DiseaseName)
}

func TestParseDiagnosis_FenceWithoutLanguageTag(t *testing.T) {
	fenced := "```\n" + diagnosisJSON + "\n```"

	result := ParseDiagnosis(fenced)

	require.True(t, result.Parsed())
}

func TestParseDiagnosis_FreeFormText(t *testing.T) {
	raw := "The plant looks healthy to me, no visible disease."

	result := ParseDiagnosis(raw)

	assert.False(t, result.Parsed())
	assert.Nil(t, result.Diagnosis)
	assert.Equal(t, raw, result.RawText)
	require.ErrorIs(t, result.ParseErr, ErrMalformedResponse)
}

func TestParseDiagnosis_EmptyBody(t *testing.T) {
	result := ParseDiagnosis("   ")

	assert.False(t, result.Parsed())
	require.ErrorIs(t, result.ParseErr, ErrMalformedResponse)
}

func TestParseDiagnosis_JSONWithoutDiagnosisSections(t *testing.T) {
	result := ParseDiagnosis(`{"note": "not a diagnosis"}`)

	assert.False(t, result.Parsed())
	require.ErrorIs(t, result.ParseErr, ErrMalformedResponse)
}
