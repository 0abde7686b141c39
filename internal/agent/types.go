// Package agent provides the HTTP client for the remote agent platform.
package agent

import (
	"errors"
)

// Common errors
var (
	ErrRequestFailed     = errors.New("agent request failed")
	ErrMalformedResponse = errors.New("malformed agent response")
)

// TextRequest is one typed-text turn.
type TextRequest struct {
	UserID    string `json:"user_id"`
	SessionID string `json:"session_id"`
	TextData  string `json:"text_data"`
}

// TextResponse is the agent's reply to a text turn.
type TextResponse struct {
	Success                 bool   `json:"success"`
	OriginalText            string `json:"original_text,omitempty"`
	TranslatedText          string `json:"translated_text,omitempty"`
	DetectedLanguage        string `json:"detected_language,omitempty"`
	AgentResponse           string `json:"agent_response,omitempty"`
	AgentResponseTranslated string `json:"agent_response_translated,omitempty"`
	UserID                  string `json:"user_id"`
	SessionID               string `json:"session_id"`
	Error                   string `json:"error,omitempty"`
}

// VoiceRequest is one recorded-audio turn. AudioData is the base64 clip;
// audio always travels base64 over JSON, never multipart.
type VoiceRequest struct {
	UserID        string `json:"user_id"`
	SessionID     string `json:"session_id"`
	AudioData     string `json:"audio_data"`
	AudioEncoding string `json:"audio_encoding"`
	SampleRate    int    `json:"sample_rate"`
	LanguageCode  string `json:"language_code"`
}

// VoiceResponse is the agent's reply to a voice turn.
type VoiceResponse struct {
	Success                 bool    `json:"success"`
	OriginalTranscript      string  `json:"original_transcript,omitempty"`
	TranslatedText          string  `json:"translated_text,omitempty"`
	DetectedLanguage        string  `json:"detected_language,omitempty"`
	TranscriptionConfidence float64 `json:"transcription_confidence,omitempty"`
	AgentResponse           string  `json:"agent_response,omitempty"`
	AgentResponseTranslated string  `json:"agent_response_translated,omitempty"`
	ResponseAudioData       string  `json:"response_audio_data,omitempty"`
	ResponseAudioEncoding   string  `json:"response_audio_encoding,omitempty"`
	ResponseAudioSizeBytes  int     `json:"response_audio_size_bytes,omitempty"`
	UserID                  string  `json:"user_id"`
	SessionID               string  `json:"session_id"`
	Error                   string  `json:"error,omitempty"`
}

// TranslateRequest is the best-effort translation call.
type TranslateRequest struct {
	Text           string `json:"text"`
	TargetLanguage string `json:"target_language"`
	SourceLanguage string `json:"source_language,omitempty"`
}

// TranslateResponse is the translation reply.
type TranslateResponse struct {
	TranslatedText   string `json:"translated_text"`
	DetectedLanguage string `json:"detected_language,omitempty"`
	SourceLanguage   string `json:"source_language,omitempty"`
	TargetLanguage   string `json:"target_language,omitempty"`
	OriginalText     string `json:"original_text,omitempty"`
}

// DiagnosisResponse is the agent's reply to a crop image upload. The
// structured fields may be absent when the agent answered free-form; the
// raw text then carries JSON, sometimes fenced in a markdown code block,
// which ParseDiagnosis recovers.
type DiagnosisResponse struct {
	Success          bool   `json:"success"`
	ImageURL         string `json:"image_url,omitempty"`
	Description      string `json:"description,omitempty"`
	UploadedFilename string `json:"uploaded_filename,omitempty"`

	CropHealthDiagnosis     *CropHealthDiagnosis     `json:"crop_health_diagnosis,omitempty"`
	TreatmentRecommendation *TreatmentRecommendation `json:"treatment_recommendation,omitempty"`
	PreventionNotes         *PreventionNotes         `json:"prevention_notes,omitempty"`
	Disclaimer              string                   `json:"disclaimer,omitempty"`

	RawAgentResponse string `json:"raw_agent_response,omitempty"`
	Error            string `json:"error,omitempty"`
}

// CropHealthDiagnosis names the crop and what, if anything, is wrong.
type CropHealthDiagnosis struct {
	CropDetected    bool   `json:"crop_detected"`
	DiseaseDetected bool   `json:"disease_detected"`
	DiseaseName     string `json:"disease_name,omitempty"`
	Confidence      string `json:"confidence,omitempty"`
	Severity        string `json:"severity,omitempty"`
	Description     string `json:"description,omitempty"`
}

// TreatmentRecommendation carries the recommended response.
type TreatmentRecommendation struct {
	OrganicTreatment     string `json:"organic_treatment,omitempty"`
	ChemicalTreatment    string `json:"chemical_treatment,omitempty"`
	ApplicationFrequency string `json:"application_frequency,omitempty"`
	ImmediateAction      string `json:"immediate_action,omitempty"`
}

// PreventionNotes carries follow-up guidance beyond treatment.
type PreventionNotes struct {
	PreventiveMeasures    string `json:"preventive_measures,omitempty"`
	DifferentialDiagnosis string `json:"differential_diagnosis,omitempty"`
}

// Diagnosis is the structured portion of a diagnosis reply.
type Diagnosis struct {
	CropHealthDiagnosis     *CropHealthDiagnosis     `json:"crop_health_diagnosis,omitempty"`
	TreatmentRecommendation *TreatmentRecommendation `json:"treatment_recommendation,omitempty"`
	PreventionNotes         *PreventionNotes         `json:"prevention_notes,omitempty"`
	Disclaimer              string                   `json:"disclaimer,omitempty"`
}

// DiagnosisResult is the tagged outcome of a diagnosis turn: either a
// structured Diagnosis, or the raw text with a parse error the UI can
// surface as a "could not interpret" indicator. Never both.
type DiagnosisResult struct {
	Diagnosis *Diagnosis
	RawText   string
	ParseErr  error
}

// Parsed reports whether the structured diagnosis is available.
func (r DiagnosisResult) Parsed() bool {
	return r.Diagnosis != nil && r.ParseErr == nil
}
