// Package language maps farmer-facing language choices to wire codes.
//
// The speech-recognition subsystem and the text/translation subsystem do
// not share a code space: speech wants a BCP-47 locale ("kn-IN"), text
// wants a bare ISO 639-1 code ("kn"). Languages the speech subsystem does
// not support borrow a sibling language's speech locale while keeping
// their own text code.
package language

// Selection is one farmer-facing language and its two wire codes.
type Selection struct {
	ID          string // UI identifier, e.g. "kannada"
	DisplayName string // native-script name shown to the farmer
	SpeechCode  string // code for the speech-recognition subsystem
	TextCode    string // code for the text/translation subsystem
}

// DefaultID is the selection used when the configured id is unknown.
const DefaultID = "kannada"

var selections = []Selection{
	{ID: "english", DisplayName: "English", SpeechCode: "en-IN", TextCode: "en"},
	{ID: "hindi", DisplayName: "हिन्दी", SpeechCode: "hi-IN", TextCode: "hi"},
	{ID: "kannada", DisplayName: "ಕನ್ನಡ", SpeechCode: "kn-IN", TextCode: "kn"},
	{ID: "tamil", DisplayName: "தமிழ்", SpeechCode: "ta-IN", TextCode: "ta"},
	{ID: "telugu", DisplayName: "తెలుగు", SpeechCode: "te-IN", TextCode: "te"},
	{ID: "marathi", DisplayName: "मराठी", SpeechCode: "mr-IN", TextCode: "mr"},
	// No dedicated speech locale; nearest supported sibling carries the audio.
	{ID: "tulu", DisplayName: "ತುಳು", SpeechCode: "kn-IN", TextCode: "tcy"},
	{ID: "konkani", DisplayName: "कोंकणी", SpeechCode: "hi-IN", TextCode: "kok"},
}

var byID = func() map[string]Selection {
	m := make(map[string]Selection, len(selections))
	for _, s := range selections {
		m[s.ID] = s
	}
	return m
}()

// Resolve returns the selection for the given UI language id. Unknown ids
// resolve to the default selection so a turn is never dispatched with an
// empty code.
func Resolve(id string) Selection {
	if s, ok := byID[id]; ok {
		return s
	}
	return byID[DefaultID]
}

// Known reports whether id names a supported selection.
func Known(id string) bool {
	_, ok := byID[id]
	return ok
}

// All returns the supported selections in display order.
func All() []Selection {
	out := make([]Selection, len(selections))
	copy(out, selections)
	return out
}
