// ABOUTME: Transcript model produced by audio transcription
// ABOUTME: Free text plus per-segment timestamps, stored as a JSON column
package models

// TranscriptSegment is a timestamped piece of a transcript
type TranscriptSegment struct {
	Start float64 `json:"start"`
	End   float64 `json:"end"`
	Text  string  `json:"text"`
}

// Transcript is the transcription of one audio chunk
type Transcript struct {
	Text     string              `json:"text"`
	Language string              `json:"language,omitempty"`
	Duration float64             `json:"duration,omitempty"`
	Segments []TranscriptSegment `json:"segments,omitempty"`
}

// AsJSON converts the transcript into the generic JSON column form
func (t *Transcript) AsJSON() map[string]interface{} {
	segments := make([]interface{}, len(t.Segments))
	for i, s := range t.Segments {
		segments[i] = map[string]interface{}{
			"start": s.Start,
			"end":   s.End,
			"text":  s.Text,
		}
	}
	return map[string]interface{}{
		"text":     t.Text,
		"language": t.Language,
		"duration": t.Duration,
		"segments": segments,
	}
}
