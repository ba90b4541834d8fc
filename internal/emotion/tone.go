package emotion

import "strings"

// Neutral is the fallback result used when classification fails or the
// stage is disabled. The full-confidence neutral fallback is deliberate.
const Neutral = "neutral"

// emotionToTone maps detected emotions to response-tone directives.
var emotionToTone = map[string]string{
	"joy":      "enthusiastic and positive",
	"sadness":  "empathetic and supportive",
	"anger":    "calm and understanding",
	"fear":     "reassuring and gentle",
	"surprise": "informative and clear",
	"love":     "warm and friendly",
	Neutral:    "professional and straightforward",
}

// ToneFor returns the response tone for an emotion label. Unknown labels
// fall back to the neutral tone.
func ToneFor(emotion string) string {
	if tone, ok := emotionToTone[normalizeLabel(emotion)]; ok {
		return tone
	}
	return emotionToTone[Neutral]
}

func normalizeLabel(label string) string {
	return strings.ToLower(strings.TrimSpace(label))
}
