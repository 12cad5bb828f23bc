package intake

import (
	"strings"

	"github.com/gabriel-vasile/mimetype"
)

// DetectMIME sniffs the content type of an upload. It is recorded on the
// submission only; the extension allow-list decides acceptance.
func DetectMIME(payload []byte) string {
	if len(payload) == 0 {
		return ""
	}
	detected := mimetype.Detect(payload).String()
	if idx := strings.Index(detected, ";"); idx >= 0 {
		detected = detected[:idx]
	}
	return strings.ToLower(strings.TrimSpace(detected))
}
