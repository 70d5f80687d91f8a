package charset

import (
	"fmt"

	"github.com/gogs/chardet"
)

// minConfidence is the chardet score below which Detect falls back to UTF-8.
const minConfidence = 30

// Detect guesses the charset of sample and returns a name Lookup accepts.
// Low-confidence or unmappable guesses fall back to UTF-8.
func Detect(sample []byte) (string, error) {
	if len(sample) == 0 {
		return UTF8, nil
	}

	result, err := chardet.NewTextDetector().DetectBest(sample)
	if err != nil {
		if err == chardet.NotDetectedError {
			return UTF8, nil
		}
		return "", fmt.Errorf("detect charset: %w", err)
	}

	if result.Confidence < minConfidence {
		return UTF8, nil
	}

	_, canonical, err := Lookup(result.Charset)
	if err != nil {
		return UTF8, nil
	}
	return canonical, nil
}
