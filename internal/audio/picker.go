package audio

import (
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"strings"

	"github.com/solenne/livecast/internal/domain"
)

// Audio file extensions the engine will play or rotate through.
var audioExts = map[string]bool{
	".mp3":  true,
	".wav":  true,
	".m4a":  true,
	".aac":  true,
	".flac": true,
	".ogg":  true,
}

// Compile-time interface check.
var _ domain.AssetPicker = (*PrefixPicker)(nil)

// PrefixPicker picks a random numbered variant for a category prefix:
// "尺寸" matches 尺寸1.wav, 尺寸2.mp3, and so on. The bare 尺寸.wav (a
// fixed cue file) is deliberately excluded.
type PrefixPicker struct {
	baseDir string
}

// NewPrefixPicker creates a picker over the given asset directory.
func NewPrefixPicker(baseDir string) *PrefixPicker {
	return &PrefixPicker{baseDir: baseDir}
}

// Pick returns the path of a random <prefix><digits>.<ext> file, or
// domain.ErrNoAsset when none exists.
func (p *PrefixPicker) Pick(prefix string) (string, error) {
	entries, err := os.ReadDir(p.baseDir)
	if err != nil {
		return "", fmt.Errorf("reading asset dir: %w", err)
	}

	var candidates []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		if !strings.HasPrefix(name, prefix) {
			continue
		}
		ext := strings.ToLower(filepath.Ext(name))
		if !audioExts[ext] {
			continue
		}
		// The part between prefix and extension must be all digits.
		middle := strings.TrimSpace(name[len(prefix) : len(name)-len(ext)])
		if middle == "" || !isDigits(middle) {
			continue
		}
		candidates = append(candidates, filepath.Join(p.baseDir, name))
	}

	if len(candidates) == 0 {
		return "", fmt.Errorf("%q: %w", prefix, domain.ErrNoAsset)
	}
	return candidates[rand.Intn(len(candidates))], nil
}

func isDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return len(s) > 0
}
