package util

import (
	"fmt"
	"strings"

	"github.com/fogleman/ease"
	"github.com/lucasb-eyer/go-colorful"
)

// Easing maps linear progress in [0, 1] to eased progress.
type Easing func(t float64) float64

var easings = map[string]Easing{
	"linear":     ease.Linear,
	"inquad":     ease.InQuad,
	"outquad":    ease.OutQuad,
	"inoutquad":  ease.InOutQuad,
	"incubic":    ease.InCubic,
	"outcubic":   ease.OutCubic,
	"inoutcubic": ease.InOutCubic,
	"insine":     ease.InSine,
	"outsine":    ease.OutSine,
	"inoutsine":  ease.InOutSine,
}

func LookupEasing(name string) (Easing, error) {
	e, ok := easings[strings.ToLower(name)]
	if !ok {
		return nil, fmt.Errorf("unknown easing %q", name)
	}
	return e, nil
}

// GenerateLut samples an easing at length evenly spaced steps ending at 1.
func GenerateLut(length int, e Easing) []float64 {
	if length <= 0 {
		return nil
	}
	lut := make([]float64, length)
	for i := 0; i < length; i++ {
		lut[i] = e(float64(i+1) / float64(length))
	}
	lut[length-1] = 1
	return lut
}

// NormaliseColour parses a hex colour and returns it in canonical #rrggbb form.
func NormaliseColour(hex string) (string, error) {
	c, err := colorful.Hex(hex)
	if err != nil {
		return "", fmt.Errorf("invalid colour %q: %w", hex, err)
	}
	return c.Clamped().Hex(), nil
}
