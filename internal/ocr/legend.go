package ocr

import (
	"context"
	"errors"
	"image"
	"math"
	"strings"
	"unicode"

	"github.com/ironsheep/gauge-reader/internal/gauge"
)

// ErrNoUnit is returned when the legend holds no known unit.
var ErrNoUnit = errors.New("no unit found on dial legend")

// legendScale upscales the legend crop; Tesseract prefers glyphs around
// 30px high and dial legends are often much smaller.
const legendScale = 2.0

// unitTokens maps recognised spellings, lower-cased with spaces removed,
// onto the unit written into readings. Longer spellings are tried first.
var unitTokens = []struct {
	token string
	unit  string
}{
	{"kg/cm2", "kg/cm²"},
	{"kg/cm²", "kg/cm²"},
	{"celsius", "°C"},
	{"fahrenheit", "°F"},
	{"inhg", "inHg"},
	{"mmhg", "mmHg"},
	{"mbar", "mbar"},
	{"kpa", "kPa"},
	{"mpa", "MPa"},
	{"psi", "psi"},
	{"bar", "bar"},
	{"°c", "°C"},
	{"ºc", "°C"},
	{"°f", "°F"},
	{"ºf", "°F"},
	{"degc", "°C"},
	{"degf", "°F"},
	{"%rh", "%RH"},
	{"rpm", "rpm"},
}

// MatchUnit returns the first unit named in text. Each word is matched
// as a whole after trimming punctuation, so "bar" is found in "0-10 bar"
// but not in "barometer".
func MatchUnit(text string) (string, bool) {
	fields := strings.Fields(strings.ToLower(text))

	// Joined neighbours catch legends split by the recogniser, such as
	// "° C" or "deg C".
	candidates := make([]string, 0, 2*len(fields))
	for i, f := range fields {
		candidates = append(candidates, trimToken(f))
		if i+1 < len(fields) {
			candidates = append(candidates, trimToken(f+fields[i+1]))
		}
	}

	for _, ut := range unitTokens {
		for _, c := range candidates {
			if c == ut.token {
				return ut.unit, true
			}
		}
	}
	return "", false
}

func trimToken(s string) string {
	return strings.TrimFunc(s, func(r rune) bool {
		return unicode.IsPunct(r) && r != '%' && r != '/'
	})
}

// LegendRegion returns the part of the dial face where the unit legend is
// usually printed: below the center, inside the tick ring.
func LegendRegion(d gauge.Dial) image.Rectangle {
	half := 0.6 * d.Radius
	return image.Rect(
		int(math.Floor(d.X-half)),
		int(math.Floor(d.Y+0.1*d.Radius)),
		int(math.Ceil(d.X+half)),
		int(math.Ceil(d.Y+0.75*d.Radius)),
	)
}

// LegendReader recognises the unit printed on a dial.
type LegendReader struct {
	Engine Engine
}

// NewLegendReader returns a reader for the given Tesseract language.
func NewLegendReader(language string) *LegendReader {
	return &LegendReader{Engine: Engine{Language: language}}
}

// ReadUnit returns the unit printed in the legend region of dial, or
// ErrNoUnit when the legend text holds no known unit.
func (l *LegendReader) ReadUnit(ctx context.Context, img image.Image, dial gauge.Dial) (string, error) {
	result, err := l.Engine.RecognizeRegion(ctx, img, LegendRegion(dial), legendScale)
	if err != nil {
		return "", err
	}
	if unit, ok := MatchUnit(result.FullText); ok {
		return unit, nil
	}
	return "", ErrNoUnit
}
