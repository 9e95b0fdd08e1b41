package codec

import (
	"errors"
	"strconv"
	"strings"

	"timeronline/backend/internal/model"
)

const legacyMarker = "~"

const (
	FormatCurrent        = "v2"
	FormatLegacy         = "v1-base36"
	FormatCurrentLenient = "v2-lenient"
)

var ErrNotLegacy = errors.New("token is not in the legacy format")

// Format is one generation of the token layout.
type Format struct {
	Name   string
	Decode func(token string) (model.TimerState, error)
}

// Formats lists the known layouts, newest first. The lenient current
// decoder comes last so corrupted links still open as they always did.
func Formats() []Format {
	return []Format{
		{Name: FormatCurrent, Decode: DecodeStrict},
		{Name: FormatLegacy, Decode: DecodeLegacy},
		{Name: FormatCurrentLenient, Decode: func(token string) (model.TimerState, error) {
			state, ok := Decode(token)
			if !ok {
				return model.TimerState{}, ErrMalformedToken
			}
			return state, nil
		}},
	}
}

// DecodeCompat accepts any token a share link may carry, including the
// "#*" fragment prefix and the "v=" query form the redirect page emits. It
// returns the name of the format that matched.
func DecodeCompat(token string) (model.TimerState, string, bool) {
	token = TrimLinkPrefix(token)
	for _, format := range Formats() {
		state, err := format.Decode(token)
		if err == nil {
			return state, format.Name, true
		}
	}
	return model.TimerState{}, "", false
}

// TrimLinkPrefix strips the fragment marker and query key that wrap tokens
// in share links.
func TrimLinkPrefix(token string) string {
	token = strings.TrimSpace(token)
	token = strings.TrimPrefix(token, "#")
	token = strings.TrimPrefix(token, "*")
	token = strings.TrimPrefix(token, "v=")
	return token
}

// EncodeLegacy writes the base-36 layout: a "~" marker, the same six
// fields, and absolute epoch milliseconds.
func EncodeLegacy(state model.TimerState) string {
	return legacyMarker + encodeFields(state, legacyDigits, 0)
}

func DecodeLegacy(token string) (model.TimerState, error) {
	if !strings.HasPrefix(token, legacyMarker) {
		return model.TimerState{}, ErrNotLegacy
	}
	return decodeFields(strings.TrimPrefix(token, legacyMarker), parseLegacyDigits, 0)
}

func legacyDigits(n int64) string {
	if n <= 0 {
		return ""
	}
	return strconv.FormatInt(n, 36)
}

func parseLegacyDigits(s string) (int64, error) {
	if s == "" {
		return 0, nil
	}
	return strconv.ParseInt(s, 36, 64)
}
