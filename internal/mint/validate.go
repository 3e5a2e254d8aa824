package mint

import (
	"fmt"
	"net/url"
	"strings"
	"unicode/utf8"

	"github.com/Klingon-tech/pumpbox/internal/state"
)

// Field limits.
const (
	MaxDescriptionLen = 280
	MaxSocialLinkLen  = 200
	MaxPreferences    = 8
	MaxPreferenceLen  = 32
	MaxNameLen        = 32
	MinTickerLen      = 2
	MaxTickerLen      = 10
	MaxImageRefLen    = 200
)

// imageSchemes are the accepted image reference schemes.
var imageSchemes = []string{"ipfs://", "ar://", "https://"}

// NormalizeDescription trims the description and checks its length.
func NormalizeDescription(s string) (string, error) {
	s = strings.TrimSpace(s)
	switch {
	case s == "":
		return "", fmt.Errorf("%w: empty", state.ErrInvalidDescription)
	case len(s) > MaxDescriptionLen:
		return "", fmt.Errorf("%w: %d bytes, max %d", state.ErrInvalidDescription, len(s), MaxDescriptionLen)
	case !utf8.ValidString(s):
		return "", fmt.Errorf("%w: not valid UTF-8", state.ErrInvalidDescription)
	}
	return s, nil
}

// NormalizePreferences trims and lower-cases tags and drops duplicates,
// keeping the first occurrence.
func NormalizePreferences(tags []string) ([]string, error) {
	out := make([]string, 0, len(tags))
	seen := make(map[string]struct{}, len(tags))
	for _, tag := range tags {
		tag = strings.ToLower(strings.TrimSpace(tag))
		if tag == "" || len(tag) > MaxPreferenceLen || !utf8.ValidString(tag) {
			return nil, fmt.Errorf("%w: tag %q", state.ErrInvalidPreferences, tag)
		}
		if _, dup := seen[tag]; dup {
			continue
		}
		seen[tag] = struct{}{}
		out = append(out, tag)
	}
	if len(out) > MaxPreferences {
		return nil, fmt.Errorf("%w: %d tags, max %d", state.ErrInvalidPreferences, len(out), MaxPreferences)
	}
	return out, nil
}

// ValidateSocialLink checks that s is an absolute http(s) URL.
func ValidateSocialLink(s string) error {
	if s == "" || len(s) > MaxSocialLinkLen {
		return fmt.Errorf("%w: length %d", state.ErrInvalidSocialLink, len(s))
	}
	u, err := url.Parse(s)
	if err != nil {
		return fmt.Errorf("%w: %v", state.ErrInvalidSocialLink, err)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("%w: must be an absolute http(s) URL", state.ErrInvalidSocialLink)
	}
	return nil
}

// ValidateName accepts ASCII letters, digits and spaces, starting with a
// letter or digit.
func ValidateName(s string) error {
	if s == "" || len(s) > MaxNameLen {
		return fmt.Errorf("%w: length %d", state.ErrInvalidName, len(s))
	}
	if !isAlnum(s[0]) {
		return fmt.Errorf("%w: must start with a letter or digit", state.ErrInvalidName)
	}
	for i := 0; i < len(s); i++ {
		if !isAlnum(s[i]) && s[i] != ' ' {
			return fmt.Errorf("%w: invalid character %q", state.ErrInvalidName, s[i])
		}
	}
	return nil
}

// ValidateTicker accepts 2-10 upper-case ASCII letters and digits.
func ValidateTicker(s string) error {
	if len(s) < MinTickerLen || len(s) > MaxTickerLen {
		return fmt.Errorf("%w: length %d", state.ErrInvalidTicker, len(s))
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		if !(c >= 'A' && c <= 'Z') && !(c >= '0' && c <= '9') {
			return fmt.Errorf("%w: invalid character %q", state.ErrInvalidTicker, c)
		}
	}
	return nil
}

// ValidateImageRef accepts ipfs://, ar:// and https:// references.
func ValidateImageRef(s string) error {
	if s == "" || len(s) > MaxImageRefLen {
		return fmt.Errorf("%w: length %d", state.ErrInvalidImageRef, len(s))
	}
	if strings.ContainsAny(s, " \t\r\n") {
		return fmt.Errorf("%w: contains whitespace", state.ErrInvalidImageRef)
	}
	for _, scheme := range imageSchemes {
		if strings.HasPrefix(s, scheme) && len(s) > len(scheme) {
			return nil
		}
	}
	return fmt.Errorf("%w: unsupported scheme", state.ErrInvalidImageRef)
}

func isAlnum(c byte) bool {
	return (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9')
}
