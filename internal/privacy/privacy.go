// Package privacy implements the privacy gate: it decides whether a
// chunk may be emitted to a request at a given privacy level, and when
// allowed, transforms sensitive patterns (email, phone, card, SSN,
// IPv4, date) at an intensity that scales with the target level.
//
// Detection uses the standard library's regexp rather than a
// third-party PII or secret-scanning library: the examples' one
// scanning dependency (gitleaks) targets credential/secret detection in
// source code, a different problem with a different pattern set, and
// no pack example wires a general PII-masking library.
package privacy

import (
	"crypto/sha256"
	"encoding/hex"
	"regexp"
	"strings"

	"github.com/ragifylabs/ragify/internal/apierrors"
	"github.com/ragifylabs/ragify/internal/model"
)

// Gate is the privacy gate: a pure function of (chunk, target level,
// config) with no per-request state.
type Gate struct{}

// NewGate returns a stateless Gate.
func NewGate() *Gate { return &Gate{} }

// Allow reports whether a chunk produced at sourceLevel may be emitted
// to a request at targetLevel, per the total order public < private <
// enterprise < restricted.
func (g *Gate) Allow(sourceLevel, targetLevel model.PrivacyLevel) bool {
	return sourceLevel <= targetLevel
}

// Apply enforces the access rule and, if allowed, transforms the
// chunk's content and metadata strings at targetLevel's masking
// intensity. It returns apierrors.PrivacyViolationError when the
// chunk's source level exceeds targetLevel.
func (g *Gate) Apply(c model.Chunk, targetLevel model.PrivacyLevel) (model.Chunk, error) {
	if !g.Allow(c.SourceRef.PrivacyLevel, targetLevel) {
		return model.Chunk{}, apierrors.NewPrivacyViolation("privacy_gate.apply", c.SourceRef.PrivacyLevel, targetLevel)
	}

	out := c.Clone()
	out.Content = mask(out.Content, targetLevel)
	if out.Metadata != nil {
		for k, v := range out.Metadata {
			if s, ok := v.(string); ok {
				out.Metadata[k] = mask(s, targetLevel)
			}
		}
	}
	return out, nil
}

type patternKind string

const (
	kindEmail  patternKind = "EMAIL"
	kindPhone  patternKind = "PHONE"
	kindCard   patternKind = "CARD"
	kindSSN    patternKind = "SSN"
	kindIPv4   patternKind = "IPV4"
	kindDate   patternKind = "DATE"
)

type pattern struct {
	kind patternKind
	re   *regexp.Regexp
	// mask renders one match at the given intensity.
	mask func(match string, level model.PrivacyLevel) string
}

var patterns = []pattern{
	{kind: kindEmail, re: regexp.MustCompile(`[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}`), mask: maskEmail},
	{kind: kindCard, re: regexp.MustCompile(`\b(?:\d[ -]?){13,16}\b`), mask: maskCard},
	{kind: kindSSN, re: regexp.MustCompile(`\b\d{3}-\d{2}-\d{4}\b`), mask: maskSSN},
	{kind: kindPhone, re: regexp.MustCompile(`\b\d{3}[-.]\d{3}[-.]\d{4}\b`), mask: maskPhone},
	{kind: kindIPv4, re: regexp.MustCompile(`\b(?:(?:25[0-5]|2[0-4]\d|1?\d?\d)\.){3}(?:25[0-5]|2[0-4]\d|1?\d?\d)\b`), mask: maskIPv4},
	{kind: kindDate, re: regexp.MustCompile(`\b\d{4}-\d{2}-\d{2}\b`), mask: maskDate},
}

// mask scans content for every sensitive pattern and replaces matches
// according to targetLevel's intensity. Card/SSN patterns are matched
// before the looser phone/date patterns so a credit-card-shaped string
// is never double-masked as a phone number.
func mask(content string, level model.PrivacyLevel) string {
	if content == "" {
		return content
	}
	result := content
	for _, p := range patterns {
		result = p.re.ReplaceAllStringFunc(result, func(match string) string {
			return p.mask(match, level)
		})
	}
	return result
}

func hashToken(kind patternKind, match string) string {
	sum := sha256.Sum256([]byte(match))
	return "[" + string(kind) + "_" + hex.EncodeToString(sum[:])[:8] + "]"
}

func maskEmail(match string, level model.PrivacyLevel) string {
	at := strings.IndexByte(match, '@')
	if at < 0 {
		return hashToken(kindEmail, match)
	}
	local, domain := match[:at], match[at+1:]

	switch level {
	case model.PrivacyPublic:
		return hashToken(kindEmail, match)
	case model.PrivacyPrivate:
		return "***@" + domain
	case model.PrivacyEnterprise:
		if len(local) == 0 {
			return "***@" + domain
		}
		return string(local[0]) + "***@" + domain
	default: // restricted: pass-through
		return match
	}
}

func maskPhone(match string, level model.PrivacyLevel) string {
	digits := onlyDigits(match)
	if len(digits) < 10 {
		return hashToken(kindPhone, match)
	}
	area, last4 := digits[:3], digits[len(digits)-4:]

	switch level {
	case model.PrivacyPublic:
		return hashToken(kindPhone, match)
	case model.PrivacyPrivate:
		return area + "-***-****"
	case model.PrivacyEnterprise:
		return area + "-***-" + last4
	default: // restricted
		return match
	}
}

func maskCard(match string, level model.PrivacyLevel) string {
	digits := onlyDigits(match)
	if len(digits) < 13 {
		return match
	}
	last4 := digits[len(digits)-4:]

	switch level {
	case model.PrivacyPublic:
		return hashToken(kindCard, match)
	case model.PrivacyPrivate:
		return "****-****-****-" + last4
	default: // enterprise and restricted: fully tokenized
		return hashToken(kindCard, match)
	}
}

func maskSSN(match string, level model.PrivacyLevel) string {
	switch level {
	case model.PrivacyPublic:
		return hashToken(kindSSN, match)
	case model.PrivacyPrivate:
		digits := onlyDigits(match)
		if len(digits) < 9 {
			return hashToken(kindSSN, match)
		}
		return "***-**-" + digits[5:]
	default: // enterprise and restricted: fully tokenized
		return hashToken(kindSSN, match)
	}
}

func maskIPv4(match string, level model.PrivacyLevel) string {
	switch level {
	case model.PrivacyPublic:
		return hashToken(kindIPv4, match)
	case model.PrivacyPrivate:
		parts := strings.Split(match, ".")
		if len(parts) != 4 {
			return hashToken(kindIPv4, match)
		}
		return parts[0] + ".***.***.***"
	case model.PrivacyEnterprise:
		parts := strings.Split(match, ".")
		if len(parts) != 4 {
			return hashToken(kindIPv4, match)
		}
		return parts[0] + "." + parts[1] + ".***.***"
	default: // restricted
		return match
	}
}

func maskDate(match string, level model.PrivacyLevel) string {
	switch level {
	case model.PrivacyPublic:
		return hashToken(kindDate, match)
	case model.PrivacyPrivate:
		parts := strings.Split(match, "-")
		if len(parts) != 3 {
			return hashToken(kindDate, match)
		}
		return parts[0] + "-**-**"
	default: // enterprise and restricted: pass-through
		return match
	}
}

func onlyDigits(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}
