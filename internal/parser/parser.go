// Package parser extracts card references from chat message text.
//
// Two syntaxes are supported, mirroring the Scryfall Discord/Slack bots:
//
//	[[Card Name]]           Default: oracle text + mana cost + thumbnail
//	[[!Card Name]]          Full card image
//	[[?Card Name]]          Rulings
//	[[#Card Name]]          Format legalities
//	[[$Card Name]]          Prices
//	[[Card Name|SET]]       Specific set printing
//	[[Card Name|SET|NUM]]   Specific set + collector number
//
// A message whose entire trimmed body starts with "." is treated as a
// single mobile-friendly shorthand lookup (".Bolt", ".!Bolt", ".Jace|WWK").
package parser

import (
	"regexp"
	"strings"
)

// ViewMode selects which facet of card data to render.
type ViewMode int

const (
	ViewDefault ViewMode = iota
	ViewImage
	ViewRulings
	ViewLegalities
	ViewPrices
)

// String returns a human-readable name for the view mode.
func (m ViewMode) String() string {
	switch m {
	case ViewImage:
		return "image"
	case ViewRulings:
		return "rulings"
	case ViewLegalities:
		return "legalities"
	case ViewPrices:
		return "prices"
	default:
		return "default"
	}
}

// CardReference is one parsed lookup request. Values are immutable once
// emitted; SetCode and CollectorNumber keep the case the user typed
// (comparison downstream is case-insensitive).
type CardReference struct {
	RawName         string
	ViewMode        ViewMode
	SetCode         string // empty when absent
	CollectorNumber string // empty when absent; only set when SetCode is set
}

// bracketPattern matches non-overlapping [[...]] spans. Nested or
// unterminated brackets never match, so malformed input is skipped
// rather than erroring.
var bracketPattern = regexp.MustCompile(`\[\[([^\[\]]+?)\]\]`)

// sigils maps a leading flag character to its view mode.
var sigils = map[byte]ViewMode{
	'!': ViewImage,
	'?': ViewRulings,
	'#': ViewLegalities,
	'$': ViewPrices,
}

// reservedCommands are messages handled elsewhere; the dot shorthand
// must not swallow them.
var reservedCommands = map[string]bool{
	".help": true,
}

// Parse extracts card references from a message body, in order of
// appearance. Bracket spans and the dot shorthand are mutually
// exclusive: if the message contains any bracket span, the shorthand
// is not evaluated.
func Parse(text string) []CardReference {
	matches := bracketPattern.FindAllStringSubmatch(text, -1)
	if len(matches) > 0 {
		refs := make([]CardReference, 0, len(matches))
		for _, m := range matches {
			if ref, ok := parseOne(m[1], true); ok {
				refs = append(refs, ref)
			}
		}
		return refs
	}

	if raw, ok := shorthand(text); ok {
		// Shorthand has no collector-number position.
		if ref, ok := parseOne(raw, false); ok {
			return []CardReference{ref}
		}
	}

	return nil
}

// shorthand returns the payload of a dot-prefixed message, or false if
// the message is not shorthand.
func shorthand(text string) (string, bool) {
	trimmed := strings.TrimSpace(text)
	if len(trimmed) < 2 || trimmed[0] != '.' {
		return "", false
	}
	if reservedCommands[strings.ToLower(strings.Fields(trimmed)[0])] {
		return "", false
	}
	return trimmed[1:], true
}

// parseOne parses the inside of a bracket span or a shorthand payload.
// Returns false when the name is empty after trimming.
func parseOne(raw string, allowCollector bool) (CardReference, bool) {
	mode := ViewDefault
	if len(raw) > 0 {
		if m, ok := sigils[raw[0]]; ok {
			mode = m
			raw = raw[1:]
		}
	}

	parts := strings.Split(raw, "|")
	name := strings.TrimSpace(parts[0])
	if name == "" {
		return CardReference{}, false
	}

	ref := CardReference{RawName: name, ViewMode: mode}
	if len(parts) > 1 {
		ref.SetCode = strings.TrimSpace(parts[1])
	}
	if allowCollector && len(parts) > 2 && ref.SetCode != "" {
		// Collector number without a set code is meaningless; parts
		// beyond the third are ignored.
		ref.CollectorNumber = strings.TrimSpace(parts[2])
	}

	return ref, true
}
