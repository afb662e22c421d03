// Formatters for Signal message output.
//
// Signal doesn't render markdown or embeds, so everything is clean
// plain text. Mana costs stay in Scryfall's {X} notation.
//
// Each formatter returns the message text and the Scryfall image URL to
// attach, or "" if the view has no image.

package bot

import (
	"fmt"
	"sort"
	"strings"

	"github.com/jimsug/mtg-signal-bot/internal/parser"
	"github.com/jimsug/mtg-signal-bot/internal/scryfall"
)

// Format renders a card for the requested view mode. The rulings slice
// is only consulted for ViewRulings.
func Format(card *scryfall.Card, rulings []scryfall.Ruling, mode parser.ViewMode) (string, string) {
	switch mode {
	case parser.ViewImage:
		return formatImage(card)
	case parser.ViewRulings:
		return formatRulings(card, rulings)
	case parser.ViewLegalities:
		return formatLegalities(card)
	case parser.ViewPrices:
		return formatPrices(card)
	default:
		return formatDefault(card)
	}
}

// formatDefault renders name, mana cost, type, oracle text, set info and
// a Scryfall link, with a thumbnail image.
func formatDefault(card *scryfall.Card) (string, string) {
	header := strings.TrimSpace(card.Name + " " + card.ManaCost)

	lines := []string{
		header,
		typeAndStats(card),
		"",
		oracleText(card),
		"",
		fmt.Sprintf("%s (%s) - %s", card.SetName, strings.ToUpper(card.SetCode), capitalize(card.Rarity)),
		card.ScryfallURI,
	}
	return strings.Join(lines, "\n"), imageURL(card, "small")
}

// formatImage renders just the card name with a full-size image.
func formatImage(card *scryfall.Card) (string, string) {
	return card.Name, imageURL(card, "normal")
}

// formatRulings renders dated Oracle rulings.
func formatRulings(card *scryfall.Card, rulings []scryfall.Ruling) (string, string) {
	if len(rulings) == 0 {
		return card.Name + "\nNo rulings available.", ""
	}

	lines := []string{fmt.Sprintf("Rulings for %s:", card.Name), ""}
	for _, r := range rulings {
		lines = append(lines, fmt.Sprintf("[%s] %s", r.PublishedAt, strings.TrimSpace(r.Comment)), "")
	}
	return strings.TrimSpace(strings.Join(lines, "\n")), ""
}

// formatLegalities renders a legality table grouped by status.
func formatLegalities(card *scryfall.Card) (string, string) {
	if len(card.Legalities) == 0 {
		return card.Name + "\nNo legality data available.", ""
	}

	groups := map[string][]string{}
	for format, status := range card.Legalities {
		label, ok := legalityLabels[status]
		if !ok {
			continue
		}
		groups[label] = append(groups[label], titleWords(strings.ReplaceAll(format, "_", " ")))
	}

	lines := []string{"Legality: " + card.Name, ""}
	for _, label := range legalityOrder {
		formats := groups[label]
		if len(formats) == 0 {
			continue
		}
		sort.Strings(formats)
		lines = append(lines, fmt.Sprintf("%s: %s", label, strings.Join(formats, ", ")))
	}
	return strings.Join(lines, "\n"), ""
}

// formatPrices renders the price table for one printing.
func formatPrices(card *scryfall.Card) (string, string) {
	p := card.Prices
	lines := []string{
		fmt.Sprintf("Prices: %s (%s %s)", card.Name, card.SetName, strings.ToUpper(card.SetCode)),
		"",
		"USD:      " + price(p.USD, "$"),
		"USD Foil: " + price(p.USDFoil, "$"),
		"EUR:      " + price(p.EUR, "€"),
		"TIX:      " + price(p.TIX, ""),
		"",
		card.ScryfallURI,
	}
	return strings.Join(lines, "\n"), ""
}

var legalityLabels = map[string]string{
	"legal":      "Legal",
	"restricted": "Restricted",
	"banned":     "Banned",
	"not_legal":  "Not legal",
}

var legalityOrder = []string{"Legal", "Restricted", "Banned", "Not legal"}

// typeAndStats returns the type line plus P/T, loyalty or defense.
func typeAndStats(card *scryfall.Card) string {
	line := card.TypeLine
	switch {
	case card.Power != "" && card.Toughness != "":
		line += fmt.Sprintf(" (%s/%s)", card.Power, card.Toughness)
	case card.Loyalty != "":
		line += fmt.Sprintf(" [Loyalty: %s]", card.Loyalty)
	case card.Defense != "":
		line += fmt.Sprintf(" [Defense: %s]", card.Defense)
	}
	return line
}

// oracleText returns the oracle text; for multi-faced cards both faces
// are labelled and joined with //.
func oracleText(card *scryfall.Card) string {
	if len(card.CardFaces) > 0 {
		var parts []string
		for _, face := range card.CardFaces {
			text := strings.TrimSpace(face.OracleText)
			if text != "" {
				parts = append(parts, fmt.Sprintf("[%s]\n%s", face.Name, text))
			}
		}
		if len(parts) > 0 {
			return strings.Join(parts, "\n//\n")
		}
	}
	return strings.TrimSpace(card.OracleText)
}

// imageURL picks an image for the card, falling back to the first face
// for double-faced cards. size: small, normal, large, png.
func imageURL(card *scryfall.Card, size string) string {
	images := card.ImageURIs
	if images == nil && len(card.CardFaces) > 0 {
		images = card.CardFaces[0].ImageURIs
	}
	if images == nil {
		return ""
	}
	switch size {
	case "small":
		return images.Small
	case "normal":
		return images.Normal
	case "large":
		return images.Large
	case "png":
		return images.PNG
	default:
		return ""
	}
}

// price formats a nullable price with its currency symbol.
func price(val *string, symbol string) string {
	if val == nil || *val == "" {
		return "N/A"
	}
	return symbol + *val
}

// capitalize uppercases the first letter ("mythic" -> "Mythic").
func capitalize(s string) string {
	if s == "" {
		return ""
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

// titleWords capitalizes each space-separated word.
func titleWords(s string) string {
	words := strings.Fields(s)
	for i, w := range words {
		words[i] = capitalize(w)
	}
	return strings.Join(words, " ")
}
