package scryfall

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Card represents a Magic card from Scryfall. Only the fields the bot
// renders or keys on are declared; the raw payload is cached verbatim,
// so anything Scryfall adds later survives a round trip through the
// cache untouched.
type Card struct {
	// Raw is the verbatim response body the card was decoded from.
	// The cache stores this, not a re-marshal, so fields this struct
	// doesn't declare are never lost.
	Raw json.RawMessage `json:"-"`

	ID          string `json:"id"`
	OracleID    string `json:"oracle_id,omitempty"`
	Name        string `json:"name"`
	Lang        string `json:"lang,omitempty"`
	ScryfallURI string `json:"scryfall_uri"`
	Layout      string `json:"layout,omitempty"`

	ManaCost   string  `json:"mana_cost,omitempty"`
	CMC        float64 `json:"cmc,omitempty"`
	TypeLine   string  `json:"type_line"`
	OracleText string  `json:"oracle_text,omitempty"`

	Power     string `json:"power,omitempty"`
	Toughness string `json:"toughness,omitempty"`
	Loyalty   string `json:"loyalty,omitempty"`
	Defense   string `json:"defense,omitempty"`

	SetCode         string `json:"set"`
	SetName         string `json:"set_name"`
	CollectorNumber string `json:"collector_number,omitempty"`
	Rarity          string `json:"rarity,omitempty"`

	ImageURIs *ImageURIs `json:"image_uris,omitempty"`

	// Card faces (for DFCs, MDFCs, split cards)
	CardFaces []CardFace `json:"card_faces,omitempty"`

	// Legalities is a format -> status map ("legal", "not_legal",
	// "restricted", "banned").
	Legalities map[string]string `json:"legalities,omitempty"`

	Prices Prices `json:"prices,omitempty"`
}

// CardFace represents one face of a multi-faced card.
type CardFace struct {
	Name       string     `json:"name"`
	ManaCost   string     `json:"mana_cost,omitempty"`
	TypeLine   string     `json:"type_line,omitempty"`
	OracleText string     `json:"oracle_text,omitempty"`
	Power      string     `json:"power,omitempty"`
	Toughness  string     `json:"toughness,omitempty"`
	Loyalty    string     `json:"loyalty,omitempty"`
	ImageURIs  *ImageURIs `json:"image_uris,omitempty"`
}

// ImageURIs contains URLs for card images in various sizes.
type ImageURIs struct {
	Small      string `json:"small,omitempty"`
	Normal     string `json:"normal,omitempty"`
	Large      string `json:"large,omitempty"`
	PNG        string `json:"png,omitempty"`
	ArtCrop    string `json:"art_crop,omitempty"`
	BorderCrop string `json:"border_crop,omitempty"`
}

// Prices represents the prices of a card in various currencies.
// Scryfall sends null for unavailable prices, hence the pointers.
type Prices struct {
	USD       *string `json:"usd,omitempty"`
	USDFoil   *string `json:"usd_foil,omitempty"`
	USDEtched *string `json:"usd_etched,omitempty"`
	EUR       *string `json:"eur,omitempty"`
	EURFoil   *string `json:"eur_foil,omitempty"`
	TIX       *string `json:"tix,omitempty"`
}

// Ruling is one Oracle ruling for a card.
type Ruling struct {
	Source      string `json:"source,omitempty"`
	PublishedAt string `json:"published_at"`
	Comment     string `json:"comment"`
}

// RulingList is the list envelope Scryfall wraps rulings in.
type RulingList struct {
	Object  string   `json:"object"`
	HasMore bool     `json:"has_more"`
	Data    []Ruling `json:"data"`
}

// APIError represents an error response from the Scryfall API.
type APIError struct {
	Object   string   `json:"object"`
	Code     string   `json:"code"`
	Status   int      `json:"status"`
	Details  string   `json:"details"`
	Warnings []string `json:"warnings,omitempty"`
}

// Error implements the error interface for APIError.
func (e *APIError) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("Scryfall API error (HTTP %d): %s", e.Status, e.Details)
	}
	return fmt.Sprintf("Scryfall API error (HTTP %d): %s", e.Status, e.Code)
}

// NotFoundError represents a definitive "no such card" response.
type NotFoundError struct {
	URL     string
	Details string
}

// Error implements the error interface for NotFoundError.
func (e *NotFoundError) Error() string {
	if e.Details != "" {
		return e.Details
	}
	return fmt.Sprintf("resource not found: %s", e.URL)
}

// IsNotFound returns true if the error is (or wraps) a NotFoundError.
func IsNotFound(err error) bool {
	var nf *NotFoundError
	return errors.As(err, &nf)
}
