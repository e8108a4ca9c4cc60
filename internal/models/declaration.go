package models

import (
	"encoding/base64"
	"time"
)

// InputKind tells the dispatcher which recognition call a PendingInput needs
type InputKind string

const (
	InputImage InputKind = "image"
	InputText  InputKind = "text"
)

// Preview is a display-ready image (JPEG or PNG)
type Preview struct {
	MIMEType string `json:"mime_type"`
	Data     []byte `json:"data"`
}

// DataURL renders the preview as a data: URL suitable for an <img> tag
func (p *Preview) DataURL() string {
	if p == nil || len(p.Data) == 0 {
		return ""
	}
	return "data:" + p.MIMEType + ";base64," + base64.StdEncoding.EncodeToString(p.Data)
}

// PendingInput is a normalized capture waiting to be recognized.
// Payload is set for InputImage, Query for InputText.
type PendingInput struct {
	Kind     InputKind `json:"kind"`
	Payload  []byte    `json:"-"`
	MIMEType string    `json:"mime_type,omitempty"`
	Query    string    `json:"query,omitempty"`
	Preview  *Preview  `json:"preview,omitempty"`
}

// ProductInfo is what the recognition service extracts from an image or query
type ProductInfo struct {
	Brand       string `json:"brand"`
	Name        string `json:"name"`
	Ingredients string `json:"ingredients"`
	Weight      string `json:"weight"` // free text, e.g. "200g" or "330ml"
	Quantity    int    `json:"quantity"`
}

// Completeness describes how much of a ScanDraft recognition filled in
type Completeness string

const (
	DraftComplete Completeness = "complete"
	DraftPartial  Completeness = "partial"
	DraftBlank    Completeness = "blank"
)

// ScanDraft is an unconfirmed recognition outcome awaiting user edits
type ScanDraft struct {
	Brand        string       `json:"brand"`
	Name         string       `json:"name"`
	Ingredients  string       `json:"ingredients"`
	Weight       string       `json:"weight"`
	Quantity     int          `json:"quantity"`
	Preview      *Preview     `json:"preview,omitempty"`
	Completeness Completeness `json:"completeness"`
	// FailureReason is set on partial drafts produced by a failed recognition
	FailureReason string `json:"failure_reason,omitempty"`
}

// DeclaredItem is a committed entry of the declaration list
type DeclaredItem struct {
	ID          string    `json:"id"`
	Brand       string    `json:"brand"`
	Name        string    `json:"name"`
	Ingredients string    `json:"ingredients"`
	Weight      string    `json:"weight"`
	Quantity    int       `json:"quantity"`
	Preview     *Preview  `json:"preview,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// ItemFields are the mutable fields of a DeclaredItem
type ItemFields struct {
	Brand       string   `json:"brand"`
	Name        string   `json:"name"`
	Ingredients string   `json:"ingredients"`
	Weight      string   `json:"weight"`
	Quantity    int      `json:"quantity"`
	Preview     *Preview `json:"preview,omitempty"`
}

// Fields returns the mutable fields of the item
func (d DeclaredItem) Fields() ItemFields {
	return ItemFields{
		Brand:       d.Brand,
		Name:        d.Name,
		Ingredients: d.Ingredients,
		Weight:      d.Weight,
		Quantity:    d.Quantity,
		Preview:     d.Preview,
	}
}

// WithFields returns a copy of the item with all mutable fields replaced
func (d DeclaredItem) WithFields(f ItemFields) DeclaredItem {
	d.Brand = f.Brand
	d.Name = f.Name
	d.Ingredients = f.Ingredients
	d.Weight = f.Weight
	d.Quantity = f.Quantity
	d.Preview = f.Preview
	return d
}
