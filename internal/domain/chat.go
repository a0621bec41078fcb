package domain

import (
	"encoding/json"
	"strconv"
	"strings"
)

// ChatRequest is the body posted to the conversational search endpoint.
type ChatRequest struct {
	SessionID string `json:"session_id"`
	Message   string `json:"message"`
	Page      int    `json:"page"`
}

// ChatReply is the decoded response of the conversational search endpoint.
// Every field is optional on the wire.
type ChatReply struct {
	Content   string    `json:"content,omitempty"`
	Products  []Product `json:"products,omitempty"`
	HasMore   bool      `json:"has_more,omitempty"`
	LastQuery string    `json:"last_query,omitempty"`
}

// Product is one structured search result.
//
// The search service is lenient about key names, so decoding accepts
// title|name, url|link and several image keys, and a price that is either a
// number or a preformatted string.
type Product struct {
	Title string `json:"title"`
	URL   string `json:"url"`
	Image string `json:"image,omitempty"`
	Price Price  `json:"price,omitempty"`
}

type wireProduct struct {
	Title     string          `json:"title"`
	Name      string          `json:"name"`
	URL       string          `json:"url"`
	Link      string          `json:"link"`
	Price     json.RawMessage `json:"price"`
	Image     string          `json:"image"`
	ImgURL    string          `json:"img_url"`
	ImageURL  string          `json:"image_url"`
	Img       string          `json:"img"`
	Thumbnail string          `json:"thumbnail"`
	Thumb     string          `json:"thumb"`
}

// UnmarshalJSON implements json.Unmarshaler.
func (p *Product) UnmarshalJSON(data []byte) error {
	var w wireProduct
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	p.Title = firstNonEmpty(w.Title, w.Name)
	p.URL = firstNonEmpty(w.URL, w.Link)
	p.Image = firstNonEmpty(w.Image, w.ImgURL, w.ImageURL, w.Img, w.Thumbnail, w.Thumb)
	p.Price = Price{}
	if len(w.Price) > 0 {
		if err := p.Price.UnmarshalJSON(w.Price); err != nil {
			return err
		}
	}
	return nil
}

// Price is either a numeric amount or free text supplied by the catalog.
type Price struct {
	Amount    float64
	HasAmount bool
	Text      string
}

// IsZero reports whether no price was supplied.
func (p Price) IsZero() bool {
	return !p.HasAmount && strings.TrimSpace(p.Text) == ""
}

// UnmarshalJSON implements json.Unmarshaler.
func (p *Price) UnmarshalJSON(data []byte) error {
	s := strings.TrimSpace(string(data))
	if s == "" || s == "null" {
		*p = Price{}
		return nil
	}
	if strings.HasPrefix(s, `"`) {
		var text string
		if err := json.Unmarshal(data, &text); err != nil {
			return err
		}
		*p = Price{Text: strings.TrimSpace(text)}
		return nil
	}
	var n float64
	if err := json.Unmarshal(data, &n); err != nil {
		// Booleans, objects and friends carry no usable price.
		*p = Price{}
		return nil //nolint:nilerr // an unusable price is dropped, not fatal
	}
	*p = Price{Amount: n, HasAmount: true}
	return nil
}

// MarshalJSON implements json.Marshaler.
func (p Price) MarshalJSON() ([]byte, error) {
	switch {
	case p.HasAmount:
		return []byte(strconv.FormatFloat(p.Amount, 'f', -1, 64)), nil
	case p.Text != "":
		return json.Marshal(p.Text)
	default:
		return []byte("null"), nil
	}
}

// Lead is the contact submission posted to the lead store.
type Lead struct {
	SessionID  string `json:"session_id"`
	Name       string `json:"name"`
	Email      string `json:"email"`
	Phone      string `json:"phone"`
	Profession string `json:"profession"`
	City       string `json:"city"`
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
