package widget

import (
	"strings"

	"github.com/ashureev/ecolite-widget/internal/domain"
	"github.com/ashureev/ecolite-widget/internal/richtext"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/number"
)

var copPrinter = message.NewPrinter(language.MustParse("es-CO"))

// FormatPrice renders a catalog price. Numeric amounts are shown as Colombian
// pesos without decimals; text prices are shown as given.
func FormatPrice(p domain.Price) string {
	if p.HasAmount {
		return "$ " + copPrinter.Sprint(number.Decimal(p.Amount, number.MaxFractionDigits(0)))
	}
	return strings.TrimSpace(p.Text)
}

// RenderCards builds the result block markup. Every catalog value is escaped.
func RenderCards(products []domain.Product) string {
	var b strings.Builder
	b.WriteString(`<div class="prod-inline">`)
	for _, p := range products {
		title := richtext.Escape(p.Title)
		href := "#"
		if strings.TrimSpace(p.URL) != "" {
			href = richtext.NormalizeURL(p.URL)
		}

		b.WriteString(`<div class="prod-item">`)
		if img := strings.TrimSpace(p.Image); img != "" {
			b.WriteString(`<img src="` + richtext.Escape(img) + `" alt="` + title + `"/>`)
		} else {
			b.WriteString(`<div class="prod-img-empty">Sin imagen</div>`)
		}
		b.WriteString(`<div class="prod-body"><h4>` + title + `</h4>`)
		if price := FormatPrice(p.Price); price != "" {
			b.WriteString(`<div class="prod-price">` + richtext.Escape(price) + `</div>`)
		}
		b.WriteString(`<a class="prod-link" href="` + richtext.Escape(href) + `" target="_blank" rel="noopener">Ver producto</a>`)
		b.WriteString(`</div></div>`)
	}
	b.WriteString(`</div>`)
	return b.String()
}
