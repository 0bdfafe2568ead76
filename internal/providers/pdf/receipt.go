package pdf

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/johnfercher/maroto/v2"
	"github.com/johnfercher/maroto/v2/pkg/components/col"
	"github.com/johnfercher/maroto/v2/pkg/components/line"
	"github.com/johnfercher/maroto/v2/pkg/components/text"
	"github.com/johnfercher/maroto/v2/pkg/config"
	"github.com/johnfercher/maroto/v2/pkg/consts/align"
	"github.com/johnfercher/maroto/v2/pkg/consts/fontstyle"
	"github.com/johnfercher/maroto/v2/pkg/core"
	"github.com/johnfercher/maroto/v2/pkg/props"
	catalogdomain "github.com/smallbiznis/hireboard/internal/catalog/domain"
	purchasedomain "github.com/smallbiznis/hireboard/internal/purchase/domain"
)

const dateLayout = "Jan 2, 2006"

var ErrReceiptUnavailable = errors.New("receipt_unavailable")

type ReceiptData struct {
	Issuer        string
	ReceiptNumber string
	SessionID     string
	DatePaid      string
	ValidUntil    string
	Items         []ReceiptItem
	Total         string
}

type ReceiptItem struct {
	Description string
	Qty         int
}

// ReceiptFromPurchase lays out a completed purchase. The amount is the one
// recorded at checkout, not the current catalog price.
func ReceiptFromPurchase(issuer string, p purchasedomain.Purchase) (ReceiptData, error) {
	if p.Status != purchasedomain.StatusCompleted || p.CompletedAt == nil {
		return ReceiptData{}, ErrReceiptUnavailable
	}

	data := ReceiptData{
		Issuer:        issuer,
		ReceiptNumber: p.ID.String(),
		SessionID:     p.ExternalSessionID,
		DatePaid:      p.CompletedAt.UTC().Format(dateLayout),
		Total:         FormatAmount(p.TotalAmount, p.Currency),
	}
	if p.ExpiresAt != nil {
		data.ValidUntil = p.ExpiresAt.UTC().Format(dateLayout)
	}

	switch p.Kind {
	case purchasedomain.KindAddOn:
		data.Items = append(data.Items, ReceiptItem{Description: "Add-on: " + p.AddOnID, Qty: 1})
	default:
		counts := p.Counts()
		for _, creditType := range catalogdomain.CreditTypes {
			if n := counts[creditType]; n > 0 {
				data.Items = append(data.Items, ReceiptItem{
					Description: creditLabel(creditType) + " credits (" + p.PackID + ")",
					Qty:         n,
				})
			}
		}
	}
	return data, nil
}

// FormatAmount renders minor units, e.g. 4900 usd as "USD 49.00".
func FormatAmount(amount int64, currency string) string {
	sign := ""
	if amount < 0 {
		sign = "-"
		amount = -amount
	}
	return fmt.Sprintf("%s %s%d.%02d", strings.ToUpper(currency), sign, amount/100, amount%100)
}

func creditLabel(creditType catalogdomain.CreditType) string {
	words := strings.Split(string(creditType), "_")
	for i, w := range words {
		if w != "" {
			words[i] = strings.ToUpper(w[:1]) + w[1:]
		}
	}
	return strings.Join(words, " ")
}

type PDFProvider struct {
	now func() time.Time
}

func New() Provider {
	return &PDFProvider{now: time.Now}
}

func (p *PDFProvider) GenerateReceipt(ctx context.Context, receipt ReceiptData) (io.Reader, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	cfg := config.NewBuilder().
		WithPageNumber(props.PageNumber{
			Pattern: "Page {current} of {total}",
			Place:   props.RightBottom,
		}).
		Build()

	m := maroto.New(cfg)

	m.AddRow(20,
		text.NewCol(6, "Receipt", props.Text{
			Size:  20,
			Style: fontstyle.Bold,
			Align: align.Left,
		}),
		text.NewCol(6, receipt.Issuer, props.Text{
			Size:  12,
			Style: fontstyle.Bold,
			Align: align.Right,
		}),
	)

	meta := []core.Component{
		text.New("Receipt number: "+receipt.ReceiptNumber, props.Text{Top: 0}),
		text.New("Date paid: "+receipt.DatePaid, props.Text{Top: 4}),
		text.New("Reference: "+receipt.SessionID, props.Text{Top: 8}),
	}
	if receipt.ValidUntil != "" {
		meta = append(meta, text.New("Credits valid until: "+receipt.ValidUntil, props.Text{Top: 12}))
	}
	m.AddRow(20, col.New(8).Add(meta...), col.New(4))

	m.AddRow(15,
		text.NewCol(12, receipt.Total+" paid on "+receipt.DatePaid, props.Text{
			Size:  14,
			Style: fontstyle.Bold,
			Top:   5,
		}),
	)

	m.AddRow(10,
		text.NewCol(10, "Description", props.Text{Style: fontstyle.Bold, Size: 9}),
		text.NewCol(2, "Qty", props.Text{Style: fontstyle.Bold, Size: 9, Align: align.Right}),
	)
	m.AddRow(2, line.NewCol(12))

	for _, item := range receipt.Items {
		m.AddRow(8,
			text.NewCol(10, item.Description, props.Text{Size: 9}),
			text.NewCol(2, fmt.Sprintf("%d", item.Qty), props.Text{Size: 9, Align: align.Right}),
		)
	}

	m.AddRow(10,
		col.New(8),
		text.NewCol(2, "Total", props.Text{Style: fontstyle.Bold, Size: 9}),
		text.NewCol(2, receipt.Total, props.Text{Style: fontstyle.Bold, Size: 9, Align: align.Right}),
	)
	m.AddRow(10,
		text.NewCol(12, "Generated "+p.now().UTC().Format(time.RFC3339), props.Text{Size: 7, Top: 4}),
	)

	doc, err := m.Generate()
	if err != nil {
		return nil, err
	}

	return bytes.NewReader(doc.GetBytes()), nil
}
