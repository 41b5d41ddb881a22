package receipt

import (
	"bytes"
	"math"
	"strconv"
	"strings"
	"unicode/utf8"
)

// DefaultFooter is printed when neither the receipt nor the layout
// supplies one.
const DefaultFooter = "Thank you for your purchase!"

// Layout sizes the receipt for the paper stock. The defaults fit 58 mm
// printers: 32 characters of font A across 384 dots.
type Layout struct {
	Columns        int
	QtyWidth       int
	PriceWidth     int
	TotalWidth     int
	PrintWidthDots int
	FeedLines      int
	ThousandsSep   string
	CodePage       string
	Footer         string
}

// DefaultLayout returns the 58 mm layout.
func DefaultLayout() Layout {
	return Layout{
		Columns:        32,
		QtyWidth:       4,
		PriceWidth:     8,
		TotalWidth:     8,
		PrintWidthDots: 384,
		FeedLines:      3,
		ThousandsSep:   ".",
		CodePage:       "cp437",
		Footer:         DefaultFooter,
	}
}

// normalized fills zero fields from DefaultLayout and keeps the item name
// column at least four characters wide.
func (l Layout) normalized() Layout {
	d := DefaultLayout()
	if l.Columns <= 0 {
		l.Columns = d.Columns
	}
	if l.QtyWidth <= 0 {
		l.QtyWidth = d.QtyWidth
	}
	if l.PriceWidth <= 0 {
		l.PriceWidth = d.PriceWidth
	}
	if l.TotalWidth <= 0 {
		l.TotalWidth = d.TotalWidth
	}
	if l.PrintWidthDots <= 0 {
		l.PrintWidthDots = d.PrintWidthDots
	}
	if l.FeedLines < 0 {
		l.FeedLines = 0
	}
	if l.CodePage == "" {
		l.CodePage = d.CodePage
	}
	if l.Columns-(l.QtyWidth+l.PriceWidth+l.TotalWidth) < 4 {
		l.QtyWidth, l.PriceWidth, l.TotalWidth = d.QtyWidth, d.PriceWidth, d.TotalWidth
		if l.Columns < d.Columns {
			l.Columns = d.Columns
		}
	}
	return l
}

func (l Layout) nameWidth() int {
	return l.Columns - l.QtyWidth - l.PriceWidth - l.TotalWidth
}

// Format renders r as ESC/POS bytes. It has no side effects and the same
// input always yields the same bytes. Missing fields print as empty lines
// or zero amounts.
func Format(r Receipt, layout Layout) []byte {
	l := layout.normalized()
	w := &writer{cp: lookupCodePage(l.CodePage)}

	w.cmd(CmdReset)
	w.cmd(CmdFontA)
	w.cmd(CmdLeftMargin0)
	w.cmd(CmdPrintWidth(l.PrintWidthDots))
	w.cmd(CmdCodePage(w.cp.id))

	// Header.
	w.cmd(CmdAlignCenter)
	w.cmd(CmdBoldOn)
	w.line(truncate(r.Store.Name, l.Columns))
	w.cmd(CmdBoldOff)
	w.cmd(CmdAlignLeft)
	w.line(r.Store.Address)
	w.line(r.Store.Phone)
	w.line(divider(l))

	w.line("No: " + r.TransactionID)
	w.line("Date: " + displayTime(r.Timestamp))
	w.line("Payment: " + strings.ToUpper(strings.TrimSpace(r.PaymentMethod)))
	w.line(divider(l))

	// Items.
	w.line(padRight("Item", l.nameWidth()) +
		padLeft("Qty", l.QtyWidth) +
		padLeft("Price", l.PriceWidth) +
		padLeft("Total", l.TotalWidth))
	for _, it := range r.Items {
		w.line(padRight(truncate(it.Name, l.nameWidth()), l.nameWidth()) +
			padLeft(formatQuantity(it.Quantity), l.QtyWidth) +
			padLeft(FormatAmount(it.Price, l.ThousandsSep), l.PriceWidth) +
			padLeft(FormatAmount(it.Subtotal, l.ThousandsSep), l.TotalWidth))
	}
	w.line(divider(l))

	// Totals.
	w.line(row("Subtotal", FormatAmount(r.Subtotal, l.ThousandsSep), l.Columns))
	w.line(row("Tax", FormatAmount(r.Tax, l.ThousandsSep), l.Columns))
	w.cmd(CmdBoldOn)
	w.line(row("TOTAL", FormatAmount(r.Total, l.ThousandsSep), l.Columns))
	w.cmd(CmdBoldOff)
	if r.IsCash() {
		w.line(row("Cash", FormatAmount(deref(r.AmountPaid), l.ThousandsSep), l.Columns))
		w.line(row("Change", FormatAmount(deref(r.Change), l.ThousandsSep), l.Columns))
	}
	w.line(divider(l))

	// Footer.
	footer := strings.TrimSpace(r.Footer)
	if footer == "" {
		footer = l.Footer
	}
	if footer == "" {
		footer = DefaultFooter
	}
	w.cmd(CmdAlignCenter)
	for _, part := range strings.Split(footer, "\n") {
		w.line(part)
	}
	w.cmd(CmdAlignLeft)

	w.cmd(CmdFeed(l.FeedLines))
	w.cmd(CmdCut)
	return w.buf.Bytes()
}

type writer struct {
	buf bytes.Buffer
	cp  codePage
}

func (w *writer) cmd(c []byte) {
	w.buf.Write(c)
}

func (w *writer) line(s string) {
	w.buf.Write(w.cp.encode(s))
	w.buf.WriteByte('\n')
}

func divider(l Layout) string {
	return strings.Repeat("-", l.Columns)
}

// row prints label on the left and value flush right.
func row(label, value string, columns int) string {
	gap := columns - utf8.RuneCountInString(label) - utf8.RuneCountInString(value)
	if gap < 1 {
		gap = 1
	}
	return label + strings.Repeat(" ", gap) + value
}

func truncate(s string, width int) string {
	if utf8.RuneCountInString(s) <= width {
		return s
	}
	return string([]rune(s)[:width])
}

func padRight(s string, width int) string {
	n := utf8.RuneCountInString(s)
	if n >= width {
		return s
	}
	return s + strings.Repeat(" ", width-n)
}

// padLeft right-aligns s. Values wider than the field are kept whole.
func padLeft(s string, width int) string {
	n := utf8.RuneCountInString(s)
	if n >= width {
		return s
	}
	return strings.Repeat(" ", width-n) + s
}

func deref(v *float64) float64 {
	if v == nil {
		return 0
	}
	return *v
}

func formatQuantity(q float64) string {
	if math.IsNaN(q) || math.IsInf(q, 0) {
		return "0"
	}
	return strconv.FormatFloat(q, 'f', -1, 64)
}

// FormatAmount rounds v to an integer and groups thousands with sep, for
// example 1500000 -> "1.500.000". No currency symbol or decimals.
func FormatAmount(v float64, sep string) string {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return "0"
	}
	rounded := math.Round(v)
	neg := rounded < 0
	// FormatFloat keeps magnitudes beyond the int64 range exact.
	digits := strconv.FormatFloat(math.Abs(rounded), 'f', 0, 64)

	var b strings.Builder
	if neg {
		b.WriteByte('-')
	}
	lead := len(digits) % 3
	if lead == 0 {
		lead = 3
	}
	b.WriteString(digits[:lead])
	for i := lead; i < len(digits); i += 3 {
		b.WriteString(sep)
		b.WriteString(digits[i : i+3])
	}
	return b.String()
}
