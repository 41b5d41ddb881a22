package receipt

import (
	"bytes"
	"math"
	"strings"
	"testing"
)

func f64(v float64) *float64 { return &v }

func basicReceipt() Receipt {
	return Receipt{
		Store:         Store{Name: "Toko Test", Address: "Jl. Merdeka 1", Phone: "021-555"},
		TransactionID: "TRX-001",
		Timestamp:     "2024-05-01T14:30:00+07:00",
		Items: []Item{
			{Name: "Kopi", Quantity: 2, Price: 15000, Subtotal: 30000},
		},
		Subtotal:      30000,
		Tax:           0,
		Total:         30000,
		PaymentMethod: "cash",
		AmountPaid:    f64(50000),
		Change:        f64(20000),
	}
}

func TestFormatBasicReceipt(t *testing.T) {
	out := Format(basicReceipt(), DefaultLayout())

	centeredName := append(append([]byte{}, CmdAlignCenter...), CmdBoldOn...)
	centeredName = append(centeredName, []byte("Toko Test\n")...)
	if !bytes.Contains(out, centeredName) {
		t.Error("store name should be printed centered and bold")
	}

	itemRow := "Kopi           2  15.000  30.000\n"
	if len(strings.TrimSuffix(itemRow, "\n")) != 32 {
		t.Fatalf("test row has wrong width %d", len(itemRow)-1)
	}
	if !bytes.Contains(out, []byte(itemRow)) {
		t.Errorf("missing item row %q in\n%s", itemRow, out)
	}

	changeRow := "Change" + strings.Repeat(" ", 32-len("Change")-len("20.000")) + "20.000\n"
	if !bytes.Contains(out, []byte(changeRow)) {
		t.Errorf("missing change row %q", changeRow)
	}
	if !bytes.Contains(out, []byte("Date: 01/05/2024 14:30\n")) {
		t.Error("timestamp should render as dd/mm/yyyy hh:mm")
	}
}

func TestFormatFraming(t *testing.T) {
	out := Format(basicReceipt(), DefaultLayout())

	prefix := bytes.Join([][]byte{
		CmdReset,
		CmdFontA,
		CmdLeftMargin0,
		{0x1d, 'W', 0x80, 0x01},
		CmdCodePage(0),
	}, nil)
	if !bytes.HasPrefix(out, prefix) {
		t.Errorf("prefix = % x, want % x", out[:len(prefix)], prefix)
	}

	suffix := append([]byte{0x1b, 'd', 3}, 0x1d, 'V', 0x00)
	if !bytes.HasSuffix(out, suffix) {
		t.Errorf("suffix = % x, want % x", out[len(out)-len(suffix):], suffix)
	}
}

func TestFormatIsDeterministic(t *testing.T) {
	r := basicReceipt()
	a := Format(r, DefaultLayout())
	b := Format(r, DefaultLayout())
	if !bytes.Equal(a, b) {
		t.Error("Format should return identical bytes for identical input")
	}
}

func TestFormatNonCashOmitsChange(t *testing.T) {
	r := basicReceipt()
	r.PaymentMethod = "qris"
	out := Format(r, DefaultLayout())
	if bytes.Contains(out, []byte("Change")) {
		t.Error("non-cash receipt should not print a change row")
	}
	if !bytes.Contains(out, []byte("Payment: QRIS\n")) {
		t.Error("payment method should be printed upper case")
	}
}

func TestFormatTunaiIsCash(t *testing.T) {
	r := basicReceipt()
	r.PaymentMethod = "Tunai"
	if !bytes.Contains(Format(r, DefaultLayout()), []byte("Change")) {
		t.Error("tunai should be treated as cash")
	}
}

func TestFormatDegradedInput(t *testing.T) {
	out := Format(Receipt{PaymentMethod: "cash"}, DefaultLayout())
	if !bytes.HasPrefix(out, CmdReset) {
		t.Error("empty receipt should still start with reset")
	}
	if !bytes.HasSuffix(out, CmdCut) {
		t.Error("empty receipt should still end with cut")
	}
	zeroChange := "Change" + strings.Repeat(" ", 32-len("Change")-1) + "0\n"
	if !bytes.Contains(out, []byte(zeroChange)) {
		t.Errorf("missing amounts should print as 0, want %q", zeroChange)
	}
	if !bytes.Contains(out, []byte(DefaultFooter)) {
		t.Error("default footer should be used")
	}
}

func TestFormatTruncatesLongNames(t *testing.T) {
	r := basicReceipt()
	r.Items[0].Name = "Kopi Susu Gula Aren Besar"
	out := Format(r, DefaultLayout())
	if !bytes.Contains(out, []byte("Kopi Susu Gu   2  15.000  30.000\n")) {
		t.Errorf("long item name should be cut to the name column\n%s", out)
	}
}

func TestFormatUnencodableRunes(t *testing.T) {
	r := basicReceipt()
	r.Store.Name = "Toko 日本"
	out := Format(r, DefaultLayout())
	if !bytes.Contains(out, []byte("Toko ??\n")) {
		t.Error("runes outside the code page should print as '?'")
	}

	r.Store.Name = "Café"
	out = Format(r, DefaultLayout())
	if !bytes.Contains(out, []byte{'C', 'a', 'f', 0x82, '\n'}) {
		t.Error("é should encode to 0x82 in cp437")
	}
}

func TestFormatNeutralizesControlBytes(t *testing.T) {
	r := basicReceipt()
	r.Store.Name = "Toko\x1b@"
	r.Items[0].Name = "Cut\x1dV\x00"
	r.Footer = "Bye\tnow"
	out := Format(r, DefaultLayout())

	if n := bytes.Count(out, CmdReset); n != 1 {
		t.Errorf("reset commands = %d, want only the leading one", n)
	}
	if n := bytes.Count(out, CmdCut); n != 1 {
		t.Errorf("cut commands = %d, want only the trailing one", n)
	}
	if !bytes.HasSuffix(out, append(CmdFeed(3), CmdCut...)) {
		t.Error("stream should still end with feed and cut")
	}
	if !bytes.Contains(out, []byte("Toko @\n")) {
		t.Error("ESC in the store name should print as a space")
	}
	item := "Cut V " + strings.Repeat(" ", 6) + "   2  15.000  30.000\n"
	if !bytes.Contains(out, []byte(item)) {
		t.Errorf("control bytes in item names should print as spaces\n%q", out)
	}
	if !bytes.Contains(out, []byte("Bye now\n")) {
		t.Error("tab in the footer should print as a space")
	}
}

func TestFormatCustomFooter(t *testing.T) {
	r := basicReceipt()
	r.Footer = "Terima kasih\nSampai jumpa"
	out := Format(r, DefaultLayout())
	if !bytes.Contains(out, []byte("Terima kasih\nSampai jumpa\n")) {
		t.Error("multi-line footer should print each line")
	}
}

func TestFormatAmount(t *testing.T) {
	tests := []struct {
		v    float64
		sep  string
		want string
	}{
		{0, ".", "0"},
		{999, ".", "999"},
		{1000, ".", "1.000"},
		{20000, ".", "20.000"},
		{1500000, ".", "1.500.000"},
		{1500000, ",", "1,500,000"},
		{-2500, ".", "-2.500"},
		{1234.6, ".", "1.235"},
		{-0.4, ".", "0"},
		{1e19, ".", "10.000.000.000.000.000.000"},
		{-1e19, ",", "-10,000,000,000,000,000,000"},
		{math.Inf(1), ".", "0"},
		{math.NaN(), ".", "0"},
	}
	for _, tt := range tests {
		if got := FormatAmount(tt.v, tt.sep); got != tt.want {
			t.Errorf("FormatAmount(%v, %q) = %q, want %q", tt.v, tt.sep, got, tt.want)
		}
	}
}

func TestDisplayTimeUnparseable(t *testing.T) {
	if got := displayTime("yesterday"); got != "yesterday" {
		t.Errorf("displayTime() = %q, want raw value", got)
	}
}

func TestLookupCodePageFallback(t *testing.T) {
	if cp := lookupCodePage("klingon"); cp.id != 0 {
		t.Errorf("unknown code page id = %d, want cp437 (0)", cp.id)
	}
	if !SupportedCodePage("CP850") {
		t.Error("cp850 should be supported case-insensitively")
	}
}
