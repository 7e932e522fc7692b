package backtest

import (
	"encoding/csv"
	"io"
	"strconv"

	"github.com/shopspring/decimal"
)

// WriteFillsCSV writes fills as rows of FillHeader. Numbers are rendered as
// exact decimals so float noise does not leak into the file.
func WriteFillsCSV(w io.Writer, fills []Fill) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(FillHeader); err != nil {
		return err
	}
	for _, f := range fills {
		row := []string{
			strconv.Itoa(f.Index),
			f.Symbol,
			decimalString(f.Pnl),
			decimalString(f.FeePaid),
			decimalString(f.Balance),
			decimalString(f.FillQty),
			decimalString(f.FillPrice),
			decimalString(f.PositionSize),
			decimalString(f.PositionPrice),
			f.OrderType.String(),
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// decimalString rounds to 10 places and trims trailing zeros.
func decimalString(f float64) string {
	return decimal.NewFromFloat(f).Round(10).String()
}
