package chanlun

import (
	"encoding/json"
	"strconv"
	"time"
)

// NullPrice is a price that may be absent.
type NullPrice struct {
	Value float64
	Valid bool
}

// Price returns a present price.
func Price(v float64) NullPrice {
	return NullPrice{Value: v, Valid: true}
}

// Null is the absent price.
var Null = NullPrice{}

func (p NullPrice) MarshalJSON() ([]byte, error) {
	if !p.Valid {
		return []byte("null"), nil
	}
	return []byte(strconv.FormatFloat(p.Value, 'f', -1, 64)), nil
}

func (p *NullPrice) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*p = Null
		return nil
	}
	var v float64
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	*p = Price(v)
	return nil
}

// Ptr returns nil for an absent price.
func (p NullPrice) Ptr() *float64 {
	if !p.Valid {
		return nil
	}
	v := p.Value
	return &v
}

// Row is one sparse table entry.
type Row struct {
	Timestamp time.Time
	High      NullPrice
	Low       NullPrice
}

// Table is a sparse per-stage table ordered by timestamp.
type Table []Row

// MergedTable renders merged bars with both bounds present.
func MergedTable(bars []MergedBar) Table {
	t := make(Table, 0, len(bars))
	for _, b := range bars {
		t = append(t, Row{Timestamp: b.Timestamp, High: Price(b.High), Low: Price(b.Low)})
	}
	return t
}

// PointTable renders turning points. Tops carry only a high, bottoms only a
// low, and unclassified points neither.
func PointTable(points []TurningPoint) Table {
	t := make(Table, 0, len(points))
	for _, p := range points {
		t = append(t, polarRow(p.Timestamp, p.Polarity, p.Price))
	}
	return t
}

// EndpointTable renders stroke or segment endpoints.
func EndpointTable(endpoints []Endpoint) Table {
	t := make(Table, 0, len(endpoints))
	for _, e := range endpoints {
		t = append(t, polarRow(e.Timestamp, e.Polarity, e.Price))
	}
	return t
}

// PivotTable renders each pivot as a start row holding the zone bounds
// followed by an end row with no prices.
func PivotTable(pivots []Pivot) Table {
	t := make(Table, 0, 2*len(pivots))
	for _, p := range pivots {
		t = append(t,
			Row{Timestamp: p.Start, High: Price(p.ZoneHigh), Low: Price(p.ZoneLow)},
			Row{Timestamp: p.End, High: Null, Low: Null},
		)
	}
	return t
}

// PivotsFromTable pairs start and end rows back into pivots. A trailing
// unpaired row is ignored.
func PivotsFromTable(t Table) []Pivot {
	var out []Pivot
	for i := 0; i+1 < len(t); i += 2 {
		start, end := t[i], t[i+1]
		if !start.High.Valid || !start.Low.Valid {
			continue
		}
		out = append(out, Pivot{
			Start:    start.Timestamp,
			End:      end.Timestamp,
			ZoneHigh: start.High.Value,
			ZoneLow:  start.Low.Value,
		})
	}
	return out
}

func polarRow(ts time.Time, pol Polarity, price float64) Row {
	row := Row{Timestamp: ts}
	switch pol {
	case PolarityTop:
		row.High = Price(price)
	case PolarityBottom:
		row.Low = Price(price)
	}
	return row
}
