package stream

import (
	"encoding/json"
	"time"
)

// Line is one decoded line of device output. Lines are immutable once
// produced; consumers must not modify them.
type Line struct {
	Timestamp time.Time
	Text      string
}

// NewLine stamps text with the current time
func NewLine(text string) Line {
	return Line{Timestamp: time.Now(), Text: text}
}

// wireLine is the JSON shape pushed to viewers: {"ts": 1700000000.123, "line": "..."}
type wireLine struct {
	TS   float64 `json:"ts"`
	Line string  `json:"line"`
}

// Unix returns the timestamp as fractional seconds since the epoch
func (l Line) Unix() float64 {
	return float64(l.Timestamp.Unix()) + float64(l.Timestamp.Nanosecond())/float64(time.Second)
}

// MarshalJSON implements json.Marshaler
func (l Line) MarshalJSON() ([]byte, error) {
	return json.Marshal(wireLine{TS: l.Unix(), Line: l.Text})
}

// UnmarshalJSON implements json.Unmarshaler
func (l *Line) UnmarshalJSON(data []byte) error {
	var w wireLine
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	sec := int64(w.TS)
	nsec := int64((w.TS - float64(sec)) * float64(time.Second))
	l.Timestamp = time.Unix(sec, nsec)
	l.Text = w.Line
	return nil
}
