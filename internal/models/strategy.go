package models

type Side string

const (
	SideNone Side = ""
	SideBuy  Side = "BUY"
	SideSell Side = "SELL"
)

// Snapshot: значения индикаторов на последнем баре.
type Snapshot struct {
	RSI      float64
	MACDDiff float64
	BBLower  float64
	BBUpper  float64
	Close    float64
}
