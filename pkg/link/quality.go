package link

import "time"

// Quality is a coarse classification of link health.
type Quality uint8

const (
	QualityExcellent Quality = iota
	QualityGood
	QualityWeak
	QualityPoor
	QualityLost
)

// RSSI band thresholds in dBm. A reading must be strictly above a threshold
// to fall into the band.
const (
	ExcellentAbove int16 = -70
	GoodAbove      int16 = -85
	WeakAbove      int16 = -100
)

// String returns the string representation of the quality.
func (q Quality) String() string {
	switch q {
	case QualityExcellent:
		return "EXCELLENT"
	case QualityGood:
		return "GOOD"
	case QualityWeak:
		return "WEAK"
	case QualityPoor:
		return "POOR"
	case QualityLost:
		return "LOST"
	default:
		return "UNKNOWN"
	}
}

// ClassifyRSSI maps a signal strength to one of the four live bands.
func ClassifyRSSI(rssi int16) Quality {
	switch {
	case rssi > ExcellentAbove:
		return QualityExcellent
	case rssi > GoodAbove:
		return QualityGood
	case rssi > WeakAbove:
		return QualityWeak
	default:
		return QualityPoor
	}
}

// classify returns Lost when nothing was received within staleAfter of now,
// regardless of RSSI, and the RSSI band otherwise.
func classify(rssi int16, lastReceived, now time.Time, staleAfter time.Duration) Quality {
	if lastReceived.IsZero() || now.Sub(lastReceived) > staleAfter {
		return QualityLost
	}
	return ClassifyRSSI(rssi)
}
