package domain

// Indicator is the visible on/off appearance of the blocker.
type Indicator string

const (
	IndicatorOn  Indicator = "on"
	IndicatorOff Indicator = "off"
)
