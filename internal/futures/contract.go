// Package futures resolves abstract instrument stems to concrete tradeable
// contracts: chain filtering, front/next contract selection and the
// roll-offset adjusted reference day logic.
package futures

import (
	"errors"
	"fmt"
	"time"
)

// Contract identifies one deliverable instance of a stem. Contracts are
// issued by the data vendor and treated as immutable facts.
type Contract struct {
	Stem           string
	Ticker         string
	LastTradeDate  time.Time
	TradingEnabled bool
}

// ErrNoSuchStem is returned when the vendor has never published a chain for
// a stem.
var ErrNoSuchStem = errors.New("no such stem")

// DataGapError signals that the vendor chain data is too short for the
// requested day. It is fatal: the expiry data source needs to be extended by
// an operator, retrying will not help.
type DataGapError struct {
	Stem   string
	Day    time.Time
	Reason string
}

func (e *DataGapError) Error() string {
	return fmt.Sprintf("chain data gap for %s on %s: %s",
		e.Stem, e.Day.Format("2006-01-02"), e.Reason)
}

// IsDataGap reports whether err is a DataGapError.
func IsDataGap(err error) bool {
	var gap *DataGapError
	return errors.As(err, &gap)
}
