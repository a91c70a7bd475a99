package queue

import (
	"fmt"

	"queuesync/internal/constants"
)

// EstimateWait renders the expected wait for count waiting customers as
// "<w>-<w+spread> minutes" with w = unit * count, or "No wait" when the
// queue is empty.
func EstimateWait(count, unitMinutes, spreadMinutes int) string {
	if count <= 0 {
		return constants.NoWaitLabel
	}
	if unitMinutes <= 0 {
		unitMinutes = constants.DefaultWaitUnitMinutes
	}
	if spreadMinutes < 0 {
		spreadMinutes = constants.DefaultWaitSpreadMinutes
	}
	w := unitMinutes * count
	return fmt.Sprintf("%d-%d minutes", w, w+spreadMinutes)
}
