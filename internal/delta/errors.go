package delta

import "deltasync/internal/deltaerr"

func cancelled(cause error) error {
	return deltaerr.Wrap(deltaerr.Cancelled, "delta computation cancelled", cause)
}
