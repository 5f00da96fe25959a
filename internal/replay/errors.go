package replay

import "errors"

// ErrInvalidRange is returned when the replay time range is malformed.
var ErrInvalidRange = errors.New("replay: from and to must be positive with from <= to")
