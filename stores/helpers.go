package stores

import (
	"time"

	"github.com/oarkflow/date"
)

// scanTime converts whatever the driver hands back for a timestamp column.
func scanTime(raw interface{}) (time.Time, bool) {
	switch v := raw.(type) {
	case time.Time:
		return v, true
	case string:
		if t, err := date.Parse(v); err == nil {
			return t, true
		}
	case []byte:
		if t, err := date.Parse(string(v)); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}
