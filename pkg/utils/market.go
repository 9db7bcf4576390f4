package utils

import (
	"strings"
	"time"
)

// ShanghaiLocation is the timezone for mainland China exchanges.
var ShanghaiLocation *time.Location

func init() {
	var err error
	ShanghaiLocation, err = time.LoadLocation("Asia/Shanghai")
	if err != nil {
		// Fallback to UTC+8
		ShanghaiLocation = time.FixedZone("CST", 8*60*60)
	}
}

// Session is a continuous trading window in minutes after local midnight.
type Session struct {
	Open  int
	Close int
}

// MainlandSessions are the morning and afternoon sessions of the Shanghai and
// Shenzhen exchanges: 09:30-11:30 and 13:00-15:00.
var MainlandSessions = []Session{
	{Open: 570, Close: 690},
	{Open: 780, Close: 900},
}

// IsMainlandSymbol reports whether a Yahoo symbol trades in Shanghai or
// Shenzhen.
func IsMainlandSymbol(symbol string) bool {
	s := strings.ToUpper(symbol)
	return strings.HasSuffix(s, ".SS") || strings.HasSuffix(s, ".SZ")
}

// InMainlandSession reports whether t falls inside a mainland trading
// session, both bounds inclusive.
func InMainlandSession(t time.Time) bool {
	local := t.In(ShanghaiLocation)
	if local.Weekday() == time.Saturday || local.Weekday() == time.Sunday {
		return false
	}

	timeMinutes := local.Hour()*60 + local.Minute()
	for _, s := range MainlandSessions {
		if timeMinutes >= s.Open && timeMinutes <= s.Close {
			return true
		}
	}
	return false
}
