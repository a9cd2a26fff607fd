package data

import (
	"fmt"
	"strconv"

	"github.com/cockroachdb/errors"
)

// ParseTime converts HH:MM:SS.mmm to milliseconds since midnight.
func ParseTime(s string) (int64, error) {
	if len(s) < 12 || s[2] != ':' || s[5] != ':' || s[8] != '.' {
		return 0, errors.Newf("malformed time %q", s)
	}
	var parts [4]int64
	for i, f := range []string{s[0:2], s[3:5], s[6:8], s[9:12]} {
		v, err := strconv.ParseInt(f, 10, 64)
		if err != nil {
			return 0, errors.Wrapf(err, "malformed time %q", s)
		}
		parts[i] = v
	}
	return ((parts[0]*60+parts[1])*60+parts[2])*1000 + parts[3], nil
}

func FormatTime(ms int64) string {
	return fmt.Sprintf("%02d:%02d:%02d.%03d", ms/3600000, ms/60000%60, ms/1000%60, ms%1000)
}
