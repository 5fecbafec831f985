package cache

import (
	"fmt"
	"strings"
)

// Key joins parts with ':' into a cache key, e.g. Key("learning", "lock", day).
func Key(parts ...interface{}) string {
	var b strings.Builder
	for i, p := range parts {
		if i > 0 {
			b.WriteByte(':')
		}
		fmt.Fprint(&b, p)
	}
	return b.String()
}
