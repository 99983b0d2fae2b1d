//go:build !rp2040 && !rp2350

package strconvx

import "strconv"

// Host builds route through strconv so behaviour matches the platform
// the unit tests run on.

func Itoa(i int) string   { return strconv.Itoa(i) }
func Uitoa(u uint) string { return strconv.FormatUint(uint64(u), 10) }
