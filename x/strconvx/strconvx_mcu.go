//go:build rp2040 || rp2350

package strconvx

// Decimal formatting for firmware logging. The host build delegates to
// strconv; this one keeps fmt and the general-base digit tables out of
// flash.

func Itoa(i int) string {
	if i < 0 {
		// Two's complement: uint(-i) yields the right magnitude even
		// for the minimum int.
		return "-" + Uitoa(uint(-i))
	}
	return Uitoa(uint(i))
}

func Uitoa(u uint) string {
	if u == 0 {
		return "0"
	}
	var buf [20]byte
	i := len(buf)
	for u > 0 {
		i--
		buf[i] = byte('0' + u%10)
		u /= 10
	}
	return string(buf[i:])
}
