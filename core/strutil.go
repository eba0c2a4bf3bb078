package core

// Utoa converts an unsigned integer to a string without using fmt package.
// Binding code builds its debug lines with it so TinyGo builds stay small.
func Utoa(n uint32) string {
	if n == 0 {
		return "0"
	}

	var buf [10]byte
	pos := len(buf)
	for n > 0 {
		pos--
		buf[pos] = byte('0' + n%10)
		n /= 10
	}
	return string(buf[pos:])
}

// String returns "spi<N>"
func (id SPIBusID) String() string {
	return "spi" + Utoa(uint32(id))
}
