package protocol

import "strconv"

// Checksum returns the XOR of every byte of s
// This matches the RepRap/Marlin line checksum
func Checksum(s string) byte {
	var cs byte
	for i := 0; i < len(s); i++ {
		cs ^= s[i]
	}
	return cs
}

// FormatLine frames cmd as "N<n> <cmd>*<checksum>"
func FormatLine(n uint32, cmd string) string {
	body := "N" + strconv.FormatUint(uint64(n), 10) + " " + cmd
	return body + string(ChecksumSeparator) + strconv.Itoa(int(Checksum(body)))
}
