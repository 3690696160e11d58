package releases

import "strings"

// naturalLess compares strings chunk by chunk, ordering runs of digits by
// numeric value, so "v1.10" sorts after "v1.9".
func naturalLess(a, b string) bool {
	for a != "" && b != "" {
		ca, restA := nextChunk(a)
		cb, restB := nextChunk(b)

		if isDigit(ca[0]) && isDigit(cb[0]) {
			na := strings.TrimLeft(ca, "0")
			nb := strings.TrimLeft(cb, "0")
			if len(na) != len(nb) {
				return len(na) < len(nb)
			}
			if na != nb {
				return na < nb
			}
		} else if ca != cb {
			return strings.ToLower(ca) < strings.ToLower(cb)
		}
		a, b = restA, restB
	}
	return len(a) < len(b)
}

func nextChunk(s string) (chunk, rest string) {
	digit := isDigit(s[0])
	i := 1
	for i < len(s) && isDigit(s[i]) == digit {
		i++
	}
	return s[:i], s[i:]
}

func isDigit(c byte) bool {
	return c >= '0' && c <= '9'
}
