package trie

// toNibbles splits every byte of key into its high and low 4 bits
func toNibbles(key []byte) []byte {
	n := make([]byte, len(key)*2)
	for i, b := range key {
		n[i*2] = b >> 4
		n[i*2+1] = b & 0x0f
	}
	return n
}

func fromNibbles(n []byte) []byte {
	k := make([]byte, len(n)/2)
	for i := range k {
		k[i] = n[i*2]<<4 | n[i*2+1]
	}
	return k
}

func prefixLen(a, b []byte) int {
	i := 0
	for i < len(a) && i < len(b) && a[i] == b[i] {
		i++
	}
	return i
}

func hasPrefix(s, prefix []byte) bool {
	return len(s) >= len(prefix) && prefixLen(s, prefix) == len(prefix)
}

func equalPath(a, b []byte) bool {
	return len(a) == len(b) && prefixLen(a, b) == len(a)
}

// concat returns a fresh slice so nodes never share path storage
func concat(parts ...[]byte) []byte {
	n := 0
	for _, p := range parts {
		n += len(p)
	}
	if n == 0 {
		return nil
	}

	out := make([]byte, 0, n)
	for _, p := range parts {
		out = append(out, p...)
	}
	return out
}
