package dedup

import (
	"unicode/utf8"
)

// SplitFixed cuts buf into contiguous blocks of size bytes. The blocks cover
// buf end to end without gaps or overlap and the last one may be shorter.
// The returned blocks alias buf.
func SplitFixed(buf []byte, size int) []Block {
	if size <= 0 {
		panic("dedup: non-positive block size")
	}
	if len(buf) == 0 {
		return []Block{}
	}
	blocks := make([]Block, 0, (len(buf)+size-1)/size)
	for off := 0; off < len(buf); off += size {
		end := off + size
		if end > len(buf) {
			end = len(buf)
		}
		blocks = append(blocks, Block(buf[off:end:end]))
	}
	return blocks
}

// SplitRunes cuts valid UTF-8 text into blocks of n code points. The last
// block may hold fewer. The returned blocks alias text.
func SplitRunes(text []byte, n int) []Block {
	if n <= 0 {
		panic("dedup: non-positive block size")
	}
	if len(text) == 0 {
		return []Block{}
	}
	blocks := make([]Block, 0, utf8.RuneCount(text)/n+1)
	start, count := 0, 0
	for i := 0; i < len(text); {
		_, w := utf8.DecodeRune(text[i:])
		i += w
		count++
		if count == n {
			blocks = append(blocks, Block(text[start:i:i]))
			start, count = i, 0
		}
	}
	if start < len(text) {
		blocks = append(blocks, Block(text[start:len(text):len(text)]))
	}
	return blocks
}

// DecodeText drops bytes that are not valid UTF-8, keeping every valid
// character. Input that is already valid is returned as is.
func DecodeText(buf []byte) []byte {
	if utf8.Valid(buf) {
		return buf
	}
	out := make([]byte, 0, len(buf))
	for i := 0; i < len(buf); {
		r, w := utf8.DecodeRune(buf[i:])
		if r == utf8.RuneError && w <= 1 {
			i++
			continue
		}
		out = append(out, buf[i:i+w]...)
		i += w
	}
	return out
}

// IncompleteTail returns how many trailing bytes of buf form the beginning of
// a UTF-8 character that continues past the end of buf.
func IncompleteTail(buf []byte) int {
	// a UTF-8 encoding is at most utf8.UTFMax bytes
	for i := len(buf) - 1; i >= 0 && i >= len(buf)-utf8.UTFMax; i-- {
		if !utf8.RuneStart(buf[i]) {
			continue
		}
		if utf8.FullRune(buf[i:]) {
			return 0
		}
		return len(buf) - i
	}
	return 0
}
