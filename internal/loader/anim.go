package loader

// Animated textures are named +<frame><base>. Frames 0-9 form the primary
// loop and a-j (or A-J) the alternate loop a trigger switches to.

func isAnimated(name string) bool {
	return len(name) >= 2 && name[0] == '+'
}

func nextFrame(c byte) byte {
	switch {
	case c >= '0' && c < '9', c >= 'a' && c < 'z', c >= 'A' && c < 'Z':
		return c + 1
	case c == '9':
		return 'a'
	case c == 'z':
		return 'a'
	case c == 'Z':
		return 'A'
	}
	return 0
}

func loopStart(c byte) byte {
	switch {
	case c >= '0' && c <= '9':
		return '0'
	case c >= 'a' && c <= 'z':
		return 'a'
	case c >= 'A' && c <= 'Z':
		return 'A'
	}
	return 0
}

// animLinks resolves the next frame and the alternate loop start of every
// animated texture. index maps names to texture indexes; the returned
// maps only hold links whose target exists.
func animLinks(index map[string]int) (next, alt map[int]int) {
	next = make(map[int]int)
	alt = make(map[int]int)
	for name, i := range index {
		if !isAnimated(name) {
			continue
		}
		c, base := name[1], name[2:]
		frame := func(f byte) (int, bool) {
			if f == 0 {
				return 0, false
			}
			j, ok := index["+"+string(f)+base]
			return j, ok && j != i
		}

		if j, ok := frame(nextFrame(c)); ok {
			next[i] = j
		} else if j, ok := frame(loopStart(c)); ok {
			next[i] = j
		}

		if loopStart(c) == '0' {
			if j, ok := frame('a'); ok {
				alt[i] = j
			} else if j, ok := frame('A'); ok {
				alt[i] = j
			}
		} else if j, ok := frame('0'); ok {
			alt[i] = j
		}
	}
	return next, alt
}
