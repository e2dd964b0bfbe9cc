package machine

// The heap is carved into chunks. Every chunk starts with a header
// occupying one allocation unit; the header fields are explicit words
// rather than the packed bitfields of old:
//
//	ch+0  forward size in units (chunkSizeMask) | in-use flag (chunkUsedBit)
//	ch+2  size of the preceding chunk in units, 0 for the first chunk
//	ch+4  previous free chunk offset (free chunks only)
//	ch+6  next free chunk offset (free chunks only)
//
// The free list is doubly linked and kept sorted ascending by size, so
// a first-fit scan is a best-fit choice. Offsets handed out point just
// past the header; 0 is never a valid allocation.
const (
	allocUnit = 16

	chunkSizeMask = 0x0fff
	chunkUsedBit  = 0x8000

	// The 12-bit size field caps one chunk at 4095 units. This is an
	// explicit capacity limit, validated at construction.
	chunkMaxUnits = chunkSizeMask
	chunkMaxBytes = chunkMaxUnits * allocUnit
)

func (m *Machine) heapInit() {
	units := uint16(m.hpSize / allocUnit)
	m.mem.setWord(m.hpb, units)
	m.mem.setWord(m.hpb+WordSize, 0)
	m.mem.setWord(m.hpb+2*WordSize, 0)
	m.mem.setWord(m.hpb+3*WordSize, 0)
	m.freeHead = m.hpb
}

func (m *Machine) chunkHeader(ch uint16) (units uint16, used bool, c Code) {
	w, c := m.mem.word(ch)
	if c != NoError {
		return 0, false, c
	}
	return w & chunkSizeMask, w&chunkUsedBit != 0, NoError
}

func (m *Machine) setChunkHeader(ch, units uint16, used bool) Code {
	w := units & chunkSizeMask
	if used {
		w |= chunkUsedBit
	}
	return m.mem.setWord(ch, w)
}

func (m *Machine) chunkBack(ch uint16) (uint16, Code) {
	return m.mem.word(ch + WordSize)
}

func (m *Machine) setChunkBack(ch, units uint16) Code {
	return m.mem.setWord(ch+WordSize, units)
}

// unlinkFree removes ch from the free list.
func (m *Machine) unlinkFree(ch uint16) Code {
	prev, c := m.mem.word(ch + 2*WordSize)
	if c != NoError {
		return c
	}
	nxt, c := m.mem.word(ch + 3*WordSize)
	if c != NoError {
		return c
	}

	if prev != 0 {
		if c := m.mem.setWord(prev+3*WordSize, nxt); c != NoError {
			return c
		}
	} else {
		m.freeHead = nxt
	}
	if nxt != 0 {
		if c := m.mem.setWord(nxt+2*WordSize, prev); c != NoError {
			return c
		}
	}
	return NoError
}

// insertFree links ch into the free list, keeping it sorted ascending
// by chunk size.
func (m *Machine) insertFree(ch uint16) Code {
	units, _, c := m.chunkHeader(ch)
	if c != NoError {
		return c
	}

	var prev uint16
	cur := m.freeHead
	for cur != 0 {
		cu, _, c := m.chunkHeader(cur)
		if c != NoError {
			return c
		}
		if cu >= units {
			break
		}
		prev = cur
		cur, c = m.mem.word(cur + 3*WordSize)
		if c != NoError {
			return c
		}
	}

	if c := m.mem.setWord(ch+2*WordSize, prev); c != NoError {
		return c
	}
	if c := m.mem.setWord(ch+3*WordSize, cur); c != NoError {
		return c
	}
	if prev != 0 {
		if c := m.mem.setWord(prev+3*WordSize, ch); c != NoError {
			return c
		}
	} else {
		m.freeHead = ch
	}
	if cur != 0 {
		if c := m.mem.setWord(cur+2*WordSize, ch); c != NoError {
			return c
		}
	}
	return NoError
}

// alloc carves size bytes out of the heap and returns the payload
// offset, or 0 when no chunk can satisfy the request. Callers must
// treat 0 as failure, never as an address.
func (m *Machine) alloc(size int) uint16 {
	if size <= 0 {
		size = 1
	}
	reqUnits := uint16((size + allocUnit - 1) / allocUnit)
	need := reqUnits + 1 // header rides along

	ch := m.freeHead
	for ch != 0 {
		units, _, c := m.chunkHeader(ch)
		if c != NoError || units == 0 {
			return 0
		}
		if units >= need {
			break
		}
		ch, c = m.mem.word(ch + 3*WordSize)
		if c != NoError {
			return 0
		}
	}
	if ch == 0 {
		return 0
	}

	units, _, _ := m.chunkHeader(ch)
	if m.unlinkFree(ch) != NoError {
		return 0
	}

	rest := units - need
	if rest > 1 {
		// Split: the tail becomes a new free chunk.
		units = need
		tail := ch + units*allocUnit
		m.setChunkHeader(tail, rest, false)
		m.setChunkBack(tail, units)
		m.fixFollowingBack(tail, rest)
		if m.insertFree(tail) != NoError {
			return 0
		}
	}

	m.setChunkHeader(ch, units, true)
	m.fixFollowingBack(ch, units)
	return ch + allocUnit
}

// fixFollowingBack updates the back-size field of the chunk after
// (ch, units), when there is one. The end offset is computed in int:
// a heap ending at the top of the 16-bit space would wrap in uint16
// and alias the bottom of the data space.
func (m *Machine) fixFollowingBack(ch, units uint16) {
	nxt := int(ch) + int(units)*allocUnit
	if nxt < int(m.hpb)+m.hpSize {
		m.setChunkBack(uint16(nxt), units)
	}
}

// free releases the allocation at off, coalescing with free neighbors.
func (m *Machine) free(off uint16) Code {
	// Valid payloads run from hpb+allocUnit up to and including the
	// payload of a minimal chunk sitting at the heap's tail.
	if int(off) < int(m.hpb)+allocUnit ||
		int(off) > int(m.hpb)+m.hpSize-allocUnit ||
		(off-m.hpb)%allocUnit != 0 {
		return HeapHuh
	}

	ch := off - allocUnit
	units, used, c := m.chunkHeader(ch)
	if c != NoError {
		return c
	}
	if !used || units == 0 {
		return HeapHuh
	}
	if c := m.setChunkHeader(ch, units, false); c != NoError {
		return c
	}

	// Merge with a free predecessor.
	back, c := m.chunkBack(ch)
	if c != NoError {
		return c
	}
	if back != 0 {
		prev := ch - back*allocUnit
		pu, pused, c := m.chunkHeader(prev)
		if c != NoError {
			return c
		}
		if !pused {
			if c := m.unlinkFree(prev); c != NoError {
				return c
			}
			units += pu
			ch = prev
			if c := m.setChunkHeader(ch, units, false); c != NoError {
				return c
			}
		}
	}

	// Merge with a free successor. Same int arithmetic as
	// fixFollowingBack so a heap ending at 0x10000 does not wrap.
	if nxt := int(ch) + int(units)*allocUnit; nxt < int(m.hpb)+m.hpSize {
		nu, nused, c := m.chunkHeader(uint16(nxt))
		if c != NoError {
			return c
		}
		if !nused {
			if c := m.unlinkFree(uint16(nxt)); c != NoError {
				return c
			}
			units += nu
			if c := m.setChunkHeader(ch, units, false); c != NoError {
				return c
			}
		}
	}

	m.fixFollowingBack(ch, units)
	return m.insertFree(ch)
}
