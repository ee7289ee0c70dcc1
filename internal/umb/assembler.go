package umb

import "bytes"

// DefaultMaxFrameBytes bounds the bytes an assembler buffers for one frame.
const DefaultMaxFrameBytes = 1024

// DiscardReason labels bytes an assembler threw away.
type DiscardReason string

const (
	// DiscardNoise is data outside any frame.
	DiscardNoise DiscardReason = "noise"
	// DiscardOverflow is a partial frame that outgrew the buffer cap.
	DiscardOverflow DiscardReason = "overflow"
)

// Assembler turns a stream of byte chunks into frames. An Assembler holds
// connection state and must not be shared between connections.
type Assembler interface {
	// Feed consumes one chunk and returns the frames it completed. The chunk
	// is not retained.
	Feed(chunk []byte) []Frame
	// Reset drops any buffered partial frame.
	Reset()
}

// AssemblerOptions configures both assembler variants.
type AssemblerOptions struct {
	// MaxFrameBytes caps the buffer. Zero means DefaultMaxFrameBytes.
	MaxFrameBytes int
	// OnDiscard is called with the reason and byte count of dropped data.
	OnDiscard func(reason DiscardReason, n int)
}

func (o AssemblerOptions) maxBytes() int {
	if o.MaxFrameBytes <= 0 {
		return DefaultMaxFrameBytes
	}
	return o.MaxFrameBytes
}

func (o AssemblerOptions) discard(reason DiscardReason, n int) {
	if n > 0 && o.OnDiscard != nil {
		o.OnDiscard(reason, n)
	}
}

// StreamAssembler frames by the header length byte, so frames are recovered
// the same way however the stream is split into chunks, several frames in one
// chunk included. Bytes before a start marker are noise, and a start marker
// whose implied frame does not end in EOT is skipped to resynchronise.
type StreamAssembler struct {
	opts AssemblerOptions
	buf  []byte
}

// NewStreamAssembler returns a length-aware assembler.
func NewStreamAssembler(opts AssemblerOptions) *StreamAssembler {
	return &StreamAssembler{opts: opts}
}

func (a *StreamAssembler) Feed(chunk []byte) []Frame {
	if len(chunk) == 0 {
		return nil
	}
	if len(a.buf) == 0 && len(chunk) <= a.opts.maxBytes() && isWholeFrame(chunk) {
		return []Frame{clone(chunk)}
	}

	a.buf = append(a.buf, chunk...)
	var frames []Frame
	off := 0
	for off < len(a.buf) {
		rest := a.buf[off:]
		i := bytes.IndexByte(rest, SOH)
		if i < 0 {
			a.opts.discard(DiscardNoise, len(rest))
			off = len(a.buf)
			break
		}
		if i > 0 {
			a.opts.discard(DiscardNoise, i)
			off += i
			rest = rest[i:]
		}
		if len(rest) >= envelopeLen && rest[envelopeLen-1] != STX {
			a.opts.discard(DiscardNoise, 1)
			off++
			continue
		}
		if len(rest) <= lengthIndex {
			break
		}
		n := frameLen(rest[lengthIndex])
		if n > a.opts.maxBytes() {
			a.opts.discard(DiscardNoise, 1)
			off++
			continue
		}
		if len(rest) < n {
			// The start marker may be noise. Do not hold back a complete
			// frame that is already buffered behind it.
			j := a.completeFrameAfter(rest)
			if j < 0 {
				break
			}
			a.opts.discard(DiscardNoise, j)
			off += j
			continue
		}
		if rest[n-1] != EOT {
			a.opts.discard(DiscardNoise, 1)
			off++
			continue
		}
		frames = append(frames, clone(rest[:n]))
		off += n
	}

	a.buf = append(a.buf[:0], a.buf[off:]...)
	if len(a.buf) > a.opts.maxBytes() {
		a.opts.discard(DiscardOverflow, len(a.buf))
		a.buf = a.buf[:0]
	}
	return frames
}

// completeFrameAfter returns the offset of the first later start marker in b
// that opens a frame fully contained in b, or -1.
func (a *StreamAssembler) completeFrameAfter(b []byte) int {
	for j := 1; j+envelopeLen <= len(b); j++ {
		if b[j] != SOH || b[j+envelopeLen-1] != STX {
			continue
		}
		n := frameLen(b[j+lengthIndex])
		if n <= a.opts.maxBytes() && j+n <= len(b) && b[j+n-1] == EOT {
			return j
		}
	}
	return -1
}

func (a *StreamAssembler) Reset() { a.buf = a.buf[:0] }

// Buffered reports the bytes held for an incomplete frame.
func (a *StreamAssembler) Buffered() int { return len(a.buf) }

// ChunkAssembler frames on chunk boundaries alone: a chunk that starts with
// SOH opens a frame and a chunk that ends with EOT closes it. It relies on
// senders writing each frame in as few writes as possible and never splitting
// a write right after a payload byte equal to EOT.
type ChunkAssembler struct {
	opts AssemblerOptions
	buf  []byte
	open bool
}

// NewChunkAssembler returns a marker-only assembler.
func NewChunkAssembler(opts AssemblerOptions) *ChunkAssembler {
	return &ChunkAssembler{opts: opts}
}

func (a *ChunkAssembler) Feed(chunk []byte) []Frame {
	if len(chunk) == 0 {
		return nil
	}
	starts := chunk[0] == SOH
	ends := chunk[len(chunk)-1] == EOT

	switch {
	case starts && ends:
		a.dropOpen()
		return []Frame{clone(chunk)}
	case starts:
		a.dropOpen()
		a.buf = append(a.buf[:0], chunk...)
		a.open = true
	case a.open && ends:
		a.buf = append(a.buf, chunk...)
		if a.overflowed() {
			return nil
		}
		f := clone(a.buf)
		a.Reset()
		return []Frame{f}
	case a.open:
		a.buf = append(a.buf, chunk...)
		a.overflowed()
		return nil
	default:
		a.opts.discard(DiscardNoise, len(chunk))
		return nil
	}
	a.overflowed()
	return nil
}

func (a *ChunkAssembler) Reset() {
	a.buf = a.buf[:0]
	a.open = false
}

// dropOpen discards a partial frame superseded by a new start marker.
func (a *ChunkAssembler) dropOpen() {
	if a.open {
		a.opts.discard(DiscardNoise, len(a.buf))
		a.Reset()
	}
}

func (a *ChunkAssembler) overflowed() bool {
	if len(a.buf) <= a.opts.maxBytes() {
		return false
	}
	a.opts.discard(DiscardOverflow, len(a.buf))
	a.Reset()
	return true
}

// NewAssembler builds the assembler for a framing mode: "chunk" selects
// ChunkAssembler, anything else StreamAssembler.
func NewAssembler(mode string, opts AssemblerOptions) Assembler {
	if mode == FramingChunk {
		return NewChunkAssembler(opts)
	}
	return NewStreamAssembler(opts)
}

// Framing modes accepted by NewAssembler.
const (
	FramingStream = "stream"
	FramingChunk  = "chunk"
)

func isWholeFrame(b []byte) bool {
	return len(b) >= MinFrameLen &&
		b[0] == SOH &&
		b[envelopeLen-1] == STX &&
		b[len(b)-1] == EOT &&
		frameLen(b[lengthIndex]) == len(b)
}

func clone(b []byte) Frame {
	f := make(Frame, len(b))
	copy(f, b)
	return f
}
