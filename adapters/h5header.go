package adapters

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/brettbedarf/h5browse"
)

// Object header message types
const (
	msgDatatype     = 0x0003
	msgContinuation = 0x0010
)

const (
	classFixedPoint = 0
	fixedSignedBit  = 0x08
)

// maxHeaderChunks bounds continuation chains so a corrupt file cannot loop
const maxHeaderChunks = 64

// headerReader locates messages in an HDF5 object header. The format library
// only exposes the datatype of a dataset as text, which drops the sign of
// fixed-point types, so the datatype message is read from the header directly.
type headerReader struct {
	r          io.ReaderAt
	order      binary.ByteOrder
	offsetSize int
	lengthSize int
}

type headerChunk struct {
	addr, size uint64
}

// integerSigned reports whether the fixed-point datatype of the dataset whose
// header sits at addr is signed. Bit 3 of the class bit field carries the sign.
func (h *headerReader) integerSigned(addr uint64) (bool, error) {
	data, err := h.message(addr, msgDatatype)
	if err != nil {
		return false, err
	}
	if len(data) < 8 {
		return false, fmt.Errorf("%w: short datatype message at 0x%x", h5browse.ErrFormat, addr)
	}
	if class := data[0] & 0x0F; class != classFixedPoint {
		return false, fmt.Errorf("%w: datatype class %d is not fixed-point", h5browse.ErrFormat, class)
	}
	return data[1]&fixedSignedBit != 0, nil
}

// message returns the body of the first message of type want in the header at addr
func (h *headerReader) message(addr uint64, want uint16) ([]byte, error) {
	prefix := make([]byte, 8)
	if _, err := h.r.ReadAt(prefix, int64(addr)); err != nil {
		return nil, fmt.Errorf("%w: object header at 0x%x: %w", h5browse.ErrFormat, addr, err)
	}

	switch {
	case string(prefix[:4]) == "OHDR":
		return h.messageV2(addr, prefix[5], want)
	case prefix[0] == 1 && prefix[1] == 0:
		return h.messageV1(addr, want)
	default:
		return nil, fmt.Errorf("%w: unknown object header at 0x%x", h5browse.ErrFormat, addr)
	}
}

func (h *headerReader) messageV1(addr uint64, want uint16) ([]byte, error) {
	buf := make([]byte, 16)
	if _, err := h.r.ReadAt(buf, int64(addr)); err != nil {
		return nil, fmt.Errorf("%w: object header at 0x%x: %w", h5browse.ErrFormat, addr, err)
	}
	size := uint64(h.order.Uint32(buf[8:12]))

	queue := []headerChunk{{addr: addr + 16, size: size}}
	for i := 0; i < len(queue) && i < maxHeaderChunks; i++ {
		block, err := h.read(queue[i])
		if err != nil {
			return nil, err
		}
		for off := 0; off+8 <= len(block); {
			typ := h.order.Uint16(block[off : off+2])
			n := int(h.order.Uint16(block[off+2 : off+4]))
			body := off + 8
			if body+n > len(block) {
				break
			}
			data := block[body : body+n]
			if typ == want {
				return data, nil
			}
			if typ == msgContinuation {
				if c, ok := h.continuation(data); ok {
					queue = append(queue, c)
				}
			}
			// v1 messages are padded to 8 bytes
			off = body + (n+7)&^7
		}
	}
	return nil, fmt.Errorf("%w: no message 0x%04x in object header at 0x%x", h5browse.ErrFormat, want, addr)
}

func (h *headerReader) messageV2(addr uint64, flags byte, want uint16) ([]byte, error) {
	cur := addr + 6
	if flags&0x20 != 0 {
		cur += 16
	}
	if flags&0x10 != 0 {
		cur += 4
	}
	width := 1 << (flags & 0x03)
	sizeBuf := make([]byte, 8)
	if _, err := h.r.ReadAt(sizeBuf[:width], int64(cur)); err != nil {
		return nil, fmt.Errorf("%w: object header at 0x%x: %w", h5browse.ErrFormat, addr, err)
	}
	// v2 headers are always little-endian
	size := binary.LittleEndian.Uint64(sizeBuf)
	cur += uint64(width)

	msgHeader := 4
	if flags&0x04 != 0 {
		msgHeader += 2
	}

	queue := []headerChunk{{addr: cur, size: size}}
	for i := 0; i < len(queue) && i < maxHeaderChunks; i++ {
		block, err := h.read(queue[i])
		if err != nil {
			return nil, err
		}
		if i > 0 {
			// continuation chunks carry a signature and a trailing checksum
			if len(block) < 8 || string(block[:4]) != "OCHK" {
				return nil, fmt.Errorf("%w: bad continuation chunk at 0x%x", h5browse.ErrFormat, queue[i].addr)
			}
			block = block[4 : len(block)-4]
		}
		for off := 0; off+msgHeader <= len(block); {
			typ := uint16(block[off])
			n := int(binary.LittleEndian.Uint16(block[off+1 : off+3]))
			body := off + msgHeader
			if body+n > len(block) {
				break
			}
			data := block[body : body+n]
			if typ == want {
				return data, nil
			}
			if typ == msgContinuation {
				if c, ok := h.continuation(data); ok {
					queue = append(queue, c)
				}
			}
			off = body + n
		}
	}
	return nil, fmt.Errorf("%w: no message 0x%04x in object header at 0x%x", h5browse.ErrFormat, want, addr)
}

func (h *headerReader) read(c headerChunk) ([]byte, error) {
	if c.size == 0 || c.size > 1<<20 {
		return nil, fmt.Errorf("%w: object header chunk of %d bytes at 0x%x", h5browse.ErrFormat, c.size, c.addr)
	}
	block := make([]byte, c.size)
	if _, err := h.r.ReadAt(block, int64(c.addr)); err != nil {
		return nil, fmt.Errorf("%w: object header chunk at 0x%x: %w", h5browse.ErrFormat, c.addr, err)
	}
	return block, nil
}

func (h *headerReader) continuation(data []byte) (headerChunk, bool) {
	if len(data) < h.offsetSize+h.lengthSize {
		return headerChunk{}, false
	}
	return headerChunk{
		addr: h.uint(data[:h.offsetSize]),
		size: h.uint(data[h.offsetSize : h.offsetSize+h.lengthSize]),
	}, true
}

func (h *headerReader) uint(b []byte) uint64 {
	switch len(b) {
	case 2:
		return uint64(h.order.Uint16(b))
	case 4:
		return uint64(h.order.Uint32(b))
	case 8:
		return h.order.Uint64(b)
	default:
		return 0
	}
}
