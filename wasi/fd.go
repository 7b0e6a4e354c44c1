package wasi

import (
	"encoding/binary"
	"io"

	"github.com/vertexvm/vertexvm/vm"
)

func readU32(v *vm.VM, offset uint32) (uint32, bool) {
	var buf [4]byte
	if _, err := v.MemRead(buf[:], int(offset)); err != nil {
		return 0, false
	}
	return binary.LittleEndian.Uint32(buf[:]), true
}

func writeU32(v *vm.VM, offset uint32, val uint32) bool {
	var buf [4]byte
	binary.LittleEndian.PutUint32(buf[:], val)
	_, err := v.MemWrite(buf[:], int(offset))
	return err == nil
}

func writeU64(v *vm.VM, offset uint32, val uint64) bool {
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], val)
	_, err := v.MemWrite(buf[:], int(offset))
	return err == nil
}

func (w *Preview1) writerFor(fd uint32) io.Writer {
	switch fd {
	case 1:
		return w.Stdout
	case 2:
		return w.Stderr
	default:
		return nil
	}
}

func (w *Preview1) readerFor(fd uint32) io.Reader {
	if fd == 0 {
		return w.Stdin
	}
	return nil
}

// fdWrite implements fd_write(fd, iovs, iovs_len, result.nwritten) -> errno.
// iovs is an array of {buf ptr u32, buf_len u32} pairs.
func (w *Preview1) fdWrite(v *vm.VM, args ...uint64) uint64 {
	fd := uint32(args[0])
	iovs := uint32(args[1])
	iovsLen := uint32(args[2])
	resultNwritten := uint32(args[3])

	out := w.writerFor(fd)
	if out == nil {
		return uint64(ErrnoBadf)
	}

	var total uint32
	for i := uint32(0); i < iovsLen; i++ {
		ptr, ok1 := readU32(v, iovs+i*8)
		ln, ok2 := readU32(v, iovs+i*8+4)
		if !ok1 || !ok2 {
			return uint64(ErrnoFault)
		}
		buf := make([]byte, ln)
		if _, err := v.MemRead(buf, int(ptr)); err != nil {
			return uint64(ErrnoFault)
		}
		n, err := out.Write(buf)
		total += uint32(n)
		if err != nil {
			return uint64(ErrnoIo)
		}
	}
	if !writeU32(v, resultNwritten, total) {
		return uint64(ErrnoFault)
	}
	return uint64(ErrnoSuccess)
}

// fdRead implements fd_read(fd, iovs, iovs_len, result.nread) -> errno.
func (w *Preview1) fdRead(v *vm.VM, args ...uint64) uint64 {
	fd := uint32(args[0])
	iovs := uint32(args[1])
	iovsLen := uint32(args[2])
	resultNread := uint32(args[3])

	in := w.readerFor(fd)
	if in == nil {
		return uint64(ErrnoBadf)
	}

	var total uint32
	for i := uint32(0); i < iovsLen; i++ {
		ptr, ok1 := readU32(v, iovs+i*8)
		ln, ok2 := readU32(v, iovs+i*8+4)
		if !ok1 || !ok2 {
			return uint64(ErrnoFault)
		}
		buf := make([]byte, ln)
		n, err := in.Read(buf)
		if n > 0 {
			if _, werr := v.MemWrite(buf[:n], int(ptr)); werr != nil {
				return uint64(ErrnoFault)
			}
			total += uint32(n)
		}
		if err != nil {
			break
		}
	}
	if !writeU32(v, resultNread, total) {
		return uint64(ErrnoFault)
	}
	return uint64(ErrnoSuccess)
}

func (w *Preview1) fdClose(v *vm.VM, args ...uint64) uint64 {
	if uint32(args[0]) > 2 {
		return uint64(ErrnoBadf)
	}
	return uint64(ErrnoSuccess)
}

// fdSeek always fails: stdio is not seekable and no other fd exists.
func (w *Preview1) fdSeek(v *vm.VM, args ...uint64) uint64 {
	if uint32(args[0]) > 2 {
		return uint64(ErrnoBadf)
	}
	return uint64(ErrnoSpipe)
}

// fdFdstatGet writes a minimal fdstat (24 bytes: filetype, flags, two
// rights bitmasks) reporting fd 0-2 as unrestricted character devices.
func (w *Preview1) fdFdstatGet(v *vm.VM, args ...uint64) uint64 {
	fd := uint32(args[0])
	result := uint32(args[1])
	if fd > 2 {
		return uint64(ErrnoBadf)
	}
	var buf [24]byte
	buf[0] = 2 // filetype: character_device
	binary.LittleEndian.PutUint64(buf[8:], ^uint64(0))
	binary.LittleEndian.PutUint64(buf[16:], ^uint64(0))
	if _, err := v.MemWrite(buf[:], int(result)); err != nil {
		return uint64(ErrnoFault)
	}
	return uint64(ErrnoSuccess)
}

// fdPrestatGet and fdPrestatDirName always report no preopened directory:
// this environment exposes no filesystem, so wasi-libc's preopen scan
// (which probes fds starting at 3 until this errors) terminates immediately.
func (w *Preview1) fdPrestatGet(v *vm.VM, args ...uint64) uint64 {
	return uint64(ErrnoBadf)
}

func (w *Preview1) fdPrestatDirName(v *vm.VM, args ...uint64) uint64 {
	return uint64(ErrnoBadf)
}
