package engine

import (
	"fmt"
	"math"

	"github.com/tetratelabs/wazero/api"
)

// WazeroMemory wraps wazero memory to implement resvgruntime.Memory.
// Addresses above the 32-bit guest space are out of bounds.
type WazeroMemory struct {
	mem api.Memory
}

// WrapMemory wraps a wazero api.Memory. It returns nil for nil.
func WrapMemory(mem api.Memory) *WazeroMemory {
	if mem == nil {
		return nil
	}
	return &WazeroMemory{mem: mem}
}

func guestRange(addr, length uint64) (uint32, uint32, error) {
	if addr > math.MaxUint32 || length > math.MaxUint32 {
		return 0, 0, fmt.Errorf("memory access out of bounds: addr=%#x, length=%d exceeds 32-bit guest", addr, length)
	}
	return uint32(addr), uint32(length), nil
}

// Read returns a view of guest memory; it is invalidated by memory growth.
func (m *WazeroMemory) Read(addr uint64, length uint64) ([]byte, error) {
	off, n, err := guestRange(addr, length)
	if err != nil {
		return nil, err
	}
	data, ok := m.mem.Read(off, n)
	if !ok {
		return nil, fmt.Errorf("memory read out of bounds: offset=%d, length=%d", off, n)
	}
	return data, nil
}

func (m *WazeroMemory) Write(addr uint64, data []byte) error {
	off, _, err := guestRange(addr, uint64(len(data)))
	if err != nil {
		return err
	}
	if !m.mem.Write(off, data) {
		return fmt.Errorf("memory write out of bounds: offset=%d, length=%d", off, len(data))
	}
	return nil
}

func (m *WazeroMemory) ReadU8(addr uint64) (uint8, error) {
	off, _, err := guestRange(addr, 1)
	if err != nil {
		return 0, err
	}
	v, ok := m.mem.ReadByte(off)
	if !ok {
		return 0, fmt.Errorf("memory read out of bounds: offset=%d", off)
	}
	return v, nil
}

func (m *WazeroMemory) ReadU32(addr uint64) (uint32, error) {
	off, _, err := guestRange(addr, 4)
	if err != nil {
		return 0, err
	}
	v, ok := m.mem.ReadUint32Le(off)
	if !ok {
		return 0, fmt.Errorf("memory read out of bounds: offset=%d", off)
	}
	return v, nil
}

func (m *WazeroMemory) ReadU64(addr uint64) (uint64, error) {
	off, _, err := guestRange(addr, 8)
	if err != nil {
		return 0, err
	}
	v, ok := m.mem.ReadUint64Le(off)
	if !ok {
		return 0, fmt.Errorf("memory read out of bounds: offset=%d", off)
	}
	return v, nil
}

func (m *WazeroMemory) WriteU8(addr uint64, value uint8) error {
	off, _, err := guestRange(addr, 1)
	if err != nil {
		return err
	}
	if !m.mem.WriteByte(off, value) {
		return fmt.Errorf("memory write out of bounds: offset=%d", off)
	}
	return nil
}

func (m *WazeroMemory) WriteU32(addr uint64, value uint32) error {
	off, _, err := guestRange(addr, 4)
	if err != nil {
		return err
	}
	if !m.mem.WriteUint32Le(off, value) {
		return fmt.Errorf("memory write out of bounds: offset=%d", off)
	}
	return nil
}

func (m *WazeroMemory) WriteU64(addr uint64, value uint64) error {
	off, _, err := guestRange(addr, 8)
	if err != nil {
		return err
	}
	if !m.mem.WriteUint64Le(off, value) {
		return fmt.Errorf("memory write out of bounds: offset=%d", off)
	}
	return nil
}

// Size returns the current memory size in bytes.
func (m *WazeroMemory) Size() uint32 {
	return m.mem.Size()
}
