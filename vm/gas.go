package vm

import "github.com/vertexvm/vertexvm/opcode"

// Gas tracks metered execution cost against a limit. Used is cumulative;
// Invoke traps with ErrOutOfGas the instant Used would exceed Limit.
type Gas struct {
	Used  uint64
	Limit uint64
}

// GasPolicy prices opcodes and memory growth. A VM charges GetCostForOp
// once per dispatched instruction and GetCostForMalloc once per page
// memory.grow adds.
type GasPolicy interface {
	GetCostForOp(op opcode.Opcode) uint64
	GetCostForMalloc(pages int) uint64
}

// FreeGasPolicy charges nothing; gas accounting is disabled in practice.
type FreeGasPolicy struct{}

func (p *FreeGasPolicy) GetCostForOp(op opcode.Opcode) uint64  { return 0 }
func (p *FreeGasPolicy) GetCostForMalloc(pages int) uint64     { return 0 }

// SimpleGasPolicy charges a flat 1 gas per instruction and 1024 gas per
// page allocated, a coarse but uniform metering baseline.
type SimpleGasPolicy struct{}

func (p *SimpleGasPolicy) GetCostForOp(op opcode.Opcode) uint64 { return 1 }
func (p *SimpleGasPolicy) GetCostForMalloc(pages int) uint64    { return uint64(pages) * 1024 }
