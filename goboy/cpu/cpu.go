package cpu

import "github.com/arnegreiner/goboy/goboy/bit"

// Flag is one of the 4 possible flags used in the flag register (low nibble
// of F is always zero, only the high nibble carries meaning).
type Flag uint8

const (
	zeroFlag      Flag = 0x80
	subFlag       Flag = 0x40
	halfCarryFlag Flag = 0x20
	carryFlag     Flag = 0x10
)

// Bus is the memory-mapped interface the CPU drives. A *memory.MMU
// satisfies it directly and is what production code passes in; the PPU is
// not behind Bus and is ticked separately after each Step.
type Bus interface {
	Read(address uint16) byte
	Write(address uint16, value byte)
	Tick(cycles int)
}

// CPU holds the full register and control state of the LR35902 core.
type CPU struct {
	bus Bus

	a, b, c, d, e, h, l uint8
	f                   uint8
	sp, pc              uint16

	currentOpcode uint16
	cycles        uint64

	interruptsEnabled bool
	eiPending         bool
	halted            bool
	haltBug           bool
	stopped           bool
}

// New returns a CPU wired to bus, with registers set to the values the
// hardware leaves them in immediately after the boot ROM hands off control.
func New(bus Bus) *CPU {
	return &CPU{
		bus: bus,
		a:   0x01, f: 0xB0,
		b: 0x00, c: 0x13,
		d: 0x00, e: 0xD8,
		h: 0x01, l: 0x4D,
		sp: 0xFFFE,
		pc: 0x0100,
	}
}

// GetPC returns the current program counter, for debuggers and disassembly views.
func (c *CPU) GetPC() uint16 { return c.pc }

// GetSP returns the current stack pointer.
func (c *CPU) GetSP() uint16 { return c.sp }

// IME reports whether the master interrupt enable is currently set.
func (c *CPU) IME() bool { return c.interruptsEnabled }

// Halted reports whether the CPU is currently in the HALT low-power state.
func (c *CPU) Halted() bool { return c.halted }

// Cycles returns the running total of clock cycles executed since New.
func (c *CPU) Cycles() uint64 { return c.cycles }

// Registers returns every 8-bit register, in A,F,B,C,D,E,H,L order, for debuggers.
func (c *CPU) Registers() (a, f, b, cReg, d, e, h, l uint8) {
	return c.a, c.f, c.b, c.c, c.d, c.e, c.h, c.l
}

// State captures every field a save-state codec needs to restore the CPU
// to an identical point in execution.
type State struct {
	PC, SP                 uint16
	A, F, B, C, D, E, H, L uint8
	IME                    bool
	Halted                 bool
	Cycles                 uint64
}

// State returns a snapshot of the current CPU state.
func (c *CPU) State() State {
	return State{
		PC: c.pc, SP: c.sp,
		A: c.a, F: c.f, B: c.b, C: c.c, D: c.d, E: c.e, H: c.h, L: c.l,
		IME:    c.interruptsEnabled,
		Halted: c.halted,
		Cycles: c.cycles,
	}
}

// Restore overwrites every CPU register and control flag from s. Pending
// EI-delay and HALT-bug state are cleared, matching a fresh restore point
// rather than mid-instruction resumption.
func (c *CPU) Restore(s State) {
	c.pc, c.sp = s.PC, s.SP
	c.a, c.f, c.b, c.c, c.d, c.e, c.h, c.l = s.A, s.F&0xF0, s.B, s.C, s.D, s.E, s.H, s.L
	c.interruptsEnabled = s.IME
	c.halted = s.Halted
	c.cycles = s.Cycles
	c.eiPending = false
	c.haltBug = false
	c.stopped = false
}

func (c *CPU) getAF() uint16 { return bit.Combine(c.a, c.f) }
func (c *CPU) setAF(v uint16) {
	c.a = bit.High(v)
	c.f = bit.Low(v) & 0xF0
}

func (c *CPU) getBC() uint16 { return bit.Combine(c.b, c.c) }
func (c *CPU) setBC(v uint16) {
	c.b = bit.High(v)
	c.c = bit.Low(v)
}

func (c *CPU) getDE() uint16 { return bit.Combine(c.d, c.e) }
func (c *CPU) setDE(v uint16) {
	c.d = bit.High(v)
	c.e = bit.Low(v)
}

func (c *CPU) getHL() uint16 { return bit.Combine(c.h, c.l) }
func (c *CPU) setHL(v uint16) {
	c.h = bit.High(v)
	c.l = bit.Low(v)
}

// read performs a single memory-mapped bus read and ticks the bus for the
// one machine cycle it costs. Every opcode that touches memory outside the
// fetch goes through this instead of calling c.bus.Read directly, so the
// timer/DMA/HDMA/serial/RTC/APU state the bus exposes advances at the same
// granularity real hardware would see it, rather than in a single lump sum
// after the whole instruction has already run.
func (c *CPU) read(address uint16) uint8 {
	value := c.bus.Read(address)
	c.bus.Tick(4)
	return value
}

// write performs a single memory-mapped bus write and ticks the bus for the
// machine cycle it costs, for the same reason read does.
func (c *CPU) write(address uint16, value uint8) {
	c.bus.Write(address, value)
	c.bus.Tick(4)
}

// readImmediate fetches the byte at pc and advances pc past it.
func (c *CPU) readImmediate() uint8 {
	value := c.read(c.pc)
	c.pc++
	return value
}

// readImmediateWord fetches the little-endian word starting at pc.
func (c *CPU) readImmediateWord() uint16 {
	low := c.readImmediate()
	high := c.readImmediate()
	return bit.Combine(high, low)
}

// readSignedImmediate fetches the byte at pc as a sign-extended offset.
func (c *CPU) readSignedImmediate() int8 {
	return int8(c.readImmediate())
}

func (c *CPU) setFlag(flag Flag) {
	c.f |= uint8(flag)
}

func (c *CPU) resetFlag(flag Flag) {
	c.f &^= uint8(flag)
}

func (c *CPU) isSetFlag(flag Flag) bool {
	return c.f&uint8(flag) != 0
}

func (c *CPU) setFlagToCondition(flag Flag, condition bool) {
	if condition {
		c.setFlag(flag)
	} else {
		c.resetFlag(flag)
	}
}

// flagToBit returns 1 if flag is set, 0 otherwise.
func (c *CPU) flagToBit(flag Flag) uint8 {
	if c.isSetFlag(flag) {
		return 1
	}
	return 0
}
