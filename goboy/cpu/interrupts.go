package cpu

import "github.com/arnegreiner/goboy/goboy/addr"

// handleInterrupts checks IF & IE for a pending interrupt and, if the
// master interrupt enable is set, dispatches the highest priority one:
// clears IME, clears the serviced IF bit, pushes pc and jumps to the
// interrupt's vector. It always reports whether an interrupt is pending,
// even when IME is false and no dispatch happens - callers use that to
// wake a halted CPU without servicing the interrupt.
func (c *CPU) handleInterrupts() bool {
	ifReg := c.bus.Read(addr.IF)
	ieReg := c.bus.Read(addr.IE)
	pending := ifReg & ieReg & 0x1F

	if pending == 0 {
		return false
	}

	if !c.interruptsEnabled {
		return true
	}

	for bitPos := uint8(0); bitPos < 5; bitPos++ {
		mask := uint8(1) << bitPos
		if pending&mask == 0 {
			continue
		}

		c.interruptsEnabled = false
		c.bus.Tick(8) // two internal cycles before the CPU pushes pc
		c.bus.Write(addr.IF, ifReg&^mask)
		c.pushStack(c.pc)
		c.bus.Tick(4) // latch the vector address into pc
		c.pc = addr.VectorFor(addr.Interrupt(mask))
		c.cycles += 20
		break
	}

	return true
}
