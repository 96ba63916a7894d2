package memory

import "testing"

func TestMBC2(t *testing.T) {
	rom := make([]uint8, 4*0x4000)
	for i := range rom {
		rom[i] = uint8(i / 0x4000)
	}
	mbc := NewMBC2(rom, true)

	t.Run("RAM disabled by default", func(t *testing.T) {
		if got := mbc.Read(0xA000); got != 0xFF {
			t.Errorf("Read = 0x%02X; want 0xFF", got)
		}
	})

	t.Run("RAM enable uses address bit 8 clear", func(t *testing.T) {
		mbc.Write(0x0000, 0x0A) // address bit 8 clear -> RAM enable path
		mbc.Write(0xA000, 0x07)
		got := mbc.Read(0xA000)
		if got != 0xF7 {
			t.Errorf("Read = 0x%02X; want 0xF7 (upper nibble forced high)", got)
		}
	})

	t.Run("ROM bank select uses address bit 8", func(t *testing.T) {
		mbc.Write(0x0100, 3) // address bit 8 set -> rom bank select path
		got := mbc.Read(0x4000)
		if got != 3 {
			t.Errorf("Read(0x4000) = %d; want bank 3", got)
		}
	})

	t.Run("bank 0 translates to 1", func(t *testing.T) {
		mbc.Write(0x0100, 0)
		if got := mbc.Read(0x4000); got != 1 {
			t.Errorf("Read(0x4000) = %d; want bank 1", got)
		}
	})
}

func TestMBC3(t *testing.T) {
	rom := make([]uint8, 4*0x4000)
	for i := range rom {
		rom[i] = uint8(i / 0x4000)
	}

	t.Run("RAM banking", func(t *testing.T) {
		mbc := NewMBC3(rom, true, true, 4)
		mbc.Write(0x0000, 0x0A)
		mbc.Write(0x4000, 0x01)
		mbc.Write(0xA000, 0x55)
		if got := mbc.Read(0xA000); got != 0x55 {
			t.Errorf("Read(0xA000) = 0x%02X; want 0x55", got)
		}
	})

	t.Run("RTC register select and advance", func(t *testing.T) {
		mbc := NewMBC3(rom, true, true, 0)
		mbc.Write(0x0000, 0x0A)

		mbc.Tick(4194304 * 61) // 61 seconds

		mbc.Write(0x4000, 0x08) // select seconds register
		if got := mbc.Read(0xA000); got != 1 {
			t.Errorf("seconds register = %d; want 1", got)
		}
		mbc.Write(0x4000, 0x09) // select minutes register
		if got := mbc.Read(0xA000); got != 1 {
			t.Errorf("minutes register = %d; want 1", got)
		}
	})

	t.Run("halt bit freezes the clock", func(t *testing.T) {
		mbc := NewMBC3(rom, true, true, 0)
		mbc.Write(0x0000, 0x0A)
		mbc.Write(0x4000, 0x0C) // days-high/flags register
		mbc.Write(0xA000, 0x40) // set halt bit

		mbc.Tick(4194304 * 5)

		mbc.Write(0x4000, 0x08)
		if got := mbc.Read(0xA000); got != 0 {
			t.Errorf("seconds register = %d; want 0 while halted", got)
		}
	})

	t.Run("latch mirrors live values", func(t *testing.T) {
		mbc := NewMBC3(rom, true, true, 0)
		mbc.Tick(4194304 * 3)
		mbc.Write(0x6000, 0x00)
		mbc.Write(0x6000, 0x01)
		live, latched := mbc.RTC()
		if live != latched {
			t.Errorf("latched = %v; want mirror of live %v", latched, live)
		}
	})
}

func TestMBC5(t *testing.T) {
	rom := make([]uint8, 4*0x4000)
	for i := range rom {
		rom[i] = uint8(i / 0x4000)
	}
	mbc := NewMBC5(rom, true, false, 2)

	t.Run("9-bit rom bank addressing", func(t *testing.T) {
		mbc.Write(0x2000, 0xFF)
		mbc.Write(0x3000, 0x01) // bank 0x1FF, wraps into the 4-bank test ROM
		got := mbc.Read(0x4000)
		want := uint8((0x1FF) % 4)
		if got != want {
			t.Errorf("Read(0x4000) = %d; want %d", got, want)
		}
	})

	t.Run("RAM banking", func(t *testing.T) {
		mbc.Write(0x0000, 0x0A)
		mbc.Write(0x4000, 0x01)
		mbc.Write(0xA000, 0x77)
		if got := mbc.Read(0xA000); got != 0x77 {
			t.Errorf("Read(0xA000) = 0x%02X; want 0x77", got)
		}
	})
}
