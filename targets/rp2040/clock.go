//go:build rp2040

package main

import (
	"device/rp"
	"runtime/interrupt"
	"runtime/volatile"
	"unsafe"

	"gotiki/core"
)

// RP2040 Timer peripheral memory map
const (
	timerBase     = 0x40054000
	timerALARM0   = timerBase + 0x10 // Alarm 0, armed on write
	timerTIMERAWH = timerBase + 0x24 // Raw timer high word
	timerTIMERAWL = timerBase + 0x28 // Raw timer low word
	timerINTR     = timerBase + 0x34 // Raw interrupts, write 1 to clear
	timerINTE     = timerBase + 0x38 // Interrupt enable
)

// tickRate is the runtime tick rate, derived from the 1MHz timer.
const tickRate core.TickRate = 1000

const usPerTick = 1000000 / uint32(tickRate)

// maxAlarm bounds how far ahead ALARM0 is armed, well inside the 32-bit
// microsecond compare range.
const maxAlarm = 3600 * uint32(tickRate)

var (
	timerRAWH   = (*volatile.Register32)(unsafe.Pointer(uintptr(timerTIMERAWH)))
	timerRAWL   = (*volatile.Register32)(unsafe.Pointer(uintptr(timerTIMERAWL)))
	timerAlarm0 = (*volatile.Register32)(unsafe.Pointer(uintptr(timerALARM0)))
	timerIntr   = (*volatile.Register32)(unsafe.Pointer(uintptr(timerINTR)))
	timerInte   = (*volatile.Register32)(unsafe.Pointer(uintptr(timerINTE)))

	// onAlarm runs in interrupt context when the programmed wake is due.
	onAlarm func()
)

// InitClock enables the ALARM0 interrupt. wake is called from the
// interrupt handler and must be interrupt safe.
func InitClock(wake func()) {
	onAlarm = wake
	timerInte.SetBits(1)
	intr := interrupt.New(rp.IRQ_TIMER_IRQ_0, alarmHandler)
	intr.Enable()
	UpdateSystemTime()
}

func alarmHandler(interrupt.Interrupt) {
	timerIntr.Set(1)
	if onAlarm != nil {
		onAlarm()
	}
}

// GetHardwareUptime reads the full 64-bit RP2040 hardware timer
func GetHardwareUptime() uint64 {
	// Must read high first, then low, then high again to detect rollover
	for {
		high1 := timerRAWH.Get()
		low := timerRAWL.Get()
		high2 := timerRAWH.Get()

		if high1 == high2 {
			return (uint64(high1) << 32) | uint64(low)
		}
	}
}

// UpdateSystemTime updates the runtime tick counter from the hardware timer.
// The tick counter wraps independently of the microsecond counter.
func UpdateSystemTime() {
	core.SetTime(core.Tick(GetHardwareUptime() / uint64(usPerTick)))
}

// programAlarm arms ALARM0 for the wake tick next.
func programAlarm(next core.Tick) {
	now := core.GetTime()
	delta := uint32(1)
	if core.LT(now, next) {
		delta = next - now
	}
	if delta > maxAlarm {
		delta = maxAlarm
	}
	timerAlarm0.Set(timerRAWL.Get() + delta*usPerTick)
}
