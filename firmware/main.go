//go:build tinygo

//go:generate tinygo flash -target=xiao

// Firmware for a pulse-to-serial bridge: every detector edge on PIN_PULSE is
// written to the UART as one byte, so the host counts pulses by counting
// received bytes.
package main

import (
	"machine"
	"sync/atomic"
	"time"
)

var (
	uart = machine.DefaultUART

	// Edges seen by the interrupt handler and not yet written.
	pending atomic.Uint32

	lastBlink time.Time
)

func main() {
	PIN_LED.Configure(machine.PinConfig{Mode: machine.PinOutput})
	PIN_LED.High() // Active low

	uart.Configure(machine.UARTConfig{
		BaudRate: UART_BAUD_RATE,
		TX:       PIN_UART_TX,
		RX:       PIN_UART_RX,
	})

	PIN_PULSE.Configure(machine.PinConfig{Mode: PULSE_PULL})
	// No debounce: detector pulses are shorter than any useful debounce window.
	if err := PIN_PULSE.SetInterrupt(PULSE_EDGE, onPulse); err != nil {
		for {
			blink(50 * time.Millisecond)
		}
	}

	for {
		n := pending.Swap(0)
		// The host undercounts either way once the UART falls a second behind.
		n = min(n, MAX_BACKLOG)
		for range n {
			uart.WriteByte(PULSE_BYTE)
		}
		if n > 0 && time.Since(lastBlink) > BLINK_PERIOD {
			PIN_LED.Set(!PIN_LED.Get())
			lastBlink = time.Now()
		}
		if n == 0 {
			time.Sleep(IDLE_SLEEP)
		}
	}
}

func onPulse(machine.Pin) {
	pending.Add(1)
}

func blink(d time.Duration) {
	PIN_LED.Low()
	time.Sleep(d)
	PIN_LED.High()
	time.Sleep(d)
}
