//go:build tinygo

package main

import (
	"machine"
	"time"
)

const (
	// Detector input: the shaped pulse pulls the line low for ~150 µs.
	PIN_PULSE  = machine.D1
	PULSE_EDGE = machine.PinFalling
	PULSE_PULL = machine.PinInputPullup

	PIN_LED = machine.LED

	PIN_UART_TX = machine.UART_TX_PIN
	PIN_UART_RX = machine.UART_RX_PIN

	// Serial configuration
	// UART 8N1: 10 bits/byte, so 921600 baud carries 92160 pulses/s, well above
	// the ~8000 cps ceiling of a 125 µs paralyzing tube.
	UART_BAUD_RATE = 921600
	// Any byte counts as a pulse; 0x55 keeps the line toggling evenly.
	PULSE_BYTE = 0x55

	// One second of bytes at full baud rate; older edges are dropped.
	MAX_BACKLOG = UART_BAUD_RATE / 10

	IDLE_SLEEP   = 50 * time.Microsecond
	BLINK_PERIOD = 100 * time.Millisecond
)
