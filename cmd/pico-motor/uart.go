// cmd/pico-motor/uart.go
//go:build rp2040 || rp2350

package main

import (
	"context"
	"io"
	"machine"

	uartx "github.com/jangala-dev/tinygo-uartx/uartx"

	"motorcode-go/services/bridge"
)

// installUARTDial points the bridge's uart transport at the uartx port
// matching the configured pins.
func installUARTDial() {
	bridge.UARTDial = func(ctx context.Context, u bridge.UARTConfig) (io.ReadWriteCloser, error) {
		hw := uartFor(u.TxPin)
		if err := hw.Configure(uartx.UARTConfig{
			BaudRate: uint32(u.Baud),
			TX:       machine.Pin(u.TxPin),
			RX:       machine.Pin(u.RxPin),
		}); err != nil {
			return nil, err
		}
		return &uartPort{ctx: ctx, u: hw}, nil
	}
}

// uartFor selects the peripheral by TX pin. UART1 owns GP4/8/20/24 for TX
// on the RP2; everything else falls to UART0.
func uartFor(tx int) *uartx.UART {
	switch tx {
	case 4, 8, 20, 24:
		return uartx.UART1
	default:
		return uartx.UART0
	}
}

// uartPort adapts uartx to the bridge's stream interface. Reads unblock
// when the link context is cancelled.
type uartPort struct {
	ctx context.Context
	u   *uartx.UART
}

func (p *uartPort) Read(b []byte) (int, error)  { return p.u.RecvSomeContext(p.ctx, b) }
func (p *uartPort) Write(b []byte) (int, error) { return p.u.Write(b) }
func (p *uartPort) Close() error                { return nil }
