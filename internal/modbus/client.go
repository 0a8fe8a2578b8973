// internal/modbus/client.go
package modbus

import (
	"errors"
	"fmt"
	"time"

	mb "github.com/goburrow/modbus"
)

// Config is minimal transport config for one controller endpoint.
type Config struct {
	Host    string
	Port    int
	UnitID  uint8
	Timeout time.Duration
}

// Endpoint returns the host:port dial address.
func (c Config) Endpoint() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// Client is a single Modbus TCP connection to the controller. It is not
// safe for concurrent use; every owner holds its own connection.
type Client struct {
	handler *mb.TCPClientHandler
	client  mb.Client
}

// Dial opens a connected client. Failures are ConnError.
func Dial(cfg Config) (*Client, error) {
	h := mb.NewTCPClientHandler(cfg.Endpoint())
	h.Timeout = cfg.Timeout
	h.SlaveId = cfg.UnitID

	if err := h.Connect(); err != nil {
		return nil, &ConnError{Err: err}
	}

	return &Client{
		handler: h,
		client:  mb.NewClient(h),
	}, nil
}

// Close closes the TCP connection.
func (c *Client) Close() error {
	if c == nil || c.handler == nil {
		return nil
	}
	return c.handler.Close()
}

// SetUnitID switches the unit identifier for subsequent requests.
// Used by the diagnostic scanner's alternate-unit probe.
func (c *Client) SetUnitID(id uint8) {
	c.handler.SlaveId = id
}

func (c *Client) ReadHoldingRegisters(addr, qty uint16) ([]uint16, error) {
	raw, err := c.client.ReadHoldingRegisters(addr, qty)
	if err != nil {
		return nil, classify(err)
	}
	return unpackRegisters(raw), nil
}

func (c *Client) ReadInputRegisters(addr, qty uint16) ([]uint16, error) {
	raw, err := c.client.ReadInputRegisters(addr, qty)
	if err != nil {
		return nil, classify(err)
	}
	return unpackRegisters(raw), nil
}

func (c *Client) ReadCoils(addr, qty uint16) ([]bool, error) {
	raw, err := c.client.ReadCoils(addr, qty)
	if err != nil {
		return nil, classify(err)
	}
	return unpackBits(raw, int(qty)), nil
}

func (c *Client) WriteCoil(addr uint16, on bool) error {
	var value uint16
	if on {
		value = 0xFF00
	}
	_, err := c.client.WriteSingleCoil(addr, value)
	return classify(err)
}

func (c *Client) WriteRegister(addr, value uint16) error {
	_, err := c.client.WriteSingleRegister(addr, value)
	return classify(err)
}

func (c *Client) WriteRegisters(addr uint16, values []uint16) error {
	_, err := c.client.WriteMultipleRegisters(addr, uint16(len(values)), packRegisters(values))
	return classify(err)
}

// ---- error taxonomy ----

// ConnError means the transport is unreachable or the connection died.
type ConnError struct {
	Err error
}

func (e *ConnError) Error() string { return "modbus: connection error: " + e.Err.Error() }
func (e *ConnError) Unwrap() error { return e.Err }

// ProtoError means the peer returned an explicit Modbus exception response.
type ProtoError struct {
	Err error
}

func (e *ProtoError) Error() string { return "modbus: protocol error: " + e.Err.Error() }
func (e *ProtoError) Unwrap() error { return e.Err }

// Code returns the raw exception code, best effort.
func (e *ProtoError) Code() uint16 {
	var me *mb.ModbusError
	if errors.As(e.Err, &me) {
		return uint16(me.ExceptionCode)
	}
	return 1
}

// classify sorts a request error into the taxonomy: an explicit exception
// response from the peer is a ProtoError, everything else is transport.
func classify(err error) error {
	if err == nil {
		return nil
	}
	var me *mb.ModbusError
	if errors.As(err, &me) {
		return &ProtoError{Err: err}
	}
	return &ConnError{Err: err}
}

// ---- helpers (pure geometry) ----

func unpackRegisters(data []byte) []uint16 {
	n := len(data) / 2
	out := make([]uint16, n)
	for i := 0; i < n; i++ {
		out[i] = uint16(data[2*i])<<8 | uint16(data[2*i+1])
	}
	return out
}

func packRegisters(regs []uint16) []byte {
	out := make([]byte, len(regs)*2)
	for i, r := range regs {
		out[2*i] = byte(r >> 8)
		out[2*i+1] = byte(r)
	}
	return out
}

func unpackBits(data []byte, count int) []bool {
	out := make([]bool, count)
	for i := 0; i < count; i++ {
		byteIdx := i / 8
		bitIdx := i % 8
		if byteIdx >= len(data) {
			continue
		}
		out[i] = data[byteIdx]&(1<<bitIdx) != 0
	}
	return out
}
