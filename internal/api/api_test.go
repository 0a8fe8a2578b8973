// internal/api/api_test.go
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tamzrod/cnc-monitor/internal/command"
	"github.com/tamzrod/cnc-monitor/internal/modbus"
	"github.com/tamzrod/cnc-monitor/internal/scan"
	"github.com/tamzrod/cnc-monitor/internal/state"
)

type fakeConn struct {
	coilAddr *uint16
	regAddr  *uint16
	regValue *uint16
}

func (f *fakeConn) ReadHoldingRegisters(addr, qty uint16) ([]uint16, error) {
	return make([]uint16, qty), nil
}

func (f *fakeConn) WriteCoil(addr uint16, on bool) error {
	f.coilAddr = &addr
	return nil
}

func (f *fakeConn) WriteRegister(addr, value uint16) error {
	f.regAddr, f.regValue = &addr, &value
	return nil
}

func (f *fakeConn) WriteRegisters(addr uint16, values []uint16) error { return nil }
func (f *fakeConn) Close() error                                      { return nil }

func newTestServer(t *testing.T, dial command.Dialer) (*Server, *state.Store) {
	t.Helper()

	store := state.NewStore()
	issuer, err := command.New(dial, zerolog.Nop(), nil)
	require.NoError(t, err)

	scanner, err := scan.New(func() (scan.Conn, error) {
		return nil, &modbus.ConnError{Err: errors.New("scan transport down")}
	}, zerolog.Nop(), nil)
	require.NoError(t, err)

	return New(store, issuer, scanner, nil, 1, zerolog.Nop()), store
}

func TestStatusEndpoint(t *testing.T) {
	srv, store := newTestServer(t, func() (command.Conn, error) { return &fakeConn{}, nil })
	store.Replace(state.MachineState{Connected: true, SpindleRPM: 1200, LotCount: 3, LotTarget: 10})

	rec := httptest.NewRecorder()
	srv.Routes(nil).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/status", nil))

	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, true, body["connected"])
	assert.Equal(t, float64(1200), body["spindle_rpm"])
	assert.Equal(t, 30.0, body["lot_progress_pct"])
}

func TestCommandEndpoint(t *testing.T) {
	conn := &fakeConn{}
	srv, _ := newTestServer(t, func() (command.Conn, error) { return conn, nil })

	req := httptest.NewRequest(http.MethodPost, "/api/command", strings.NewReader(`{"command":"cycle_start"}`))
	rec := httptest.NewRecorder()
	srv.Routes(nil).ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.NotNil(t, conn.coilAddr)
	assert.Equal(t, uint16(0), *conn.coilAddr)
}

func TestCommandEndpointRejectsUnknownCommand(t *testing.T) {
	dials := 0
	srv, _ := newTestServer(t, func() (command.Conn, error) {
		dials++
		return &fakeConn{}, nil
	})

	req := httptest.NewRequest(http.MethodPost, "/api/command", strings.NewReader(`{"command":"rm_rf"}`))
	rec := httptest.NewRecorder()
	srv.Routes(nil).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, 0, dials)
}

func TestCommandEndpointTransportDown(t *testing.T) {
	srv, _ := newTestServer(t, func() (command.Conn, error) {
		return nil, &modbus.ConnError{Err: errors.New("connection refused")}
	})

	req := httptest.NewRequest(http.MethodPost, "/api/command", strings.NewReader(`{"command":"reset"}`))
	rec := httptest.NewRecorder()
	srv.Routes(nil).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestLotTargetValidation(t *testing.T) {
	dials := 0
	srv, _ := newTestServer(t, func() (command.Conn, error) {
		dials++
		return &fakeConn{}, nil
	})

	for _, body := range []string{`{"target":-1}`, `{"target":3.5}`, `{"target":true}`, `{}`} {
		req := httptest.NewRequest(http.MethodPost, "/api/lot/target", strings.NewReader(body))
		rec := httptest.NewRecorder()
		srv.Routes(nil).ServeHTTP(rec, req)
		assert.Equal(t, http.StatusBadRequest, rec.Code, "body %s", body)
	}
	assert.Equal(t, 0, dials, "validation failures must not touch the transport")
}

func TestLotTargetWrite(t *testing.T) {
	conn := &fakeConn{}
	srv, _ := newTestServer(t, func() (command.Conn, error) { return conn, nil })

	req := httptest.NewRequest(http.MethodPost, "/api/lot/target", strings.NewReader(`{"target":250}`))
	rec := httptest.NewRecorder()
	srv.Routes(nil).ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.NotNil(t, conn.regValue)
	assert.Equal(t, uint16(250), *conn.regValue)
}

func TestScanEndpointTransportDown(t *testing.T) {
	srv, _ := newTestServer(t, func() (command.Conn, error) { return &fakeConn{}, nil })

	req := httptest.NewRequest(http.MethodPost, "/api/scan", strings.NewReader(`{}`))
	rec := httptest.NewRecorder()
	srv.Routes(nil).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestHistoryDisabled(t *testing.T) {
	srv, _ := newTestServer(t, func() (command.Conn, error) { return &fakeConn{}, nil })

	rec := httptest.NewRecorder()
	srv.Routes(nil).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/history", nil))

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestMethodGuards(t *testing.T) {
	srv, _ := newTestServer(t, func() (command.Conn, error) { return &fakeConn{}, nil })
	mux := srv.Routes(nil)

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/status", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)

	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/command", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}
