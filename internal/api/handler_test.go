package api

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/stationlink/stationcfg/internal/deviceconfig"
	"github.com/stationlink/stationcfg/internal/schema"
	"github.com/stationlink/stationcfg/internal/simulator"
	"github.com/stationlink/stationcfg/internal/transport"
)

const testKey = "2B7E151628AED2A6ABF7158809CF4F3C"

type mockSections struct {
	mock.Mock
}

func (m *mockSections) Update(ctx context.Context, ns schema.Namespace, changes map[string]string) error {
	args := m.Called(ctx, ns, changes)
	return args.Error(0)
}

func (m *mockSections) Device() transport.Device {
	return transport.Device{ID: "AA"}
}

func (m *mockSections) Read(ctx context.Context, ns schema.Namespace) (*schema.Section, error) {
	args := m.Called(ctx, ns)
	sec, _ := args.Get(0).(*schema.Section)
	return sec, args.Error(1)
}

func (m *mockSections) Write(ctx context.Context, ns schema.Namespace, raw map[string]string) error {
	args := m.Called(ctx, ns, raw)
	return args.Error(0)
}

func newSimulatorAPI(t *testing.T, opts ...Option) (*httptest.Server, *simulator.Station) {
	t.Helper()
	st := simulator.NewStation("C0:FF:EE:00:00:01", "station-1")
	s, err := deviceconfig.NewManager(simulator.NewFleet(st)).Open(st.Device())
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	ts := httptest.NewServer(NewHandler(s, opts...).Router())
	t.Cleanup(ts.Close)
	return ts, st
}

func do(t *testing.T, method, url, body string) (*http.Response, []byte) {
	t.Helper()
	req, err := http.NewRequest(method, url, strings.NewReader(body))
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, data
}

func TestListSections(t *testing.T) {
	ts, _ := newSimulatorAPI(t)

	resp, body := do(t, http.MethodGet, ts.URL+"/api/v1/sections", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var list ListSectionsResponse
	require.NoError(t, json.Unmarshal(body, &list))
	assert.Equal(t, "C0:FF:EE:00:00:01", list.Device.ID)
	require.Len(t, list.Sections, len(schema.All()))

	var lorawan SectionInfo
	for _, s := range list.Sections {
		if s.Namespace == "lorawan" {
			lorawan = s
		}
	}
	assert.Equal(t, "180A/2A41", lorawan.Locator)
	require.NotEmpty(t, lorawan.Fields)
	for _, f := range lorawan.Fields {
		if f.Key == "appSKey" {
			assert.True(t, f.Secret)
		}
	}
}

func TestGetSection(t *testing.T) {
	ts, _ := newSimulatorAPI(t)

	resp, body := do(t, http.MethodGet, ts.URL+"/api/v1/sections/system", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var sec SectionResponse
	require.NoError(t, json.Unmarshal(body, &sec))
	assert.Equal(t, "system", sec.Namespace)
	assert.EqualValues(t, 60, sec.Values["sleep_time"])
	assert.Equal(t, false, sec.Values["initialized"])

	resp, _ = do(t, http.MethodGet, ts.URL+"/api/v1/sections/bogus", "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestPutSection(t *testing.T) {
	ts, st := newSimulatorAPI(t)

	resp, _ := do(t, http.MethodPut, ts.URL+"/api/v1/sections/system", `{"sleep_time": 300, "initialized": true}`)
	require.Equal(t, http.StatusNoContent, resp.StatusCode)
	assert.Equal(t, int64(300), st.Section(schema.System)["sleep_time"])
	assert.Equal(t, true, st.Section(schema.System)["initialized"])

	resp, body := do(t, http.MethodPut, ts.URL+"/api/v1/sections/system", `{"ts": "5", "nope": "1"}`)
	require.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
	var e ErrorResponse
	require.NoError(t, json.Unmarshal(body, &e))
	assert.Contains(t, e.Violations, "nope")
	assert.EqualValues(t, 1, st.Writes())

	resp, _ = do(t, http.MethodPut, ts.URL+"/api/v1/sections/system", `[1,2]`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, _ = do(t, http.MethodPut, ts.URL+"/api/v1/sections/system", `{"sleep_time": [1]}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestPatchSection(t *testing.T) {
	ts, st := newSimulatorAPI(t)
	st.SetSection(schema.System, map[string]any{
		"initialized": true,
		"sleep_time":  int64(60),
		"deviceId":    "C0:FF:EE:00:00:01",
		"stationId":   "north-field",
	})

	resp, _ := do(t, http.MethodPatch, ts.URL+"/api/v1/sections/system", `{"sleep_time": "120"}`)
	require.Equal(t, http.StatusNoContent, resp.StatusCode)
	assert.Equal(t, int64(120), st.Section(schema.System)["sleep_time"])
	assert.Equal(t, "north-field", st.Section(schema.System)["stationId"])
	assert.Equal(t, true, st.Section(schema.System)["initialized"])
}

func TestSecretsMasked(t *testing.T) {
	for _, show := range []bool{false, true} {
		t.Run(fmt.Sprintf("show=%v", show), func(t *testing.T) {
			ts, _ := newSimulatorAPI(t, WithSecrets(show))

			put := fmt.Sprintf(`{"devAddr":"00bfe104","fNwkSIntKey":%q,"sNwkSIntKey":%q,"nwkSEncKey":%q,"appSKey":%q}`,
				testKey, testKey, testKey, testKey)
			resp, _ := do(t, http.MethodPut, ts.URL+"/api/v1/sections/lorawan", put)
			require.Equal(t, http.StatusNoContent, resp.StatusCode)

			resp, body := do(t, http.MethodGet, ts.URL+"/api/v1/sections/lorawan", "")
			require.Equal(t, http.StatusOK, resp.StatusCode)
			var sec SectionResponse
			require.NoError(t, json.Unmarshal(body, &sec))

			if show {
				assert.Equal(t, testKey, sec.Values["appSKey"])
			} else {
				assert.Equal(t, deviceconfig.MaskKey(testKey), sec.Values["appSKey"])
			}
			assert.Equal(t, "00BFE104", sec.Values["devAddr"])
		})
	}
}

func TestErrorStatus(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
	}{
		{"transport", deviceconfig.NewTransportError("AA", schema.PH, deviceconfig.PhaseFetching, transport.ErrNotConnected), http.StatusBadGateway},
		{"timeout", deviceconfig.NewTransportError("AA", schema.PH, deviceconfig.PhaseFetching, context.DeadlineExceeded), http.StatusGatewayTimeout},
		{"decode", deviceconfig.NewDecodeError("AA", schema.PH, fmt.Errorf("bad")), http.StatusBadGateway},
		{"closed", deviceconfig.NewSessionClosedError("AA"), http.StatusConflict},
		{"other", fmt.Errorf("boom"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := &mockSections{}
			m.On("Read", mock.Anything, schema.PH).Return(nil, tt.err)

			ts := httptest.NewServer(NewHandler(m).Router())
			defer ts.Close()

			resp, body := do(t, http.MethodGet, ts.URL+"/api/v1/sections/ph", "")
			assert.Equal(t, tt.status, resp.StatusCode)
			var e ErrorResponse
			require.NoError(t, json.Unmarshal(body, &e))
			assert.NotEmpty(t, e.Error)
			m.AssertExpectations(t)
		})
	}
}

func TestPutPassesFieldText(t *testing.T) {
	m := &mockSections{}
	m.On("Write", mock.Anything, schema.PH, map[string]string{
		"ph_v1": "0.5",
		"ph_t1": "4",
		"ph_v2": "",
	}).Return(nil)

	ts := httptest.NewServer(NewHandler(m).Router())
	defer ts.Close()

	resp, _ := do(t, http.MethodPut, ts.URL+"/api/v1/sections/ph", `{"ph_v1": "0.5", "ph_t1": 4, "ph_v2": null}`)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	m.AssertExpectations(t)
}
