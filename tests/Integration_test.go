package tests

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/suite"

	"venmux/internal/api"
	filebackend "venmux/internal/backends/file"
	"venmux/internal/manager"
	"venmux/internal/provider/mock"
	"venmux/internal/types"
)

const (
	TestServerPort = 39080
)

type IntegrationTestSuite struct {
	suite.Suite

	hub      *mock.Hub
	mgr      *manager.Manager
	cancel   context.CancelFunc
	stopChan chan<- struct{} // Send only
	doneChan <-chan error    // Receive only
}

func TestIntegrationTestSuite(t *testing.T) {
	suite.Run(t, new(IntegrationTestSuite))
}

func (s *IntegrationTestSuite) SetupSuite() {
	dir := s.T().TempDir()
	cfg := types.ServiceConfig{
		HTTPPort:          TestServerPort,
		PortRangeStart:    7000,
		PortRangeEnd:      7019,
		DataDir:           dir,
		QRRefreshSeconds:  60,
		RetrySweepSeconds: 300,
	}
	s.hub = mock.NewHub()
	s.mgr = manager.New(
		cfg,
		filebackend.NewVendorStore(dir),
		filebackend.NewConversationLog(dir),
		s.hub.Factory(),
		nil,
	)

	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	go s.mgr.Run(ctx)

	s.stopChan, s.doneChan = api.RunServerInterruptible(TestServerPort, s.mgr)
	s.waitForServer()
}

func (s *IntegrationTestSuite) TearDownSuite() {
	// Stop the server
	s.stopChan <- struct{}{}
	err := <-s.doneChan
	if err != nil {
		fmt.Println(err)
	}
	s.cancel()
}

func (s *IntegrationTestSuite) SetupTest() {
	manager.RestoreTimeNow()
	// Each test starts from an empty registry.
	for _, rec := range s.mgr.List(context.Background()) {
		s.NoError(s.mgr.Delete(context.Background(), rec.ID))
	}
}

func (s *IntegrationTestSuite) waitForServer() {
	for i := 0; i < 50; i++ {
		resp, err := http.Get(s.url("/health"))
		if err == nil {
			_ = resp.Body.Close()
			return
		}
		time.Sleep(50 * time.Millisecond)
	}
	s.FailNow("server never came up")
}

func (s *IntegrationTestSuite) url(path string) string {
	return fmt.Sprintf("http://localhost:%d%s", TestServerPort, path)
}

func (s *IntegrationTestSuite) postJSON(path string, payload any) *http.Response {
	body, err := json.Marshal(payload)
	if err != nil {
		s.FailNow("Failed to marshal payload", err)
	}
	resp, err := http.Post(s.url(path), "application/json", bytes.NewReader(body))
	s.Require().NoError(err)
	return resp
}

func (s *IntegrationTestSuite) decodeBody(resp *http.Response, dst any) {
	defer func() {
		_ = resp.Body.Close()
	}()
	content, err := io.ReadAll(resp.Body)
	s.Require().NoError(err)
	s.Require().NoError(json.Unmarshal(content, dst))
}

func (s *IntegrationTestSuite) registerVendor(name, number string) (id string, port int) {
	resp := s.postJSON("/vendors", map[string]string{"name": name, "assignedNumber": number})
	s.Require().Equal(http.StatusCreated, resp.StatusCode)
	var out struct {
		VendorID string `json:"vendorId"`
		Port     int    `json:"port"`
	}
	s.decodeBody(resp, &out)
	return out.VendorID, out.Port
}

func (s *IntegrationTestSuite) TestHealthCheck() {
	resp, err := http.Get(s.url("/health"))
	s.NoError(err)
	s.Equal(200, resp.StatusCode)
	_ = resp.Body.Close()
}

func (s *IntegrationTestSuite) TestMetricsEndpoint() {
	resp, err := http.Get(s.url("/metrics"))
	s.NoError(err)
	defer func() {
		_ = resp.Body.Close()
	}()
	s.Equal(200, resp.StatusCode)
	content, err := io.ReadAll(resp.Body)
	s.NoError(err)
	s.Contains(string(content), "venmux_vendors_registered_total")
}

// TestVendorLifecycle walks the whole flow over the wire: register, fetch the
// pairing image, confirm the session, send a message, read it back, and tear
// the vendor down.
func (s *IntegrationTestSuite) TestVendorLifecycle() {
	id, port := s.registerVendor("corner-store", "5215550100")
	s.GreaterOrEqual(port, 7000)

	// Pairing code arrives from the connection side.
	s.hub.Provider(id).IssueCode("pair-me")

	resp, err := http.Get(s.url("/vendors/" + id + "/qr"))
	s.NoError(err)
	s.Equal(http.StatusOK, resp.StatusCode)
	s.Equal("image/png", resp.Header.Get("Content-Type"))
	_ = resp.Body.Close()

	s.hub.Provider(id).ConfirmReady("5215550100")

	var vendors []types.VendorRecord
	resp, err = http.Get(s.url("/vendors"))
	s.NoError(err)
	s.decodeBody(resp, &vendors)
	s.Require().Len(vendors, 1)
	s.Equal(types.StatusConnected, vendors[0].Status)
	s.Equal("5215550100", vendors[0].PhoneNumber)

	resp = s.postJSON("/vendors/"+id+"/messages", map[string]any{
		"target":  "5215550199",
		"message": "your order shipped",
	})
	s.Equal(http.StatusOK, resp.StatusCode)
	_ = resp.Body.Close()

	var entries []types.ConversationEntry
	resp, err = http.Get(s.url("/vendors/" + id + "/conversations/5215550199"))
	s.NoError(err)
	s.decodeBody(resp, &entries)
	s.Require().Len(entries, 1)
	s.Equal(types.SenderBot, entries[0].Sender)
	s.Equal("your order shipped", entries[0].Message)

	req, err := http.NewRequest(http.MethodDelete, s.url("/vendors/"+id), nil)
	s.Require().NoError(err)
	resp, err = http.DefaultClient.Do(req)
	s.NoError(err)
	s.Equal(http.StatusNoContent, resp.StatusCode)
	_ = resp.Body.Close()

	resp, err = http.Get(s.url("/vendors"))
	s.NoError(err)
	s.decodeBody(resp, &vendors)
	s.Empty(vendors)
}

func (s *IntegrationTestSuite) TestBroadcastAcrossVendors() {
	idA, _ := s.registerVendor("store-a", "521")
	idB, _ := s.registerVendor("store-b", "522")
	s.hub.Provider(idA).ConfirmReady("521")
	s.hub.Provider(idB).ConfirmReady("522")

	resp := s.postJSON("/broadcast", map[string]any{
		"target":  "600",
		"message": "closing early today",
	})
	s.Equal(http.StatusOK, resp.StatusCode)
	var out struct {
		Results []types.SendOutcome `json:"results"`
	}
	s.decodeBody(resp, &out)
	s.Require().Len(out.Results, 2)
	for _, res := range out.Results {
		s.True(res.OK)
	}

	s.Len(s.hub.Provider(idA).Sent(), 1)
	s.Len(s.hub.Provider(idB).Sent(), 1)
}

func (s *IntegrationTestSuite) TestDuplicateNumberConflict() {
	s.registerVendor("store-a", "521")
	resp := s.postJSON("/vendors", map[string]string{"name": "store-b", "assignedNumber": "521"})
	s.Equal(http.StatusConflict, resp.StatusCode)
	_ = resp.Body.Close()
}

func (s *IntegrationTestSuite) TestIdentityFieldsImmutableOverWire() {
	id, _ := s.registerVendor("store-a", "521")

	body, _ := json.Marshal(map[string]string{"assignedNumber": "999"})
	req, err := http.NewRequest(http.MethodPatch, s.url("/vendors/"+id), bytes.NewReader(body))
	s.Require().NoError(err)
	resp, err := http.DefaultClient.Do(req)
	s.NoError(err)
	s.Equal(http.StatusBadRequest, resp.StatusCode)
	_ = resp.Body.Close()
}
