package manager

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/suite"

	filebackend "venmux/internal/backends/file"
	"venmux/internal/provider/mock"
	"venmux/internal/types"
)

type SendSuite struct {
	suite.Suite

	hub *mock.Hub
	mgr *Manager
}

func TestSendSuite(t *testing.T) {
	suite.Run(t, new(SendSuite))
}

func (s *SendSuite) SetupTest() {
	dir := s.T().TempDir()
	cfg := types.ServiceConfig{
		PortRangeStart:    5000,
		PortRangeEnd:      5009,
		DataDir:           dir,
		QRRefreshSeconds:  60,
		RetrySweepSeconds: 300,
	}
	s.hub = mock.NewHub()
	s.mgr = New(cfg, filebackend.NewVendorStore(dir), filebackend.NewConversationLog(dir), s.hub.Factory(), nil)
}

func (s *SendSuite) connect(name, number string) string {
	id, _, err := s.mgr.Register(context.Background(), name, number)
	s.Require().NoError(err)
	s.hub.Provider(id).ConfirmReady(number)
	return id
}

func (s *SendSuite) TestSendRecordsConversation() {
	ctx := context.Background()
	id := s.connect("store-a", "521")

	s.Require().NoError(s.mgr.Send(ctx, id, "600", "order ready", false))

	sent := s.hub.Provider(id).Sent()
	s.Require().Len(sent, 1)
	s.Equal("600", sent[0].Target)
	s.Equal("order ready", sent[0].Message)

	history, err := s.mgr.History(ctx, id, "600")
	s.Require().NoError(err)
	s.Require().Len(history, 1)
	s.Equal(types.SenderBot, history[0].Sender)
	s.Equal("order ready", history[0].Message)
	s.Equal("521", history[0].VendorNumber)
	s.NotZero(history[0].Timestamp)
}

func (s *SendSuite) TestSendRequiresConnectedVendor() {
	ctx := context.Background()
	id, _, err := s.mgr.Register(ctx, "store-a", "521")
	s.Require().NoError(err)

	err = s.mgr.Send(ctx, id, "600", "hello", false)
	s.True(errors.Is(err, types.ErrNotFound), "pending vendor cannot send")

	err = s.mgr.Send(ctx, "no-such-vendor", "600", "hello", false)
	s.True(errors.Is(err, types.ErrNotFound))
}

func (s *SendSuite) TestSendDeliveryFailure() {
	ctx := context.Background()
	id := s.connect("store-a", "521")
	s.hub.Provider(id).SetSendError(errors.New("socket closed"))

	err := s.mgr.Send(ctx, id, "600", "hello", false)
	s.True(errors.Is(err, types.ErrDeliveryFailure))

	history, err := s.mgr.History(ctx, id, "600")
	s.Require().NoError(err)
	s.Empty(history, "failed delivery is not logged")
}

func (s *SendSuite) TestSendToGroup() {
	ctx := context.Background()
	id := s.connect("store-a", "521")
	s.hub.Provider(id).AddGroup(types.GroupInfo{ID: "g-77", Name: "deliveries", Participants: 12})

	s.Require().NoError(s.mgr.Send(ctx, id, "deliveries", "van is out", true))
	sent := s.hub.Provider(id).Sent()
	s.Require().Len(sent, 1)
	s.Equal("g-77", sent[0].Target, "group name resolved to its id before sending")

	err := s.mgr.Send(ctx, id, "nonexistent", "hello", true)
	s.True(errors.Is(err, types.ErrNotFound))
}

func (s *SendSuite) TestFindGroup() {
	ctx := context.Background()
	id := s.connect("store-a", "521")
	s.hub.Provider(id).AddGroup(types.GroupInfo{ID: "g-77", Name: "deliveries", Participants: 12})

	g, err := s.mgr.FindGroup(ctx, id, "deliveries")
	s.Require().NoError(err)
	s.Equal("g-77", g.ID)
	s.Equal(12, g.Participants)

	_, err = s.mgr.FindGroup(ctx, id, "nope")
	s.True(errors.Is(err, types.ErrNotFound))
}

func (s *SendSuite) TestBroadcast() {
	ctx := context.Background()
	idA := s.connect("store-a", "521")
	idB := s.connect("store-b", "522")
	idC := s.connect("store-c", "523")

	// A pending vendor never participates.
	_, _, err := s.mgr.Register(ctx, "store-d", "524")
	s.Require().NoError(err)

	s.hub.Provider(idB).SetSendError(errors.New("flaky link"))

	outcomes := s.mgr.Broadcast(ctx, "600", "closing early today")
	s.Require().Len(outcomes, 3)

	byVendor := map[string]types.SendOutcome{}
	for _, out := range outcomes {
		byVendor[out.VendorID] = out
	}
	s.True(byVendor[idA].OK)
	s.True(byVendor[idC].OK)
	s.False(byVendor[idB].OK)
	s.Contains(byVendor[idB].Error, "flaky link")

	s.Len(s.hub.Provider(idA).Sent(), 1)
	s.Len(s.hub.Provider(idC).Sent(), 1, "one failure does not stop the rest")
}
