package metrics

import (
	"context"
	"errors"
	"testing"

	"github.com/youneslaaroussi/dealwhisperer/internal/models"
)

func notif(id, stakeholder, role, deal string) models.StakeholderNotification {
	return models.StakeholderNotification{ID: id, StakeholderID: stakeholder, StakeholderRole: role, DealID: deal}
}

func resolution(deal, prev, next, by string) models.DealResolution {
	r := models.DealResolution{DealID: deal, PreviousStatus: prev, NewStatus: next}
	if by != "" {
		r.ResolvedBy = &by
	}
	return r
}

func TestRound2(t *testing.T) {
	tests := []struct {
		in, want float64
	}{
		{25, 25},
		{33.3333, 33.33},
		{66.6666, 66.67},
		{0.125, 0.13},
		{0, 0},
	}
	for _, tt := range tests {
		if got := Round2(tt.in); got != tt.want {
			t.Errorf("Round2(%v) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestResponseRates(t *testing.T) {
	notifications := []models.StakeholderNotification{
		notif("n1", "U_PM", "PM", "A"),
		notif("n2", "U_PM", "PM", "B"),
		notif("n3", "U_PM", "Unknown", "C"),
		notif("n4", "U_PM", "PM", "D"),
		notif("n5", "U_SR", "SalesRep", "A"),
		notif("n6", "U_SR", "SalesRep", "B"),
		notif("n7", "U_SR", "SalesRep", "C"),
	}
	responses := []models.StakeholderResponse{
		{NotificationID: "n1"},
		{NotificationID: "n1"}, // second reply to the same notification
		{NotificationID: "n6"},
		{NotificationID: "n7"},
		{NotificationID: "gone"},
	}

	got := ResponseRates(notifications, responses)
	want := map[string]ResponseRate{
		"U_PM": {StakeholderID: "U_PM", StakeholderRole: "PM", Sent: 4, Responded: 1, Rate: 25},
		"U_SR": {StakeholderID: "U_SR", StakeholderRole: "SalesRep", Sent: 3, Responded: 2, Rate: 66.67},
	}
	if len(got) != len(want) {
		t.Fatalf("got %d stakeholders, want %d", len(got), len(want))
	}
	for id, w := range want {
		if got[id] != w {
			t.Errorf("%s = %+v, want %+v", id, got[id], w)
		}
	}
}

func TestResponseRates_Empty(t *testing.T) {
	if got := ResponseRates(nil, []models.StakeholderResponse{{NotificationID: "x"}}); len(got) != 0 {
		t.Errorf("got %v, want empty", got)
	}
}

func TestDealPerformances(t *testing.T) {
	notifications := []models.StakeholderNotification{
		notif("n1", "U_PM", "PM", "A"),
		notif("n2", "U_PM", "PM", "B"),
		notif("n3", "U_PM", "PM", "A"), // rerun duplicate
		notif("n4", "U_SR", "SalesRep", "A"),
		notif("n5", "U_SR", "SalesRep", "C"),
	}
	resolutions := []models.DealResolution{
		resolution("A", "Stalled", "Closed Won", "U_PM"),
		resolution("C", "Stalled", "Active", "U_SR"),
		resolution("C", "Stalled", "Negotiation", "U_SR"),
		resolution("A", "Stalled", "Active", ""),
		resolution("B", "Stalled", "Closed Won", "someone-else"),
	}

	got := DealPerformances(notifications, resolutions)
	want := map[string]DealPerformance{
		"U_PM": {StakeholderID: "U_PM", StakeholderRole: "PM", TotalDeals: 2, DealsResponded: 1, DealsClosed: 1, DealsRevived: 0, ConversionRate: 50},
		"U_SR": {StakeholderID: "U_SR", StakeholderRole: "SalesRep", TotalDeals: 2, DealsResponded: 1, DealsClosed: 0, DealsRevived: 2, ConversionRate: 0},
	}
	for id, w := range want {
		if got[id] != w {
			t.Errorf("%s = %+v, want %+v", id, got[id], w)
		}
	}
}

type fakeStore struct {
	notifications []models.StakeholderNotification
	responses     []models.StakeholderResponse
	resolutions   []models.DealResolution
	err           error
}

func (f *fakeStore) ListNotifications(context.Context) ([]models.StakeholderNotification, error) {
	return f.notifications, nil
}

func (f *fakeStore) ListResponses(context.Context) ([]models.StakeholderResponse, error) {
	return f.responses, f.err
}

func (f *fakeStore) ListResolutions(context.Context) ([]models.DealResolution, error) {
	return f.resolutions, f.err
}

func TestService(t *testing.T) {
	fs := &fakeStore{
		notifications: []models.StakeholderNotification{notif("n1", "U1", "PM", "A")},
		responses:     []models.StakeholderResponse{{NotificationID: "n1"}},
		resolutions:   []models.DealResolution{resolution("A", "Stalled", "Closed Won", "U1")},
	}
	svc, err := NewService(fs)
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()

	rates, err := svc.ResponseRates(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if rates["U1"].Rate != 100 {
		t.Errorf("rate = %v, want 100", rates["U1"].Rate)
	}
	perf, err := svc.DealPerformance(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if perf["U1"].ConversionRate != 100 {
		t.Errorf("conversion = %v, want 100", perf["U1"].ConversionRate)
	}

	fs.err = errors.New("connection reset")
	if _, err := svc.ResponseRates(ctx); err == nil {
		t.Error("expected error from ResponseRates")
	}
	if _, err := svc.DealPerformance(ctx); err == nil {
		t.Error("expected error from DealPerformance")
	}
}

func TestNewService_RequiresStore(t *testing.T) {
	if _, err := NewService(nil); err == nil {
		t.Error("expected error")
	}
}
