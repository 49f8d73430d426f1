package availability

import (
	"context"
	"testing"

	"github.com/google/uuid"

	"github.com/ovhfleet/acquire/pkg/account"
)

func TestFingerprint_OrderIndependent(t *testing.T) {
	a := Fingerprint([]string{"ram-64g", "softraid-2x480"})
	b := Fingerprint([]string{"softraid-2x480", "ram-64g"})
	if a != b {
		t.Errorf("Fingerprint() not order-independent: %q != %q", a, b)
	}
}

func TestFingerprint_DiffersOnDifferentOptions(t *testing.T) {
	a := Fingerprint([]string{"ram-64g"})
	b := Fingerprint([]string{"ram-128g"})
	if a == b {
		t.Error("Fingerprint() should differ for different option sets")
	}
}

// fakeDoer returns canned availability rows for Probe tests without making
// real HTTP calls.
type fakeDoer struct {
	rows    []availabilityRow
	calls   int
	lastErr error
}

func (f *fakeDoer) Do(_ context.Context, _ uuid.UUID, _, _ string, _, out any) error {
	f.calls++
	if f.lastErr != nil {
		return f.lastErr
	}
	dst := out.(*[]availabilityRow)
	*dst = f.rows
	return nil
}

func testAcct() account.Account {
	return account.Account{ID: uuid.New(), EndpointRegion: account.RegionEU}
}

func TestProbe_MatchesFingerprintAndMapsStates(t *testing.T) {
	fake := &fakeDoer{rows: []availabilityRow{
		{
			PlanCode: "24sk202",
			Fqn:      "24sk202.ram-64g",
			Datacenters: []struct {
				Datacenter   string `json:"datacenter"`
				Availability string `json:"availability"`
			}{
				{Datacenter: "gra", Availability: "unavailable"},
				{Datacenter: "rbx", Availability: "1H"},
			},
		},
	}}

	p := NewProber(fake)
	result, err := p.Probe(context.Background(), testAcct(), "24sk202", []string{"ram-64g"}, []string{"gra", "rbx"})
	if err != nil {
		t.Fatalf("Probe() error = %v", err)
	}

	if result["gra"] != Unavailable {
		t.Errorf("gra = %v, want %v", result["gra"], Unavailable)
	}
	if result["rbx"] != Available {
		t.Errorf("rbx = %v, want %v", result["rbx"], Available)
	}
}

func TestProbe_UnmatchedFingerprintReturnsUnknown(t *testing.T) {
	fake := &fakeDoer{rows: []availabilityRow{
		{
			PlanCode: "24sk202",
			Fqn:      "24sk202.ram-128g",
			Datacenters: []struct {
				Datacenter   string `json:"datacenter"`
				Availability string `json:"availability"`
			}{
				{Datacenter: "gra", Availability: "1H"},
			},
		},
	}}

	p := NewProber(fake)
	result, err := p.Probe(context.Background(), testAcct(), "24sk202", []string{"ram-64g"}, []string{"gra"})
	if err != nil {
		t.Fatalf("Probe() error = %v", err)
	}
	if result["gra"] != Unknown {
		t.Errorf("gra = %v, want %v", result["gra"], Unknown)
	}
}

func TestProbe_CachesWithinTTL(t *testing.T) {
	fake := &fakeDoer{rows: []availabilityRow{
		{
			PlanCode: "24sk202",
			Fqn:      "24sk202",
			Datacenters: []struct {
				Datacenter   string `json:"datacenter"`
				Availability string `json:"availability"`
			}{{Datacenter: "gra", Availability: "1H"}},
		},
	}}

	p := NewProber(fake)
	acct := testAcct()

	if _, err := p.Probe(context.Background(), acct, "24sk202", nil, []string{"gra"}); err != nil {
		t.Fatalf("Probe() error = %v", err)
	}
	if _, err := p.Probe(context.Background(), acct, "24sk202", nil, []string{"gra"}); err != nil {
		t.Fatalf("Probe() error = %v", err)
	}

	if fake.calls != 1 {
		t.Errorf("Do() called %d times, want 1 (second call should hit cache)", fake.calls)
	}
}

func TestProbe_EmptyDatacentersReturnsAllKnown(t *testing.T) {
	fake := &fakeDoer{rows: []availabilityRow{
		{
			PlanCode: "24sk202",
			Fqn:      "24sk202",
			Datacenters: []struct {
				Datacenter   string `json:"datacenter"`
				Availability string `json:"availability"`
			}{
				{Datacenter: "gra", Availability: "1H"},
				{Datacenter: "rbx", Availability: "unavailable"},
			},
		},
	}}

	p := NewProber(fake)
	result, err := p.Probe(context.Background(), testAcct(), "24sk202", nil, nil)
	if err != nil {
		t.Fatalf("Probe() error = %v", err)
	}
	if len(result) != 2 {
		t.Errorf("got %d datacenters, want 2", len(result))
	}
}
