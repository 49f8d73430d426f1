package ovhclient

import (
	"testing"

	"github.com/ovhfleet/acquire/internal/store"
	"github.com/ovhfleet/acquire/pkg/account"
)

func newTestPool(t *testing.T) (*Pool, *account.Store) {
	t.Helper()
	st, err := store.New(t.TempDir())
	if err != nil {
		t.Fatalf("store.New() error = %v", err)
	}
	acctStore := account.NewStore(st)
	return NewPool(acctStore), acctStore
}

func TestPool_GetCachesClient(t *testing.T) {
	pool, acctStore := newTestPool(t)

	acct, err := acctStore.Create(account.CreateRequest{
		Alias:             "primary",
		Zone:              "FR",
		EndpointRegion:    string(account.RegionEU),
		ApplicationKey:    "k",
		ApplicationSecret: "s",
		ConsumerKey:       "c",
	})
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	c1, err := pool.Get(acct.ID)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	c2, err := pool.Get(acct.ID)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if c1 != c2 {
		t.Error("Get() should return the cached client on second call")
	}
}

func TestPool_InvalidateForcesRebuild(t *testing.T) {
	pool, acctStore := newTestPool(t)

	acct, err := acctStore.Create(account.CreateRequest{
		Alias:             "primary",
		Zone:              "FR",
		EndpointRegion:    string(account.RegionEU),
		ApplicationKey:    "k",
		ApplicationSecret: "s",
		ConsumerKey:       "c",
	})
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	c1, _ := pool.Get(acct.ID)
	pool.Invalidate(acct.ID)
	c2, _ := pool.Get(acct.ID)
	if c1 == c2 {
		t.Error("Get() after Invalidate() should rebuild the client")
	}
}

func TestPool_GetUnknownAccountFails(t *testing.T) {
	pool, _ := newTestPool(t)
	if _, err := pool.Get(account.Account{}.ID); err == nil {
		t.Fatal("Get() error = nil, want error for unknown account")
	}
}
