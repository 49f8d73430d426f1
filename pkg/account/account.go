// Package account manages OVH API credentials: the accounts that queue
// tasks and availability subscriptions act on behalf of.
package account

import (
	"time"

	"github.com/google/uuid"
)

// EndpointRegion selects the OVH API root URL and signing keys.
type EndpointRegion string

const (
	RegionEU EndpointRegion = "ovh-eu"
	RegionUS EndpointRegion = "ovh-us"
	RegionCA EndpointRegion = "ovh-ca"
)

// Account holds one set of OVH application credentials. Keys are immutable
// once created; an account is referenced by id from queue tasks and
// subscriptions and is read-only to every other component once loaded.
type Account struct {
	ID                uuid.UUID      `json:"id"`
	Alias             string         `json:"alias"`
	Zone              string         `json:"zone"`
	EndpointRegion    EndpointRegion `json:"endpointRegion"`
	ApplicationKey    string         `json:"applicationKey"`
	ApplicationSecret string         `json:"applicationSecret"`
	ConsumerKey       string         `json:"consumerKey"`
	CreatedAt         time.Time      `json:"createdAt"`
}

// CreateRequest is the body of POST /accounts.
type CreateRequest struct {
	Alias             string `json:"alias" validate:"required"`
	Zone              string `json:"zone" validate:"required"`
	EndpointRegion    string `json:"endpointRegion" validate:"required,oneof=ovh-eu ovh-us ovh-ca"`
	ApplicationKey    string `json:"applicationKey" validate:"required"`
	ApplicationSecret string `json:"applicationSecret" validate:"required"`
	ConsumerKey       string `json:"consumerKey" validate:"required"`
}

// Redacted returns a copy of the account with secret fields masked, safe to
// return over the API.
func (a Account) Redacted() Account {
	a.ApplicationSecret = mask(a.ApplicationSecret)
	a.ConsumerKey = mask(a.ConsumerKey)
	return a
}

func mask(s string) string {
	if len(s) <= 4 {
		return "****"
	}
	return "****" + s[len(s)-4:]
}
