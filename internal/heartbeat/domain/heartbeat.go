package domain

import (
	"context"
	"errors"
)

// Heartbeat is one raw ping from a CAD workstation. All fields arrive
// as query parameters, so the application code is parsed downstream.
type Heartbeat struct {
	UserName   string
	DomainName string
	AppCode    string
	Version    string
}

// Result reports what one heartbeat did to the stores.
type Result struct {
	OrgID   int64
	AppCode int
	Version string
	NewUser bool
	// Counted is false when the ping fell into the same ten minute
	// bucket as the previous one.
	Counted bool
}

var (
	ErrMissingUserName   = errors.New("no user name provided")
	ErrMissingDomainName = errors.New("no domain name provided")
	ErrMissingAppCode    = errors.New("no app code provided")
)

type Service interface {
	Record(ctx context.Context, hb Heartbeat) (Result, error)
}
