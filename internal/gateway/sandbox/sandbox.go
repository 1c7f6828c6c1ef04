// Package sandbox is an in-process payment provider used in development
// and tests. Outcomes are injected through Resolve (the simulate
// endpoint) instead of arriving from a real provider network.
package sandbox

import (
	"context"
	"fmt"
	"sync"
	"time"

	"ticket-marketplace/internal/gateway"
	"ticket-marketplace/models"
	"ticket-marketplace/utils"
)

type Sandbox struct {
	mu       sync.Mutex
	sessions map[string]*gateway.SessionRequest // providerRef -> request
	states   map[string]models.ProviderOutcome

	outcomes chan *models.OutcomeNotification
}

func New() *Sandbox {
	return &Sandbox{
		sessions: make(map[string]*gateway.SessionRequest),
		states:   make(map[string]models.ProviderOutcome),
	}
}

func (s *Sandbox) Provider() gateway.Provider {
	return gateway.ProviderSandbox
}

func (s *Sandbox) SetOutcomeChannel(ch chan *models.OutcomeNotification) {
	s.outcomes = ch
}

func (s *Sandbox) CreateSession(ctx context.Context, req *gateway.SessionRequest) (*gateway.Session, error) {
	ref, err := utils.GenerateCode(8)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	s.sessions[ref] = req
	s.states[ref] = models.OutcomePending
	s.mu.Unlock()

	return &gateway.Session{
		ProviderRef: ref,
		QRPayload:   fmt.Sprintf("SANDBOX|%s|%s", ref, req.Amount),
		ExpiresAt:   time.Now().UTC().Add(10 * time.Minute),
	}, nil
}

func (s *Sandbox) CheckTransaction(ctx context.Context, providerRef string) (*models.OutcomeNotification, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	req, ok := s.sessions[providerRef]
	if !ok {
		return nil, fmt.Errorf("sandbox: unknown session %s", providerRef)
	}
	return &models.OutcomeNotification{
		ProviderRef: providerRef,
		PurchaseID:  req.PurchaseID,
		Outcome:     s.states[providerRef],
		Timestamp:   time.Now().UTC(),
	}, nil
}

// Resolve injects a provider outcome for a session and emits the same
// out-of-band notification a real provider would deliver. Calling it
// again re-delivers the notification, which downstream must tolerate.
func (s *Sandbox) Resolve(providerRef string, outcome models.ProviderOutcome) error {
	s.mu.Lock()
	req, ok := s.sessions[providerRef]
	if ok {
		s.states[providerRef] = outcome
	}
	s.mu.Unlock()

	if !ok {
		return fmt.Errorf("sandbox: unknown session %s", providerRef)
	}

	if s.outcomes != nil {
		s.outcomes <- &models.OutcomeNotification{
			ProviderRef: providerRef,
			PurchaseID:  req.PurchaseID,
			Outcome:     outcome,
			Timestamp:   time.Now().UTC(),
		}
	}
	return nil
}

func (s *Sandbox) Close(ctx context.Context) error {
	return nil
}
