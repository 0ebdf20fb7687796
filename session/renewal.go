package session

import (
	"context"
	"time"
)

// The renewal loop runs only while the session is authenticated: it is
// started on every transition into the authenticated state and stopped on
// every transition out of it, so no timer outlives a logged-out session.

// startRenewalLocked starts the loop if it is not already running.
// Must be called with mu held.
func (m *Manager) startRenewalLocked() {
	if m.renewStop != nil {
		return
	}
	stop := make(chan struct{})
	m.renewStop = stop
	go m.renewalLoop(stop)
}

// stopRenewalLocked stops the loop if it is running. Must be called with mu
// held.
func (m *Manager) stopRenewalLocked() {
	if m.renewStop != nil {
		close(m.renewStop)
		m.renewStop = nil
	}
}

// renewalLoop wakes on a fixed period and refreshes the session when the
// stored pair's remaining validity drops below the threshold. A tick racing
// a foreground refresh is harmless: both use the same refresh token and the
// later completion wins.
func (m *Manager) renewalLoop(stop <-chan struct{}) {
	ticker := time.NewTicker(m.renewalInterval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			m.renewalTick()
		}
	}
}

func (m *Manager) renewalTick() {
	ctx, cancel := context.WithTimeout(context.Background(), m.operationTimeout)
	defer cancel()

	pair := m.store.StaleTokens(ctx)
	if pair == nil || !pair.ExpiresWithin(m.nowFunc(), m.renewalThreshold) {
		return
	}
	if err := m.RefreshSession(ctx); err != nil {
		m.logger.Warn().Err(err).Msg("background session renewal failed")
	}
}
