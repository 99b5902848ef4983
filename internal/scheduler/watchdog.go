package scheduler

import (
	"context"
	"time"
)

// DefaultHeartbeatThreshold is the default age (seconds) past which an
// endpoint with no fresh status is declared dead.
const DefaultHeartbeatThreshold = 75.0

// DefaultWatchdogInterval is the default period between health sweeps.
const DefaultWatchdogInterval = 15 * time.Second

// RunWatchdogLoop periodically queries every configured endpoint's recent
// status history and updates its alive/dead and WARM/WARMING/COLD state.
// It returns when ctx is cancelled.
func (s *CentralScheduler) RunWatchdogLoop(ctx context.Context, interval time.Duration, heartbeatThreshold float64) {
	if interval <= 0 {
		interval = DefaultWatchdogInterval
	}

	if heartbeatThreshold <= 0 {
		heartbeatThreshold = DefaultHeartbeatThreshold
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.watchdogSweep(ctx, heartbeatThreshold)
		}
	}
}

func (s *CentralScheduler) watchdogSweep(ctx context.Context, heartbeatThreshold float64) {
	s.mu.RLock()
	ids := make([]string, 0, len(s.endpoints))
	for id := range s.endpoints {
		ids = append(ids, id)
	}
	s.mu.RUnlock()

	for _, id := range ids {
		s.watchdogCheckOne(ctx, id, heartbeatThreshold)
	}
}

func (s *CentralScheduler) watchdogCheckOne(ctx context.Context, epID string, heartbeatThreshold float64) {
	records, err := s.backendClient.EndpointStatus(ctx, epID)
	if err != nil {
		s.logger.WarnContext(ctx, "endpoint status query failed", "endpoint_id", epID, "error", err)
		return
	}

	if len(records) == 0 {
		return
	}

	latest := records[0]
	statusTime := float64(latest.Timestamp.Unix())

	s.mu.Lock()
	defer s.mu.Unlock()

	st, ok := s.states[epID]
	if !ok {
		return
	}

	freshestSeen := statusTime
	if st.lastResultTime > freshestSeen {
		freshestSeen = st.lastResultTime
	}

	age := s.now() - freshestSeen

	wasAlive := st.alive

	switch {
	case st.alive && age > heartbeatThreshold:
		st.alive = false
		s.logger.WarnContext(ctx, "endpoint declared dead", "endpoint_id", epID, "age_seconds", age)
	case !st.alive && age <= heartbeatThreshold:
		st.alive = true
		s.logger.InfoContext(ctx, "endpoint revived", "endpoint_id", epID, "age_seconds", age)
	}

	if s.metrics != nil && wasAlive != st.alive {
		s.metrics.SetEndpointDead(ctx, epID, !st.alive)
	}

	switch {
	case st.temperature == Warm && latest.ActiveManagers == 0:
		st.temperature = Cold
	case st.temperature != Warm && latest.ActiveManagers > 0:
		st.temperature = Warm
	}
}

// EndpointAlive reports an endpoint's current liveness, for tests and
// diagnostics. Returns false for an unknown endpoint.
func (s *CentralScheduler) EndpointAlive(epID string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	st, ok := s.states[epID]

	return ok && st.alive
}

// EndpointTemperature reports an endpoint's current warmth state.
func (s *CentralScheduler) EndpointTemperature(epID string) Temperature {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if st, ok := s.states[epID]; ok {
		return st.temperature
	}

	return ""
}
