package interpreter

import "fmt"

// Service is one entry of a provider descriptor's services list.
type Service struct {
	ID      string
	BaseURL string
}

// ServiceSelector resolves a service id (or the provider's default) to
// a base URL, advancing through an ordered failover set on transport
// failure or a retryable status, per SPEC_FULL.md §4.F step 1 and the
// glossary's "advance-on-failure semantics."
type ServiceSelector struct {
	byID           map[string]Service
	defaultService string
	failoverOrder  []string
	idx            int
}

// NewServiceSelector builds a selector over services, defaulting to
// defaultService when a call doesn't name one explicitly.
func NewServiceSelector(services []Service, defaultService string) *ServiceSelector {
	byID := make(map[string]Service, len(services))
	for _, s := range services {
		byID[s.ID] = s
	}
	return &ServiceSelector{byID: byID, defaultService: defaultService}
}

// Resolve starts a failover sequence for one HttpCall: explicit takes
// precedence, then the caller-declared failover set, falling back to
// the provider default when no failover set is given.
func (s *ServiceSelector) Resolve(explicit string, failover []string) (Service, error) {
	s.idx = 0
	switch {
	case explicit != "":
		s.failoverOrder = []string{explicit}
	case len(failover) > 0:
		s.failoverOrder = failover
	default:
		s.failoverOrder = []string{s.defaultService}
	}
	return s.current()
}

func (s *ServiceSelector) current() (Service, error) {
	if s.idx >= len(s.failoverOrder) {
		return Service{}, fmt.Errorf("interpreter: service failover exhausted")
	}
	id := s.failoverOrder[s.idx]
	svc, ok := s.byID[id]
	if !ok {
		return Service{}, fmt.Errorf("interpreter: unknown service id %q", id)
	}
	return svc, nil
}

// Advance moves to the next service in the failover set. It reports
// false once the set is exhausted.
func (s *ServiceSelector) Advance() (Service, bool) {
	s.idx++
	svc, err := s.current()
	if err != nil {
		return Service{}, false
	}
	return svc, true
}
