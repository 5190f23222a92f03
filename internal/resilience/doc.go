/*
Package resilience provides a circuit breaker for calls to the planning
service REST API.

# Overview

The breaker keeps a failing upstream from being hammered by retries:
after enough consecutive failures it opens and rejects calls outright,
then probes with a limited number of requests before closing again.

# Usage

	breaker := resilience.New("groundplan-api", resilience.Settings{
		MaxRequests: 3,
		Interval:    60 * time.Second,
		Timeout:     15 * time.Second,
		ReadyToTrip: func(counts resilience.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
	})

	resp, err := resilience.Do(breaker, func() (*resty.Response, error) {
		return req.Get(url)
	})

# States

  - Closed: normal operation, calls pass through
  - Open: upstream considered down, calls fail with ErrCircuitOpen
  - Half-Open: recovery probe, at most MaxRequests concurrent calls

Transitions follow the usual cycle:

	Closed --[ReadyToTrip]-> Open --[Timeout]-> Half-Open --[successes]-> Closed
*/
package resilience
