package circuitbreaker

import "github.com/sony/gobreaker"

var (
	// MaxNumOfFailingRequests is the min number of requests observed before
	// the breaker is allowed to trip.
	MaxNumOfFailingRequests = 10
	// FailingRatio is the failure ratio at which the breaker trips.
	FailingRatio = 0.6
)

// NewCircuitBreaker returns a *gobreaker.CircuitBreaker that opens once at
// least MaxNumOfFailingRequests requests have been made and the ratio of
// failures has reached FailingRatio.
func NewCircuitBreaker() *gobreaker.CircuitBreaker {
	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name: "explorer",
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			ratio := float64(counts.TotalFailures) / float64(counts.Requests)
			return int(counts.Requests) > MaxNumOfFailingRequests && ratio >= FailingRatio
		},
	})
}
