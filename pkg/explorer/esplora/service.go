package esplora

import (
	"errors"
	"fmt"
	"io/ioutil"
	"net/http"
	"strings"
	"time"

	"github.com/sony/gobreaker"
	"github.com/tdex-network/liquid-wallet/pkg/circuitbreaker"
	"github.com/tdex-network/liquid-wallet/pkg/explorer"
	"go.uber.org/ratelimit"
)

const defaultRequestsPerSecond = 10

var (
	ErrNullAPIURL = errors.New("api url must not be null")
)

type service struct {
	apiURL  string
	client  *http.Client
	cb      *gobreaker.CircuitBreaker
	limiter ratelimit.Limiter
}

// ServiceOpts is the struct given to the NewService method.
type ServiceOpts struct {
	APIURL string
	// RequestsPerSecond caps the request rate towards the esplora instance.
	// Defaults to 10.
	RequestsPerSecond int
	// Timeout of every single request. Defaults to 30s.
	Timeout time.Duration
}

func (o ServiceOpts) validate() error {
	if len(o.APIURL) <= 0 {
		return ErrNullAPIURL
	}
	return nil
}

// NewService returns a new esplora service as an explorer.Service interface.
func NewService(opts ServiceOpts) (explorer.Service, error) {
	if err := opts.validate(); err != nil {
		return nil, err
	}
	rps := opts.RequestsPerSecond
	if rps <= 0 {
		rps = defaultRequestsPerSecond
	}
	timeout := opts.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}

	svc := &service{
		apiURL:  strings.TrimSuffix(opts.APIURL, "/"),
		client:  &http.Client{Timeout: timeout},
		cb:      circuitbreaker.NewCircuitBreaker(),
		limiter: ratelimit.New(rps),
	}
	if err := svc.healthCheck(); err != nil {
		return nil, fmt.Errorf("health check: %w", err)
	}
	return svc, nil
}

func (s *service) healthCheck() error {
	status, resp, err := s.get(fmt.Sprintf("%s/blocks/tip/height", s.apiURL))
	if err != nil {
		return err
	}
	if status != http.StatusOK {
		return fmt.Errorf(resp)
	}
	return nil
}

// get runs a rate-limited GET behind the circuit breaker.
func (s *service) get(url string) (int, string, error) {
	s.limiter.Take()

	type result struct {
		status int
		body   string
	}
	res, err := s.cb.Execute(func() (interface{}, error) {
		resp, err := s.client.Get(url)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()

		body, err := ioutil.ReadAll(resp.Body)
		if err != nil {
			return nil, err
		}
		if resp.StatusCode >= http.StatusInternalServerError {
			return nil, fmt.Errorf(
				"esplora replied %d: %s", resp.StatusCode, string(body),
			)
		}
		return result{status: resp.StatusCode, body: string(body)}, nil
	})
	if err != nil {
		return 0, "", err
	}
	r := res.(result)
	return r.status, r.body, nil
}

func (s *service) post(url, bodyString string) (int, string, error) {
	s.limiter.Take()

	type result struct {
		status int
		body   string
	}
	res, err := s.cb.Execute(func() (interface{}, error) {
		resp, err := s.client.Post(url, "text/plain", strings.NewReader(bodyString))
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()

		body, err := ioutil.ReadAll(resp.Body)
		if err != nil {
			return nil, err
		}
		if resp.StatusCode >= http.StatusInternalServerError {
			return nil, fmt.Errorf(
				"esplora replied %d: %s", resp.StatusCode, string(body),
			)
		}
		return result{status: resp.StatusCode, body: string(body)}, nil
	})
	if err != nil {
		return 0, "", err
	}
	r := res.(result)
	return r.status, r.body, nil
}

func (s *service) Broadcast(txHex string) (string, error) {
	status, resp, err := s.post(fmt.Sprintf("%s/tx", s.apiURL), txHex)
	if err != nil {
		return "", err
	}
	if status != http.StatusOK {
		return "", fmt.Errorf(resp)
	}
	return strings.TrimSpace(resp), nil
}

func (s *service) Close() error { return nil }
