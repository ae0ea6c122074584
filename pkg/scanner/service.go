package scanner

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/tdex-network/liquid-wallet/pkg/explorer"
	"github.com/tdex-network/liquid-wallet/pkg/wallet"
	"golang.org/x/time/rate"
)

const (
	eventQueueMaxSize = 100
	errorQueueMaxSize = 10

	defaultIntervalInMilliseconds = 5000
)

// EventType distinguishes the events emitted during observation.
type EventType int

const (
	WalletUpdated EventType = iota
	TipMoved
	Quitting
)

func (t EventType) String() string {
	switch t {
	case WalletUpdated:
		return "WalletUpdated"
	case TipMoved:
		return "TipMoved"
	case Quitting:
		return "Quitting"
	default:
		return "Unknown"
	}
}

// Event is emitted through the service channel after every scan round that
// found something.
type Event interface {
	Type() EventType
}

// UpdateEvent carries a scan delta touching wallet transactions or scripts.
// The consumer is in charge of applying it to the wallet.
type UpdateEvent struct {
	Update *wallet.Update
}

func (e UpdateEvent) Type() EventType { return WalletUpdated }

// TipEvent carries a tip-only scan delta. The consumer is in charge of
// applying it to the wallet.
type TipEvent struct {
	Update *wallet.Update
}

func (e TipEvent) Type() EventType { return TipMoved }

// QuitEvent signals the service stopped and no more events will follow.
type QuitEvent struct{}

func (e QuitEvent) Type() EventType { return Quitting }

// Service is the interface of the background scanner.
type Service interface {
	Start()
	Stop()
	GetEventChannel() chan Event
}

// Opts defines the parameters needed for creating a scanner service with the
// NewService method.
type Opts struct {
	Wallet                 *wallet.Wallet
	ExplorerSvc            explorer.Service
	IntervalInMilliseconds int
	ErrorHandler           func(err error)
}

func (o Opts) validate() error {
	if o.Wallet == nil {
		return errors.New("wallet must not be null")
	}
	if o.ExplorerSvc == nil {
		return errors.New("explorer service must not be null")
	}
	return nil
}

type walletScanner struct {
	wallet       *wallet.Wallet
	explorerSvc  explorer.Service
	limiter      *rate.Limiter
	eventChan    chan Event
	errChan      chan error
	errorHandler func(err error)
	ctx          context.Context
	cancel       context.CancelFunc
	wg           *sync.WaitGroup
}

// NewService returns a scanner that periodically runs FullScan against the
// given explorer and emits the resulting updates. Use Start and Stop methods
// to manage it.
func NewService(opts Opts) (Service, error) {
	if err := opts.validate(); err != nil {
		return nil, err
	}
	interval := opts.IntervalInMilliseconds
	if interval <= 0 {
		interval = defaultIntervalInMilliseconds
	}
	errorHandler := opts.ErrorHandler
	if errorHandler == nil {
		errorHandler = func(err error) {}
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &walletScanner{
		wallet:      opts.Wallet,
		explorerSvc: opts.ExplorerSvc,
		limiter: rate.NewLimiter(
			rate.Every(time.Duration(interval)*time.Millisecond), 1,
		),
		eventChan:    make(chan Event, eventQueueMaxSize),
		errChan:      make(chan error, errorQueueMaxSize),
		errorHandler: errorHandler,
		ctx:          ctx,
		cancel:       cancel,
		wg:           &sync.WaitGroup{},
	}, nil
}

// Start runs the scan loop and blocks dispatching scan errors to the error
// handler until Stop is called.
func (s *walletScanner) Start() {
	s.wg.Add(1)
	go s.observe()

	for err := range s.errChan {
		go s.errorHandler(err)
	}
}

// Stop cancels the scan loop, waits for it to drain and closes the service.
func (s *walletScanner) Stop() {
	s.cancel()
	s.wg.Wait()
	s.eventChan <- QuitEvent{}
	close(s.errChan)
}

// GetEventChannel returns the Event channel which can be used to listen to
// wallet and chain tip changes.
func (s *walletScanner) GetEventChannel() chan Event {
	return s.eventChan
}

func (s *walletScanner) observe() {
	defer s.wg.Done()

	for {
		if err := s.limiter.Wait(s.ctx); err != nil {
			return
		}

		update, err := FullScan(s.ctx, s.wallet, s.explorerSvc)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return
			}
			s.errChan <- err
			continue
		}
		if update == nil {
			continue
		}
		if update.OnlyTip() {
			s.eventChan <- TipEvent{Update: update}
			continue
		}
		s.eventChan <- UpdateEvent{Update: update}
	}
}
