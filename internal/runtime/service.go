package runtime

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/drblury/rpcflow/internal/runtime/codec"
	configpkg "github.com/drblury/rpcflow/internal/runtime/config"
	errspkg "github.com/drblury/rpcflow/internal/runtime/errors"
	handlerpkg "github.com/drblury/rpcflow/internal/runtime/handlers"
	loggingpkg "github.com/drblury/rpcflow/internal/runtime/logging"
	"github.com/drblury/rpcflow/internal/runtime/schema"
	transportpkg "github.com/drblury/rpcflow/internal/runtime/transport"
	backend "github.com/drblury/rpcflow/transport"
)

const tracerName = "github.com/drblury/rpcflow"

// State is the lifecycle state of the dispatch loop.
type State int32

const (
	StateStopped State = iota
	StateRunning
	StateStopping
)

func (s State) String() string {
	switch s {
	case StateRunning:
		return "running"
	case StateStopping:
		return "stopping"
	default:
		return "stopped"
	}
}

// ServiceDependencies holds the optional collaborators that the Service can use.
// Leave fields nil to use the defaults.
type ServiceDependencies struct {
	TransportFactory transportpkg.Factory
	// Validator runs on every decoded request payload before its handler.
	Validator handlerpkg.PayloadValidator
	Hooks     CallHooks
	// Filters are added to the filter chain in order.
	Filters []Filter
	// SchemaSinks are notified of every registration in addition to the
	// in-memory schema registry.
	SchemaSinks []schema.Sink
	// MetricsRegisterer overrides where dispatch metrics are registered.
	MetricsRegisterer prometheus.Registerer
	TracerProvider    trace.TracerProvider
}

// Service is an RPC server: a handler registry, a filter chain and a single
// dispatch loop reading requests from the transport.
type Service struct {
	Conf   *configpkg.Config
	Logger loggingpkg.ServiceLogger

	publisher  message.Publisher
	subscriber message.Subscriber
	transport  backend.Transport
	scheme     codec.TopicScheme

	registry  *Registry
	filters   *FilterChain
	schemas   *schema.Registry
	sinks     []schema.Sink
	validator handlerpkg.PayloadValidator
	hooks     CallHooks
	metrics   *DispatchMetrics
	tracer    trace.Tracer

	mu     sync.Mutex
	state  State
	loop   *dispatchLoop
	closed bool

	httpServers   map[int]*http.ServeMux
	httpRunning   []*http.Server
	httpServersMu sync.Mutex
}

// NewService constructs a Service for the supplied configuration and panics
// when the transport cannot be built. Register handlers on the returned
// Service before calling Start.
func NewService(conf *configpkg.Config, log loggingpkg.ServiceLogger, ctx context.Context, deps ServiceDependencies) *Service {
	svc, err := TryNewService(conf, log, ctx, deps)
	if err != nil {
		panic(err)
	}
	return svc
}

// TryNewService is NewService returning construction errors instead of panicking.
func TryNewService(conf *configpkg.Config, log loggingpkg.ServiceLogger, ctx context.Context, deps ServiceDependencies) (*Service, error) {
	if conf == nil {
		return nil, errors.New("rpcflow: config is required")
	}
	if log == nil {
		log = loggingpkg.Discard()
	}
	cfg := *conf
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("rpcflow: invalid config: %w", err)
	}

	log = log.With(loggingpkg.LogFields{"server": cfg.Name})
	log.Info("Creating RPC server", loggingpkg.LogFields{
		"pubsub_system": cfg.PubSubSystem,
		"config":        cfg,
	})

	factory := deps.TransportFactory
	if factory == nil {
		factory = transportpkg.DefaultFactory()
	}
	transport, err := factory.Build(ctx, &cfg, loggingpkg.NewWatermillAdapter(log))
	if err != nil {
		return nil, fmt.Errorf("rpcflow: build %s transport: %w", cfg.PubSubSystem, err)
	}

	s := &Service{
		Conf:       &cfg,
		Logger:     log,
		publisher:  transport.Publisher,
		subscriber: transport.Subscriber,
		transport:  transport,
		scheme: codec.TopicScheme{
			RequestPrefix:  cfg.RequestTopicPrefix,
			ResponsePrefix: cfg.ResponseTopicPrefix,
		},
		registry:  NewRegistry(),
		filters:   &FilterChain{},
		schemas:   schema.NewRegistry(),
		sinks:     deps.SchemaSinks,
		validator: deps.Validator,
		hooks:     deps.Hooks,
	}

	for _, f := range deps.Filters {
		if err := s.filters.Add(f); err != nil {
			_ = transport.Close()
			return nil, err
		}
	}

	provider := deps.TracerProvider
	if provider == nil {
		provider = otel.GetTracerProvider()
	}
	s.tracer = provider.Tracer(tracerName)

	if err := s.setupMetrics(deps.MetricsRegisterer); err != nil {
		_ = transport.Close()
		return nil, err
	}
	if cfg.DocsEnabled {
		s.RegisterHTTPHandler(cfg.DocsPort, DocsPath, http.HandlerFunc(s.handleGetRPCs))
	}

	return s, nil
}

func (s *Service) setupMetrics(registerer prometheus.Registerer) error {
	if registerer == nil {
		if s.Conf.MetricsEnabled {
			registerer = prometheus.DefaultRegisterer
		} else {
			registerer = prometheus.NewRegistry()
		}
	}
	s.metrics = NewDispatchMetrics(registerer)
	if err := s.metrics.Register(); err != nil {
		return fmt.Errorf("rpcflow: register metrics: %w", err)
	}

	if s.Conf.MetricsEnabled && s.Conf.MetricsPort > 0 {
		handler := promhttp.Handler()
		if gatherer, ok := registerer.(prometheus.Gatherer); ok && registerer != prometheus.DefaultRegisterer {
			handler = promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
		}
		s.RegisterHTTPHandler(s.Conf.MetricsPort, "/metrics", handler)
	}
	return nil
}

// AddFilter appends a filter to the chain. Filters can only be added while
// the server is stopped.
func (s *Service) AddFilter(f Filter) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateStopped {
		return errspkg.ErrServerRunning
	}
	return s.filters.Add(f)
}

// Handlers returns every registered handler sorted by channel and type.
func (s *Service) Handlers() []*HandlerEntry {
	return s.registry.Entries()
}

// Schemas returns the documents recorded for every registration.
func (s *Service) Schemas() []schema.Document {
	return s.schemas.Documents()
}

func (s *Service) Metrics() *DispatchMetrics {
	return s.metrics
}

// Capabilities reports the guarantees of the configured transport.
func (s *Service) Capabilities() backend.Capabilities {
	return transportpkg.Capabilities(s.Conf)
}

func (s *Service) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Service) handlerOptions(strict *bool) handlerpkg.Options {
	opts := handlerpkg.Options{Strict: s.Conf.StrictRequests, Validator: s.validator}
	if strict != nil {
		opts.Strict = *strict
	}
	return opts
}

// register stores entry and announces its schemas. Sink failures are logged
// and never fail the registration.
func (s *Service) register(entry *HandlerEntry) error {
	s.mu.Lock()
	if s.state != StateStopped {
		s.mu.Unlock()
		return &errspkg.ConfigurationError{Channel: entry.Channel, Type: entry.Type, Err: errspkg.ErrServerRunning}
	}
	err := s.registry.Register(entry)
	s.mu.Unlock()
	if err != nil {
		return err
	}

	doc := schema.Document{
		Channel:  entry.Channel,
		Type:     entry.Type,
		Server:   s.Conf.Name,
		Request:  entry.RequestSchema,
		Response: entry.ResponseSchema,
	}
	_ = s.schemas.Notify(context.Background(), doc)
	s.notifySinks(doc)

	s.Logger.Info("Registered RPC handler", loggingpkg.LogFields{
		"channel": entry.Channel,
		"type":    entry.Type,
	})
	return nil
}

func (s *Service) notifySinks(doc schema.Document) {
	for _, sink := range s.sinks {
		ctx, cancel := context.WithTimeout(context.Background(), s.Conf.SchemaSinkTimeout)
		err := notifySink(ctx, sink, doc)
		cancel()
		if err != nil {
			s.Logger.Error("Failed to notify schema sink", err, loggingpkg.LogFields{
				"channel": doc.Channel,
				"type":    doc.Type,
				"sink":    fmt.Sprintf("%T", sink),
			})
		}
	}
}

// notifySink runs one sink and gives up once ctx expires, even if the sink
// ignores its context.
func notifySink(ctx context.Context, sink schema.Sink, doc schema.Document) error {
	result := make(chan error, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				result <- fmt.Errorf("schema sink panicked: %v", r)
			}
		}()
		result <- sink.Notify(ctx, doc)
	}()
	select {
	case err := <-result:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Start subscribes to the request topic of every registered channel and
// launches the dispatch loop. A stopped server can be started again.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return errspkg.ErrTransportClosed
	}
	if s.state != StateStopped {
		return errspkg.ErrServerRunning
	}

	adapter := transportpkg.NewAdapter(s.publisher, s.subscriber, s.scheme, s.Logger)
	channels := s.registry.Channels()
	for _, channel := range channels {
		if err := adapter.Subscribe(channel); err != nil {
			_ = adapter.Close()
			return fmt.Errorf("rpcflow: subscribe channel %s: %w", channel, err)
		}
	}

	loop := newDispatchLoop(ctx, adapter)
	s.loop = loop
	s.state = StateRunning
	s.startHTTPServers()

	go s.run(loop)

	s.Logger.Info("RPC server started", loggingpkg.LogFields{
		"channels":        channels,
		"receive_timeout": s.Conf.ReceiveTimeout.String(),
	})
	return nil
}

// Run starts the server and blocks until ctx is cancelled or the transport
// goes away, then shuts the loop down. It returns the transport failure, if
// any, or the shutdown error.
func (s *Service) Run(ctx context.Context) error {
	if err := s.Start(ctx); err != nil {
		return err
	}
	loop := s.currentLoop()

	select {
	case <-ctx.Done():
	case <-loop.done:
		return loop.err
	}

	err := s.Shutdown(s.Conf.ShutdownTimeout)
	if errors.Is(err, errspkg.ErrServerNotRunning) {
		return loop.err
	}
	return err
}

// Shutdown asks the loop to stop and waits up to timeout for the current
// call to finish. A zero timeout uses Config.ShutdownTimeout. When the loop
// does not stop in time the returned error wraps ErrShutdownTimeout and names
// the call still running; the loop keeps stopping in the background.
func (s *Service) Shutdown(timeout time.Duration) error {
	s.mu.Lock()
	loop := s.loop
	if loop == nil || s.state == StateStopped {
		s.mu.Unlock()
		return errspkg.ErrServerNotRunning
	}
	s.state = StateStopping
	s.mu.Unlock()

	loop.stopping.Store(true)
	if timeout <= 0 {
		timeout = s.Conf.ShutdownTimeout
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-loop.done:
		s.Logger.Info("RPC server stopped", nil)
		return nil
	case <-timer.C:
		if call := loop.current.Load(); call != nil {
			err := fmt.Errorf("%w after %s: handler %s/%s (rpc_id %s) running for %s",
				errspkg.ErrShutdownTimeout, timeout, call.channel, call.rpcType, call.rpcID, time.Since(call.started).Round(time.Millisecond))
			s.Logger.Error("RPC server did not stop in time", err, nil)
			return err
		}
		err := fmt.Errorf("%w after %s", errspkg.ErrShutdownTimeout, timeout)
		s.Logger.Error("RPC server did not stop in time", err, nil)
		return err
	}
}

// Done is closed once the current (or last) dispatch loop has exited.
func (s *Service) Done() <-chan struct{} {
	if loop := s.currentLoop(); loop != nil {
		return loop.done
	}
	done := make(chan struct{})
	close(done)
	return done
}

// Err reports why the last loop ended. It is nil while the loop runs and
// after a requested shutdown; it wraps ErrTransportClosed when the transport
// went away underneath the loop.
func (s *Service) Err() error {
	loop := s.currentLoop()
	if loop == nil {
		return nil
	}
	select {
	case <-loop.done:
		return loop.err
	default:
		return nil
	}
}

// Close stops the loop, the HTTP servers, and closes the transport.
func (s *Service) Close() error {
	var errs []error
	if err := s.Shutdown(s.Conf.ShutdownTimeout); err != nil && !errors.Is(err, errspkg.ErrServerNotRunning) {
		errs = append(errs, err)
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return errors.Join(errs...)
	}
	s.closed = true
	s.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), s.Conf.ShutdownTimeout)
	defer cancel()
	errs = append(errs, s.stopHTTPServers(ctx))
	errs = append(errs, s.transport.Close())
	return errors.Join(errs...)
}

func (s *Service) currentLoop() *dispatchLoop {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loop
}

// RegisterHTTPHandler mounts handler on the HTTP server for port. Servers are
// started together with the dispatch loop.
func (s *Service) RegisterHTTPHandler(port int, pattern string, handler http.Handler) {
	s.httpServersMu.Lock()
	defer s.httpServersMu.Unlock()

	if s.httpServers == nil {
		s.httpServers = make(map[int]*http.ServeMux)
	}

	mux, ok := s.httpServers[port]
	if !ok {
		mux = http.NewServeMux()
		s.httpServers[port] = mux
	}

	mux.Handle(pattern, handler)
}

func (s *Service) startHTTPServers() {
	s.httpServersMu.Lock()
	defer s.httpServersMu.Unlock()

	if len(s.httpRunning) > 0 {
		return
	}

	for port, mux := range s.httpServers {
		server := &http.Server{
			Addr:              fmt.Sprintf(":%d", port),
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		}
		s.httpRunning = append(s.httpRunning, server)
		s.Logger.Info("Starting HTTP server", loggingpkg.LogFields{"address": server.Addr})
		go func(server *http.Server) {
			if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				s.Logger.Error("Failed to start HTTP server", err, loggingpkg.LogFields{"address": server.Addr})
			}
		}(server)
	}
}

func (s *Service) stopHTTPServers(ctx context.Context) error {
	s.httpServersMu.Lock()
	servers := s.httpRunning
	s.httpRunning = nil
	s.httpServersMu.Unlock()

	var errs []error
	for _, server := range servers {
		if err := server.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("shutdown http server %s: %w", server.Addr, err))
		}
	}
	return errors.Join(errs...)
}

// dispatchLoop is the state of one Start..Shutdown cycle.
type dispatchLoop struct {
	ctx        context.Context
	handlerCtx context.Context
	adapter    *transportpkg.Adapter

	stopping atomic.Bool
	current  atomic.Pointer[inflightCall]

	done chan struct{}
	err  error
}

type inflightCall struct {
	channel string
	rpcType string
	rpcID   string
	started time.Time
}

func newDispatchLoop(ctx context.Context, adapter *transportpkg.Adapter) *dispatchLoop {
	return &dispatchLoop{
		ctx:        ctx,
		handlerCtx: context.WithoutCancel(ctx),
		adapter:    adapter,
		done:       make(chan struct{}),
	}
}

func (l *dispatchLoop) shouldStop() bool {
	return l.stopping.Load() || l.ctx.Err() != nil
}
