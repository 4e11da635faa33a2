package core

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Reception tells whether an observer may trigger creation of its bean
type Reception int

const (
	// Always notifies the observer, creating its bean instance if needed
	Always Reception = iota
	// IfExists notifies only when the bean instance already exists in an active scope
	IfExists
)

// TransactionPhase tells when a transactional observer is notified
type TransactionPhase int

const (
	InProgress TransactionPhase = iota
	BeforeCompletion
	AfterCompletion
	AfterFailure
	AfterSuccess
)

func (p TransactionPhase) String() string {
	switch p {
	case BeforeCompletion:
		return "BEFORE_COMPLETION"
	case AfterCompletion:
		return "AFTER_COMPLETION"
	case AfterFailure:
		return "AFTER_FAILURE"
	case AfterSuccess:
		return "AFTER_SUCCESS"
	}
	return "IN_PROGRESS"
}

// DefaultObserverPriority is used when an observer declares none
const DefaultObserverPriority = 2500

// ObserverFunc receives events delivered to a synthetic observer
type ObserverFunc func(ctx context.Context, event any) error

// ObserverMethod describes one observer of events
type ObserverMethod struct {
	id           string
	observedType *Type
	qualifiers   []Qualifier
	reception    Reception
	phase        TransactionPhase
	priority     int
	async        bool

	bean     *BeanDefinition
	method   string
	ctxParam bool
	event    reflect.Type
	points   []*InjectionPoint

	fn  ObserverFunc
	seq int
}

// ObserverOption customizes an observer method
type ObserverOption func(*ObserverMethod)

// WithPriority sets the notification priority; lower values are notified first
func WithPriority(priority int) ObserverOption {
	return func(om *ObserverMethod) { om.priority = priority }
}

// Async makes the observer receive asynchronous events only
func Async() ObserverOption {
	return func(om *ObserverMethod) { om.async = true }
}

// NotifyIfExists skips the observer when its bean has no instance in an active scope
func NotifyIfExists() ObserverOption {
	return func(om *ObserverMethod) { om.reception = IfExists }
}

// ObservedQualifiers restricts the observer to events carrying the qualifiers
func ObservedQualifiers(qualifiers ...Qualifier) ObserverOption {
	return func(om *ObserverMethod) { om.qualifiers = dedupQualifiers(append(om.qualifiers, qualifiers...)) }
}

// During makes the observer transactional
func During(phase TransactionPhase) ObserverOption {
	return func(om *ObserverMethod) { om.phase = phase }
}

// ObserverID names the observer in logs and errors
func ObserverID(id string) ObserverOption {
	return func(om *ObserverMethod) { om.id = id }
}

// NewObserver creates an observer of events of type t that calls fn
func NewObserver(t *Type, fn ObserverFunc, opts ...ObserverOption) *ObserverMethod {
	om := &ObserverMethod{
		id:           "observer-" + uuid.NewString(),
		observedType: t,
		priority:     DefaultObserverPriority,
		fn:           fn,
	}
	if om.observedType == nil {
		om.observedType = ObjectType
	}
	for _, opt := range opts {
		opt(om)
	}
	return om
}

// newBeanObserver describes method of a bean type as an observer. The
// method takes an optional context.Context, the event, then injected parameters.
func newBeanObserver(def *BeanDefinition, goType reflect.Type, spec observerSpec) (*ObserverMethod, error) {
	m, ok := goType.MethodByName(spec.method)
	if !ok {
		return nil, fmt.Errorf("%s has no observer method %s", goType, spec.method)
	}
	mt := m.Type
	i := 1
	om := &ObserverMethod{
		id:       def.id + "#" + spec.method,
		priority: DefaultObserverPriority,
		bean:     def,
		method:   spec.method,
	}
	if i < mt.NumIn() && mt.In(i) == contextGoType {
		om.ctxParam = true
		i++
	}
	if i >= mt.NumIn() {
		return nil, fmt.Errorf("observer method %s has no event parameter", spec.method)
	}
	if mt.NumOut() > 1 || (mt.NumOut() == 1 && mt.Out(0) != errorGoType) {
		return nil, fmt.Errorf("observer method %s may only return an error", spec.method)
	}
	om.event = mt.In(i)
	om.observedType = spec.eventType
	if om.observedType == nil {
		om.observedType = typeOfGo(om.event)
	}
	om.points = funcPoints(def, InjectObserver, spec.method, mt, i+1, nil)
	for _, opt := range spec.opts {
		opt(om)
	}
	return om, nil
}

// ID returns the observer identity
func (om *ObserverMethod) ID() string { return om.id }

// ObservedType returns the type of observed events
func (om *ObserverMethod) ObservedType() *Type { return om.observedType }

// Qualifiers returns the observed qualifiers
func (om *ObserverMethod) Qualifiers() []Qualifier { return om.qualifiers }

// Reception returns the reception mode
func (om *ObserverMethod) Reception() Reception { return om.reception }

// TransactionPhase returns the transaction phase
func (om *ObserverMethod) TransactionPhase() TransactionPhase { return om.phase }

// Priority returns the notification priority
func (om *ObserverMethod) Priority() int { return om.priority }

// IsAsync reports whether the observer receives asynchronous events
func (om *ObserverMethod) IsAsync() bool { return om.async }

// Bean returns the declaring bean, nil for synthetic observers
func (om *ObserverMethod) Bean() *BeanDefinition { return om.bean }

// InjectionPoints returns the injected parameters of a bean observer
func (om *ObserverMethod) InjectionPoints() []*InjectionPoint { return om.points }

func (om *ObserverMethod) String() string {
	return fmt.Sprintf("observer '%s' of %s", om.id, om.observedType)
}

// EventMetadata describes the event being delivered
type EventMetadata struct {
	Type           *Type
	Qualifiers     []Qualifier
	InjectionPoint *InjectionPoint
}

type eventMetadataKey struct{}

// EventMetadataFrom returns the metadata of the event an observer is handling
func EventMetadataFrom(ctx context.Context) (*EventMetadata, bool) {
	meta, ok := ctx.Value(eventMetadataKey{}).(*EventMetadata)
	return meta, ok
}

// Synchronization is notified around the completion of a transaction
type Synchronization interface {
	BeforeCompletion()
	AfterCompletion(committed bool)
}

// TransactionServices connects transactional observers to a transaction manager
type TransactionServices interface {
	IsTransactionActive(ctx context.Context) bool
	RegisterSynchronization(ctx context.Context, sync Synchronization) error
}

// eventTypes returns the closure of the runtime type of event together with
// the closure of the selected static type
func eventTypes(event any, static *Type) (*Type, []*Type, error) {
	runtime := TypeOfValue(event)
	if runtime.HasVariables() {
		return nil, nil, illegalArgument("event type %s contains a type variable", runtime)
	}
	types := runtime.Closure()
	specific := runtime
	if static != nil {
		if static.HasVariables() {
			return nil, nil, illegalArgument("event type %s contains a type variable", static)
		}
		seen := make(map[string]bool, len(types))
		for _, t := range types {
			seen[t.key()] = true
		}
		for _, t := range static.Closure() {
			if !seen[t.key()] {
				types = append(types, t)
			}
		}
		if !static.IsObject() && isAssignable(runtime, static) {
			specific = static
		}
	}
	return specific, types, nil
}

// resolveObservers returns the observers of an event, ordered by priority
// then registration
func (c *Container) resolveObservers(types []*Type, qualifiers []Qualifier) []*ObserverMethod {
	keys := make([]string, len(types))
	for i, t := range types {
		keys[i] = t.key()
	}
	key := strings.Join(keys, ",") + "#" + qualifiersKey(qualifiers)
	if cached, ok := c.observerCache.Load(key); ok {
		return cached.([]*ObserverMethod)
	}

	var out []*ObserverMethod
	for _, om := range c.registry.Observers() {
		if om.bean != nil && om.bean.alternative && !c.isEnabled(om.bean) {
			continue
		}
		if !hasAllQualifiers(qualifiers, om.qualifiers) {
			continue
		}
		for _, t := range types {
			if eventTypeMatches(om.observedType, t) {
				out = append(out, om)
				break
			}
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].priority != out[j].priority {
			return out[i].priority < out[j].priority
		}
		return out[i].seq < out[j].seq
	})
	c.observerCache.Store(key, out)
	return out
}

// ResolveObservers returns the observers an event of the given runtime
// value would be delivered to
func (c *Container) ResolveObservers(event any, qualifiers ...Qualifier) ([]*ObserverMethod, error) {
	_, types, err := eventTypes(event, nil)
	if err != nil {
		return nil, err
	}
	return c.resolveObservers(types, eventQualifiers(qualifiers)), nil
}

// Fire delivers event synchronously to every matching observer. All
// observers run; the first failure is returned once they have.
func (c *Container) Fire(ctx context.Context, event any, qualifiers ...Qualifier) error {
	return c.fire(ctx, event, nil, qualifiers, nil)
}

func (c *Container) fire(ctx context.Context, event any, static *Type, qualifiers []Qualifier, ip *InjectionPoint) error {
	if event == nil {
		return illegalArgument("event must not be nil")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	specific, types, err := eventTypes(event, static)
	if err != nil {
		return err
	}
	quals := eventQualifiers(qualifiers)
	ctx = context.WithValue(ctx, eventMetadataKey{}, &EventMetadata{Type: specific, Qualifiers: quals, InjectionPoint: ip})
	c.metrics.eventFired("sync")

	observers := c.resolveObservers(types, quals)
	c.logObserverCount("EventFired", len(observers))

	var first error
	for _, om := range observers {
		if om.async {
			continue
		}
		if err := c.deliver(ctx, om, event); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// FireAsync delivers event to the asynchronous observers and returns a
// future completing once every observer has run. With a TIMEOUT the future
// fails when the deadline passes first; running observers are not stopped.
func (c *Container) FireAsync(ctx context.Context, event any, opts NotificationOptions, qualifiers ...Qualifier) (*Future, error) {
	return c.fireAsync(ctx, event, nil, qualifiers, nil, opts)
}

func (c *Container) fireAsync(ctx context.Context, event any, static *Type, qualifiers []Qualifier, ip *InjectionPoint, opts NotificationOptions) (*Future, error) {
	if event == nil {
		return nil, illegalArgument("event must not be nil")
	}
	settings, err := c.notificationSettings(opts)
	if err != nil {
		return nil, err
	}
	specific, types, err := eventTypes(event, static)
	if err != nil {
		return nil, err
	}
	if ctx == nil {
		ctx = context.Background()
	}
	quals := eventQualifiers(qualifiers)
	ctx = context.WithValue(context.WithoutCancel(ctx), eventMetadataKey{}, &EventMetadata{Type: specific, Qualifiers: quals, InjectionPoint: ip})
	c.metrics.eventFired(strings.ToLower(string(settings.mode)))

	var observers []*ObserverMethod
	for _, om := range c.resolveObservers(types, quals) {
		if om.async {
			observers = append(observers, om)
		}
	}
	future := newFuture()
	if len(observers) == 0 {
		future.complete(event, nil)
		return future, nil
	}

	n := newNotification(future, event, len(observers))
	if settings.timeout > 0 {
		timer := settings.executor.(TimerExecutor)
		stop := timer.AfterFunc(settings.timeout, func() { n.timeout(settings.timeout) })
		future.WhenComplete(func(any, error) { stop() })
	}

	run := func(om *ObserverMethod) {
		n.done(c.deliverAsync(ctx, om, event))
	}
	var execErr error
	switch settings.mode {
	case Parallel:
		for _, om := range observers {
			om := om
			if err := settings.executor.Execute(func() { run(om) }); err != nil {
				n.done(err)
				execErr = err
			}
		}
	default:
		execErr = settings.executor.Execute(func() {
			for _, om := range observers {
				run(om)
			}
		})
		if execErr != nil {
			future.complete(nil, execErr)
		}
	}
	if execErr != nil {
		c.logger.Infor(&LoggerItem{Event: "EventFired", Messages: "failed to schedule asynchronous observers", Error: execErr})
	}
	return future, nil
}

// notification tracks the observers of one asynchronous event
type notification struct {
	future *Future
	event  any

	mu        sync.Mutex
	remaining int
	failures  []error
}

func newNotification(future *Future, event any, observers int) *notification {
	return &notification{future: future, event: event, remaining: observers}
}

func (n *notification) done(err error) {
	n.mu.Lock()
	if err != nil {
		n.failures = append(n.failures, err)
	}
	n.remaining--
	last := n.remaining == 0
	failures := append([]error(nil), n.failures...)
	n.mu.Unlock()

	if !last {
		return
	}
	if len(failures) == 0 {
		n.future.complete(n.event, nil)
		return
	}
	n.future.complete(nil, &CompletionError{Cause: failures[0], Suppressed: failures[1:]})
}

// timeout fails the future; an observer failure seen before the deadline
// stays the cause
func (n *notification) timeout(after time.Duration) {
	n.mu.Lock()
	failures := append([]error(nil), n.failures...)
	n.mu.Unlock()

	timeoutErr := &TimeoutError{After: after}
	if len(failures) == 0 {
		n.future.complete(nil, &CompletionError{Cause: timeoutErr})
		return
	}
	n.future.complete(nil, &CompletionError{Cause: failures[0], Suppressed: append(failures[1:], timeoutErr)})
}

// deliverAsync notifies an asynchronous observer inside a fresh request scope
func (c *Container) deliverAsync(ctx context.Context, om *ObserverMethod, event any) error {
	id := uuid.NewString()
	rctx, err := c.BeginScope(ctx, RequestScoped, id)
	if err != nil {
		return err
	}
	defer func() {
		if err := c.EndScope(RequestScoped, id); err != nil {
			c.logger.Infor(&LoggerItem{Event: "ScopeEnded", Messages: "failed to end request scope of observer", Error: err})
		}
	}()
	return c.deliver(rctx, om, event)
}

// deliver notifies one observer now, or registers it with the active
// transaction when it is transactional
func (c *Container) deliver(ctx context.Context, om *ObserverMethod, event any) error {
	if om.phase != InProgress && c.tx != nil && c.tx.IsTransactionActive(ctx) {
		return c.tx.RegisterSynchronization(ctx, &observerSynchronization{c: c, ctx: context.WithoutCancel(ctx), om: om, event: event})
	}
	return c.notify(ctx, om, event)
}

type observerSynchronization struct {
	c     *Container
	ctx   context.Context
	om    *ObserverMethod
	event any
}

func (s *observerSynchronization) BeforeCompletion() {
	if s.om.phase == BeforeCompletion {
		s.run()
	}
}

func (s *observerSynchronization) AfterCompletion(committed bool) {
	switch s.om.phase {
	case AfterCompletion:
		s.run()
	case AfterSuccess:
		if committed {
			s.run()
		}
	case AfterFailure:
		if !committed {
			s.run()
		}
	}
}

func (s *observerSynchronization) run() {
	if err := s.c.notify(s.ctx, s.om, s.event); err != nil {
		s.c.logger.Infor(&LoggerItem{
			Event:    "ObserverFailed",
			Messages: fmt.Sprintf("transactional %s failed during %s", s.om, s.om.phase),
			Error:    err,
		})
	}
}

// notify calls the observer, recording its outcome
func (c *Container) notify(ctx context.Context, om *ObserverMethod, event any) (err error) {
	started := time.Now()
	defer func() {
		outcome := "success"
		switch {
		case errors.Is(err, errSkipped):
			outcome, err = "skipped", nil
		case err != nil:
			outcome = "failure"
			c.logger.Infor(&LoggerItem{Event: "ObserverFailed", Messages: om.String(), Error: err})
		}
		c.metrics.notified(outcome, started)
	}()

	if om.fn != nil {
		return om.fn(ctx, event)
	}
	return c.notifyBean(ctx, om, event)
}

var errSkipped = errors.New("observer skipped")

func (c *Container) notifyBean(ctx context.Context, om *ObserverMethod, event any) error {
	bean := om.bean
	cc := c.newCreationalContext(ctx, nil)
	defer func() {
		if err := cc.Release(); err != nil {
			c.logger.Infor(&LoggerItem{Event: "ContextualInstanceDestroyed", Messages: "failed to release observer dependents", Error: err})
		}
	}()

	var instance any
	var chain *invocationChain
	switch {
	case bean.scope == Dependent:
		if om.reception == IfExists {
			return errSkipped
		}
		dcc := cc.child(bean, nil)
		inst, err := c.create(bean, dcc)
		if err != nil {
			return err
		}
		cc.AddDependent(&ContextualInstance{Bean: bean, Instance: inst, CC: dcc})
		instance, chain = inst, dcc.chain
	default:
		sc, err := c.scopeContext(bean.scope)
		if err != nil {
			return err
		}
		store, err := sc.Store(ctx)
		if err != nil {
			if om.reception == IfExists {
				return errSkipped
			}
			return err
		}
		var ci *ContextualInstance
		if om.reception == IfExists {
			existing, ok := store.beans.Get(bean.id)
			if !ok {
				return errSkipped
			}
			ci = existing
		} else {
			ci, err = store.getOrCreate(bean, c.newCreationalContext(ctx, bean), func(cc *CreationalContext) (any, error) {
				return c.create(bean, cc)
			})
			if err != nil {
				return err
			}
		}
		instance = ci.Instance
		if ci.CC != nil {
			chain = ci.CC.chain
		}
	}

	args := make([]any, 0, 2+len(om.points))
	if om.ctxParam {
		args = append(args, ctx)
	}
	args = append(args, event)
	if len(om.points) > 0 {
		in, err := resolvePoints(cc, om.points)
		if err != nil {
			return err
		}
		for _, v := range in {
			args = append(args, v.Interface())
		}
	}

	if chain.intercepted() {
		_, err := chain.invoke(ctx, om.method, args)
		return err
	}
	_, err := callMethod(instance, om.method, args)
	return err
}

// Event fires events of a selected type and qualifiers. Instances are
// obtained by injecting *Event or from Container.Event.
type Event struct {
	c          *Container
	typ        *Type
	qualifiers []Qualifier
	ip         *InjectionPoint
}

func (e *Event) static() *Type {
	if e.typ == nil || e.typ.IsObject() {
		return nil
	}
	return e.typ
}

// Fire delivers event synchronously
func (e *Event) Fire(ctx context.Context, event any) error {
	return e.c.fire(ctx, event, e.static(), e.qualifiers, e.ip)
}

// FireAsync delivers event to asynchronous observers
func (e *Event) FireAsync(ctx context.Context, event any, opts NotificationOptions) (*Future, error) {
	return e.c.fireAsync(ctx, event, e.static(), e.qualifiers, e.ip, opts)
}

// Select returns a handle with additional qualifiers
func (e *Event) Select(qualifiers ...Qualifier) *Event {
	return &Event{
		c:          e.c,
		typ:        e.typ,
		qualifiers: dedupQualifiers(append(append([]Qualifier(nil), e.qualifiers...), qualifiers...)),
		ip:         e.ip,
	}
}

// SelectType returns a handle for a more specific event type. A type
// containing a type variable is rejected.
func (e *Event) SelectType(t *Type, qualifiers ...Qualifier) (*Event, error) {
	if t == nil || t.HasVariables() {
		return nil, illegalArgument("event type %v contains a type variable", t)
	}
	if e.typ != nil && !isAssignable(e.typ, t) {
		return nil, illegalArgument("%s is not a subtype of %s", t, e.typ)
	}
	next := e.Select(qualifiers...)
	next.typ = t
	return next, nil
}

// Event returns a handle firing events of type t
func (c *Container) Event(t *Type, qualifiers ...Qualifier) (*Event, error) {
	if t != nil && t.HasVariables() {
		return nil, illegalArgument("event type %s contains a type variable", t)
	}
	if t == nil {
		t = ObjectType
	}
	return &Event{c: c, typ: t, qualifiers: dedupQualifiers(qualifiers)}, nil
}

func (c *Container) logObserverCount(event string, n int) {
	c.logger.Debug(event, "resolved observers", zap.Int("observers", n))
}
