package core

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"strings"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

// BeanManager is the programmatic view of the container that beans may inject
type BeanManager interface {
	Resolve(t *Type, qualifiers ...Qualifier) ([]*BeanDefinition, error)
	ResolveUnique(t *Type, qualifiers ...Qualifier) (*BeanDefinition, error)
	ResolveByName(name string) (*BeanDefinition, error)
	Reference(ctx context.Context, bean *BeanDefinition) (any, error)
	Get(ctx context.Context, t *Type, qualifiers ...Qualifier) (any, error)
	Instance(t *Type, qualifiers ...Qualifier) *Instance
	Event(t *Type, qualifiers ...Qualifier) (*Event, error)
	Fire(ctx context.Context, event any, qualifiers ...Qualifier) error
	FireAsync(ctx context.Context, event any, opts NotificationOptions, qualifiers ...Qualifier) (*Future, error)
	ResolveObservers(event any, qualifiers ...Qualifier) ([]*ObserverMethod, error)
	IsActive(ctx context.Context, scope Scope) bool
}

var _ BeanManager = (*Container)(nil)

// Container registers beans, validates the deployment and hands out
// contextual references
type Container struct {
	config   *Config
	logger   Logger
	metrics  *Metrics
	registry *Registry
	resolver *Resolver
	executor Executor
	tx       TransactionServices

	ownsExecutor bool

	mu       sync.RWMutex
	contexts map[Scope]ScopeContext
	enabled  map[string]bool
	modules  map[string]*Module
	deployed []*Module
	frozen   bool
	closed   bool

	conversations *ConversationManager
	proxies       sync.Map
	observerCache sync.Map
	chains        sync.Map
}

// Option customizes a container built by New
type Option func(*Container)

// WithConfig replaces the default configuration
func WithConfig(cfg *Config) Option {
	return func(c *Container) {
		if cfg != nil {
			c.config = cfg
		}
	}
}

// WithLogger replaces the logger built from configuration
func WithLogger(l Logger) Option {
	return func(c *Container) {
		c.logger = l
	}
}

// WithMetrics records container activity in m
func WithMetrics(m *Metrics) Option {
	return func(c *Container) {
		c.metrics = m
	}
}

// WithExecutor replaces the default asynchronous executor
func WithExecutor(e Executor) Option {
	return func(c *Container) {
		c.executor = e
	}
}

// WithTransactionServices enables transactional observers
func WithTransactionServices(tx TransactionServices) Option {
	return func(c *Container) {
		c.tx = tx
	}
}

// WithScopeContext adds a custom scope, or replaces the context of a built-in one
func WithScopeContext(sc ScopeContext) Option {
	return func(c *Container) {
		c.contexts[sc.Scope()] = sc
	}
}

// New creates an empty container with the built-in scopes registered
func New(opts ...Option) *Container {
	c := &Container{
		config:   DefaultConfig(),
		registry: NewRegistry(),
		contexts: make(map[Scope]ScopeContext),
		enabled:  make(map[string]bool),
		modules:  make(map[string]*Module),
	}
	c.contexts[Singleton] = newSharedContext(Singleton, false, c.destroyContextual)
	c.contexts[ApplicationScoped] = newSharedContext(ApplicationScoped, true, c.destroyContextual)
	c.contexts[RequestScoped] = newBoundContext(RequestScoped, true, c.destroyContextual)
	c.contexts[SessionScoped] = newBoundContext(SessionScoped, true, c.destroyContextual)
	c.contexts[ConversationScoped] = newBoundContext(ConversationScoped, true, c.destroyContextual)

	for _, opt := range opts {
		opt(c)
	}

	if c.logger == nil {
		c.logger = InitLogger(c.config.Log)
	}
	if c.metrics == nil && c.config.Metrics.Enabled {
		c.metrics = NewMetrics(c.config.Metrics.Namespace)
	}
	if c.executor == nil {
		c.executor = NewExecutor(c.config.Executor)
		c.ownsExecutor = true
	}
	for _, id := range c.config.Alternatives.Enabled {
		c.enabled[id] = true
	}
	c.resolver = NewResolver(c.registry, c.isEnabled, c.config.Resolution.CacheSize, c.metrics)
	c.conversations = newConversationManager(c, c.config.Conversation)

	c.registerBuiltIns()
	return c
}

// registerBuiltIns exposes the container, its logger and its configuration as beans
func (c *Container) registerBuiltIns() {
	builtIns := []*BeanDefinition{
		Value[*Container](c).ID("doffy.BeanManager").Types(TypeFor[BeanManager]()).Build(),
		Value[Logger](c.logger).ID("doffy.Logger").Build(),
		Value[*Config](c.config).ID("doffy.Config").Build(),
	}
	if c.metrics != nil {
		builtIns = append(builtIns, Value[*Metrics](c.metrics).ID("doffy.Metrics").Build())
	}
	for _, def := range builtIns {
		def.kind = BuiltInBean
		if err := c.registry.Register(def); err != nil {
			c.logger.Infor(&LoggerItem{
				Event:    "BuiltInRegistrationFailed",
				Messages: "failed to register built-in bean",
				Error:    err,
			})
		}
	}
}

// RegisterScope adds a scope backed by one store per BeginScope id. Normal
// scopes are injected through client proxies.
func (c *Container) RegisterScope(scope Scope, normal bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.frozen {
		return fmt.Errorf("%w: cannot register scope %s", ErrFrozen, scope)
	}
	if _, exists := c.contexts[scope]; exists || scope == Dependent {
		return illegalArgument("scope %s is already registered", scope)
	}
	c.contexts[scope] = newBoundContext(scope, normal, c.destroyContextual)
	return nil
}

// Register adds beans. Definition errors of every provider are collected.
func (c *Container) Register(providers ...Provider) error {
	var err error
	for _, p := range providers {
		err = multierr.Append(err, c.register(p.Build(), ""))
	}
	return err
}

func (c *Container) register(def *BeanDefinition, module string) error {
	if c.isClosed() {
		return illegalState("container is shut down")
	}
	if def.err == nil {
		if module != "" {
			def.module = module
		}
		if pt, ok := def.target.(*producerTarget); ok {
			pt.container = c
		}
	}
	if err := c.registry.Register(def); err != nil {
		c.logger.Infor(&LoggerItem{
			Event:    "BeanRegistrationFailed",
			Messages: "bean registration failed",
			Error:    err,
		})
		return err
	}
	c.invalidate()
	c.metrics.beanRegistered()
	c.logger.Debug("BeanRegistered", "bean registered",
		zap.String("bean", def.id),
		zap.Stringer("scope", def.scope),
		zap.Stringer("kind", def.kind),
	)
	return nil
}

// AddObserver registers an observer method that is not declared by a bean
func (c *Container) AddObserver(om *ObserverMethod) error {
	if err := c.registry.AddObserver(om); err != nil {
		return err
	}
	c.invalidate()
	return nil
}

// EnableAlternatives enables alternatives, interceptors and decorators by
// bean id or bean class name for the whole deployment
func (c *Container) EnableAlternatives(ids ...string) error {
	c.mu.Lock()
	if c.frozen {
		c.mu.Unlock()
		return fmt.Errorf("%w: cannot enable alternatives", ErrFrozen)
	}
	for _, id := range ids {
		c.enabled[id] = true
	}
	c.mu.Unlock()
	c.invalidate()
	return nil
}

// invalidate drops resolution results computed before the registry changed
func (c *Container) invalidate() {
	c.resolver.Clear()
	c.observerCache.Range(func(key, _ any) bool {
		c.observerCache.Delete(key)
		return true
	})
	c.chains.Range(func(key, _ any) bool {
		c.chains.Delete(key)
		return true
	})
}

func (c *Container) isEnabled(def *BeanDefinition) bool {
	if def.priority > 0 {
		return true
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.enabled[def.id] {
		return true
	}
	return def.beanClass != nil && c.enabled[def.beanClass.String()]
}

func (c *Container) isFrozen() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.frozen
}

func (c *Container) isClosed() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.closed
}

// Freeze ends registration: specialization is applied, the deployment is
// validated and eager beans are instantiated
func (c *Container) Freeze(ctx context.Context) error {
	if c.isFrozen() {
		return nil
	}
	if c.isClosed() {
		return illegalState("container is shut down")
	}
	c.applySpecialization()

	if err := c.validate(ctx); err != nil {
		c.logger.Infor(&LoggerItem{
			Event:    "DeploymentFailed",
			Messages: "deployment validation failed",
			Error:    err,
		})
		return err
	}

	c.registry.Freeze()
	c.mu.Lock()
	c.frozen = true
	c.mu.Unlock()
	c.invalidate()

	var err error
	eager := 0
	for _, def := range c.registry.Beans() {
		if !def.eager || !def.resolvable() {
			continue
		}
		if def.alternative && !c.isEnabled(def) {
			continue
		}
		eager++
		err = multierr.Append(err, c.Touch(ctx, def))
	}
	if err != nil {
		return err
	}

	c.logger.Infor(&LoggerItem{
		Event:    "ContainerFrozen",
		Messages: "container is ready",
		Data: map[string]int{
			"beans":     c.registry.Len(),
			"observers": len(c.registry.Observers()),
			"eager":     eager,
		},
	})
	return nil
}

// applySpecialization gives every specializing bean the qualifiers and name
// of the bean it specializes
func (c *Container) applySpecialization() {
	for _, def := range c.registry.Beans() {
		if def.specializes == "" || (def.alternative && !c.isEnabled(def)) {
			continue
		}
		for id, seen := def.specializes, map[string]bool{def.id: true}; id != "" && !seen[id]; {
			seen[id] = true
			target, ok := c.registry.Bean(id)
			if !ok {
				break
			}
			c.registry.specialize(def, target)
			id = target.specializes
		}
	}
	c.invalidate()
}

// Resolve returns the beans eligible for type t and qualifiers
func (c *Container) Resolve(t *Type, qualifiers ...Qualifier) ([]*BeanDefinition, error) {
	return c.resolver.Resolve(t, qualifiers...)
}

// ResolveUnique resolves exactly one bean for type t and qualifiers
func (c *Container) ResolveUnique(t *Type, qualifiers ...Qualifier) (*BeanDefinition, error) {
	return c.resolver.ResolveUnique(t, qualifiers...)
}

// ResolveByName resolves exactly one bean by name
func (c *Container) ResolveByName(name string) (*BeanDefinition, error) {
	beans := c.resolver.ResolveByName(name)
	return unique(beans, ObjectType, []Qualifier{Named(name)}, nil)
}

// Reference returns a contextual reference to bean: a client proxy for
// normal scopes, the instance itself for pseudo-scopes
func (c *Container) Reference(ctx context.Context, bean *BeanDefinition) (any, error) {
	if !c.isFrozen() {
		return nil, illegalState("references are only available after Freeze")
	}
	return c.referenceFor(c.newCreationalContext(ctx, nil), bean, nil)
}

// Get resolves a unique bean of type t and returns a reference to it
func (c *Container) Get(ctx context.Context, t *Type, qualifiers ...Qualifier) (any, error) {
	bean, err := c.ResolveUnique(t, qualifiers...)
	if err != nil {
		return nil, err
	}
	return c.Reference(ctx, bean)
}

// ResolveAs resolves the unique bean assignable to the type target points to
// and stores a reference to it in target
func (c *Container) ResolveAs(ctx context.Context, target any, qualifiers ...Qualifier) error {
	targetValue := reflect.ValueOf(target)
	if targetValue.Kind() != reflect.Ptr || targetValue.IsNil() {
		return illegalArgument("target must be a non-nil pointer")
	}
	elem := targetValue.Elem().Type()
	ref, err := c.Get(ctx, typeOfGo(elem), qualifiers...)
	if err != nil {
		return err
	}
	v, err := argValue(elem, ref)
	if err != nil {
		return err
	}
	targetValue.Elem().Set(v)
	return nil
}

// Lookup resolves a unique bean of type T
func Lookup[T any](ctx context.Context, c *Container, qualifiers ...Qualifier) (T, error) {
	var zero T
	ref, err := c.Get(ctx, TypeFor[T](), qualifiers...)
	if err != nil {
		return zero, err
	}
	v, ok := ref.(T)
	if !ok {
		return zero, illegalState("reference of type %T is not assignable to %s", ref, TypeFor[T]())
	}
	return v, nil
}

// Touch makes sure the contextual instance of bean exists in the scope
// instance active for ctx
func (c *Container) Touch(ctx context.Context, bean *BeanDefinition) error {
	if bean.scope == Dependent {
		_, err := c.Reference(ctx, bean)
		return err
	}
	_, err := c.contextualInstance(ctx, bean)
	return err
}

// BeginScope activates a new or existing instance of scope under id and
// returns a context carrying it. An empty id generates one.
func (c *Container) BeginScope(ctx context.Context, scope Scope, id string, opts ...ScopeOption) (context.Context, error) {
	if scope == ConversationScoped {
		return nil, illegalArgument("conversations are activated through Conversations().Activate")
	}
	bc, err := c.boundContext(scope)
	if err != nil {
		return nil, err
	}
	if ctx == nil {
		ctx = context.Background()
	}
	if id == "" {
		id = uuid.NewString()
	}
	o := &scopeOptions{}
	for _, opt := range opts {
		opt(o)
	}
	store, created := bc.begin(id, o.beans)
	if created {
		c.logger.Debug("ScopeBegun", "scope instance started", zap.Stringer("scope", scope), zap.String("id", id))
	}
	return context.WithValue(ctx, scopeKey{scope}, &activeScope{id: id, store: store}), nil
}

// EndScope destroys every instance held by scope instance id
func (c *Container) EndScope(scope Scope, id string) error {
	bc, err := c.boundContext(scope)
	if err != nil {
		return err
	}
	ended, err := bc.end(id)
	if ended {
		c.logger.Debug("ScopeEnded", "scope instance ended", zap.Stringer("scope", scope), zap.String("id", id))
	}
	if err != nil {
		c.logger.Infor(&LoggerItem{
			Event:    "ScopeDestructionFailed",
			Messages: fmt.Sprintf("failed to destroy %s instances of '%s'", scope, id),
			Error:    err,
		})
	}
	return err
}

// ScopeIDs lists the live instances of a scope started with BeginScope
func (c *Container) ScopeIDs(scope Scope) []string {
	bc, err := c.boundContext(scope)
	if err != nil {
		return nil
	}
	return bc.ids()
}

func (c *Container) boundContext(scope Scope) (*boundContext, error) {
	sc, err := c.scopeContext(scope)
	if err != nil {
		return nil, err
	}
	bc, ok := sc.(*boundContext)
	if !ok {
		return nil, illegalArgument("scope %s cannot be started or ended explicitly", scope)
	}
	return bc, nil
}

// IsActive reports whether scope has an active instance for ctx
func (c *Container) IsActive(ctx context.Context, scope Scope) bool {
	if scope == Dependent {
		return true
	}
	sc, err := c.scopeContext(scope)
	if err != nil {
		return false
	}
	_, err = sc.Store(ctx)
	return err == nil
}

// Conversations returns the conversation manager
func (c *Container) Conversations() *ConversationManager { return c.conversations }

// Logger returns the container logger
func (c *Container) Logger() Logger { return c.logger }

// Metrics returns the container metrics, nil when disabled
func (c *Container) Metrics() *Metrics { return c.metrics }

// Config returns the container configuration
func (c *Container) Config() *Config { return c.config }

// Registry returns the bean registry
func (c *Container) Registry() *Registry { return c.registry }

// Shutdown ends every scope instance, destroys all contextual instances and
// drops the registry
func (c *Container) Shutdown(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	contexts := make([]ScopeContext, 0, len(c.contexts))
	for _, sc := range c.contexts {
		contexts = append(contexts, sc)
	}
	c.mu.Unlock()

	err := c.conversations.shutdown()
	// Narrower scopes go first so their instances can still reach shared ones.
	for _, scope := range []Scope{RequestScoped, SessionScoped} {
		for _, id := range c.ScopeIDs(scope) {
			err = multierr.Append(err, c.EndScope(scope, id))
		}
	}
	for _, sc := range contexts {
		switch s := sc.(type) {
		case *boundContext:
			for _, id := range s.ids() {
				_, e := s.end(id)
				err = multierr.Append(err, e)
			}
		}
	}
	for _, scope := range []Scope{ApplicationScoped, Singleton} {
		if sc, ok := c.contexts[scope].(*sharedContext); ok {
			err = multierr.Append(err, sc.store.ClearAll())
		}
	}
	if pool, ok := c.executor.(*PoolExecutor); ok && c.ownsExecutor {
		err = multierr.Append(err, pool.Shutdown(ctx))
	}
	c.registry.clear()
	c.invalidate()
	c.proxies.Range(func(key, _ any) bool {
		c.proxies.Delete(key)
		return true
	})

	c.logger.Infor(&LoggerItem{
		Event:    "ContainerShutdown",
		Messages: "container shut down",
		Error:    err,
	})
	return err
}

func (c *Container) scopeContext(scope Scope) (ScopeContext, error) {
	if scope == Dependent {
		return nil, illegalArgument("%s beans have no scope context", Dependent)
	}
	c.mu.RLock()
	sc, ok := c.contexts[scope]
	c.mu.RUnlock()
	if !ok {
		return nil, illegalArgument("no context registered for scope %s", scope)
	}
	return sc, nil
}

// beanChain is the interceptor and decorator set bound to one bean
type beanChain struct {
	interceptors []*BeanDefinition
	decorators   []*BeanDefinition
}

func (c *Container) chainFor(bean *BeanDefinition) *beanChain {
	if v, ok := c.chains.Load(bean.id); ok {
		return v.(*beanChain)
	}
	bc := &beanChain{
		interceptors: c.interceptorsFor(bean),
		decorators:   c.decoratorsFor(bean),
	}
	if c.isFrozen() {
		c.chains.Store(bean.id, bc)
	}
	return bc
}

// create builds a fully initialized instance of bean, decorators included.
// On failure every dependent created so far is destroyed.
func (c *Container) create(bean *BeanDefinition, cc *CreationalContext) (any, error) {
	defer cc.finish()
	instance, err := c.produce(bean, cc)
	if err == nil {
		err = c.buildDecorators(cc, cc.chain, c.chainFor(bean).decorators)
	}
	if err != nil {
		if rerr := cc.Release(); rerr != nil {
			err = multierr.Append(err, rerr)
		}
		var ce *CreationError
		if !errors.As(err, &ce) || ce.Bean != bean.id {
			err = &CreationError{Bean: bean.id, Err: err}
		}
		c.logger.Debug("ContextualInstanceCreationFailed", "failed to create instance", zap.String("bean", bean.id), zap.Error(err))
		return nil, err
	}
	c.metrics.instanceCreated(bean.scope)
	c.logger.Debug("ContextualInstanceCreated", "instance created", zap.String("bean", bean.id), zap.Stringer("scope", bean.scope))
	return instance, nil
}

// produce constructs, injects and initializes an instance wrapped by its
// lifecycle interceptors
func (c *Container) produce(bean *BeanDefinition, cc *CreationalContext) (any, error) {
	if bean.target == nil {
		return nil, illegalState("bean '%s' has no injection target", bean.id)
	}
	target := bean.target
	chain := &invocationChain{bean: bean}
	cc.chain = chain

	for _, ib := range c.chainFor(bean).interceptors {
		icc := cc.child(ib, nil)
		inst, err := c.produce(ib, icc)
		if err != nil {
			return nil, err
		}
		ci := &ContextualInstance{Bean: ib, Instance: inst, CC: icc}
		cc.AddDependent(ci)
		chain.interceptors = append(chain.interceptors, ci)
	}

	out, err := chain.around(cc.ctx, AroundConstruct, "", nil, nil, func([]any) ([]any, error) {
		inst, err := target.Produce(cc)
		if err != nil {
			return nil, err
		}
		return []any{inst}, nil
	})
	if err != nil {
		return nil, err
	}
	if len(out) == 0 || out[0] == nil {
		return nil, illegalState("around-construct interceptors of '%s' did not produce an instance", bean.id)
	}
	instance := out[0]
	chain.target = instance

	cc.Push(instance)
	if err := target.Inject(instance, cc); err != nil {
		return nil, err
	}
	if err := chain.lifecycle(cc.ctx, PostConstruct, instance, func() error {
		return target.PostConstruct(instance)
	}); err != nil {
		return nil, err
	}
	return instance, nil
}

// destroyInstance runs pre-destroy interceptors and callbacks, disposes the
// instance and releases its dependents
func (c *Container) destroyInstance(ci *ContextualInstance) error {
	bean := ci.Bean
	ctx := context.Background()
	var chain *invocationChain
	if ci.CC != nil {
		chain = ci.CC.chain
		ctx = context.WithoutCancel(ci.CC.ctx)
	}

	var err error
	if bean.target != nil {
		err = chain.lifecycle(ctx, PreDestroy, ci.Instance, func() error {
			return bean.target.PreDestroy(ci.Instance)
		})
		err = multierr.Append(err, bean.target.Dispose(ci.Instance))
	}
	if ci.CC != nil {
		err = multierr.Append(err, ci.CC.Release())
	}
	c.metrics.instanceDestroyed(bean.scope)
	c.logger.Debug("ContextualInstanceDestroyed", "instance destroyed", zap.String("bean", bean.id), zap.Stringer("scope", bean.scope))
	if err != nil {
		return &DestructionError{Bean: bean.id, Err: err}
	}
	return nil
}

func (c *Container) destroyContextual(ci *ContextualInstance) error {
	return c.destroyInstance(ci)
}

// injectableReference returns the value injected at ip for the instance
// being created under cc
func (c *Container) injectableReference(cc *CreationalContext, ip *InjectionPoint) (any, error) {
	switch ip.builtin {
	case builtinContext:
		return cc.ctx, nil
	case builtinInjectionPoint:
		return cc.injectionPoint, nil
	case builtinEvent:
		return &Event{c: c, typ: ip.Type.Args()[0], qualifiers: ip.Qualifiers, ip: ip}, nil
	case builtinInstance:
		return newInstance(c, cc, ip.Type.Args()[0], ip.Qualifiers, ip), nil
	}
	if ip.Delegate {
		if cc.delegate == nil {
			return nil, illegalState("no delegate available for %s", ip)
		}
		return cc.delegate, nil
	}
	beans, err := c.resolver.Resolve(ip.Type, ip.Qualifiers...)
	if err != nil {
		return nil, err
	}
	bean, err := unique(beans, ip.Type, ip.Qualifiers, ip)
	if err != nil {
		return nil, err
	}
	return c.referenceFor(cc, bean, ip)
}

// referenceFor returns a reference to bean for injection at ip under cc.
// Dependent instances become dependents of cc.
func (c *Container) referenceFor(cc *CreationalContext, bean *BeanDefinition, ip *InjectionPoint) (any, error) {
	switch {
	case !bean.scope.IsPseudo():
		return c.clientProxyFor(bean)
	case bean.scope == Singleton:
		sc, err := c.scopeContext(Singleton)
		if err != nil {
			return nil, err
		}
		store, err := sc.Store(cc.ctx)
		if err != nil {
			return nil, err
		}
		ci, err := store.getOrCreate(bean, c.newCreationalContext(cc.ctx, bean), func(ncc *CreationalContext) (any, error) {
			return c.create(bean, ncc)
		})
		if err != nil {
			return nil, err
		}
		return c.wrapIntercepted(ci)
	}

	if cc.inProgress(bean) {
		return nil, &CircularDependencyError{Path: append(cc.path(), bean.id)}
	}
	child := cc.child(bean, ip)
	inst, err := c.create(bean, child)
	if err != nil {
		return nil, err
	}
	ci := &ContextualInstance{Bean: bean, Instance: inst, CC: child}
	cc.AddDependent(ci)
	return c.wrapIntercepted(ci)
}

// wrapIntercepted routes calls on a pseudo-scoped instance through its
// interceptors and decorators when it has any
func (c *Container) wrapIntercepted(ci *ContextualInstance) (any, error) {
	if ci.CC == nil || !ci.CC.chain.intercepted() {
		return ci.Instance, nil
	}
	if ci.Bean.proxy == nil {
		return nil, &UnproxyableResolutionError{Bean: ci.Bean.id, Reason: "intercepted beans need a proxy factory"}
	}
	return ci.Bean.proxy(&directInvoker{chain: ci.CC.chain}), nil
}

// String lists the registered beans, one per line
func (c *Container) String() string {
	var sb strings.Builder
	for _, def := range c.registry.Beans() {
		sb.WriteString(def.String())
		sb.WriteByte('\n')
	}
	return sb.String()
}
