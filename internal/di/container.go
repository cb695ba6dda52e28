package di

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/montebazar/api/internal/platform/config"
	"github.com/montebazar/api/internal/repositories"
	"github.com/montebazar/api/internal/services"
)

// Services bundles the service-layer contracts that handlers rely upon. Concrete implementations
// are assembled via dependency injection in NewContainer.
type Services struct {
	Shipping services.ShippingService
	Settings services.SettingsService
	Pricing  services.CartPricer
	Coupons  services.CouponService
	Cart     services.CartService
	Orders   services.OrderService
	Checkout services.CheckoutService
	System   services.SystemService
}

// Dependencies carries the infrastructure collaborators the service layer is
// built on. Registry and Gateway are required; Publisher may be nil when no
// Pub/Sub topic is configured.
type Dependencies struct {
	Registry  repositories.Registry
	Gateway   services.PaymentGateway
	Publisher services.OrderEventPublisher
	// Health overrides the registry health repository, letting main add
	// checks for dependencies the registry does not own.
	Health repositories.HealthRepository
	// Profiles, when set, prefills new checkout drafts from the shopper's
	// stored account details.
	Profiles services.ProfileLoader
	Build    services.BuildInfo
	Logger   *zap.Logger
	Clock    func() time.Time
}

// Container wires repositories, services, and background infrastructure for runtime use.
type Container struct {
	Config       config.Config
	Repositories repositories.Registry
	Services     Services
}

// NewContainer constructs the runtime dependencies. Production wiring provides the
// Firestore registry and payment manager, while tests can supply in-memory fakes.
func NewContainer(cfg config.Config, deps Dependencies) (*Container, error) {
	if deps.Registry == nil {
		return nil, errors.New("repositories registry is required")
	}
	if deps.Gateway == nil {
		return nil, errors.New("payment gateway is required")
	}

	svc, err := buildServices(cfg, deps)
	if err != nil {
		return nil, err
	}

	return &Container{
		Config:       cfg,
		Repositories: deps.Registry,
		Services:     svc,
	}, nil
}

// Close releases resources such as repository clients, background workers, or caches.
func (c *Container) Close(ctx context.Context) error {
	if c == nil || c.Repositories == nil {
		return nil
	}
	return c.Repositories.Close(ctx)
}

func buildServices(cfg config.Config, deps Dependencies) (Services, error) {
	var svc Services
	reg := deps.Registry

	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}

	shippingSvc, err := services.NewShippingService(services.ShippingServiceDeps{
		Rates:    reg.ShippingRates(),
		Clock:    clock,
		CacheTTL: cfg.Shipping.CacheTTL,
		Logger:   serviceLogger(deps.Logger, "shipping"),
	})
	if err != nil {
		return Services{}, fmt.Errorf("build shipping service: %w", err)
	}
	svc.Shipping = shippingSvc

	settingsSvc, err := services.NewSettingsService(services.SettingsServiceDeps{
		Repository: reg.Settings(),
		Clock:      clock,
		Logger:     serviceLogger(deps.Logger, "settings"),
	})
	if err != nil {
		return Services{}, fmt.Errorf("build settings service: %w", err)
	}
	svc.Settings = settingsSvc

	pricer, err := services.NewCartPricingEngine(services.PricingEngineDeps{
		Shipping: shippingSvc,
		Settings: settingsSvc,
		Clock:    clock,
		Logger:   serviceLogger(deps.Logger, "pricing"),
	})
	if err != nil {
		return Services{}, fmt.Errorf("build pricing engine: %w", err)
	}
	svc.Pricing = pricer

	if cfg.Features.EnableCoupons {
		couponSvc, err := services.NewCouponService(services.CouponServiceDeps{
			Coupons: reg.Coupons(),
			Usage:   reg.CouponUsage(),
			Clock:   clock,
			Logger:  serviceLogger(deps.Logger, "coupon"),
		})
		if err != nil {
			return Services{}, fmt.Errorf("build coupon service: %w", err)
		}
		svc.Coupons = couponSvc
	}

	cartSvc, err := services.NewCartService(services.CartServiceDeps{
		Repository: reg.Carts(),
		Pricer:     pricer,
		Coupons:    svc.Coupons,
		Clock:      clock,
		Logger:     serviceLogger(deps.Logger, "cart"),
	})
	if err != nil {
		return Services{}, fmt.Errorf("build cart service: %w", err)
	}
	svc.Cart = cartSvc

	orderSvc, err := services.NewOrderService(services.OrderServiceDeps{
		Orders:     reg.Orders(),
		Addresses:  reg.Addresses(),
		Sessions:   reg.PaymentSessions(),
		Carts:      cartSvc,
		Pricer:     pricer,
		Gateway:    deps.Gateway,
		Publisher:  deps.Publisher,
		ReturnURLs: checkoutReturnURLs(cfg.Payments.ReturnURLBase),
		Clock:      clock,
		Logger:     serviceLogger(deps.Logger, "order"),
	})
	if err != nil {
		return Services{}, fmt.Errorf("build order service: %w", err)
	}
	svc.Orders = orderSvc

	checkoutSvc, err := services.NewCheckoutService(services.CheckoutServiceDeps{
		Drafts:   reg.CheckoutDrafts(),
		Orders:   orderSvc,
		Carts:    cartSvc,
		Coupons:  svc.Coupons,
		Settings: svc.Settings,
		Profiles: deps.Profiles,
		Clock:    clock,
		Logger:   serviceLogger(deps.Logger, "checkout"),
	})
	if err != nil {
		return Services{}, fmt.Errorf("build checkout service: %w", err)
	}
	svc.Checkout = checkoutSvc

	// Warm the shipping cache for the destination as soon as the shopper
	// commits a department, so pricing on the payment step hits the cache.
	checkoutSvc.SubscribeDepartmentChanges(func(ctx context.Context, _ *services.Department, current services.Department) {
		shippingSvc.Prefetch(context.WithoutCancel(ctx), current)
	})

	healthRepo := deps.Health
	if healthRepo == nil {
		healthRepo = reg.Health()
	}
	if healthRepo != nil {
		systemSvc, err := services.NewSystemService(services.SystemServiceDeps{
			HealthRepository: healthRepo,
			Clock:            clock,
			Build:            deps.Build,
		})
		if err != nil {
			return Services{}, fmt.Errorf("build system service: %w", err)
		}
		svc.System = systemSvc
	}

	return svc, nil
}

func checkoutReturnURLs(base string) services.CheckoutReturnURLs {
	if base == "" {
		return services.CheckoutReturnURLs{}
	}
	return services.CheckoutReturnURLs{
		Success: base + "/success",
		Pending: base + "/pending",
		Failure: base + "/failure",
	}
}

func serviceLogger(logger *zap.Logger, name string) func(context.Context, string, map[string]any) {
	if logger == nil {
		return nil
	}
	named := logger.Named(name)
	return func(_ context.Context, event string, fields map[string]any) {
		zFields := make([]zap.Field, 0, len(fields)+1)
		zFields = append(zFields, zap.String("event", event))
		for k, v := range fields {
			zFields = append(zFields, zap.Any(k, v))
		}
		named.Debug("service log", zFields...)
	}
}
