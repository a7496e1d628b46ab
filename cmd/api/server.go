package main

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"enquiryflow/auth"
	"enquiryflow/config"
	"enquiryflow/customer"
	"enquiryflow/metrics"
)

type customerService interface {
	Create(ctx context.Context, in customer.Input, actor customer.Actor) (customer.Customer, error)
	Update(ctx context.Context, id string, patch customer.Input, actor customer.Actor) (customer.Customer, error)
	AppendRemark(ctx context.Context, id string, in customer.RemarkInput, actor customer.Actor) (customer.Customer, error)
	GetByID(ctx context.Context, id string) (customer.Customer, error)
	GetByMobile(ctx context.Context, mobile string) (customer.Customer, error)
	List(ctx context.Context, filter customer.Filter) ([]customer.Customer, error)
	ListPending(ctx context.Context) ([]customer.Customer, error)
}

type authService interface {
	Register(ctx context.Context, req auth.RegisterRequest) (*auth.User, error)
	Login(ctx context.Context, req auth.LoginRequest) (auth.LoginResult, error)
	Refresh(ctx context.Context, refreshToken string) (string, error)
	Logout(ctx context.Context, userID string) error
	GetUserByID(ctx context.Context, userID string) (*auth.User, error)
	VerifyToken(token string) (auth.Principal, error)
}

type pinger interface {
	Ping(ctx context.Context) error
}

type server struct {
	customers customerService
	auth      authService
	store     pinger
	log       *logrus.Entry
	debug     bool
}

// newRouter registers every route on a fresh engine.
func newRouter(s *server, cfg *config.Config) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(requestID())
	router.Use(requestLogger(s.log))
	router.Use(metrics.Middleware())
	router.Use(cors.New(corsConfig(cfg)))

	router.GET("/health", s.health)
	router.GET("/metrics", metrics.Handler())

	api := router.Group("/api")

	api.POST("/user", s.register)

	authRoutes := api.Group("/auth")
	{
		authRoutes.POST("/login", s.login)
		authRoutes.POST("/refresh", s.refresh)
		authRoutes.POST("/logout", s.authenticate(), s.logout)
		authRoutes.GET("/me", s.authenticate(), s.currentUser)
	}

	customers := api.Group("/customer", s.authenticate())
	{
		customers.POST("", s.createCustomer)
		customers.GET("", s.listCustomers)
		customers.GET("/pending", s.listPendingCustomers)
		customers.GET("/mobile/:mobile", s.getCustomerByMobile)
		customers.GET("/:id", s.getCustomer)
		customers.PUT("/:id", s.updateCustomer)
		customers.PATCH("/:id/remarks", s.appendRemark)
	}

	return router
}

// corsConfig allows every origin in development and the configured list
// otherwise.
func corsConfig(cfg *config.Config) cors.Config {
	c := cors.Config{
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS", "PATCH"},
		AllowHeaders:     []string{"Content-Type", "Authorization", "X-Requested-With", "Accept", "Origin"},
		ExposeHeaders:    []string{"Content-Range", "X-Content-Range"},
		AllowCredentials: true,
		MaxAge:           24 * time.Hour,
	}
	if cfg.IsDevelopment() {
		c.AllowOriginFunc = func(string) bool { return true }
		return c
	}
	c.AllowOrigins = cfg.CORS.Origins()
	return c
}

func (s *server) health(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	if err := s.store.Ping(ctx); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status": "unhealthy",
			"store":  "disconnected",
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"status": "healthy",
		"store":  "connected",
	})
}
