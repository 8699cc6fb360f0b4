// internal/router/router.go
package router

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/ipnexus/ipnexus-backend/internal/config"
	"github.com/ipnexus/ipnexus-backend/internal/handlers"
	"github.com/ipnexus/ipnexus-backend/internal/middleware"
	"github.com/ipnexus/ipnexus-backend/internal/models"
	"github.com/ipnexus/ipnexus-backend/internal/services"
	"github.com/ipnexus/ipnexus-backend/internal/utils"
)

// LAPPolicyAddress is the address of the built-in liquid-absolute-percentage
// royalty policy.
var LAPPolicyAddress = models.NormalizeAddress(utils.DeriveAddress("policy:lap"))

func Initialize(db *gorm.DB, cfg *config.Config) *gin.Engine {
	// Initialize services
	policyRegistry := services.NewPolicyRegistry()
	policyRegistry.Register(services.NewLAPPolicy(LAPPolicyAddress))

	hookRegistry := services.NewHookRegistry()

	registryService := services.NewRegistryService(db, cfg)
	graphService := services.NewGraphService(db)
	permissionService := services.NewPermissionService(db, registryService)
	storageService := services.NewStorageService(db, registryService)
	disputeService := services.NewDisputeService(db, registryService, graphService)
	royaltyService := services.NewRoyaltyService(db, cfg, registryService, graphService, policyRegistry)
	licenseService := services.NewLicenseService(db, cfg, permissionService, graphService, royaltyService, hookRegistry)
	authService := services.NewAuthService(db, cfg)
	adminService := services.NewAdminService(db)

	// The licensing module must be registered for the permission engine to
	// admit delegated signers on licensing operations.
	if !registryService.IsModule(services.LicensingModuleAddress) {
		if _, err := registryService.RegisterModule(&services.RegisterModuleRequest{
			Name:    "licensing",
			Address: string(services.LicensingModuleAddress),
			Selectors: []string{
				string(services.SelAttachLicenseTerms),
				string(services.SelSetLicensingConfig),
				string(services.SelRegisterDerivative),
			},
		}); err != nil {
			logrus.WithError(err).Warn("Failed to seed licensing module registration")
		}
	}

	// Initialize handlers
	authHandler := handlers.NewAuthHandler(authService)
	accountHandler := handlers.NewAccountHandler(registryService, graphService, disputeService)
	permissionHandler := handlers.NewPermissionHandler(permissionService)
	storageHandler := handlers.NewStorageHandler(storageService)
	licenseHandler := handlers.NewLicenseHandler(licenseService)
	royaltyHandler := handlers.NewRoyaltyHandler(royaltyService)
	disputeHandler := handlers.NewDisputeHandler(disputeService)
	adminHandler := handlers.NewAdminHandler(adminService, registryService, royaltyService)

	// Set JWT secret
	utils.SetJWTSecret(cfg.JWT.SecretKey)

	// Initialize Gin router
	r := gin.New()

	// Global middleware
	r.Use(gin.Recovery())
	r.Use(middleware.RequestLogger())
	r.Use(middleware.CORS())
	r.Use(middleware.GeneralRateLimit())
	r.Use(middleware.AuditLogMiddleware(db))

	// Health check
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":  "healthy",
			"version": "1.0.0",
		})
	})

	// API v1 routes
	v1 := r.Group("/v1")
	{
		// Authentication routes
		auth := v1.Group("/auth")
		auth.Use(middleware.AuthRateLimit())
		{
			auth.POST("/register", authHandler.Register)
			auth.POST("/login", authHandler.Login)
			auth.POST("/refresh", authHandler.RefreshToken)
			auth.GET("/me", middleware.AuthRequired(), authHandler.GetProfile)
		}

		// IP account routes
		accounts := v1.Group("/accounts")
		{
			accounts.GET("", middleware.OptionalAuth(), accountHandler.List)
			accounts.GET("/:ipId", middleware.OptionalAuth(), accountHandler.Get)
			accounts.GET("/:ipId/parents", accountHandler.GetParents)
			accounts.GET("/:ipId/children", accountHandler.GetChildren)
			accounts.GET("/:ipId/ancestors", accountHandler.GetAncestors)

			protected := accounts.Group("")
			protected.Use(middleware.AuthRequired(), middleware.MutationRateLimit())
			{
				protected.POST("", accountHandler.Register)
				protected.POST("/:ipId/transfer", accountHandler.TransferOwnership)
			}
		}

		// Permission routes
		permissions := v1.Group("/permissions")
		{
			permissions.GET("/:ipId", permissionHandler.List)
			permissions.GET("/:ipId/check", permissionHandler.Check)

			protected := permissions.Group("")
			protected.Use(middleware.AuthRequired(), middleware.MutationRateLimit())
			{
				protected.POST("", permissionHandler.Set)
				protected.POST("/all", permissionHandler.SetAll)
				protected.POST("/batch", permissionHandler.SetBatch)
			}
		}

		// Account storage routes
		storage := v1.Group("/storage")
		{
			storage.GET("/:ipId/:namespace", storageHandler.ListNamespace)
			storage.GET("/:ipId/:namespace/:key", storageHandler.Get)

			protected := storage.Group("")
			protected.Use(middleware.AuthRequired(), middleware.MutationRateLimit())
			{
				protected.PUT("/:ipId", storageHandler.Set)
				protected.PUT("/:ipId/batch", storageHandler.SetBatch)
			}
		}

		// Licensing routes
		licenses := v1.Group("/licenses")
		{
			licenses.GET("/terms/:termsId", licenseHandler.GetTerms)
			licenses.GET("/attachments/:ipId", licenseHandler.ListAttachments)
			licenses.GET("/config/:ipId", licenseHandler.GetConfig)
			licenses.GET("/tokens/:tokenId", licenseHandler.GetToken)

			protected := licenses.Group("")
			protected.Use(middleware.AuthRequired(), middleware.MutationRateLimit())
			{
				protected.POST("/terms", licenseHandler.RegisterTerms)
				protected.POST("/attachments", licenseHandler.Attach)
				protected.PUT("/config", licenseHandler.SetConfig)
				protected.POST("/tokens", licenseHandler.MintTokens)
				protected.GET("/tokens", licenseHandler.ListTokens)
				protected.POST("/tokens/:tokenId/transfer", licenseHandler.TransferToken)
				protected.POST("/derivatives", licenseHandler.RegisterDerivative)
				protected.POST("/derivatives/tokens", licenseHandler.RegisterDerivativeWithTokens)
			}
		}

		// Royalty routes
		royalties := v1.Group("/royalties")
		{
			royalties.GET("/vaults/:ipId", royaltyHandler.GetVault)
			royalties.GET("/stacks/:ipId", royaltyHandler.GetStack)
			royalties.GET("/revenue/:ipId", royaltyHandler.GetLifetimeRevenue)

			protected := royalties.Group("")
			protected.Use(middleware.AuthRequired(), middleware.MutationRateLimit())
			{
				protected.POST("/payments", royaltyHandler.Pay)
				protected.POST("/vaults/:ipId/snapshots", royaltyHandler.Snapshot)
				protected.GET("/snapshots/:snapshotId/claimable", royaltyHandler.Claimable)
				protected.POST("/snapshots/:snapshotId/claims", royaltyHandler.Claim)
				protected.GET("/balances", royaltyHandler.GetBalance)
			}
		}

		// Dispute routes
		disputes := v1.Group("/disputes")
		{
			disputes.GET("", disputeHandler.List)
			disputes.GET("/:disputeId", disputeHandler.Get)

			protected := disputes.Group("")
			protected.Use(middleware.AuthRequired(), middleware.MutationRateLimit())
			{
				protected.POST("", disputeHandler.Raise)
				protected.POST("/:disputeId/cancel", disputeHandler.Cancel)
				protected.POST("/:disputeId/resolve", disputeHandler.Resolve)
				protected.POST("/:disputeId/tag-derivative", disputeHandler.TagDerivative)
				protected.POST("/:disputeId/judge", middleware.AdminRequired(), disputeHandler.Judge)
			}
		}

		// Admin routes
		admin := v1.Group("/admin")
		admin.Use(middleware.AuthRequired(), middleware.AdminRequired())
		{
			admin.GET("/stats", adminHandler.GetStats)
			admin.GET("/users", adminHandler.GetUsers)
			admin.PUT("/users/:userId/status", adminHandler.UpdateUserStatus)
			admin.GET("/audit-logs", adminHandler.GetAuditLogs)

			admin.GET("/modules", adminHandler.ListModules)
			admin.POST("/modules", adminHandler.RegisterModule)
			admin.DELETE("/modules/:address", adminHandler.RemoveModule)

			admin.POST("/tokens", adminHandler.WhitelistToken)
			admin.POST("/policies", adminHandler.RegisterPolicy)
			admin.POST("/deposits", adminHandler.Deposit)
		}
	}

	return r
}
