package main

import (
	"context"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/princinho/lmsbackend/controllers"
	"github.com/princinho/lmsbackend/database"
	"github.com/princinho/lmsbackend/email"
	"github.com/princinho/lmsbackend/logger"
	"github.com/princinho/lmsbackend/middleware"
	"github.com/princinho/lmsbackend/services"
)

func main() {
	if err := godotenv.Load(); err != nil {
		// fall back to real environment
	}
	logger.Init()
	log := logger.L()

	ctx := context.Background()
	if err := database.EnsureIndexes(ctx); err != nil {
		log.Fatal("failed to create indexes", zap.Error(err))
	}

	users := database.NewUsersStore()
	orgs := database.NewOrganizationsStore()
	tokens := database.NewTokensStore()
	refresh := database.NewRefreshTokensStore()
	txn := database.NewTxnRunner()

	mailer := email.NewMailer(email.NewSMTPSenderFromEnv())

	auth := services.NewAuthService(users)
	tokenSvc := services.NewTokenService(users, tokens, refresh, txn, mailer)
	guard := services.NewLicenseGuard(orgs)
	tenants := services.NewTenantService(users, orgs, guard, tokenSvc, txn)
	imports := services.NewImportService(users, guard, tokenSvc, txn)

	// Seed the platform operator before serving traffic.
	if _, err := auth.EnsureOperatorIdentity(ctx); err != nil {
		log.Fatal("failed to ensure operator identity", zap.Error(err))
	}

	r := gin.New()

	origins := os.Getenv("ALLOWED_ORIGINS")
	allowedOrigins := map[string]bool{}
	for _, origin := range strings.Split(origins, ",") {
		origin = strings.TrimSpace(origin)
		if origin != "" {
			allowedOrigins[origin] = true
		}
	}
	log.Info("CORS configured", zap.Int("origins", len(allowedOrigins)))
	r.Use(cors.New(cors.Config{
		AllowOriginFunc: func(origin string) bool {
			return allowedOrigins[origin]
		},
		AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))
	r.Use(logger.Middleware())
	r.Use(gin.Recovery())

	r.GET("/ping", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"message": "pong",
		})
	})

	r.POST("/auth/login", controllers.Login(auth, refresh))
	r.POST("/auth/refresh", controllers.Refresh(users, refresh))
	r.POST("/auth/logout", controllers.Logout(refresh))
	r.POST("/auth/password/forgot", controllers.ForgotPassword(tokenSvc))
	r.GET("/auth/password/validate/:token", controllers.ValidateResetToken(tokenSvc))
	r.POST("/auth/password/reset", controllers.ResetPassword(tokenSvc))

	admin := r.Group("/admin")
	admin.Use(middleware.AuthMiddleware())
	{
		admin.POST("/users", controllers.CreateUser(tenants))
		admin.PATCH("/users/:id", controllers.UpdateUser(tenants))
		admin.PATCH("/users/:id/role", controllers.UpdateUserRole(tenants))
		admin.DELETE("/users/:id", controllers.DeleteUser(tenants))
		admin.POST("/users/:id/reset-password", controllers.AdminResetUserPassword(tokenSvc))
		admin.POST("/import/users", controllers.BulkImportUsers(imports))
		admin.POST("/me/password", controllers.ChangeMyPassword(users, refresh))

		admin.POST("/organizations", controllers.CreateOrganization(tenants))
		admin.PATCH("/organizations/:id", controllers.EditOrganization(tenants))
		admin.DELETE("/organizations/:id", controllers.DeleteOrganization(tenants))
		admin.POST("/organizations/:id/users", controllers.CreateUserInOrganization(tenants))
		admin.PATCH("/organizations/:id/users/:userId", controllers.UpdateUserInOrganization(tenants))
		admin.DELETE("/organizations/:id/users/:userId", controllers.DeleteUserFromOrganization(tenants))
		admin.POST("/organizations/:id/import", controllers.BulkImportUsersToOrg(imports))
	}

	// Start server on port 8080 (default)
	r.Run()
}
