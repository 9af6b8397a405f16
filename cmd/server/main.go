// Package main 是应用程序的入口点。
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golge-go/internal/config"
	"golge-go/internal/handler"
	"golge-go/internal/middleware"
	"golge-go/internal/repository"
	"golge-go/internal/service"
	"golge-go/pkg/crypt"
	"golge-go/pkg/database"
	"golge-go/pkg/log"
	"golge-go/pkg/token"
	"golge-go/pkg/webhook"

	"github.com/gin-gonic/gin"
)

func main() {
	// 1. 初始化配置
	config.Init("./configs/config.yaml")
	cfg := config.Conf

	// 2. 初始化日志记录器
	log.Init(cfg.Log.Level, cfg.Log.Format, cfg.Log.OutputPath)
	defer log.Sync()
	log.Info("日志记录器初始化成功")

	// 3. 初始化内容混淆密钥、数据库和 Redis
	crypt.SetSecretKey(cfg.Crypt.SecretKey)
	database.InitMySQL(cfg.Database.MySQL.DSN)
	database.InitRedis(cfg.Database.Redis.Addr, cfg.Database.Redis.Password, cfg.Database.Redis.DB)

	// 4. 初始化 Repository
	userRepo := repository.NewUserRepository(database.DB)
	historyRepo := repository.NewHistoryRepository(database.DB)
	progressRepo := repository.NewProgressRepository(database.DB, database.RDB)

	// 5. 初始化 Service (依赖注入)
	jwtManager := token.NewJWTManager(cfg.JWT.Secret, cfg.JWT.AccessTokenExpireHours, cfg.JWT.RefreshTokenExpireDays)
	webhookClient := webhook.NewClient(cfg.Webhook)
	userService := service.NewUserService(userRepo, jwtManager)
	journalService := service.NewJournalService(historyRepo, progressRepo)
	adminService := service.NewAdminService(userRepo, historyRepo)
	sessionManager := service.NewSessionManager(webhookClient, historyRepo, progressRepo, cfg.Webhook.HiddenGraceSeconds)

	// 6. 设置 Gin 模式并创建路由引擎
	gin.SetMode(cfg.Server.Mode)
	r := gin.New()
	r.Use(middleware.RequestLogger(), gin.Recovery())

	// 7. 注册路由
	apiV1 := r.Group("/api/v1")
	{
		auth := apiV1.Group("/auth")
		{
			auth.POST("/refreshToken", handler.NewAuthHandler(userService).RefreshToken)
		}

		users := apiV1.Group("/users")
		{
			// 无需认证的路由 (公开访问)
			users.POST("/register", handler.NewUserHandler(userService).Register)
			users.POST("/login", handler.NewUserHandler(userService).Login)

			// 需要认证的路由 (仅限登录用户访问)
			authed := users.Group("/")
			authed.Use(middleware.AuthMiddleware(jwtManager, userService))
			{
				authed.GET("/me", handler.NewUserHandler(userService).GetProfile)
				authed.GET("/history", handler.NewJournalHandler(journalService).GetHistory)
				authed.DELETE("/history", handler.NewJournalHandler(journalService).ResetHistory)
				authed.GET("/progress", handler.NewJournalHandler(journalService).GetProgress)
			}
		}

		rooms := apiV1.Group("/rooms")
		rooms.Use(middleware.AuthMiddleware(jwtManager, userService))
		{
			rooms.GET("", handler.NewJournalHandler(journalService).GetRooms)
		}

		// 管理端路由 (需要 admin 角色)
		admin := apiV1.Group("/admin")
		admin.Use(middleware.AuthMiddleware(jwtManager, userService), middleware.AdminAuthMiddleware())
		{
			admin.GET("/stats", handler.NewAdminHandler(adminService).GetStats)
		}
	}

	// Chat 路由 (WebSocket)
	r.GET("/chat/:token", handler.NewChatHandler(sessionManager, userService, jwtManager).Handle)

	// 8. 启动 HTTP 服务器并实现优雅停机
	srv := &http.Server{
		Addr:    fmt.Sprintf(":%s", cfg.Server.Port),
		Handler: r,
	}

	go func() {
		log.Infof("服务启动于 %s", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("HTTP 服务监听失败: %s\n", err)
		}
	}()

	// 等待中断信号以实现优雅停机
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("接收到停机信号，正在关闭服务...")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Fatalf("HTTP 服务器关闭失败: %v", err)
	}
	log.Info("服务已优雅关闭")
}
