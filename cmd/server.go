/*
Copyright © 2025 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cioer/DoAn-sub006/internal/api"
	"github.com/cioer/DoAn-sub006/internal/config"
	"github.com/cioer/DoAn-sub006/internal/container"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

// serverCmd represents the server command
var serverCmd = &cobra.Command{
	Use:   "server",
	Short: "Start the API server",
	Long: `Start the proposal workflow API server.
The server will listen on the configured host and port,
and provide REST API interfaces for proposal lifecycle management.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		// 1. 加载配置
		configPath, _ := cmd.Flags().GetString("config")
		cfg, err := config.Load(configPath)
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}

		// 2. 初始化容器
		ctr, err := container.NewContainer(cfg)
		if err != nil {
			return fmt.Errorf("failed to initialize container: %w", err)
		}
		defer ctr.Close()

		// 3. 初始化链路追踪
		if cfg.Tracing.Enabled {
			if err := api.InitTracing("qlnckh", cfg.Tracing.JaegerEndpoint); err != nil {
				return fmt.Errorf("failed to initialize tracing: %w", err)
			}
		}

		// 4. 监听配置文件变更,热更新日志级别
		if configPath != "" {
			watcher := config.NewConfigWatcher(cfg, configPath)
			watcher.OnConfigChange(func(newCfg *config.Config) {
				if level, err := logrus.ParseLevel(newCfg.Log.Level); err == nil {
					ctr.Logger().SetLevel(level)
					log.Printf("Config reloaded, log level is now %s", newCfg.Log.Level)
				}
			})
			if err := watcher.Start(); err != nil {
				log.Printf("Config watcher disabled: %v", err)
			} else {
				defer watcher.Stop()
			}
		}

		// 5. 启动后台组件(WebSocket Hub、指标采集)
		bgCtx, bgCancel := context.WithCancel(context.Background())
		defer bgCancel()
		ctr.Start(bgCtx)

		// 6. 设置路由
		router := api.SetupRoutes(&api.RouterConfig{
			DB:                ctr.DB(),
			Recorder:          ctr.Recorder(),
			Validator:         ctr.KeycloakValidator(),
			Hub:               ctr.Hub(),
			ProposalService:   ctr.ProposalService(),
			TransitionService: ctr.TransitionService(),
			EvaluationService: ctr.EvaluationService(),
			StatisticsService: ctr.StatisticsService(),
			VerifyService:     ctr.VerifyService(),
			RateLimitRPS:      cfg.RateLimit.RPS,
			RateLimitBurst:    cfg.RateLimit.Burst,
			AllowedOrigins:    cfg.CORS.AllowedOrigins,
			EnableTracing:     cfg.Tracing.Enabled,
		})

		// 7. 启动服务器
		addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
		srv := &http.Server{
			Addr:    addr,
			Handler: router,
		}

		// 启动服务器（在 goroutine 中）
		go func() {
			log.Printf("Server starting on %s", addr)
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Fatalf("Failed to start server: %v", err)
			}
		}()

		// 等待中断信号
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		<-quit

		log.Println("Shutting down server...")
		bgCancel()

		// 优雅关闭
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(ctx); err != nil {
			log.Fatalf("Server forced to shutdown: %v", err)
		}

		if cfg.Tracing.Enabled {
			if err := api.ShutdownTracing(ctx); err != nil {
				log.Printf("Failed to shutdown tracing: %v", err)
			}
		}

		log.Println("Server exited")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(serverCmd)

	// 服务器配置标志
	serverCmd.Flags().String("config", "", "Config file path (default: config.yaml)")
	serverCmd.Flags().String("host", "0.0.0.0", "Server host")
	serverCmd.Flags().Int("port", 8080, "Server port")
}

// LoadConfig 加载配置
func LoadConfig(configPath string) (*config.Config, error) {
	return config.Load(configPath)
}
