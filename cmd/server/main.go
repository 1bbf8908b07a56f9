package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"hgnc/internal/config"
	"hgnc/internal/consumer"
	"hgnc/internal/handler"
	"hgnc/internal/infrastructure/cache"
	"hgnc/internal/infrastructure/database"
	"hgnc/internal/infrastructure/lock"
	"hgnc/internal/infrastructure/mq"
	"hgnc/internal/job"
	"hgnc/internal/logger"
	"hgnc/internal/referral"
	"hgnc/internal/repository"
	"hgnc/internal/service"
	"hgnc/pkg/idgen"

	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"
)

func main() {
	configPath := flag.String("config", "config/config.yaml", "配置文件路径")
	nodeID := flag.Int64("node", 1, "雪花算法节点 ID")
	flag.Parse()

	// 加载配置
	v := viper.New()
	cfg, err := config.LoadConfig(v, *configPath)
	if err != nil {
		logrus.Fatalf("加载配置失败: %v", err)
	}

	log := logger.New(os.Stdout, cfg.Log, cfg.Server.Mode)

	// 初始化 ID 生成器
	if err := idgen.Init(*nodeID); err != nil {
		log.Fatalf("初始化 ID 生成器失败: %v", err)
	}

	props, err := config.NewProvider(v, log)
	if err != nil {
		log.Fatalf("加载运营参数失败: %v", err)
	}
	props.Watch()

	// 初始化 MySQL
	db, err := database.InitMySQL(&cfg.MySQL, log)
	if err != nil {
		log.Fatalf("初始化 MySQL 失败: %v", err)
	}

	// 初始化 Redis
	redisClient, err := cache.InitRedis(&cfg.Redis, log)
	if err != nil {
		log.Fatalf("初始化 Redis 失败: %v", err)
	}
	defer redisClient.Close()

	// 初始化 Kafka
	producer, err := mq.NewProducer(&cfg.Kafka)
	if err != nil {
		log.Fatalf("初始化 Kafka 失败: %v", err)
	}
	defer producer.Close()

	// 仓储与服务
	tx := repository.NewTransactor(db)
	users := repository.NewUserRepository(db)
	ledgerRepo := repository.NewLedgerRepository(db)
	outboxRepo := repository.NewOutboxRepository(db)
	walker := referral.NewWalker(users, cfg.Business.ReferralMaxDepth)
	locker := lock.NewRedisLocker(redisClient, time.Duration(cfg.Business.LockTTLSeconds)*time.Second, cfg.Business.LockMaxRetries)

	userService := service.NewUserService(tx, users, ledgerRepo, walker, log)
	ledgerService := service.NewLedgerService(tx, users, ledgerRepo, props, log).
		WithDecayBatchSize(cfg.Business.DecayBatchSize)
	commissionService := service.NewCommissionService(tx, users, ledgerRepo, outboxRepo, walker, props, cfg.Kafka.Topic.CommissionSettled, log)
	fulfillmentService := service.NewFulfillmentService(
		tx,
		repository.NewOrderRepository(db),
		repository.NewFulfillmentRepository(db),
		ledgerService,
		commissionService,
		locker,
		props,
		log,
	).WithMaxAttempts(cfg.Business.MaxRetryCount)

	// 创建上下文（用于优雅关闭）
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 启动后台任务
	outboxSender := job.NewOutboxSender(outboxRepo, producer, cfg.Business.MaxRetryCount, log)
	go outboxSender.Start(ctx)

	decayJob := job.NewPointDecayJob(ledgerService, props, cfg.Jobs.PointDecayHour, log)
	go decayJob.Start(ctx)

	retryJob := job.NewFulfillmentRetryJob(fulfillmentService, time.Duration(cfg.Jobs.FulfillmentRetrySeconds)*time.Second, log)
	go retryJob.Start(ctx)

	if cfg.RabbitMQ.Enabled {
		orderConsumer, err := consumer.NewOrderConsumer(cfg.RabbitMQ, fulfillmentService, log)
		if err != nil {
			log.Fatalf("初始化 RabbitMQ 消费者失败: %v", err)
		}
		defer orderConsumer.Close()
		go func() {
			if err := orderConsumer.Start(ctx); err != nil {
				log.WithError(err).Error("订单消费者退出")
			}
		}()
	}

	// 设置路由
	h := handler.NewHandler(userService, ledgerService, fulfillmentService, props, log)
	router := handler.SetupRouter(h, cfg.Server.Mode, cfg.Server.AdminToken, log)

	// 启动 HTTP 服务
	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: router,
	}

	// 在 goroutine 中启动服务器
	go func() {
		log.Infof("服务启动，监听端口: %d", cfg.Server.Port)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("服务启动失败: %v", err)
		}
	}()

	// 等待中断信号
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("正在关闭服务...")

	// 取消上下文，停止后台任务
	cancel()

	// 关闭 HTTP 服务（等待最多5秒）
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Error("服务关闭异常")
	}

	log.Info("服务已关闭")
}
