package main

import (
	"context"
	"flag"
	stdlog "log"
	"os"
	"time"

	"github.com/go-kratos/kratos/v2"
	"github.com/go-kratos/kratos/v2/log"
	"github.com/redis/go-redis/v9"

	"github.com/zhiyou-ai/trip_planner/internal/conf"
	"github.com/zhiyou-ai/trip_planner/internal/geo"
	"github.com/zhiyou-ai/trip_planner/internal/logger"
	"github.com/zhiyou-ai/trip_planner/internal/planner"
	"github.com/zhiyou-ai/trip_planner/internal/server"
	"github.com/zhiyou-ai/trip_planner/internal/service"
	"github.com/zhiyou-ai/trip_planner/internal/session"
	"github.com/zhiyou-ai/trip_planner/internal/store"
)

// go build -ldflags "-X main.Version=x.y.z"
var (
	// Name 是服务的名称
	Name string = "trip_planner"
	// Version 是服务的版本号
	Version string
	// flagconf 是配置文件的路径命令行参数
	flagconf string

	id, _ = os.Hostname()
)

func init() {
	flag.StringVar(&flagconf, "conf", "configs/config.yaml", "config path, eg: -conf config.yaml")
}

func main() {
	flag.Parse()

	// 1. 加载配置
	bc, err := conf.Load(flagconf)
	if err != nil {
		stdlog.Fatalf("无法加载配置文件: %v", err)
	}

	// 2. 初始化日志
	logLevel, logFile := "info", ""
	if bc.Log != nil {
		logLevel, logFile = bc.Log.Level, bc.Log.File
	}
	if err := logger.Init(logLevel, logFile); err != nil {
		stdlog.Fatalf("无法初始化日志: %v", err)
	}
	logger.Log.Info("启动旅行规划服务...")

	kratosLogger := log.With(log.NewStdLogger(os.Stdout),
		"ts", log.DefaultTimestamp,
		"caller", log.DefaultCaller,
		"service.id", id,
		"service.name", Name,
		"service.version", Version,
	)

	ctx := context.Background()

	// 3. 初始化会话存储。Redis 未配置时退化为纯内存缓存。
	var rdb *redis.Client
	if bc.Data != nil && bc.Data.Redis != nil && bc.Data.Redis.Addr != "" {
		rdb = redis.NewClient(&redis.Options{
			Addr:     bc.Data.Redis.Addr,
			Password: bc.Data.Redis.Password,
			DB:       bc.Data.Redis.DB,
		})
		if err := rdb.Ping(ctx).Err(); err != nil {
			logger.Log.Errorf("无法连接 Redis: %v. 将仅使用内存缓存。", err)
			rdb = nil
		} else {
			logger.Log.Info("已成功连接到 Redis")
		}
	} else {
		logger.Log.Info("未配置 Redis，会话仅保存在内存中")
	}

	st := store.NewSessionStore(rdb, bc.Data.SessionTTLOrDefault())
	st.Load(ctx)

	// 4. 初始化计划归档库（可选）
	var archive *store.Archive
	if bc.Data != nil && bc.Data.Database != nil && bc.Data.Database.Source != "" {
		a, cleanup, err := store.NewArchive(bc.Data.Database.Driver, bc.Data.Database.Source)
		if err != nil {
			logger.Log.Errorf("无法连接数据库: %v. 计划将不做归档。", err)
		} else {
			archive = a
			defer cleanup()
			logger.Log.Info("已成功连接到归档数据库")
		}
	} else {
		logger.Log.Info("未配置数据库信息，跳过计划归档")
	}

	// 5. 初始化规划后端
	var backend planner.Backend
	if bc.Planner != nil && bc.Planner.BaseURL != "" {
		b, err := planner.NewLLMBackend(bc.Planner)
		if err != nil {
			logger.Log.Fatalf("LLM 初始化失败: %v", err)
		}
		backend = b
		logger.Log.Infof("规划后端: LLM (%s)", bc.Planner.Model)
	} else {
		backend = planner.NewMockBackend()
		logger.Log.Info("规划后端: 本地降级生成器")
	}

	// 6. 初始化地理编码（可选）
	var resolver *geo.Resolver
	if bc.Amap != nil && bc.Amap.Key != "" {
		delay := 200 * time.Millisecond
		if bc.Amap.RequestDelay != "" {
			if d, err := time.ParseDuration(bc.Amap.RequestDelay); err == nil && d > 0 {
				delay = d
			}
		}
		resolver = geo.NewResolver(geo.NewClient(bc.Amap.Key), delay)
		logger.Log.Info("地理编码已启用")
	} else {
		logger.Log.Info("未配置高德 Key，跳过坐标回填")
	}

	// 7. 组装会话编排器与 HTTP 服务
	orch := session.New(st, backend, resolver, archive)
	poller := session.NewPoller(orch, bc.Polling.IntervalOrDefault(), bc.Polling.MaxAttemptsOrDefault())
	svc := service.NewPlanningService(orch, poller, kratosLogger)
	httpSrv := server.NewHTTPServer(bc.Server, svc, kratosLogger)

	app := kratos.New(
		kratos.ID(id),
		kratos.Name(Name),
		kratos.Version(Version),
		kratos.Logger(kratosLogger),
		kratos.Server(httpSrv),
	)

	if err := app.Run(); err != nil {
		logger.Log.Fatalf("服务退出: %v", err)
	}
}
