package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/talkincode/nextshop/config"
	"github.com/talkincode/nextshop/internal/api"
	"github.com/talkincode/nextshop/internal/app"
	"github.com/talkincode/nextshop/internal/order"
	"github.com/talkincode/nextshop/internal/webserver"
	"github.com/talkincode/nextshop/pkg/common"
)

var (
	cfile    = flag.String("c", "/etc/nextshop.yml", "config file")
	initdb   = flag.Bool("initdb", false, "drop and recreate all tables, then exit")
	showVer  = flag.Bool("v", false, "print version and exit")
	buildVer = "dev"
)

func main() {
	flag.Parse()

	if *showVer {
		fmt.Println("nextshop", buildVer)
		return
	}

	if !common.FileExists(*cfile) {
		fmt.Fprintf(os.Stderr, "config %s not found, using defaults\n", *cfile)
	}
	cfg := config.LoadConfig(*cfile)
	_ = os.MkdirAll(cfg.System.Workdir, 0o755)

	application := app.NewApplication(cfg)
	application.Init(cfg)
	defer application.Release()

	if *initdb {
		application.InitDb()
		zap.L().Info("database initialized")
		return
	}

	orderSvc := order.NewService(application.DB(), application.Bus()).
		WithSettings(application.ConfigMgr())
	webserver.Init(cfg, application.DB(), orderSvc)
	api.InitRouter()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return webserver.Instance().Start()
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return webserver.Instance().Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		zap.L().Error("server exited", zap.Error(err))
	}
}
