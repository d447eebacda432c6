// @title Quiz Engine API
// @version 1.0
// @description 在线测验作答服务：计时、评分、成绩回顾与作答记录。
// @termsOfService http://swagger.io/terms/

// @contact.name API支持
// @contact.url http://www.swagger.io/support
// @contact.email support@swagger.io

// @license.name Apache 2.0
// @license.url http://www.apache.org/licenses/LICENSE-2.0.html

// @host localhost:8080
// @BasePath /
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization

package main

import (
	"flag"
	"fmt"
	"log"
	"time"

	"coder_edu_quiz/internal/app"
	"coder_edu_quiz/internal/config"
	"coder_edu_quiz/internal/model"
	"coder_edu_quiz/internal/util"
	"coder_edu_quiz/pkg/logger"
)

func main() {
	// 命令行参数
	migrateOnly := flag.Bool("migrate-only", false, "只执行数据库迁移，完成后退出")
	migrate := flag.Bool("migrate", false, "启动时强制执行数据库迁移（即使是 release 模式）")
	devToken := flag.Uint("dev-token", 0, "为指定用户ID签发调试用令牌并退出")
	devRole := flag.String("dev-role", string(model.Student), "调试令牌的角色：student/teacher/admin")
	flag.Parse()

	cfg, err := config.LoadConfig("configs")
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	if *devToken > 0 {
		if cfg.Server.Mode == "release" {
			log.Fatal("dev-token is not available in release mode")
		}
		token, err := util.GenerateJWT(uint(*devToken), model.UserRole(*devRole), cfg.JWT.Secret, 24*time.Hour)
		if err != nil {
			log.Fatalf("Failed to sign token: %v", err)
		}
		fmt.Println(token)
		return
	}

	// 设置迁移标志
	cfg.ForceMigrate = *migrate || *migrateOnly
	cfg.MigrateOnly = *migrateOnly

	application := app.NewApp(cfg)
	defer logger.Log.Sync()

	// 迁移完成后直接退出
	if *migrateOnly {
		log.Println("数据库迁移完成，退出程序")
		return
	}

	application.Run()
}
