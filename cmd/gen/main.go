package main

import (
	"flag"

	"github.com/utrading/utrading-signal-executor/config"
	"github.com/utrading/utrading-signal-executor/internal/dal"
)

// gorm-gen 查询代码生成入口
// 使用: go run cmd/gen/main.go -config cfg.toml
func main() {
	var configFile string
	var outPath string
	flag.StringVar(&configFile, "config", "cfg.toml", "config file path")
	flag.StringVar(&outPath, "out", "internal/dal/gen", "generated code output path")
	flag.Parse()

	if err := config.Load(configFile); err != nil {
		panic(err)
	}

	dal.InitMysqlDB(config.Get().MySQL)
	dal.GenExecute(outPath, dal.MySQL())
}
