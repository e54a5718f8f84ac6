package main

import (
	"flag"
	"fmt"
	"os"

	gostats "github.com/lyft/gostats"

	"github.com/reqgate/reqgate/src/config"
	"github.com/reqgate/reqgate/src/settings"
	"github.com/reqgate/reqgate/src/stats"
)

func loadConfig(configPath string) {
	defer func() {
		err := recover()
		if err != nil {
			fmt.Printf("error loading gateway config: %s\n", err.(error).Error())
			os.Exit(1)
		}
	}()
	statsManager := stats.NewStatManager(gostats.NewStore(gostats.NewNullSink(), false), settings.NewSettings())
	config.LoadFile(configPath, statsManager)
}

func main() {
	configPath := flag.String(
		"config_path", "", "path to the gateway config file")
	flag.Parse()
	fmt.Printf("checking gateway config...\n")
	fmt.Printf("loading config file: %s\n", *configPath)

	loadConfig(*configPath)
	fmt.Printf("gateway config ok\n")
}
