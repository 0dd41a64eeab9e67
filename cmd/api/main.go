package main

import (
	"log"

	"goflare.io/voucher/config"
)

func main() {

	appConfig, err := config.ProvideApplicationConfig()
	if err != nil {
		log.Fatal(err)
	}

	server, err := InitializeServer(appConfig)
	if err != nil {
		log.Fatal(err)
	}

	if err = server.Run(appConfig.Server.Addr); err != nil {
		log.Fatal(err.Error())
	}

}
