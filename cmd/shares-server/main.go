package main

import (
	"github.com/sirupsen/logrus"

	"github.com/dibs-shares/shares-server/pkg/app"
	"github.com/dibs-shares/shares-server/pkg/shares/server"
)

func main() {
	if err := app.Run(server.NewApp()); err != nil {
		logrus.WithError(err).Fatal("error running shares server")
	}
}
