//go:build tinygo

package main

import (
	"context"

	"ecuos/app"
	"ecuos/hal"
	"ecuos/internal/oscfg"
)

func main() {
	h := hal.New()
	sys, err := app.New(context.Background(), h, app.Config{OS: oscfg.DemoConfig(h.Logger())})
	if err != nil {
		h.Logger().WriteLineString(err.Error())
		select {}
	}
	<-sys.Done()
	if err := sys.Err(); err != nil {
		h.Logger().WriteLineString(err.Error())
	}
	select {}
}
