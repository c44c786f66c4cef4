/**
 * Copyright 2017 Comcast Cable Communications Management, LLC
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 *
 */

// devbridge is the CLI entry point spec §1 names as an external
// collaborator the core packages don't specify: it wires the ambient
// stack (pflag/viper/cast config, go-kit logging, candlelight tracing,
// prometheus metrics) and the one concrete transport (transport/ws)
// and hardware communication manager (device/comm/lovenseconnect) this
// repo ships, in the shape of tr1d1um.go's own main: build a flag set
// and viper instance, resolve services, hand runnables to
// concurrent.Execute, and wait for a signal.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"

	"github.com/go-kit/kit/log"
	"github.com/go-kit/kit/log/level"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cast"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/xmidt-org/devbridge/connector"
	"github.com/xmidt-org/devbridge/device"
	"github.com/xmidt-org/devbridge/device/comm/lovenseconnect"
	"github.com/xmidt-org/devbridge/device/config"
	"github.com/xmidt-org/devbridge/internal/metrics"
	"github.com/xmidt-org/devbridge/internal/runtime"
	"github.com/xmidt-org/devbridge/internal/tracing"
	"github.com/xmidt-org/devbridge/internal/xerror"
	"github.com/xmidt-org/devbridge/message"
	_ "github.com/xmidt-org/devbridge/protocol/handlers"
	"github.com/xmidt-org/devbridge/serializer"
	"github.com/xmidt-org/devbridge/session"
	"github.com/xmidt-org/devbridge/transport/ws"
)

const applicationName = "devbridge"

// Config keys, following tr1d1um.go's flat viper-key convention.
const (
	listenAddressKey    = "listenAddress"
	maxPingTimeKey       = "maxPingTime"
	allowRawMessagesKey  = "allowRawMessages"
	keepAliveKey         = "keepAliveInterval"
	devicesKey           = "devices"
	lovenseConnectURLKey = "lovenseConnect.baseURL"
)

var defaults = map[string]interface{}{
	listenAddressKey:     ":12345",
	maxPingTimeKey:       "0s",
	allowRawMessagesKey:  false,
	keepAliveKey:         "1s",
	lovenseConnectURLKey: "",
}

func devbridge(arguments []string) (exitCode int) {
	f := pflag.NewFlagSet(applicationName, pflag.ContinueOnError)
	f.String("config", "", "path to a devbridge config file")
	f.String("listenAddress", "", "websocket listen address, e.g. :12345")

	if err := f.Parse(arguments); err != nil {
		fmt.Fprintf(os.Stderr, "unable to parse flags: %s\n", err)
		return 1
	}

	v := viper.New()
	v.SetConfigName(applicationName)
	v.AddConfigPath(".")
	v.AddConfigPath("/etc/devbridge")
	if path, _ := f.GetString("config"); path != "" {
		v.SetConfigFile(path)
	}
	for k, val := range defaults {
		v.SetDefault(k, val)
	}
	_ = v.BindPFlag(listenAddressKey, f.Lookup("listenAddress"))

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			fmt.Fprintf(os.Stderr, "unable to read config: %s\n", err)
			return 1
		}
	}

	logger := log.NewJSONLogger(log.NewSyncWriter(os.Stdout))
	logger = log.With(logger, "ts", log.DefaultTimestampUTC, "caller", log.DefaultCaller)
	infoLog, errorLog := level.Info(logger), level.Error(logger)

	tracer, err := tracing.Configure(v, applicationName)
	if err != nil {
		errorLog.Log("msg", "unable to configure tracing", "err", err)
		return 2
	}
	defer tracer.Shutdown(context.Background())

	registry := prometheus.NewRegistry()
	measures := metrics.New(registry)

	entries, err := loadDeviceEntries(v)
	if err != nil {
		errorLog.Log("msg", "unable to load device config", "err", err)
		return 3
	}
	configTable := config.New(entries)

	comms := buildCommManagers(v, logger)

	keepAlive := cast.ToDuration(v.Get(keepAliveKey))
	deviceManager := device.New(device.Options{
		Config:    configTable,
		Managers:  comms,
		KeepAlive: keepAlive,
		Logger:    logger,
		AllowRaw:  v.GetBool(allowRawMessagesKey),
		Measures:  measures,
	})

	ser, err := serializer.New()
	if err != nil {
		errorLog.Log("msg", "unable to build serializer", "err", err)
		return 3
	}
	maxPing := cast.ToDuration(v.Get(maxPingTimeKey))
	sessionCfg := session.Config{
		ServerName:  applicationName,
		MaxVersion:  message.MaxVersion,
		MaxPingTime: maxPing,
		Logger:      logger,
		Measures:    measures,
	}

	router := ws.NewRouter(ws.Options{
		Logger:         logger,
		MetricsHandler: promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		NewSession:     newSessionFactory(sessionCfg, ser, deviceManager, measures, logger),
	})

	httpServer := &http.Server{
		Addr:    v.GetString(listenAddressKey),
		Handler: router,
	}

	managerRun := func(shutdown <-chan struct{}) error {
		ctx, cancel := context.WithCancel(context.Background())
		go func() {
			<-shutdown
			cancel()
		}()
		deviceManager.Run(ctx)
		return nil
	}

	listen := func(shutdown <-chan struct{}) error {
		go func() {
			<-shutdown
			_ = httpServer.Close()
		}()
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	}

	infoLog.Log("msg", "devbridge listening", "address", httpServer.Addr, "configFile", v.ConfigFileUsed())
	return runtime.Run(logger, runtime.Func(listen), runtime.Func(managerRun))
}

// newSessionFactory closes over everything a Session needs to build a
// ws.SessionFactory: one Session per accepted connection, run to
// completion in its own goroutine.
func newSessionFactory(cfg session.Config, ser *serializer.Serializer, devices session.DeviceManager, measures *metrics.Measures, logger log.Logger) ws.SessionFactory {
	return func(conn *connector.Connector) {
		s := session.New(cfg, conn, ser, devices)
		measures.SessionsActive.Inc()

		ctx := context.Background()
		go func() { _ = conn.Run(ctx) }()
		go func() {
			defer measures.SessionsActive.Dec()
			if err := s.Run(ctx); err != nil {
				level.Debug(logger).Log("msg", "session ended", "err", err)
			}
		}()
	}
}

func loadDeviceEntries(v *viper.Viper) ([]config.Entry, error) {
	var entries []config.Entry
	if err := v.UnmarshalKey(devicesKey, &entries); err != nil {
		return nil, xerror.Wrap(xerror.KindUnknown, err)
	}
	return entries, nil
}

func buildCommManagers(v *viper.Viper, logger log.Logger) []device.HardwareCommunicationManager {
	var comms []device.HardwareCommunicationManager
	if baseURL := v.GetString(lovenseConnectURLKey); baseURL != "" {
		comms = append(comms, lovenseconnect.New(lovenseconnect.Config{
			BaseURL: baseURL,
			Logger:  logger,
		}))
	}
	return comms
}

func main() {
	os.Exit(devbridge(os.Args[1:]))
}
