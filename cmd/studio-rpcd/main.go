// Command studio-rpcd serves the device RPC endpoint over a serial device and
// over the TCP emulation of the attribute transport.
//
// Usage:
//
//	studio-rpcd --config studio.yaml
//	studio-rpcd --uart /dev/ttyACM0 --gatt-listen 127.0.0.1:7070 --log-level debug
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	flag "github.com/spf13/pflag"

	"github.com/arloliu/go-studiorpc/config"
	"github.com/arloliu/go-studiorpc/gatt"
	"github.com/arloliu/go-studiorpc/logger"
	"github.com/arloliu/go-studiorpc/rpc"
	"github.com/arloliu/go-studiorpc/subsystem/core"
	"github.com/arloliu/go-studiorpc/uart"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "studio-rpcd:", err)
		os.Exit(1)
	}
}

func run() error {
	var (
		configPath = flag.StringP("config", "c", "", "configuration file (.yaml, .yml or .toml)")
		logLevel   = flag.String("log-level", "", "override log.level")
		logFormat  = flag.String("log-format", "", "override log.format (json or console)")
		codecName  = flag.String("codec", "", "override the message codec (proto or cbor)")
		uartDevice = flag.String("uart", "", "serial device path; enables the serial transport")
		gattListen = flag.String("gatt-listen", "", "TCP address of the attribute emulation; enables it")
	)
	flag.Parse()

	cfg := config.Default()
	if *configPath != "" {
		var err error
		if cfg, err = config.Load(*configPath); err != nil {
			return err
		}
	}

	if *logLevel != "" {
		cfg.Log.Level = *logLevel
	}
	if *logFormat != "" {
		cfg.Log.Format = *logFormat
	}
	if *codecName != "" {
		cfg.Codec = *codecName
	}
	if *uartDevice != "" {
		cfg.UART.Enabled = true
		cfg.UART.Device = *uartDevice
	}
	if *gattListen != "" {
		cfg.GATT.Enabled = true
		cfg.GATT.Listen = *gattListen
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	if !cfg.UART.Enabled && !cfg.GATT.Enabled {
		return errors.New("no transport enabled: use --uart, --gatt-listen or a config file")
	}

	log, err := cfg.NewLogger()
	if err != nil {
		return err
	}
	logger.SetLogger(log)

	cdc, err := cfg.NewCodec()
	if err != nil {
		return err
	}

	builder := rpc.NewBuilder().WithLogger(log)
	if _, err := core.Register(builder, cfg.CoreOptions(log)...); err != nil {
		return err
	}
	registry, err := builder.Build()
	if err != nil {
		return err
	}

	for _, e := range registry.Entries() {
		log.Debug("handler registered",
			"subsystem", e.SubsystemName, "method", e.MethodName,
			"subsystemID", e.Subsystem, "methodID", e.Method)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGHUP, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if cfg.UART.Enabled {
		adapter, err := startUART(ctx, cfg, cdc, registry, log)
		if err != nil {
			return err
		}
		defer adapter.Stop()
	}

	if cfg.GATT.Enabled {
		peripheral, err := startGATT(ctx, cfg, cdc, registry, log)
		if err != nil {
			return err
		}
		defer peripheral.Close()
	}

	log.Info("studio-rpcd started", "codec", cdc.Name(), "handlers", registry.Len())
	<-ctx.Done()
	log.Info("exit signal received")

	return nil
}

// startUART opens the serial device and starts the adapter. A device that
// cannot be opened disables the serial transport without failing the daemon.
func startUART(ctx context.Context, cfg config.Config, cdc rpc.MessageCodec, d rpc.Dispatcher, log logger.Logger) (*uart.Adapter, error) {
	ucfg, err := uart.NewConfig(cfg.UARTOptions(log)...)
	if err != nil {
		return nil, err
	}

	var port uart.Port
	if p, err := uart.OpenDevice(cfg.UARTDevice()); err != nil {
		log.Error("failed to open serial device", "device", cfg.UART.Device, "error", err)
	} else {
		port = p
	}

	adapter, err := uart.NewAdapter(ctx, port, cdc, d, ucfg)
	if err != nil {
		return nil, err
	}

	if err := adapter.Start(); err != nil {
		if errors.Is(err, uart.ErrDeviceNotReady) {
			log.Warn("serial transport disabled", "device", cfg.UART.Device)
			return adapter, nil
		}

		return nil, err
	}

	log.Info("serial transport started", "device", cfg.UART.Device, "baud", cfg.UART.Baud)

	return adapter, nil
}

func startGATT(ctx context.Context, cfg config.Config, cdc rpc.MessageCodec, d rpc.Dispatcher, log logger.Logger) (*gatt.StreamPeripheral, error) {
	peripheral := gatt.NewStreamPeripheral(ctx, log)

	svc, err := gatt.NewService(peripheral, cdc, d, cfg.GATTOptions(log)...)
	if err != nil {
		return nil, err
	}

	if err := peripheral.Listen(cfg.GATT.Listen, svc); err != nil {
		return nil, err
	}

	log.Info("attribute transport started",
		"address", peripheral.Addr(),
		"service", gatt.ServiceUUID.String(),
		"characteristic", gatt.RPCCharacteristicUUID.String())

	return peripheral, nil
}
