// Command studio-rpc calls the device RPC endpoint from a host.
//
// Usage:
//
//	studio-rpc --tcp 127.0.0.1:7070 lock-status
//	studio-rpc --serial /dev/ttyACM0 unlock
//	studio-rpc --tcp 127.0.0.1:7070 call 1 4 [hex-payload]
//
// Commands: lock-status, lock, unlock, info, call.
package main

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"strconv"
	"time"

	flag "github.com/spf13/pflag"

	"github.com/arloliu/go-studiorpc/client"
	"github.com/arloliu/go-studiorpc/codec"
	"github.com/arloliu/go-studiorpc/logger"
	"github.com/arloliu/go-studiorpc/rpc"
	"github.com/arloliu/go-studiorpc/subsystem/core"
	"github.com/arloliu/go-studiorpc/uart"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "studio-rpc:", err)
		os.Exit(1)
	}
}

func run() error {
	var (
		tcpAddr   = flag.String("tcp", "", "address of the attribute emulation")
		serialDev = flag.String("serial", "", "serial device path")
		baud      = flag.Int("baud", uart.DefaultBaudRate, "serial line rate")
		codecName = flag.String("codec", codec.ProtoName, "message codec (proto or cbor)")
		timeout   = flag.Duration("timeout", 3*time.Second, "per call timeout")
		logLevel  = flag.String("log-level", "warn", "log level")
	)
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "usage: studio-rpc [flags] lock-status|lock|unlock|info|call <subsystem> <method> [hex-payload]\n")
		flag.PrintDefaults()
	}
	flag.Parse()

	if flag.NArg() == 0 {
		flag.Usage()
		return errors.New("missing command")
	}

	level, err := logger.ParseLevel(*logLevel)
	if err != nil {
		return err
	}
	log := logger.NewSlogWithOptions(level, logger.WithFormat(logger.ConsoleFormat), logger.WithOutput(os.Stderr))

	cdc, err := codec.ByName(*codecName)
	if err != nil {
		return err
	}

	link, err := openLink(*tcpAddr, *serialDev, *baud)
	if err != nil {
		return err
	}
	if closer, ok := link.(io.Closer); ok {
		defer closer.Close()
	}

	c, err := client.New(link, client.WithCodec(cdc), client.WithLogger(log))
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	return runCommand(ctx, c, flag.Args())
}

func openLink(tcpAddr, serialDev string, baud int) (io.ReadWriter, error) {
	switch {
	case tcpAddr != "" && serialDev != "":
		return nil, errors.New("--tcp and --serial are mutually exclusive")
	case tcpAddr != "":
		return net.DialTimeout("tcp", tcpAddr, 3*time.Second)
	case serialDev != "":
		return uart.OpenDevice(uart.DeviceConfig{Name: serialDev, Baud: baud})
	default:
		return nil, errors.New("one of --tcp or --serial is required")
	}
}

func runCommand(ctx context.Context, c *client.Client, args []string) error {
	switch args[0] {
	case "lock-status":
		return printLockStatus(c.Invoke(ctx, core.SubsystemID, core.MethodGetLockStatus, nil))
	case "lock":
		return printLockStatus(c.Invoke(ctx, core.SubsystemID, core.MethodLock, nil))
	case "unlock":
		return printLockStatus(c.Invoke(ctx, core.SubsystemID, core.MethodUnlock, nil))
	case "info":
		payload, err := c.Invoke(ctx, core.SubsystemID, core.MethodGetDeviceInfo, nil)
		if err != nil {
			return err
		}
		info, err := core.DecodeDeviceInfo(payload)
		if err != nil {
			return err
		}
		fmt.Printf("name: %s\nserial: %s\n", info.Name, hex.EncodeToString(info.SerialNumber))

		return nil
	case "call":
		return rawCall(ctx, c, args[1:])
	default:
		return fmt.Errorf("unknown command %q", args[0])
	}
}

func printLockStatus(payload []byte, err error) error {
	if err != nil {
		return err
	}

	locked, err := core.DecodeLockStatus(payload)
	if err != nil {
		return err
	}

	if locked {
		fmt.Println("locked")
	} else {
		fmt.Println("unlocked")
	}

	return nil
}

func rawCall(ctx context.Context, c *client.Client, args []string) error {
	if len(args) < 2 {
		return errors.New("call needs <subsystem> <method> [hex-payload]")
	}

	subsystem, err := strconv.ParseUint(args[0], 0, 32)
	if err != nil {
		return fmt.Errorf("subsystem: %w", err)
	}
	method, err := strconv.ParseUint(args[1], 0, 32)
	if err != nil {
		return fmt.Errorf("method: %w", err)
	}

	var payload []byte
	if len(args) > 2 {
		if payload, err = hex.DecodeString(args[2]); err != nil {
			return fmt.Errorf("payload: %w", err)
		}
	}

	out, err := c.Invoke(ctx, rpc.SubsystemID(subsystem), rpc.MethodID(method), payload)
	if err != nil {
		return err
	}
	fmt.Println(hex.EncodeToString(out))

	return nil
}
