// command uartprobe checks the serial link to a target board running
// an echo firmware. It writes a byte pattern out a host serial port
// and verifies the target sends the same bytes back. With -reset it
// pulses a host GPIO low first to reboot the target into the echo
// loop.
package main

import (
	"bytes"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"time"

	"github.com/tarm/serial"
	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/host/v3"
)

var (
	device   = flag.String("device", "/dev/ttyACM0", "serial device")
	baudRate = flag.Int("baud", 115200, "baud rate")
	resetPin = flag.String("reset", "", "host GPIO to pulse low before probing")
	count    = flag.Int("count", 64, "number of bytes to push through")
	timeout  = flag.Duration("timeout", 2*time.Second, "read timeout")
)

func main() {
	log.SetFlags(0)
	flag.Parse()
	if err := probe(); err != nil {
		fmt.Fprintf(os.Stderr, "uartprobe: %v\n", err)
		os.Exit(1)
	}
}

func probe() error {
	if *resetPin != "" {
		if err := pulseReset(*resetPin); err != nil {
			return fmt.Errorf("reset: %w", err)
		}
	}
	c := &serial.Config{Name: *device, Baud: *baudRate, ReadTimeout: *timeout}
	s, err := serial.OpenPort(c)
	if err != nil {
		return err
	}
	defer s.Close()

	pattern := make([]byte, *count)
	for i := range pattern {
		pattern[i] = byte(i)
	}
	start := time.Now()
	if _, err := s.Write(pattern); err != nil {
		return fmt.Errorf("write: %w", err)
	}
	got := make([]byte, len(pattern))
	if _, err := io.ReadFull(s, got); err != nil {
		return fmt.Errorf("read: %w", err)
	}
	if !bytes.Equal(got, pattern) {
		return fmt.Errorf("echo mismatch: sent %x, got %x", pattern, got)
	}
	log.Printf("%d bytes echoed in %v", len(pattern), time.Since(start))
	return nil
}

func pulseReset(name string) error {
	if _, err := host.Init(); err != nil {
		return err
	}
	pin := gpioreg.ByName(name)
	if pin == nil {
		return fmt.Errorf("no GPIO named %q", name)
	}
	if err := pin.Out(gpio.Low); err != nil {
		return err
	}
	time.Sleep(100 * time.Millisecond)
	if err := pin.Out(gpio.High); err != nil {
		return err
	}
	// Give the target time to come back up.
	time.Sleep(500 * time.Millisecond)
	return nil
}
