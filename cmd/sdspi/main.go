package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	log "github.com/sirupsen/logrus"

	sdspi "github.com/samsamfire/sdspi"
	"github.com/samsamfire/sdspi/platform/periphspi"
)

var defaultSPIPort = "/dev/spidev0.0"
var defaultCSPin = "GPIO8"
var defaultPPPin = "GPIO25"

const pollPeriod = 10 * time.Millisecond

type eventLogger struct{}

func (eventLogger) Inserted()   { log.Info("card inserted") }
func (eventLogger) Removed()    { log.Info("card removed") }
func (eventLogger) Ready()      { log.Info("card ready") }
func (eventLogger) Error(err error) { log.Errorf("card error: %v", err) }

func main() {
	log.SetLevel(log.DebugLevel)

	spiPort := flag.String("spi", defaultSPIPort, "spi port, e.g. /dev/spidev0.0")
	csPin := flag.String("cs", defaultCSPin, "chip select gpio pin name")
	ppPin := flag.String("detect", defaultPPPin, "card detect gpio pin name")
	configPath := flag.String("config", "", "optional ini config file path")
	flag.Parse()

	var cfg *sdspi.Config
	if *configPath != "" {
		loaded, err := sdspi.LoadConfig(*configPath)
		if err != nil {
			fmt.Printf("error loading config %v: %v\n", *configPath, err)
			os.Exit(1)
		}
		cfg = loaded
	} else {
		cfg = sdspi.DefaultConfig()
	}

	bus, err := periphspi.Open(*spiPort)
	if err != nil {
		fmt.Printf("could not open spi port %v: %v\n", *spiPort, err)
		os.Exit(1)
	}
	if err := bus.SetSpeedHz(cfg.ClockSlowHz); err != nil {
		fmt.Printf("could not set initial clock speed: %v\n", err)
		os.Exit(1)
	}

	cs, err := periphspi.OpenPin(*csPin)
	if err != nil {
		fmt.Printf("could not open chip select pin %v: %v\n", *csPin, err)
		os.Exit(1)
	}
	detect, err := periphspi.OpenPin(*ppPin)
	if err != nil {
		fmt.Printf("could not open card detect pin %v: %v\n", *ppPin, err)
		os.Exit(1)
	}

	card := sdspi.BindWithConfig(bus, cs, cfg)
	monitor := sdspi.NewMonitor(detect, card, eventLogger{})

	log.Infof("watching card detect pin %s, spi port %s", *ppPin, *spiPort)
	for {
		monitor.Poll()
		time.Sleep(pollPeriod)
	}
}
