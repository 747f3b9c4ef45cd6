package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/zkao/btc-congestion-manager/api"
	"github.com/zkao/btc-congestion-manager/blockfeed"
	"github.com/zkao/btc-congestion-manager/pubsub/kafkabus"
	"github.com/zkao/btc-congestion-manager/rpc/corerpc"
)

const usage = `
feekinetic [-c CONFIGFILE] [-d DATADIR] COMMAND [-h | -help] [args...]

Commands:
	start       (start the estimator daemon)
	version     (show app version)
	stop        (terminate the daemon)
	status      (show application status)
	estimatefee (estimated feerate (sat/vbyte) for confirmation in N blocks)
	mindiff     (show ranked recommendation list)
	pause       (pause the estimator)
	unpause     (resume the estimator after pausing)
	setdebug    (turn on/off debug-level logging)
	metrics     (show app metrics)
	config      (show app config settings.)

`

const version = "0.1.0"

func main() {
	var (
		configFile, dataDir string
	)
	flag.CommandLine.Usage = func() {
		fmt.Fprintf(os.Stderr, usage)
		flag.CommandLine.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\n")
	}
	flag.StringVar(&configFile, "c", "",
		fmt.Sprintf("Path to config file (alternatively, use %s env var).", configFileEnv))
	flag.StringVar(&dataDir, "d", "",
		fmt.Sprintf("Path to data directory (alternatively, use %s env var).", dataDirEnv))
	flag.Parse()

	args := flag.Args()
	if len(args) == 0 {
		flag.CommandLine.Usage()
		os.Exit(1)
	}

	cfg, err := loadConfig(configFile, dataDir)
	if err != nil {
		log.Fatal(err)
	}

	apiclient := api.NewClient(api.Config{
		Host:    cfg.AppRPC.Host,
		Port:    cfg.AppRPC.Port,
		Timeout: 15,
	})

	switch args[0] {
	case "start":
		runApp(args, cfg)
	case "version":
		fmt.Println(version)
	case "stop":
		stop(args, apiclient)
	case "status":
		status(args, apiclient)
	case "estimatefee":
		estimateFee(args, apiclient)
	case "mindiff":
		minDiff(args, apiclient)
	case "pause":
		pause(args, apiclient)
	case "unpause":
		unpause(args, apiclient)
	case "setdebug":
		setDebug(args, apiclient)
	case "metrics":
		appMetrics(args, apiclient)
	case "config":
		appConfig(args, apiclient)
	default:
		log.Fatalf("Invalid command '%s'", args[0])
	}
}

func runApp(args []string, cfg config) {
	const usage = `
feekinetic start

Start the program. The daemon begins polling getrawmempool and subscribing
to hashblock over ZMQ, and begins publishing fee rate recommendations once
enough history has accumulated.

Use feekinetic status to check data collection / estimator status. Use
feekinetic pause to pause mempool polling and republishing.
`
	f := flag.NewFlagSet(args[0], flag.ExitOnError)
	f.Usage = func() {
		fmt.Fprintf(os.Stderr, usage)
		f.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\n")
	}
	if err := f.Parse(args[1:]); err != nil {
		log.Fatal(err)
	}

	// Setup the logger
	var dLog *DebugLog
	logFileMode := os.O_WRONLY | os.O_CREATE | os.O_APPEND
	if f, err := os.OpenFile(cfg.LogFile, logFileMode, 0666); err != nil {
		log.Fatal(fmt.Errorf("opening logfile: %v", err))
	} else {
		dLog = NewDebugLog(f, "", log.LstdFlags)
	}

	rpcClient := corerpc.NewClient(cfg.RPC)
	feed := blockfeed.New(cfg.ZMQ, dLog.Logger)

	pub, err := kafkabus.New(cfg.Kafka, dLog.Logger)
	if err != nil {
		log.Fatal(fmt.Errorf("kafkabus.New: %v", err))
	}

	appCfg := cfg.AppConfig
	appCfg.logger = dLog.Logger
	app := NewApp(rpcClient, feed, pub, appCfg)
	service := &Service{App: app, DLog: dLog, Cfg: cfg}

	os.Stdout.Close()
	os.Stderr.Close()
	os.Stdin.Close()

	errc := make(chan error)
	go func() { errc <- app.Run() }()
	go func() { errc <- service.ListenAndServe() }()

	// Signal handling
	sigc := make(chan os.Signal, 3)
	signal.Notify(sigc, os.Interrupt, syscall.SIGTERM, syscall.SIGHUP)
	go func() {
		<-sigc
		app.Stop()
	}()

	err = <-errc
	// Blocks until it is safely shutdown. It is idempotent, so no harm if
	// the app is already stopped.
	app.Stop()
	pub.Close()
	if err != nil {
		dLog.Logger.Fatal(err)
	}
}
