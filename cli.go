package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"strconv"

	"github.com/zkao/btc-congestion-manager/api"
)

func stop(args []string, c *api.Client) {
	const usage = `
feekinetic stop

Stop the program.
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
	if err := c.Stop(); err != nil {
		log.Fatal(err)
	}
}

func status(args []string, c *api.Client) {
	const usage = `
feekinetic status

Show application status:

	mempool : Whether a mempool snapshot is available.
	estimate: Whether at least one target has a fee estimate.
	app     : Whether the estimator is running or paused.

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

	result, err := c.Status()
	if err != nil {
		log.Fatal(err)
	}
	for _, k := range []string{"mempool", "estimate", "app"} {
		fmt.Printf("%-10s: %s\n", k, result[k])
	}
}

func estimateFee(args []string, c *api.Client) {
	const usage = `
feekinetic estimatefee [N]

Returns the recommended fee rate (sat/vbyte) for confirmation in N blocks.
If N is omitted, give the result for every target the daemon tracks.

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

	var n int
	if nStr := f.Arg(0); nStr != "" {
		var err error
		n, err = strconv.Atoi(nStr)
		if err != nil {
			log.Fatal(err)
		}
	}

	result, err := c.EstimateFee(n)
	if err != nil {
		log.Fatal(err)
	}

	if n == 0 {
		byTarget := result.(map[string]interface{})
		for target, rate := range byTarget {
			fmt.Printf("%s: %10.4f\n", target, rate.(float64))
		}
	} else {
		fmt.Printf("%10.4f\n", result.(float64))
	}
}

func minDiff(args []string, c *api.Client) {
	const usage = `
feekinetic mindiff

Show the ranked recommendation list, cheapest (lowest cost) first.

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

	result, err := c.MinDiff()
	if err != nil {
		log.Fatal(err)
	}
	for _, e := range result {
		fmt.Printf("target=%v feeRate=%v diff=%v cumDiff=%v\n",
			e["targetBlock"], e["feeRate"], e["diff"], e["cumDiff"])
	}
}

func pause(args []string, c *api.Client) {
	const usage = `
feekinetic pause

Pause the estimator: mempool polling and publishing of recommendations
stop until unpause; the ZMQ block-hash subscription stays open.

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
	if err := c.Pause(); err != nil {
		log.Fatal(err)
	}
}

func unpause(args []string, c *api.Client) {
	const usage = `
feekinetic unpause

Resume polling and republishing after a pause.

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
	if err := c.Unpause(); err != nil {
		log.Fatal(err)
	}
}

func setDebug(args []string, c *api.Client) {
	const usage = `
feekinetic setdebug BOOL

Turn on debug-level logging with "true"; turn off with "false".

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
	on, err := strconv.ParseBool(f.Arg(0))
	if err != nil {
		log.Fatal(err)
	}
	if err := c.SetDebug(on); err != nil {
		log.Fatal(err)
	}
}

func appConfig(args []string, c *api.Client) {
	const usage = `
feekinetic config

Show app config settings.

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

	result, err := c.Config()
	if err != nil {
		log.Fatal(err)
	}
	b, err := json.MarshalIndent(result, "", "\t")
	if err != nil {
		log.Fatal(err)
	}
	fmt.Println(string(b))
}

func appMetrics(args []string, c *api.Client) {
	const usage = `
feekinetic metrics

Show app metrics.

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

	result, err := c.Metrics()
	if err != nil {
		log.Fatal(err)
	}
	b, err := json.MarshalIndent(result, "", "\t")
	if err != nil {
		log.Fatal(err)
	}
	fmt.Println(string(b))
}
