package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strconv"
	"text/tabwriter"
	"time"

	"github.com/erain9/matchbook/pkg/api"
	"github.com/erain9/matchbook/pkg/client"
	"github.com/fatih/color"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

var errUsage = errors.New("invalid usage")

func main() {
	zerolog.TimeFieldFormat = time.RFC3339
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})

	serverAddr := flag.String("addr", "localhost:50051", "The server address in the format host:port")
	timeout := flag.Duration("timeout", 10*time.Second, "Deadline for unary commands")
	flag.Usage = func() { printUsage(os.Stderr) }
	flag.Parse()

	if flag.NArg() < 1 {
		printUsage(os.Stderr)
		os.Exit(1)
	}

	c, err := client.Dial(*serverAddr)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to server")
	}
	defer c.Close()

	ctx := context.Background()
	if flag.Arg(0) != "watch" {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, *timeout)
		defer cancel()
	}

	if err := run(ctx, c, flag.Args(), os.Stdout); err != nil {
		if errors.Is(err, errUsage) {
			fmt.Fprintln(os.Stderr, err)
			printUsage(os.Stderr)
			os.Exit(2)
		}
		log.Fatal().Err(err).Str("command", flag.Arg(0)).Msg("Command failed")
	}
}

// run executes one command and writes its result to out
func run(ctx context.Context, c api.OrderBookServiceClient, args []string, out io.Writer) error {
	command, args := args[0], args[1:]

	switch command {
	case "list-books":
		resp, err := c.ListBooks(ctx, &api.ListBooksRequest{})
		if err != nil {
			return err
		}
		for _, s := range resp.Symbols {
			fmt.Fprintln(out, s)
		}
		return nil

	case "submit":
		fs := flag.NewFlagSet("submit", flag.ContinueOnError)
		fs.SetOutput(io.Discard)
		id := fs.String("id", "", "Client order id")
		trigger := fs.String("trigger", "", "Trigger price of stop and take profit orders")
		if err := fs.Parse(args); err != nil {
			return fmt.Errorf("%w: %v", errUsage, err)
		}
		rest := fs.Args()
		if len(rest) < 4 {
			return fmt.Errorf("%w: submit [-id ID] [-trigger P] <symbol> <side> <type> <quantity> [price]", errUsage)
		}
		price := ""
		if len(rest) > 4 {
			price = rest[4]
		}
		req, err := client.NewOrderRequest(rest[0], rest[1], rest[2], rest[3], price, *trigger)
		if err != nil {
			return fmt.Errorf("%w: %v", errUsage, err)
		}
		req.ID = *id
		resp, err := c.SubmitOrder(ctx, req)
		if err != nil {
			return err
		}
		printOrderResponse(out, resp)
		return nil

	case "cancel":
		if len(args) < 2 {
			return fmt.Errorf("%w: cancel <symbol> <id>", errUsage)
		}
		resp, err := c.CancelOrder(ctx, &api.CancelRequest{Symbol: args[0], OrderID: args[1]})
		if err != nil {
			return err
		}
		printOrderResponse(out, resp)
		return nil

	case "bbo":
		if len(args) < 1 {
			return fmt.Errorf("%w: bbo <symbol>", errUsage)
		}
		bbo, err := c.GetBBO(ctx, &api.BookRequest{Symbol: args[0]})
		if err != nil {
			return err
		}
		printBBO(out, bbo)
		return nil

	case "depth":
		if len(args) < 1 {
			return fmt.Errorf("%w: depth <symbol> [levels]", errUsage)
		}
		levels := 0
		if len(args) > 1 {
			n, err := strconv.Atoi(args[1])
			if err != nil {
				return fmt.Errorf("%w: levels must be a number", errUsage)
			}
			levels = n
		}
		depth, err := c.GetDepth(ctx, &api.BookRequest{Symbol: args[0], Levels: levels})
		if err != nil {
			return err
		}
		return printDepth(out, depth)

	case "watch":
		if len(args) < 1 {
			return fmt.Errorf("%w: watch <symbol>", errUsage)
		}
		stream, err := c.StreamMarketData(ctx, &api.BookRequest{Symbol: args[0]})
		if err != nil {
			return err
		}
		for {
			ev, err := stream.Recv()
			if errors.Is(err, io.EOF) {
				return nil
			}
			if err != nil {
				return err
			}
			printEvent(out, ev)
		}

	default:
		return fmt.Errorf("%w: unknown command %q", errUsage, command)
	}
}

func printOrderResponse(out io.Writer, resp *api.OrderResponse) {
	color.NoColor = false
	bold := color.New(color.Bold).SprintFunc()

	fmt.Fprintf(out, "%s %s  status=%s  processed=%s  remaining=%s\n",
		bold("order"), resp.OrderID, statusColor(resp.Status), resp.Processed, resp.Remaining)
	for _, t := range resp.AllTrades() {
		fmt.Fprintf(out, "  trade %s  %s @ %s  maker=%s taker=%s\n",
			t.TradeID, t.Quantity, t.Price, t.MakerOrderID, t.TakerOrderID)
	}
	for _, id := range resp.Discarded {
		fmt.Fprintf(out, "  discarded %s\n", id)
	}
}

func statusColor(status string) string {
	switch status {
	case "filled":
		return color.GreenString(status)
	case "cancelled", "killed", "discarded":
		return color.RedString(status)
	default:
		return color.YellowString(status)
	}
}

func printBBO(out io.Writer, bbo *api.BBO) {
	color.NoColor = false
	bid, ask := "-", "-"
	if bbo.BestBid != nil {
		bid = fmt.Sprintf("%s x %s", bbo.BestBid.Price, bbo.BestBid.Quantity)
	}
	if bbo.BestAsk != nil {
		ask = fmt.Sprintf("%s x %s", bbo.BestAsk.Price, bbo.BestAsk.Quantity)
	}
	fmt.Fprintf(out, "%s  bid %s  ask %s\n", bbo.Symbol, color.GreenString(bid), color.RedString(ask))
}

func printDepth(out io.Writer, depth *api.Depth) error {
	color.NoColor = false
	cyan := color.New(color.FgCyan).SprintfFunc()
	red := color.New(color.FgRed).SprintfFunc()
	green := color.New(color.FgGreen).SprintfFunc()

	w := tabwriter.NewWriter(out, 0, 0, 3, ' ', tabwriter.AlignRight)

	fmt.Fprintf(w, "%15s|%15s|%15s|%s\n", cyan("Price"), cyan("Quantity"), cyan("Orders"), cyan("Side"))
	fmt.Fprintf(w, "%15s|%15s|%15s|%s\n", "---------------", "---------------", "---------------", "----")

	// asks are printed worst first so the spread sits in the middle
	for i := len(depth.Asks) - 1; i >= 0; i-- {
		l := depth.Asks[i]
		fmt.Fprintf(w, "%15s|%15s|%15d|%s\n", l.Price, l.Quantity, l.Orders, red("ASK"))
	}
	fmt.Fprintf(w, "%15s|%15s|%15s|%s\n", "---------------", "---------------", "---------------", "----")
	for _, l := range depth.Bids {
		fmt.Fprintf(w, "%15s|%15s|%15d|%s\n", l.Price, l.Quantity, l.Orders, green("BID"))
	}

	return w.Flush()
}

func printEvent(out io.Writer, ev *api.Event) {
	fmt.Fprintf(out, "#%d %s %s", ev.Sequence, ev.Kind, ev.OrderID)
	if ev.LastTradePrice != "" {
		fmt.Fprintf(out, " last=%s", ev.LastTradePrice)
	}
	fmt.Fprintln(out)
	for _, t := range ev.Trades {
		fmt.Fprintf(out, "  %s %s @ %s\n", t.AggressorSide, t.Quantity, t.Price)
	}
}

func printUsage(out io.Writer) {
	fmt.Fprintln(out, "Usage: client [-addr host:port] <command> [args]")
	fmt.Fprintln(out, "Commands:")
	fmt.Fprintln(out, "  list-books")
	fmt.Fprintln(out, "  submit [-id ID] [-trigger P] <symbol> <side> <type> <quantity> [price]")
	fmt.Fprintln(out, "  cancel <symbol> <id>")
	fmt.Fprintln(out, "  bbo <symbol>")
	fmt.Fprintln(out, "  depth <symbol> [levels]")
	fmt.Fprintln(out, "  watch <symbol>")
	fmt.Fprintln(out, "\nExamples:")
	fmt.Fprintln(out, "  submit -id sell1 BTC-USDT sell limit 0.5 100.0")
	fmt.Fprintln(out, "  submit BTC-USDT buy market 1.0")
	fmt.Fprintln(out, "  submit -trigger 95 BTC-USDT sell stop_loss 1.0")
	fmt.Fprintln(out, "  cancel BTC-USDT sell1")
	fmt.Fprintln(out, "  depth BTC-USDT 5")
}
