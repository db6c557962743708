// Command varcache reads and synchronizes variable products against the
// configured database and cache tier.
//
// Configuration comes from an optional YAML file (-config), an optional
// dotenv file (-env, ".env" by default) and VARCACHE_* environment
// variables, in increasing order of precedence.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"io/fs"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/goliatone/go-variation-cache/catalog"
	"github.com/goliatone/go-variation-cache/config"
	"github.com/goliatone/go-variation-cache/pkg/di"
)

const usage = `usage: varcache [-config file] [-env file] <command> [args]

commands:
  seed <dataset.json>  create the schema and import products, variations and terms
  read <id>            print a product with its children, prices and attribute options
  sync <id>            propagate stock, rebuild the price index and save the product
  bump <id>            drop cached data of a product and print the new epoch
`

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1:], os.Stdout, os.Stderr); err != nil {
		fmt.Fprintf(os.Stderr, "varcache: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	flags := flag.NewFlagSet("varcache", flag.ContinueOnError)
	flags.SetOutput(stderr)
	flags.Usage = func() { fmt.Fprint(stderr, usage) }
	configPath := flags.String("config", "", "YAML configuration file")
	envFile := flags.String("env", ".env", "dotenv file loaded before the environment is read")
	if err := flags.Parse(args); err != nil {
		return err
	}

	if flags.NArg() == 0 {
		flags.Usage()
		return errors.New("missing command")
	}
	command, rest := flags.Arg(0), flags.Args()[1:]

	if err := loadDotenv(*envFile); err != nil {
		return err
	}
	cfg, err := config.Load(*configPath)
	if err != nil {
		return err
	}

	c, err := di.NewContainer(ctx, cfg)
	if err != nil {
		return err
	}
	defer c.Close()

	logger := c.Logger().With(zap.String("command", command))

	switch command {
	case "seed":
		if len(rest) != 1 {
			return errors.New("seed expects a dataset file")
		}
		return seed(ctx, c, rest[0], stdout, logger)
	case "read":
		id, err := productID(rest)
		if err != nil {
			return err
		}
		p, err := c.DataStore().Read(ctx, id)
		if err != nil {
			return err
		}
		return writeJSON(stdout, p)
	case "sync":
		id, err := productID(rest)
		if err != nil {
			return err
		}
		return syncProduct(ctx, c, id, stdout, logger)
	case "bump":
		id, err := productID(rest)
		if err != nil {
			return err
		}
		token, err := c.Invalidate(ctx, id)
		if err != nil {
			return err
		}
		logger.Info("product invalidated", zap.Int64("product_id", id), zap.String("epoch", token))
		return writeJSON(stdout, bumpResult{ProductID: id, Epoch: token})
	default:
		flags.Usage()
		return fmt.Errorf("unknown command %q", command)
	}
}

// loadDotenv loads path when it exists. Variables already set win.
func loadDotenv(path string) error {
	if path == "" {
		return nil
	}
	if err := godotenv.Load(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("load %s: %w", path, err)
	}
	return nil
}

func productID(args []string) (int64, error) {
	if len(args) != 1 {
		return 0, errors.New("expected a single product id")
	}
	id, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid product id %q", args[0])
	}
	return id, nil
}

type seedResult struct {
	Products   int `json:"products"`
	Variations int `json:"variations"`
	Terms      int `json:"terms"`
}

func seed(ctx context.Context, c *di.Container, path string, out io.Writer, logger *zap.Logger) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	var dataset catalog.Dataset
	if err := json.Unmarshal(data, &dataset); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}

	if err := c.Entities().CreateSchema(ctx); err != nil {
		return err
	}
	if err := c.Entities().Import(ctx, dataset); err != nil {
		return err
	}
	for _, p := range dataset.Products {
		if _, err := c.Invalidate(ctx, p.ID); err != nil {
			logger.Warn("invalidate after import failed", zap.Int64("product_id", p.ID), zap.Error(err))
		}
	}

	res := seedResult{
		Products:   len(dataset.Products),
		Variations: len(dataset.Variations),
		Terms:      len(dataset.Terms),
	}
	logger.Info("dataset imported",
		zap.String("path", path),
		zap.Int("products", res.Products),
		zap.Int("variations", res.Variations),
	)
	return writeJSON(out, res)
}

type syncResult struct {
	ProductID       int64               `json:"product_id"`
	StockStatus     catalog.StockStatus `json:"stock_status"`
	Children        []int64             `json:"children"`
	VisibleChildren []int64             `json:"visible_children"`
	PriceIndex      []catalog.Amount    `json:"price_index"`
}

func syncProduct(ctx context.Context, c *di.Container, id int64, out io.Writer, logger *zap.Logger) error {
	p, err := c.Store().Product(ctx, id)
	if err != nil {
		return err
	}
	if err := c.DataStore().Sync(ctx, p); err != nil {
		return err
	}
	index, err := c.Store().PriceIndex(ctx, id)
	if err != nil {
		return err
	}
	logger.Info("product synced", zap.Int64("product_id", id), zap.String("stock_status", string(p.StockStatus)))

	return writeJSON(out, syncResult{
		ProductID:       id,
		StockStatus:     p.StockStatus,
		Children:        p.Children,
		VisibleChildren: p.VisibleChildren,
		PriceIndex:      index,
	})
}

type bumpResult struct {
	ProductID int64  `json:"product_id"`
	Epoch     string `json:"epoch"`
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
