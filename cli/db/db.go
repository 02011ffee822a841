package db

import (
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/lrmpt/lrmpt/cli/options"
	"github.com/lrmpt/lrmpt/pkg/config"
	"github.com/lrmpt/lrmpt/pkg/core/mpt"
	"github.com/lrmpt/lrmpt/pkg/core/oplog"
	"github.com/lrmpt/lrmpt/pkg/core/storage"
	"github.com/lrmpt/lrmpt/pkg/crypto/hash"
	"github.com/lrmpt/lrmpt/pkg/lrtrie"
	"github.com/lrmpt/lrmpt/pkg/util"
	"github.com/urfave/cli"
	"go.uber.org/zap"
)

var errNotFound = errors.New("key not found")

// proofFile is the JSON representation of a proof produced by the proof
// command and consumed by the verify command.
type proofFile struct {
	Root  util.Uint256 `json:"root"`
	Key   string       `json:"key"`
	Value *string      `json:"value"`
	Proof [][]byte     `json:"proof"`
}

// NewCommands returns 'db' command.
func NewCommands() []cli.Command {
	cfgFlags := append([]cli.Flag{}, options.Config...)
	writeFlags := append([]cli.Flag{options.Timeout}, cfgFlags...)
	hexFlag := cli.BoolFlag{
		Name:  "hex",
		Usage: "print keys and values in hex",
	}
	versionFlag := cli.Uint64Flag{
		Name:  "version",
		Usage: "use the given published version instead of the latest one",
	}
	readFlags := append([]cli.Flag{hexFlag, versionFlag}, cfgFlags...)
	return []cli.Command{
		{
			Name:  "db",
			Usage: "Work with the trie database",
			Subcommands: []cli.Command{
				{
					Name:      "put",
					Usage:     "Insert key-value pairs and publish them as a single version",
					UsageText: "lrmpt db put [--config-file file] KEY VALUE [KEY VALUE...]",
					Description: `Inserts the given pairs. Several pairs are inserted at once, either all
   of them or none. Keys and values are strings, 0x-prefixed ones are
   decoded as hex.`,
					Action: put,
					Flags:  writeFlags,
				},
				{
					Name:      "get",
					Usage:     "Print the value stored for the key",
					UsageText: "lrmpt db get [--config-file file] [--hex] [--version N] KEY",
					Action:    get,
					Flags:     readFlags,
				},
				{
					Name:      "delete",
					Usage:     "Remove keys and publish the result",
					UsageText: "lrmpt db delete [--config-file file] KEY [KEY...]",
					Action:    remove,
					Flags:     writeFlags,
				},
				{
					Name:      "root",
					Usage:     "Print the current root hash",
					UsageText: "lrmpt db root [--config-file file] [--version N]",
					Action:    root,
					Flags:     append([]cli.Flag{versionFlag}, cfgFlags...),
				},
				{
					Name:      "list",
					Usage:     "Print all key-value pairs of the current version in key order",
					UsageText: "lrmpt db list [--config-file file] [--hex]",
					Action:    list,
					Flags:     append([]cli.Flag{hexFlag}, cfgFlags...),
				},
				{
					Name:      "history",
					Usage:     "Print published versions with their roots and operations",
					UsageText: "lrmpt db history [--config-file file] [--from N]",
					Action:    history,
					Flags: append([]cli.Flag{cli.Uint64Flag{
						Name:  "from",
						Usage: "first version to print",
					}}, cfgFlags...),
				},
				{
					Name:      "proof",
					Usage:     "Print the inclusion or absence proof for the key in JSON",
					UsageText: "lrmpt db proof [--config-file file] KEY",
					Action:    proof,
					Flags:     cfgFlags,
				},
				{
					Name:      "verify",
					Usage:     "Verify a proof produced by the proof command",
					UsageText: "lrmpt db verify [--config-file file] [--in file]",
					Description: `Checks the proof read from the file (or stdin) against the root hash it
   contains using the hash function from the configuration. The store
   is not used.`,
					Action: verify,
					Flags: append([]cli.Flag{cli.StringFlag{
						Name:  "in, i",
						Usage: "file with the proof, stdin is used if not set",
					}}, cfgFlags...),
				},
				newStressCommand(),
			},
		},
	}
}

// parseBytes decodes a command line key or value.
func parseBytes(s string) ([]byte, error) {
	if h, ok := strings.CutPrefix(s, "0x"); ok {
		b, err := hex.DecodeString(h)
		if err != nil {
			return nil, fmt.Errorf("bad hex %q: %w", s, err)
		}
		return b, nil
	}
	return []byte(s), nil
}

// initTrie opens the configured store and the trie over it. The returned
// function must be called to close the store.
func initTrie(ctx *cli.Context) (*lrtrie.Trie, config.Config, *zap.Logger, func(), error) {
	cfg, err := options.GetConfigFromContext(ctx)
	if err != nil {
		return nil, cfg, nil, nil, cli.NewExitError(err, 1)
	}
	log, _, err := options.HandleLoggingParams(ctx.Bool("debug"), cfg.ApplicationConfiguration.Logger)
	if err != nil {
		return nil, cfg, nil, nil, cli.NewExitError(err, 1)
	}
	store, err := storage.NewStore(cfg.ApplicationConfiguration.DBConfiguration, log)
	if err != nil {
		_ = log.Sync()
		return nil, cfg, nil, nil, cli.NewExitError(fmt.Errorf("could not open store: %w", err), 1)
	}
	closer := func() {
		if err := store.Close(); err != nil {
			log.Error("failed to close store", zap.Error(err))
		}
		_ = log.Sync()
	}
	tr, err := lrtrie.New(store, cfg.Trie, log)
	if err != nil {
		closer()
		return nil, cfg, nil, nil, cli.NewExitError(err, 1)
	}
	return tr, cfg, log, closer, nil
}

// write applies f to a write handle and publishes the result.
func write(ctx *cli.Context, f func(w *lrtrie.WriteHandle) error) error {
	tr, _, _, closer, err := initTrie(ctx)
	if err != nil {
		return err
	}
	defer closer()

	gctx, cancel := options.GetTimeoutContext(ctx)
	defer cancel()
	w, err := tr.Write(gctx)
	if err != nil {
		return cli.NewExitError(err, 1)
	}
	if err := f(w); err != nil {
		_ = w.Abort()
		return cli.NewExitError(err, 1)
	}
	if err := w.Publish(gctx); err != nil {
		return cli.NewExitError(fmt.Errorf("failed to publish: %w", err), 1)
	}
	r := tr.Reader()
	defer r.Close()
	h, err := r.RootHash()
	if err != nil {
		return cli.NewExitError(err, 1)
	}
	fmt.Fprintln(ctx.App.Writer, h.StringBE())
	return nil
}

func put(ctx *cli.Context) error {
	args := ctx.Args()
	if len(args) == 0 || len(args)%2 != 0 {
		return cli.NewExitError("key-value pairs expected", 1)
	}
	kvs := make([]lrtrie.KeyValue, 0, len(args)/2)
	for i := 0; i < len(args); i += 2 {
		k, err := parseBytes(args[i])
		if err != nil {
			return cli.NewExitError(err, 1)
		}
		v, err := parseBytes(args[i+1])
		if err != nil {
			return cli.NewExitError(err, 1)
		}
		kvs = append(kvs, lrtrie.KeyValue{Key: k, Value: v})
	}
	return write(ctx, func(w *lrtrie.WriteHandle) error {
		if len(kvs) == 1 {
			return w.Insert(kvs[0].Key, kvs[0].Value)
		}
		return w.Extend(kvs)
	})
}

func remove(ctx *cli.Context) error {
	args := ctx.Args()
	if len(args) == 0 {
		return cli.NewExitError("no keys given", 1)
	}
	keys := make([][]byte, len(args))
	for i := range args {
		k, err := parseBytes(args[i])
		if err != nil {
			return cli.NewExitError(err, 1)
		}
		keys[i] = k
	}
	return write(ctx, func(w *lrtrie.WriteHandle) error {
		for _, k := range keys {
			if err := w.Remove(k); err != nil {
				return err
			}
		}
		return nil
	})
}

func get(ctx *cli.Context) error {
	if ctx.NArg() != 1 {
		return cli.NewExitError("exactly one key expected", 1)
	}
	key, err := parseBytes(ctx.Args().First())
	if err != nil {
		return cli.NewExitError(err, 1)
	}
	tr, _, _, closer, err := initTrie(ctx)
	if err != nil {
		return err
	}
	defer closer()

	var (
		v  []byte
		ok bool
	)
	if ctx.IsSet("version") {
		v, ok, err = tr.GetAt(ctx.Uint64("version"), key)
	} else {
		r := tr.Reader()
		defer r.Close()
		v, ok, err = r.Get(key)
	}
	if err != nil {
		return cli.NewExitError(err, 1)
	}
	if !ok {
		return cli.NewExitError(errNotFound, 1)
	}
	fmt.Fprintln(ctx.App.Writer, formatBytes(ctx, v))
	return nil
}

// formatBytes formats a key or value for output.
func formatBytes(ctx *cli.Context, b []byte) string {
	if ctx.Bool("hex") {
		return "0x" + hex.EncodeToString(b)
	}
	return string(b)
}

func root(ctx *cli.Context) error {
	tr, _, _, closer, err := initTrie(ctx)
	if err != nil {
		return err
	}
	defer closer()

	var h util.Uint256
	if ctx.IsSet("version") {
		h, err = tr.RootAt(ctx.Uint64("version"))
	} else {
		r := tr.Reader()
		defer r.Close()
		h, err = r.RootHash()
	}
	if err != nil {
		return cli.NewExitError(err, 1)
	}
	fmt.Fprintln(ctx.App.Writer, h.StringBE())
	return nil
}

func list(ctx *cli.Context) error {
	tr, _, _, closer, err := initTrie(ctx)
	if err != nil {
		return err
	}
	defer closer()

	r := tr.Reader()
	defer r.Close()
	err = r.Iterate(func(k, v []byte) bool {
		fmt.Fprintf(ctx.App.Writer, "%s: %s\n", formatBytes(ctx, k), formatBytes(ctx, v))
		return true
	})
	if err != nil {
		return cli.NewExitError(err, 1)
	}
	return nil
}

func history(ctx *cli.Context) error {
	tr, _, _, closer, err := initTrie(ctx)
	if err != nil {
		return err
	}
	defer closer()

	var rootErr error
	err = tr.History(ctx.Uint64("from"), func(version uint64, ops []oplog.Operation) bool {
		var h util.Uint256
		h, rootErr = tr.RootAt(version)
		if rootErr != nil {
			return false
		}
		fmt.Fprintf(ctx.App.Writer, "%d %s %d\n", version, h.StringBE(), len(ops))
		return true
	})
	if err == nil {
		err = rootErr
	}
	if err != nil {
		return cli.NewExitError(err, 1)
	}
	return nil
}

func proof(ctx *cli.Context) error {
	if ctx.NArg() != 1 {
		return cli.NewExitError("exactly one key expected", 1)
	}
	key, err := parseBytes(ctx.Args().First())
	if err != nil {
		return cli.NewExitError(err, 1)
	}
	tr, _, _, closer, err := initTrie(ctx)
	if err != nil {
		return err
	}
	defer closer()

	r := tr.Reader()
	defer r.Close()
	g, err := r.Enter()
	if err != nil {
		return cli.NewExitError(err, 1)
	}
	defer g.Release()

	pf := proofFile{Root: g.RootHash(), Key: "0x" + hex.EncodeToString(key)}
	pf.Proof, err = g.GetProof(key)
	if err != nil {
		return cli.NewExitError(err, 1)
	}
	v, ok, err := g.Get(key)
	if err != nil {
		return cli.NewExitError(err, 1)
	}
	if ok {
		s := "0x" + hex.EncodeToString(v)
		pf.Value = &s
	}
	data, err := json.MarshalIndent(pf, "", "  ")
	if err != nil {
		return cli.NewExitError(err, 1)
	}
	fmt.Fprintln(ctx.App.Writer, string(data))
	return nil
}

func verify(ctx *cli.Context) error {
	cfg, err := options.GetConfigFromContext(ctx)
	if err != nil {
		return cli.NewExitError(err, 1)
	}
	h, _, err := hash.ByName(cfg.Trie.Hash)
	if err != nil {
		return cli.NewExitError(err, 1)
	}

	in := os.Stdin
	if name := ctx.String("in"); name != "" {
		f, err := os.Open(name)
		if err != nil {
			return cli.NewExitError(err, 1)
		}
		defer f.Close()
		in = f
	}
	var pf proofFile
	if err := json.NewDecoder(in).Decode(&pf); err != nil {
		return cli.NewExitError(fmt.Errorf("can't decode proof: %w", err), 1)
	}
	key, err := parseBytes(pf.Key)
	if err != nil {
		return cli.NewExitError(err, 1)
	}
	var value []byte
	if pf.Value != nil {
		value, err = parseBytes(*pf.Value)
		if err != nil {
			return cli.NewExitError(err, 1)
		}
		if value == nil {
			value = []byte{}
		}
	}
	if !mpt.CheckProof(h, pf.Root, key, value, pf.Proof) {
		return cli.NewExitError("proof is invalid", 1)
	}
	if value == nil {
		fmt.Fprintln(ctx.App.Writer, "key is absent")
	} else {
		fmt.Fprintln(ctx.App.Writer, "key is present")
	}
	return nil
}
