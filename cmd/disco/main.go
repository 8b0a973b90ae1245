package main

import (
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/jmerrifield20/disco/pkg/client"
	"github.com/jmerrifield20/disco/pkg/discoerrors"
	"github.com/jmerrifield20/disco/pkg/entry"
	"github.com/jmerrifield20/disco/pkg/tx"
	"github.com/jmerrifield20/disco/pkg/wallet"
)

// version is overridden via -ldflags "-X main.version=...".
var version = "dev"

var (
	cfgFile  string
	nodeURL  string
	grpcAddr string
	output   string
	verbose  bool
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "disco",
	Short: "disco entry chain CLI",
	Long: `disco creates and queries entries on a disco node.

Accounts are derived from secrets listed in ~/.disco/config.yaml:

  node: http://localhost:8080
  accounts:
    - name: alice
      secret: "correct horse battery staple"
    - name: bob
      key_file: $HOME/.disco/keys/bob.pem`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if cfgFile != "" {
			viper.SetConfigFile(cfgFile)
		} else {
			home, _ := os.UserHomeDir()
			viper.AddConfigPath(filepath.Join(home, ".disco"))
			viper.SetConfigName("config")
			viper.SetConfigType("yaml")
		}
		viper.SetEnvPrefix("disco")
		viper.AutomaticEnv()
		if err := viper.ReadInConfig(); err != nil {
			var cfgNotFound viper.ConfigFileNotFoundError
			if !errors.As(err, &cfgNotFound) {
				return fmt.Errorf("read config: %w", err)
			}
		}

		if nodeURL == "" {
			nodeURL = viper.GetString("node")
		}
		if nodeURL == "" {
			nodeURL = "http://localhost:8080"
		}
		if grpcAddr == "" {
			grpcAddr = viper.GetString("grpc")
		}
		if output != "text" && output != "json" {
			return fmt.Errorf("unknown output format %q", output)
		}
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default ~/.disco/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&nodeURL, "node", "", "node REST URL (default http://localhost:8080)")
	rootCmd.PersistentFlags().StringVar(&grpcAddr, "grpc", "", "node gRPC address; takes precedence over --node when set")
	rootCmd.PersistentFlags().StringVarP(&output, "output", "o", "text", "Output format: text or json")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "log client activity to stderr")

	rootCmd.AddCommand(keysCmd)
	rootCmd.AddCommand(txCmd)
	rootCmd.AddCommand(queryCmd)
	rootCmd.AddCommand(versionCmd)
}

// accountConfig is one entry of the accounts list in the config file.
// Exactly one of Secret and KeyFile is set; a missing key file is created.
type accountConfig struct {
	Name    string `mapstructure:"name"`
	Secret  string `mapstructure:"secret"`
	KeyFile string `mapstructure:"key_file"`
}

func loadKeyring() (*wallet.Keyring, error) {
	var accts []accountConfig
	if err := viper.UnmarshalKey("accounts", &accts); err != nil {
		return nil, fmt.Errorf("parse accounts: %w", err)
	}
	kr := wallet.NewKeyring()
	for _, a := range accts {
		switch {
		case a.Secret != "" && a.KeyFile != "":
			return nil, fmt.Errorf("account %q: set secret or key_file, not both", a.Name)
		case a.KeyFile != "":
			priv, err := wallet.LoadOrCreateKeyFile(os.ExpandEnv(a.KeyFile))
			if err != nil {
				return nil, fmt.Errorf("account %q: %w", a.Name, err)
			}
			if _, err := kr.Add(a.Name, priv); err != nil {
				return nil, err
			}
		default:
			if _, err := kr.AddSecret(a.Name, a.Secret); err != nil {
				return nil, err
			}
		}
	}
	return kr, nil
}

func newClient(opts ...client.Option) (*client.Client, error) {
	if verbose {
		logger, err := zap.NewDevelopment()
		if err != nil {
			return nil, err
		}
		opts = append(opts, client.WithLogger(logger))
	}
	if grpcAddr != "" {
		return client.DialGRPC(grpcAddr, opts...)
	}
	return client.NewHTTP(nodeURL, opts...)
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// ── keys ─────────────────────────────────────────────────────────────────────

var keysCmd = &cobra.Command{
	Use:   "keys",
	Short: "Inspect the accounts configured in the config file",
}

var keysListCmd = &cobra.Command{
	Use:   "list",
	Short: "List configured accounts",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		kr, err := loadKeyring()
		if err != nil {
			return err
		}
		rows, err := keyRows(kr)
		if err != nil {
			return err
		}
		if output == "json" {
			return printJSON(rows)
		}
		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "NAME\tADDRESS")
		for _, r := range rows {
			fmt.Fprintf(w, "%s\t%s\n", r.Name, r.Address)
		}
		return w.Flush()
	},
}

type keyRow struct {
	Name    string `json:"name"`
	Address string `json:"address"`
}

// keyRows lists every account in the keyring in config order, named or not.
func keyRows(kr *wallet.Keyring) ([]keyRow, error) {
	accts, err := kr.Accounts()
	if err != nil {
		return nil, err
	}
	rows := make([]keyRow, 0, len(accts))
	for _, a := range accts {
		rows = append(rows, keyRow{Name: a.Name, Address: a.Address})
	}
	return rows, nil
}

var keysShowCmd = &cobra.Command{
	Use:   "show <name|address>",
	Short: "Show one account's address and public key",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		kr, err := loadKeyring()
		if err != nil {
			return err
		}
		a, err := kr.Lookup(args[0])
		if err != nil {
			return err
		}
		pub := hex.EncodeToString(a.PublicKey)
		if output == "json" {
			return printJSON(map[string]string{"name": a.Name, "address": a.Address, "public_key": pub})
		}
		fmt.Printf("Name:       %s\n", a.Name)
		fmt.Printf("Address:    %s\n", a.Address)
		fmt.Printf("Public key: %s\n", pub)
		return nil
	},
}

func init() {
	keysCmd.AddCommand(keysListCmd)
	keysCmd.AddCommand(keysShowCmd)
}

// ── tx ───────────────────────────────────────────────────────────────────────

var txCmd = &cobra.Command{
	Use:   "tx",
	Short: "Sign and broadcast transactions",
}

var (
	ceID      string
	ceFrom    string
	ceFee     uint64
	ceTimeout time.Duration
	ceMemo    string
)

var createEntryCmd = &cobra.Command{
	Use:   "create-entry <name>",
	Short: "Create an entry and wait for it to commit",
	Long: `create-entry signs a create-entry message with the --from account,
broadcasts it and waits until it commits or --timeout expires.

When the wait times out the transaction may still commit; check it with

  disco tx status <hash>`,
	Args: cobra.ExactArgs(1),
	RunE: runCreateEntry,
}

func init() {
	createEntryCmd.Flags().StringVar(&ceID, "id", "", "entry id; assigned by the chain when empty")
	createEntryCmd.Flags().StringVar(&ceFrom, "from", "", "account name or address to sign with (required)")
	createEntryCmd.Flags().Uint64Var(&ceFee, "fee", 0, "fee amount; raised to the node minimum when lower")
	createEntryCmd.Flags().DurationVar(&ceTimeout, "timeout", client.DefaultBroadcastTimeout, "how long to wait for the commit")
	createEntryCmd.Flags().StringVar(&ceMemo, "memo", "", "optional memo")
	_ = createEntryCmd.MarkFlagRequired("from")

	txCmd.AddCommand(createEntryCmd)
	txCmd.AddCommand(txStatusCmd)
}

func runCreateEntry(cmd *cobra.Command, args []string) error {
	kr, err := loadKeyring()
	if err != nil {
		return err
	}
	acct, err := kr.Lookup(ceFrom)
	if err != nil {
		return err
	}
	c, err := newClient(client.WithBroadcastTimeout(ceTimeout))
	if err != nil {
		return err
	}
	defer c.Close()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer stop()

	actx, err := c.AccountContext(ctx, kr, acct.Address, tx.Fee{Amount: ceFee})
	if err != nil {
		return err
	}
	actx.Memo = ceMemo

	res, err := c.BuildSignBroadcast(ctx, kr, actx, entry.NewMsgCreateEntry(acct.Address, ceID, args[0]))
	if res != nil {
		if perr := printBroadcast(res, err); perr != nil {
			return perr
		}
	}
	if err != nil {
		if discoerrors.Classify(err) == discoerrors.Unknown && res != nil {
			return fmt.Errorf("%w (outcome unknown; run 'disco tx status %s')", err, res.TxHash)
		}
		return err
	}
	if !res.Succeeded() {
		return fmt.Errorf("transaction %s committed but failed: %s: %s", res.TxHash, res.Code, res.Log)
	}
	return nil
}

func printBroadcast(res *client.BroadcastResult, err error) error {
	if output == "json" {
		v := map[string]any{
			"outcome":   res.Outcome.String(),
			"hash":      res.TxHash,
			"height":    res.Height,
			"code":      uint32(res.Code),
			"log":       res.Log,
			"succeeded": res.Succeeded(),
			"certainty": discoerrors.Classify(err).String(),
		}
		return printJSON(v)
	}
	fmt.Printf("Outcome: %s\n", res.Outcome)
	fmt.Printf("Hash:    %s\n", res.TxHash)
	if res.Outcome == client.OutcomeCommitted {
		fmt.Printf("Height:  %d\n", res.Height)
	}
	if !res.Code.OK() {
		fmt.Printf("Code:    %s\n", res.Code)
		fmt.Printf("Log:     %s\n", res.Log)
	}
	return nil
}

var txStatusCmd = &cobra.Command{
	Use:   "status <hash>",
	Short: "Look up a transaction by hash",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newClient()
		if err != nil {
			return err
		}
		defer c.Close()

		st, err := c.TxStatus(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		if output == "json" {
			return printJSON(st)
		}
		fmt.Printf("Hash:   %s\n", st.Hash)
		fmt.Printf("Status: %s\n", st.Status)
		if st.Height > 0 {
			fmt.Printf("Height: %d\n", st.Height)
			fmt.Printf("Code:   %s\n", discoerrors.Code(st.Code))
		}
		if st.Log != "" {
			fmt.Printf("Log:    %s\n", st.Log)
		}
		return nil
	},
}

// ── query ────────────────────────────────────────────────────────────────────

var queryCmd = &cobra.Command{
	Use:     "query",
	Aliases: []string{"q"},
	Short:   "Read the entry collection",
}

var (
	qLimit     uint32
	qKey       string
	qAll       bool
	qMinHeight uint64
)

var listEntryCmd = &cobra.Command{
	Use:   "list-entry",
	Short: "List entries in creation order",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newClient()
		if err != nil {
			return err
		}
		defer c.Close()

		opts := client.QueryOptions{Key: qKey, Limit: qLimit, MinHeight: qMinHeight}
		var (
			entries []entry.Entry
			nextKey string
		)
		if qAll {
			entries, err = c.QueryEntryAll(cmd.Context(), opts)
		} else {
			var page *client.EntryPage
			page, err = c.ListEntries(cmd.Context(), opts)
			if page != nil {
				entries, nextKey = page.Entries, page.NextKey
			}
		}
		if err != nil {
			return err
		}

		if output == "json" {
			return printJSON(map[string]any{"entries": entries, "next_key": nextKey})
		}
		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tCREATOR\tNAME")
		for _, e := range entries {
			fmt.Fprintf(w, "%s\t%s\t%s\n", e.ID, e.Creator, e.Name)
		}
		if err := w.Flush(); err != nil {
			return err
		}
		if nextKey != "" {
			fmt.Printf("\nmore entries: --key %s\n", nextKey)
		}
		return nil
	},
}

var showEntryCmd = &cobra.Command{
	Use:   "show-entry <id>",
	Short: "Show a single entry",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newClient()
		if err != nil {
			return err
		}
		defer c.Close()

		e, err := c.GetEntry(cmd.Context(), args[0], qMinHeight)
		if err != nil {
			return err
		}
		if output == "json" {
			return printJSON(e)
		}
		fmt.Printf("ID:      %s\n", e.ID)
		fmt.Printf("Creator: %s\n", e.Creator)
		fmt.Printf("Name:    %s\n", e.Name)
		return nil
	},
}

func init() {
	listEntryCmd.Flags().Uint32Var(&qLimit, "limit", 0, "page size (node default when 0)")
	listEntryCmd.Flags().StringVar(&qKey, "key", "", "cursor from a previous page")
	listEntryCmd.Flags().BoolVar(&qAll, "all", false, "follow the cursor to the last page")
	listEntryCmd.Flags().Uint64Var(&qMinHeight, "min-height", 0, "fail unless the node has reached this height")
	showEntryCmd.Flags().Uint64Var(&qMinHeight, "min-height", 0, "fail unless the node has reached this height")

	queryCmd.AddCommand(listEntryCmd)
	queryCmd.AddCommand(showEntryCmd)
}

// ── version ──────────────────────────────────────────────────────────────────

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the disco CLI version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("disco %s\n", version)
	},
}
