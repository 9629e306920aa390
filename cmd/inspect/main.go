package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/dgraph-io/badger/v4"
	"github.com/gookit/color"
	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"
)

type Config struct {
	BadgerFilepath string `envconfig:"BADGER_FILEPATH" default:"./data/badger"`
	JWTSecret      string `envconfig:"JWT_SECRET"`
	// INSPECT_COLOURS enables colorized output
	Colours bool `envconfig:"INSPECT_COLOURS" default:"true"`
}

var (
	config Config
	dbPath string
	page   int
	limit  int
)

var rootCmd = &cobra.Command{
	Use:   "inspect",
	Short: "Browse the conversations, messages and notifications stored in Badger",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		_ = godotenv.Load()
		if err := envconfig.Process("", &config); err != nil {
			return fmt.Errorf("config error: %w", err)
		}
		if dbPath == "" {
			dbPath = config.BadgerFilepath
		}
		color.Enable = config.Colours
		return nil
	},
	SilenceUsage: true,
}

func main() {
	rootCmd.CompletionOptions.DisableDefaultCmd = true
	rootCmd.PersistentFlags().StringVar(&dbPath, "db", "", "path to the Badger directory (default $BADGER_FILEPATH)")
	rootCmd.PersistentFlags().IntVar(&page, "page", 1, "page number")
	rootCmd.PersistentFlags().IntVar(&limit, "limit", 0, "page size")
	rootCmd.AddCommand(keysCmd, conversationsCmd, messagesCmd, notificationsCmd, tokenCmd)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, color.Red.Sprintf("Error: %v", err))
		os.Exit(1)
	}
}

// openDB opens the store read-only so that a running server keeps its lock.
func openDB() (*badger.DB, error) {
	opts := badger.DefaultOptions(dbPath).
		WithReadOnly(true).
		WithBypassLockGuard(true).
		WithLogger(nil)
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", dbPath, err)
	}
	return db, nil
}

func newTable(header ...string) *tablewriter.Table {
	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader(header)
	table.SetAutoWrapText(false)
	table.SetAutoFormatHeaders(true)
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetCenterSeparator("")
	table.SetColumnSeparator("")
	table.SetRowSeparator("")
	table.SetHeaderLine(false)
	table.SetBorder(false)
	table.SetTablePadding("\t")
	return table
}

func shorten(s string, n int) string {
	if len([]rune(s)) <= n {
		return s
	}
	return string([]rune(s)[:n-1]) + "…"
}

func title(s string) {
	fmt.Println(color.New(color.OpBold, color.FgCyan).Render(s))
}

func footer(format string, args ...any) {
	fmt.Println(color.Gray.Sprintf(format, args...))
}

func joinIDs[T ~string](ids []T) string {
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = string(id)
	}
	return strings.Join(parts, ", ")
}
