// Command firebase-data-gui browses a Firebase Realtime Database from the
// terminal using a service-account credential, mirroring the data flow of
// the desktop viewer.
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/davewd/firebase-data-gui/credential"
	"github.com/davewd/firebase-data-gui/report"
	"github.com/davewd/firebase-data-gui/storage/keyringstore"
	"github.com/davewd/firebase-data-gui/tree"
	"github.com/davewd/firebase-data-gui/viewer"
)

func main() {
	log := logrus.New()
	log.SetOutput(os.Stderr)

	var verbose bool
	var credentialsPath string

	root := &cobra.Command{
		Use:           "firebase-data-gui",
		Short:         "Browse a Firebase Realtime Database with a service account",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			if verbose {
				log.SetLevel(logrus.DebugLevel)
			}
		},
	}
	root.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
	root.PersistentFlags().StringVarP(&credentialsPath, "credentials", "c", "", "path to the service-account JSON file")

	var limit int
	fetch := &cobra.Command{
		Use:   "fetch",
		Short: "Fetch and print a bounded snapshot of the database",
		RunE: func(cmd *cobra.Command, args []string) error {
			reporter := report.NewReporter(log)
			data, err := loadCredentialBytes(cmd.Context(), credentialsPath)
			if err != nil {
				return fmt.Errorf("%s", reporter.ReportError(err))
			}
			sess, err := viewer.Open(data, viewer.WithLogger(log), viewer.WithLimit(limit))
			if err != nil {
				return fmt.Errorf("%s", reporter.ReportError(err))
			}
			defer sess.Close()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
			defer stop()
			snap, err := sess.Snapshot(ctx)
			if err != nil {
				return fmt.Errorf("%s", sess.Describe(err))
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%s\n", sess.Endpoint())
			for _, key := range snap.Keys {
				printEntry(out, key, snap.Children[key], 1)
			}
			for _, failure := range snap.Failures {
				fmt.Fprintf(out, "  %s: %s\n", failure.Key, sess.Describe(failure))
			}
			if snap.Empty() {
				fmt.Fprintln(out, "  (empty)")
			}
			return nil
		},
	}
	fetch.Flags().IntVar(&limit, "limit", tree.DefaultLimit, "per-level breadth bound")

	save := &cobra.Command{
		Use:   "save",
		Short: "Validate the credential file and store it in the keychain",
		RunE: func(cmd *cobra.Command, args []string) error {
			if credentialsPath == "" {
				return fmt.Errorf("--credentials is required")
			}
			data, err := os.ReadFile(credentialsPath)
			if err != nil {
				return err
			}
			if _, err := credential.Parse(data); err != nil {
				return fmt.Errorf("%s", report.NewReporter(log).ReportError(err))
			}
			store, err := keyringstore.Open("")
			if err != nil {
				return err
			}
			return store.Save(cmd.Context(), data)
		},
	}

	forget := &cobra.Command{
		Use:   "forget",
		Short: "Remove the stored credential from the keychain",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := keyringstore.Open("")
			if err != nil {
				return err
			}
			return store.Clear(cmd.Context())
		},
	}

	root.AddCommand(fetch, save, forget)
	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// loadCredentialBytes reads the credential from the given file, falling back
// to the keychain when no path is given.
func loadCredentialBytes(ctx context.Context, path string) ([]byte, error) {
	if path != "" {
		return os.ReadFile(path)
	}
	store, err := keyringstore.Open("")
	if err != nil {
		return nil, err
	}
	data, ok, err := store.Load(ctx)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, &credential.InvalidCredentialError{Reason: "no credential stored; pass --credentials or run save first"}
	}
	return data, nil
}

func printEntry(w io.Writer, key string, v *tree.Value, depth int) {
	indent := ""
	for i := 0; i < depth; i++ {
		indent += "  "
	}
	switch v.Kind {
	case tree.KindObject:
		fmt.Fprintf(w, "%s%s/\n", indent, key)
		for _, k := range v.Keys {
			printEntry(w, k, v.Children[k], depth+1)
		}
	case tree.KindArray:
		fmt.Fprintf(w, "%s%s[]\n", indent, key)
		for i, e := range v.Elems {
			printEntry(w, strconv.Itoa(i), e, depth+1)
		}
	default:
		fmt.Fprintf(w, "%s%s: %s\n", indent, key, scalarString(v))
	}
}

func scalarString(v *tree.Value) string {
	switch v.Kind {
	case tree.KindNull:
		return "null"
	case tree.KindString:
		return strconv.Quote(v.Str)
	case tree.KindNumber:
		return strconv.FormatFloat(v.Num, 'g', -1, 64)
	case tree.KindBool:
		return strconv.FormatBool(v.Bool)
	default:
		return "?"
	}
}
