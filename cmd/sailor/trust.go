package main

import (
	"crypto/x509"
	"fmt"
	"io"
	"os"

	"github.com/sensiblebit/sailor"
	"github.com/sensiblebit/sailor/internal"
	"github.com/spf13/cobra"
)

var (
	trustPasswords    []string
	trustPasswordFile string
	trustAddAll       bool
	trustExportOut    string
)

var trustCmd = &cobra.Command{
	Use:   "trust",
	Short: "Manage trusted certificate fingerprints",
	Long: `Manage the certificate fingerprints trusted despite failing validation.

Fingerprints are SHA-256 digests of the server certificate, written as
colon-separated uppercase hex.`,
}

var trustListCmd = &cobra.Command{
	Use:   "list",
	Short: "List trusted fingerprints",
	Args:  cobra.NoArgs,
	RunE:  runTrustList,
}

var trustAddCmd = &cobra.Command{
	Use:   "add <file>",
	Short: "Trust the certificate in a file",
	Long: `Trust the server certificate found in a PEM, DER, PKCS#7, PKCS#12, or JKS
file. Only the leaf is trusted unless --all is given.`,
	Example: `  sailor trust add server.pem
  sailor trust add keystore.jks --password s3cret`,
	Args:              cobra.ExactArgs(1),
	ValidArgsFunction: fileCompletion,
	RunE:              runTrustAdd,
}

var trustRemoveCmd = &cobra.Command{
	Use:   "remove <fingerprint>",
	Short: "Stop trusting a fingerprint",
	Args:  cobra.ExactArgs(1),
	RunE:  runTrustRemove,
}

var trustImportCmd = &cobra.Command{
	Use:               "import <seed.yaml>",
	Short:             "Trust the fingerprints listed in a YAML file",
	Args:              cobra.ExactArgs(1),
	ValidArgsFunction: fileCompletion,
	RunE:              runTrustImport,
}

var trustExportCmd = &cobra.Command{
	Use:   "export",
	Short: "Write trusted fingerprints as YAML",
	Args:  cobra.NoArgs,
	RunE:  runTrustExport,
}

func init() {
	trustAddCmd.Flags().StringSliceVar(&trustPasswords, "password", nil, "Password for PKCS#12 or JKS files (repeatable)")
	trustAddCmd.Flags().BoolVar(&trustAddAll, "all", false, "Trust every certificate in the file, not just the leaf")
	trustAddCmd.Flags().StringVar(&trustPasswordFile, "password-file", "", "File containing passwords, one per line")
	registerCompletion(trustAddCmd, completionInput{"password-file", fileCompletion})

	trustExportCmd.Flags().StringVarP(&trustExportOut, "out", "o", "", "Output file (default: stdout)")
	registerCompletion(trustExportCmd, completionInput{"out", fileCompletion})

	trustCmd.AddCommand(trustListCmd)
	trustCmd.AddCommand(trustAddCmd)
	trustCmd.AddCommand(trustRemoveCmd)
	trustCmd.AddCommand(trustImportCmd)
	trustCmd.AddCommand(trustExportCmd)
}

// openTrust opens the configuration database and the trust store over it.
func openTrust() (*internal.ConfigStore, *sailor.TrustStore, error) {
	store, err := openStore()
	if err != nil {
		return nil, nil, err
	}
	return store, sailor.NewTrustStore(store), nil
}

func runTrustList(cmd *cobra.Command, _ []string) error {
	store, trust, err := openTrust()
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	fps, err := trust.Fingerprints()
	if err != nil {
		return err
	}
	w := cmd.OutOrStdout()
	if len(fps) == 0 {
		fmt.Fprintln(w, "No certificates are trusted.")
		return nil
	}
	for _, fp := range fps {
		fmt.Fprintln(w, fp)
	}
	return nil
}

func runTrustAdd(cmd *cobra.Command, args []string) error {
	passwords, err := internal.ProcessPasswords(trustPasswords, trustPasswordFile)
	if err != nil {
		return fmt.Errorf("loading passwords: %w", err)
	}
	contents, err := internal.LoadContainerFile(args[0], passwords)
	if err != nil {
		return err
	}
	certs := []*x509.Certificate{contents.Leaf}
	if trustAddAll {
		certs = contents.All()
	}

	store, trust, err := openTrust()
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	w := cmd.OutOrStdout()
	for _, cert := range certs {
		fp := sailor.CertFingerprintColonSHA256(cert)
		if err := trust.AddFingerprint(fp); err != nil {
			return err
		}
		fmt.Fprintf(w, "Trusted %s\n  %s\n", sailor.CertSubjectSummary(cert), fp)
	}
	return nil
}

func runTrustRemove(cmd *cobra.Command, args []string) error {
	store, trust, err := openTrust()
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	removed, err := trust.RemoveFingerprint(args[0])
	if err != nil {
		return err
	}
	if !removed {
		return fmt.Errorf("fingerprint %s is not trusted", sailor.NormalizeFingerprint(args[0]))
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Removed %s\n", sailor.NormalizeFingerprint(args[0]))
	return nil
}

func runTrustImport(cmd *cobra.Command, args []string) error {
	fps, err := internal.LoadTrustSeed(args[0])
	if err != nil {
		return err
	}

	store, trust, err := openTrust()
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	for _, fp := range fps {
		if err := trust.AddFingerprint(fp); err != nil {
			return fmt.Errorf("importing %q: %w", fp, err)
		}
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Imported %d fingerprint(s)\n", len(fps))
	return nil
}

func runTrustExport(cmd *cobra.Command, _ []string) error {
	store, trust, err := openTrust()
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	fps, err := trust.Fingerprints()
	if err != nil {
		return err
	}

	var w io.Writer = cmd.OutOrStdout()
	if trustExportOut != "" {
		f, err := os.OpenFile(trustExportOut, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600)
		if err != nil {
			return fmt.Errorf("creating %s: %w", trustExportOut, err)
		}
		defer func() { _ = f.Close() }()
		w = f
	}
	return internal.WriteTrustSeed(w, fps)
}
