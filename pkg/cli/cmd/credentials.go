package cmd

import (
	"errors"
	"fmt"

	"github.com/rzbill/hoist/pkg/cli/format"
	"github.com/rzbill/hoist/pkg/credentials"
	"github.com/rzbill/hoist/pkg/log"
	"github.com/rzbill/hoist/pkg/store"
	"github.com/rzbill/hoist/pkg/types"
	"github.com/spf13/cobra"
)

var credentialsReveal bool

func newCredentialsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "credentials",
		Aliases: []string{"creds"},
		Short:   "Manage the service admin credential",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "ensure",
		Short: "Generate the credential unless one already exists",
		Args:  cobra.NoArgs,
		RunE:  runCredentials(false),
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "rotate",
		Short: "Regenerate the plaintext and hash",
		Long: `Regenerate both credential artifacts under the credentials lock.

Services that only read the credential on first initialisation (Portainer
among them) keep the old password until their data is reset.`,
		Args: cobra.NoArgs,
		RunE: runCredentials(true),
	})
	show := &cobra.Command{
		Use:   "show",
		Short: "Show where the credential lives and how it was hashed",
		Args:  cobra.NoArgs,
		RunE:  runCredentialsShow,
	}
	show.Flags().BoolVar(&credentialsReveal, "reveal", false, "Also print the plaintext password")
	cmd.AddCommand(show)
	return cmd
}

func init() {
	rootCmd.AddCommand(newCredentialsCmd())
}

func runCredentials(rotate bool) func(cmd *cobra.Command, args []string) error {
	return func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		a, err := newApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close()

		boot, err := a.bootstrapper()
		if err != nil {
			return err
		}
		paths := cfg.ArtifactPaths()

		var res *credentials.Result
		if rotate {
			res, err = boot.Rotate(ctx, paths)
		} else {
			res, err = boot.Ensure(ctx, paths)
		}
		if err != nil {
			return err
		}

		st, jerr := a.journal()
		if jerr != nil {
			printer.Warning("journal unavailable: %v", jerr)
		}
		record(ctx, st, cfg.Service.Name, types.StateCredentialsReady, "credentials ready", func(d *types.Deployment) {
			if !res.Reused || d.HashMethod == "" {
				d.HashMethod = res.Method
			}
			d.Degraded = res.Degraded
		})

		for _, w := range res.Warnings {
			printer.Warning("%s", w)
		}
		if res.Degraded {
			printer.Warning("hash is an insecure placeholder; install mkpasswd or make docker available and rotate")
		}
		switch {
		case rotate:
			printer.Success("Credential rotated with %s", res.Method)
		case res.Reused:
			printer.Success("Existing credential reused")
		default:
			printer.Success("Credential generated with %s", res.Method)
		}
		fmt.Fprintln(printer.Out, "  "+format.Label("plaintext", res.PlaintextPath))
		fmt.Fprintln(printer.Out, "  "+format.Label("hash", res.HashPath))
		return nil
	}
}

func runCredentialsShow(cmd *cobra.Command, args []string) error {
	paths := cfg.ArtifactPaths()
	hash, err := credentials.ReadHash(paths)
	if err != nil {
		return err
	}
	if hash == "" {
		return fmt.Errorf("no credential at %s; run 'hoist credentials ensure'", paths.Hash)
	}

	method := "unknown"
	degraded := false
	if cfg.State.Backend == "badger" {
		st := store.NewBadgerStore(logger)
		if err := st.Open(cfg.State.Path); err == nil {
			defer st.Close()
			if d, err := st.Get(cmd.Context(), cfg.Environment.Name, cfg.Service.Name); err == nil {
				method, degraded = d.HashMethod, d.Degraded
			} else if !errors.Is(err, store.ErrNotFound) {
				logger.Debug("Journal lookup failed", log.Err(err))
			}
		}
	}

	fmt.Fprintln(printer.Out, format.Label("username", cfg.Credentials.Username))
	fmt.Fprintln(printer.Out, format.Label("plaintext", paths.Plaintext))
	fmt.Fprintln(printer.Out, format.Label("hash", paths.Hash))
	fmt.Fprintln(printer.Out, format.Label("method", method))
	plain, err := credentials.ReadPlaintext(paths)
	if err != nil {
		return err
	}
	if degraded || credentials.IsPlaceholder(hash, plain) {
		printer.Warning("hash is an insecure placeholder")
	}
	if credentialsReveal {
		fmt.Fprintln(printer.Out, format.Label("password", plain))
	}
	return nil
}
