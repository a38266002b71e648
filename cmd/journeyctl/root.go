package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	jwttoken "memberportal/internal/jwt_token"
	"memberportal/internal/platform/config"
	id "memberportal/pkg/domain"
	"memberportal/pkg/requestcontext"
)

type opener func(ctx context.Context) (*backend, error)

// deps are the command's side effects, replaced in tests.
type deps struct {
	open       opener
	loadConfig func() (config.Config, error)
}

const (
	outputAuto     = "auto"
	outputMarkdown = "markdown"
	outputJSON     = "json"
	outputYAML     = "yaml"
)

func newRootCmd(d deps) *cobra.Command {
	root := &cobra.Command{
		Use:           "journeyctl",
		Short:         "Operate on member journeys",
		Long:          `journeyctl reads and maintains journeys in the configured Postgres or Redis store. Configuration comes from MEMBERPORTAL_* variables or memberportal.yaml.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().String("type", string(id.JourneyTypeRetirement), "journey type: retirement, transfer or quote_selection")

	root.AddCommand(
		newInspectCmd(d.open),
		newGraphCmd(d.open),
		newPruneCmd(d.open),
		newPurgeCmd(d.open),
		newTokenCmd(d.loadConfig),
	)
	return root
}

func newInspectCmd(open opener) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "inspect <business-group>/<reference-number>",
		Short: "Show a member's journey with every branch",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			output, _ := cmd.Flags().GetString("output")
			return withJourney(cmd, open, args[0], func(ctx context.Context, ops journeyOps, member id.Member) error {
				v, err := ops.load(ctx, member)
				if err != nil {
					return err
				}
				text, err := formatView(cmd.OutOrStdout(), v, output)
				if err != nil {
					return err
				}
				_, err = io.WriteString(cmd.OutOrStdout(), text)
				return err
			})
		},
	}
	cmd.Flags().StringP("output", "o", outputAuto, "output format: auto, markdown, json or yaml")
	return cmd
}

func newGraphCmd(open opener) *cobra.Command {
	return &cobra.Command{
		Use:   "graph <business-group>/<reference-number>",
		Short: "Print the journey's branches as a Mermaid flowchart",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withJourney(cmd, open, args[0], func(ctx context.Context, ops journeyOps, member id.Member) error {
				v, err := ops.load(ctx, member)
				if err != nil {
					return err
				}
				_, err = io.WriteString(cmd.OutOrStdout(), v.mermaid)
				return err
			})
		},
	}
}

func newPruneCmd(open opener) *cobra.Command {
	return &cobra.Command{
		Use:   "prune-inactive <business-group>/<reference-number>",
		Short: "Discard every branch except the active one",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withJourney(cmd, open, args[0], func(ctx context.Context, ops journeyOps, member id.Member) error {
				n, err := ops.prune(ctx, member)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "removed %d inactive branch(es) for %s\n", n, member)
				return nil
			})
		},
	}
}

func newPurgeCmd(open opener) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "purge-expired",
		Short: "Delete journeys whose expiration date has passed",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			all, _ := cmd.Flags().GetBool("all")
			b, ctx, err := connect(cmd, open)
			if err != nil {
				return err
			}
			defer b.close()

			types := []id.JourneyType{id.JourneyTypeRetirement, id.JourneyTypeTransfer, id.JourneyTypeQuoteSelection}
			if !all {
				jt, err := journeyType(cmd)
				if err != nil {
					return err
				}
				types = []id.JourneyType{jt}
			}
			for _, jt := range types {
				n, err := b.ops[jt].purge(ctx)
				if err != nil {
					return fmt.Errorf("purge %s: %w", jt, err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s: deleted %d expired journey(s)\n", jt, n)
			}
			return nil
		},
	}
	cmd.Flags().Bool("all", false, "purge every journey type")
	return cmd
}

// newTokenCmd mints a member token signed with the configured key, for
// calling the API from development tools.
func newTokenCmd(loadConfig func() (config.Config, error)) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "token <business-group>/<reference-number>",
		Short: "Mint a member access token for development",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ttl, _ := cmd.Flags().GetDuration("ttl")
			member, err := parseMember(args[0])
			if err != nil {
				return err
			}
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if cfg.IsProduction() {
				return fmt.Errorf("refusing to mint tokens in production")
			}
			svc := jwttoken.NewJWTService(cfg.Auth.JWTSigningKey, cfg.Auth.Issuer, cfg.Auth.Audience)
			token, err := svc.GenerateAccessToken(member, ttl)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}
	cmd.Flags().Duration("ttl", time.Hour, "token lifetime")
	return cmd
}

func withJourney(cmd *cobra.Command, open opener, rawMember string, fn func(ctx context.Context, ops journeyOps, member id.Member) error) error {
	member, err := parseMember(rawMember)
	if err != nil {
		return err
	}
	jt, err := journeyType(cmd)
	if err != nil {
		return err
	}
	b, ctx, err := connect(cmd, open)
	if err != nil {
		return err
	}
	defer b.close()
	return fn(ctx, b.ops[jt], member)
}

func connect(cmd *cobra.Command, open opener) (*backend, context.Context, error) {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	ctx = requestcontext.WithRequestID(ctx, "journeyctl-"+cmd.Name())
	b, err := open(ctx)
	if err != nil {
		return nil, nil, err
	}
	return b, ctx, nil
}

func journeyType(cmd *cobra.Command) (id.JourneyType, error) {
	raw, _ := cmd.Flags().GetString("type")
	return id.ParseJourneyType(raw)
}

// parseMember accepts "RBS/0304442" or "RBS:0304442".
func parseMember(s string) (id.Member, error) {
	bg, ref, ok := strings.Cut(s, "/")
	if !ok {
		bg, ref, ok = strings.Cut(s, ":")
	}
	if !ok {
		return id.Member{}, fmt.Errorf("member must look like <business-group>/<reference-number>, got %q", s)
	}
	return id.ParseMember(bg, ref)
}

func formatView(w io.Writer, v *view, output string) (string, error) {
	switch output {
	case outputJSON:
		return toJSON(v.response)
	case outputYAML:
		return toYAML(v.response)
	case outputMarkdown:
		return v.markdown, nil
	case outputAuto:
		if f, ok := w.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
			return renderTerminal(v.markdown)
		}
		return v.markdown, nil
	default:
		return "", fmt.Errorf("unknown output format %q", output)
	}
}
